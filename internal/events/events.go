// Package events carries session state transitions to whoever needs to be told:
// the student's browser, teacher dashboards and downstream consumers on NATS.
package events

import (
	"context"
	"time"

	"github.com/zaqqye/seb_proctor/internal/models"
)

type Type string

const (
	SessionStarted   Type = "session_started"
	IncidentRecorded Type = "incident_recorded"
	SessionWarned    Type = "session_warned"
	SessionLocked    Type = "session_locked"
	SessionUnlocked  Type = "session_unlocked"
	SessionSubmitted Type = "session_submitted"
	SessionExpired   Type = "session_expired"
	// SessionState is the snapshot sent when a client subscribes.
	SessionState Type = "session_state"
)

type Event struct {
	Type           Type                 `json:"type"`
	SessionID      string               `json:"session_id"`
	ClassroomID    string               `json:"classroom_id"`
	StudentID      string               `json:"student_id"`
	Status         models.SessionStatus `json:"status"`
	ViolationCount int                  `json:"violation_count"`
	Locked         bool                 `json:"locked"`
	Kind           models.IncidentKind  `json:"kind,omitempty"`
	// NextSessionID points at the replacement session after an unlock.
	NextSessionID string    `json:"next_session_id,omitempty"`
	At            time.Time `json:"at"`
}

// FromSession fills the common fields from a session snapshot.
func FromSession(t Type, s *models.TestSession, at time.Time) Event {
	return Event{
		Type:           t,
		SessionID:      s.ID,
		ClassroomID:    s.ClassroomID,
		StudentID:      s.StudentID,
		Status:         s.Status,
		ViolationCount: s.ViolationCount,
		Locked:         s.Locked,
		At:             at,
	}
}

// Publisher must not block the caller on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, e)
		}
	}
}
