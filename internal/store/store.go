// Package store defines the persistence contract of the proctoring controller.
//
// Every per-session state change runs inside Store.Transaction and starts by
// locking the rows it mutates (LockSession, LockCode). Rows stay locked until
// the transaction callback returns, which serialises ledger updates, unlocks,
// code consumption and the submit/expire race per session or per code while
// unrelated sessions proceed independently. Lock order is code, then attempt,
// then session.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/zaqqye/seb_proctor/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type SessionFilter struct {
	ClassroomID string
	StudentID   string
	Status      models.SessionStatus
	Limit       int
}

type CodeFilter struct {
	IssuerID    string
	ClassroomID string
	Scope       models.CodeScope
	// Used nil lists all codes; true only spent, false only live ones.
	Used  *bool
	Limit int
}

type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	GetSession(ctx context.Context, id string) (*models.TestSession, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]models.TestSession, error)
	ListIncidents(ctx context.Context, sessionID string) ([]models.SecurityIncident, error)
	GetSnapshot(ctx context.Context, sessionID string) (*models.AutosaveSnapshot, error)

	// FindWindow prefers the assignment-specific window over the classroom one.
	FindWindow(ctx context.Context, classroomID, assignmentID string) (*models.ScheduleWindow, error)
	PutWindow(ctx context.Context, w *models.ScheduleWindow) error
	DeleteWindow(ctx context.Context, classroomID, assignmentID string) error

	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	PutAssessment(ctx context.Context, a *models.Assessment) error

	CreateCode(ctx context.Context, c *models.BypassCode) error
	ListCodes(ctx context.Context, f CodeFilter) ([]models.BypassCode, error)
}

type Tx interface {
	LockSession(id string) (*models.TestSession, error)
	CreateSession(s *models.TestSession) error
	SaveSession(s *models.TestSession) error
	// LockAttempt serialises session creation for one student and assessment.
	LockAttempt(studentID, assessmentID string) error
	// FindOpenSession returns the student's active or locked session, if any.
	FindOpenSession(studentID, assessmentID string) (*models.TestSession, error)

	LockCode(code string) (*models.BypassCode, error)
	LockCodeByID(id string) (*models.BypassCode, error)
	SaveCode(c *models.BypassCode) error

	FindIncidentByClientID(sessionID, clientID string) (*models.SecurityIncident, error)
	// FindIncidentNear returns an incident of kind observed within [from, to].
	FindIncidentNear(sessionID string, kind models.IncidentKind, from, to time.Time) (*models.SecurityIncident, error)
	InsertIncident(i *models.SecurityIncident) error

	GetSnapshot(sessionID string) (*models.AutosaveSnapshot, error)
	PutSnapshot(s *models.AutosaveSnapshot) error
}
