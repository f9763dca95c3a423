package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionLocked    SessionStatus = "locked"
	SessionSubmitted SessionStatus = "submitted"
	SessionExpired   SessionStatus = "expired"
	SessionVoided    SessionStatus = "voided"
)

// Terminal reports whether no further transition can leave this status.
func (s SessionStatus) Terminal() bool {
	return s == SessionSubmitted || s == SessionExpired || s == SessionVoided
}

const (
	SubmitReasonManual  = "manual"
	SubmitReasonExpired = "expired"
)

// TestSession is one student's attempt at one assessment.
// StartedAt is written once on create; remaining time is always derived from it.
type TestSession struct {
	ID                string         `gorm:"type:uuid;primaryKey" json:"session_id"`
	AssessmentID      string         `gorm:"size:64;index" json:"assessment_id"`
	ClassroomID       string         `gorm:"size:64;index" json:"classroom_id"`
	StudentID         string         `gorm:"size:64;index" json:"student_id"`
	StartedAt         time.Time      `gorm:"not null" json:"started_at"`
	TimeLimitSeconds  int64          `gorm:"not null" json:"time_limit_seconds"`
	Status            SessionStatus  `gorm:"size:16;not null;index" json:"status"`
	ViolationCount    int            `gorm:"not null;default:0" json:"violation_count"`
	Warned            bool           `gorm:"not null;default:false" json:"warned"`
	Locked            bool           `gorm:"not null;default:false" json:"locked"`
	LockedAt          *time.Time     `json:"locked_at,omitempty"`
	SubmittedAt       *time.Time     `json:"submitted_at,omitempty"`
	SubmitReason      string         `gorm:"size:16" json:"submit_reason,omitempty"`
	AutoSubmitted     bool           `gorm:"not null;default:false" json:"auto_submitted"`
	SubmittedPayload  datatypes.JSON `gorm:"type:jsonb" json:"-"`
	OverrideCodeID    *string        `gorm:"type:uuid" json:"override_code_id,omitempty"`
	ReplacesSessionID *string        `gorm:"type:uuid;index" json:"replaces_session_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (s *TestSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (s *TestSession) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitSeconds) * time.Second
}

func (s *TestSession) Deadline() time.Time {
	return s.StartedAt.Add(s.TimeLimit())
}

// Remaining is time_limit - (now - started_at), floored at zero.
func (s *TestSession) Remaining(now time.Time) time.Duration {
	left := s.TimeLimit() - now.Sub(s.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}
