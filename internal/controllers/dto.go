package controllers

import (
	"time"

	"github.com/jinzhu/copier"

	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/services"
)

type sessionResponse struct {
	SessionID         string               `json:"session_id"`
	AssessmentID      string               `json:"assessment_id"`
	ClassroomID       string               `json:"classroom_id"`
	StudentID         string               `json:"student_id"`
	StartedAt         time.Time            `json:"started_at"`
	TimeLimitSeconds  int64                `json:"time_limit_seconds"`
	Status            models.SessionStatus `json:"status"`
	ViolationCount    int                  `json:"violation_count"`
	Warned            bool                 `json:"warned"`
	Locked            bool                 `json:"locked"`
	LockedAt          *time.Time           `json:"locked_at,omitempty"`
	SubmittedAt       *time.Time           `json:"submitted_at,omitempty"`
	SubmitReason      string               `json:"submit_reason,omitempty"`
	AutoSubmitted     bool                 `json:"auto_submitted"`
	ReplacesSessionID *string              `json:"replaces_session_id,omitempty"`
	RemainingSeconds  int64                `json:"remaining_seconds"`
	ServerTime        time.Time            `json:"server_time"`
}

func toSessionResponse(v *services.SessionView) sessionResponse {
	var out sessionResponse
	_ = copier.Copy(&out, v.TestSession)
	out.SessionID = v.ID
	out.RemainingSeconds = v.RemainingSeconds
	out.ServerTime = v.ServerTime
	return out
}

type windowResponse struct {
	AssignmentID string     `json:"assignment_id,omitempty"`
	Start        *time.Time `json:"start"`
	End          *time.Time `json:"end"`
}

type availabilityResponse struct {
	Allowed       bool            `json:"allowed"`
	Window        *windowResponse `json:"window"`
	NextAvailable *time.Time      `json:"next_available"`
	Degraded      bool            `json:"degraded,omitempty"`
}

func toAvailabilityResponse(a services.Availability) availabilityResponse {
	out := availabilityResponse{Allowed: a.Allowed, NextAvailable: a.NextAvailable, Degraded: a.Degraded}
	if a.Window != nil {
		out.Window = &windowResponse{AssignmentID: a.Window.AssignmentID, Start: a.Window.StartAt, End: a.Window.EndAt}
	}
	return out
}

type codeResponse struct {
	ID          string           `json:"id"`
	Code        string           `json:"code"`
	IssuerID    string           `json:"issuer_id"`
	Scope       models.CodeScope `json:"scope"`
	ClassroomID *string          `json:"classroom_id,omitempty"`
	ConsumedAt  *time.Time       `json:"consumed_at,omitempty"`
	ConsumedBy  *string          `json:"consumed_by,omitempty"`
	RevokedAt   *time.Time       `json:"revoked_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func toCodeResponses(recs []models.BypassCode) []codeResponse {
	out := make([]codeResponse, 0, len(recs))
	_ = copier.Copy(&out, &recs)
	return out
}
