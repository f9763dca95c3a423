package apiclient

import (
	"encoding/json"
	"time"
)

type Session struct {
	SessionID         string     `json:"session_id"`
	AssessmentID      string     `json:"assessment_id"`
	ClassroomID       string     `json:"classroom_id"`
	StudentID         string     `json:"student_id"`
	StartedAt         time.Time  `json:"started_at"`
	TimeLimitSeconds  int64      `json:"time_limit_seconds"`
	Status            string     `json:"status"`
	ViolationCount    int        `json:"violation_count"`
	Warned            bool       `json:"warned"`
	Locked            bool       `json:"locked"`
	LockedAt          *time.Time `json:"locked_at,omitempty"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	SubmitReason      string     `json:"submit_reason,omitempty"`
	AutoSubmitted     bool       `json:"auto_submitted"`
	ReplacesSessionID *string    `json:"replaces_session_id,omitempty"`
	RemainingSeconds  int64      `json:"remaining_seconds"`
	ServerTime        time.Time  `json:"server_time"`
}

// Active reports whether the session still accepts answers.
func (s *Session) Active() bool { return s.Status == "active" }

type Window struct {
	AssignmentID string     `json:"assignment_id,omitempty"`
	Start        *time.Time `json:"start"`
	End          *time.Time `json:"end"`
}

type Availability struct {
	Allowed       bool       `json:"allowed"`
	Window        *Window    `json:"window"`
	NextAvailable *time.Time `json:"next_available"`
	Degraded      bool       `json:"degraded,omitempty"`
}

type Incident struct {
	IncidentID string          `json:"incident_id,omitempty"`
	Kind       string          `json:"kind"`
	ObservedAt time.Time       `json:"observed_at"`
	Context    json.RawMessage `json:"context,omitempty"`
}

type LedgerResult struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	ViolationCount int    `json:"violation_count"`
	WarningIssued  bool   `json:"warning_issued"`
	Locked         bool   `json:"locked"`
	Discarded      bool   `json:"discarded,omitempty"`
	Duplicate      bool   `json:"duplicate,omitempty"`
}

type AutosaveResult struct {
	SessionID  string     `json:"session_id"`
	SaveStatus string     `json:"save_status"`
	SavedAt    *time.Time `json:"saved_at"`
	Discarded  bool       `json:"discarded,omitempty"`
}

type Code struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	IssuerID    string     `json:"issuer_id"`
	Scope       string     `json:"scope"`
	ClassroomID *string    `json:"classroom_id,omitempty"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
	ConsumedBy  *string    `json:"consumed_by,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type IssueCodeRequest struct {
	Scope       string `json:"scope"`
	ClassroomID string `json:"classroom_id,omitempty"`
	Length      int    `json:"length,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
}

// CodeQuery filters ListCodes. Used is "true", "false" or "all".
type CodeQuery struct {
	Scope       string
	ClassroomID string
	Used        string
	Limit       int
}

type PutWindowRequest struct {
	AssignmentID string     `json:"assignment_id,omitempty"`
	StartAt      *time.Time `json:"start_at"`
	EndAt        *time.Time `json:"end_at"`
}

type PublicConfig struct {
	BlurDebounceMs     int64    `json:"blur_debounce_ms"`
	AutosaveIntervalMs int64    `json:"autosave_interval_ms"`
	ReportTimeoutMs    int64    `json:"report_timeout_ms"`
	ReportRetries      int      `json:"report_retries"`
	BypassCodePattern  string   `json:"bypass_code_pattern"`
	IncidentKinds      []string `json:"incident_kinds"`
	SchemaVersion      int      `json:"schema_version"`
}

type listEnvelope[T any] struct {
	Data []T `json:"data"`
}
