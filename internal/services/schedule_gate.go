package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/events"
	"github.com/zaqqye/seb_proctor/internal/metrics"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

// ScheduleGate decides whether a session may be created now.
type ScheduleGate struct {
	*core
}

type Availability struct {
	Allowed       bool                   `json:"allowed"`
	Window        *models.ScheduleWindow `json:"window"`
	NextAvailable *time.Time             `json:"next_available"`
	// Degraded is set when the window could not be read and the check failed open.
	Degraded bool `json:"degraded,omitempty"`
}

// CheckAvailability evaluates the window for the classroom, preferring an
// assignment specific one when assignmentID is set. A store failure allows
// the start and is logged, so availability never blocks learning outright.
func (g *ScheduleGate) CheckAvailability(ctx context.Context, classroomID, assignmentID string) Availability {
	w, err := g.store.FindWindow(ctx, classroomID, assignmentID)
	if errors.Is(err, store.ErrNotFound) {
		return Availability{Allowed: true}
	}
	if err != nil {
		metrics.ScheduleFailOpen.Inc()
		log.Warn().Err(err).
			Str("classroom_id", classroomID).
			Str("assignment_id", assignmentID).
			Msg("schedule check failed, allowing start")
		return Availability{Allowed: true, Degraded: true}
	}
	now := g.now()
	if w.Contains(now) {
		return Availability{Allowed: true, Window: w}
	}
	return Availability{Allowed: false, Window: w, NextAvailable: w.NextAvailable(now)}
}

type StartRequest struct {
	AssignmentID string
	StudentID    string
	// ClassroomID is used when the assessment is not registered.
	ClassroomID  string
	OverrideCode string
}

type StartResult struct {
	Session *models.TestSession
	// Resumed is true when an already active session was returned.
	Resumed    bool
	Overridden bool
}

// StartWithOverride creates a session for the student, or returns the one
// already running. Outside the window a schedule code is consumed in the
// same transaction that creates the session.
func (g *ScheduleGate) StartWithOverride(ctx context.Context, req StartRequest) (*StartResult, error) {
	if req.AssignmentID == "" || req.StudentID == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "assignment and student are required")
	}
	classroomID := req.ClassroomID
	limit := g.defaultLimit
	a, err := g.store.GetAssessment(ctx, req.AssignmentID)
	switch {
	case err == nil:
		if a.ClassroomID != "" {
			classroomID = a.ClassroomID
		}
		if a.TimeLimitSeconds > 0 {
			limit = time.Duration(a.TimeLimitSeconds) * time.Second
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	avail := g.CheckAvailability(ctx, classroomID, req.AssignmentID)
	code := NormalizeCode(req.OverrideCode)

	var (
		out     outbox
		res     StartResult
		expired *models.TestSession
	)
	err = g.store.Transaction(ctx, func(tx store.Tx) error {
		now := g.now()

		var bc *models.BypassCode
		if !avail.Allowed && code != "" {
			var err error
			if bc, err = tx.LockCode(code); err != nil {
				return notFound(err, ErrInvalidCode)
			}
			if err := checkCode(bc, models.ScopeSchedule, classroomID); err != nil {
				return err
			}
		}

		if err := tx.LockAttempt(req.StudentID, req.AssignmentID); err != nil {
			return err
		}
		open, err := tx.FindOpenSession(req.StudentID, req.AssignmentID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if open != nil {
			switch {
			case open.Status == models.SessionLocked:
				return ErrSessionLocked
			case pastDeadline(open, now):
				if err := finalizeExpiry(tx, open, &out, now); err != nil {
					return err
				}
				expired = open
			default:
				res = StartResult{Session: open, Resumed: true}
				return nil
			}
		}

		if !avail.Allowed && bc == nil {
			return &ScheduleDeniedError{Window: avail.Window, NextAvailable: avail.NextAvailable}
		}

		s := &models.TestSession{
			ID:               uuid.NewString(),
			AssessmentID:     req.AssignmentID,
			ClassroomID:      classroomID,
			StudentID:        req.StudentID,
			StartedAt:        now,
			TimeLimitSeconds: int64(limit / time.Second),
			Status:           models.SessionActive,
		}
		if bc != nil {
			bc.ConsumedAt = &now
			bc.ConsumedBy = &s.ID
			if err := tx.SaveCode(bc); err != nil {
				return err
			}
			s.OverrideCodeID = &bc.ID
			res.Overridden = true
		}
		if err := tx.CreateSession(s); err != nil {
			return err
		}
		out.add(events.SessionStarted, s, now)
		res.Session = s
		return nil
	})
	if err != nil {
		g.rejected(models.ScopeSchedule, err)
		return nil, err
	}

	if expired != nil {
		g.settled(expired)
	}
	if !res.Resumed {
		g.timers.Start(res.Session)
		origin := "schedule"
		if res.Overridden {
			origin = "override"
			log.Info().
				Str("session_id", res.Session.ID).
				Str("classroom_id", classroomID).
				Str("code_id", *res.Session.OverrideCodeID).
				Msg("schedule override consumed")
		}
		metrics.SessionsStarted.WithLabelValues(origin).Inc()
	}
	g.flush(ctx, out)
	return &res, nil
}

// checkCode validates a locked code for one scope and classroom. Revoked
// codes are treated like consumed ones.
func checkCode(bc *models.BypassCode, scope models.CodeScope, classroomID string) error {
	if bc.Scope != scope {
		return ErrInvalidCode
	}
	if bc.ClassroomID != nil && *bc.ClassroomID != "" && *bc.ClassroomID != classroomID {
		return ErrInvalidCode
	}
	if bc.Spent() {
		return ErrCodeConsumed
	}
	return nil
}

func (c *core) rejected(scope models.CodeScope, err error) {
	switch {
	case errors.Is(err, ErrInvalidCode):
		metrics.CodeRejections.WithLabelValues(string(scope), "invalid").Inc()
	case errors.Is(err, ErrCodeConsumed):
		metrics.CodeRejections.WithLabelValues(string(scope), "consumed").Inc()
	}
}

// NormalizeCode trims and upper-cases a human entered bypass code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PutWindow replaces the window for a classroom, or for one assignment in it.
func (g *ScheduleGate) PutWindow(ctx context.Context, w *models.ScheduleWindow) error {
	if w.ClassroomID == "" {
		return errors.Wrap(ErrInvalidArgument, "classroom_id is required")
	}
	if w.StartAt != nil && w.EndAt != nil && w.EndAt.Before(*w.StartAt) {
		return errors.Wrap(ErrInvalidArgument, "end_at must not be before start_at")
	}
	if err := g.store.PutWindow(ctx, w); err != nil {
		return err
	}
	log.Info().
		Str("classroom_id", w.ClassroomID).
		Str("assignment_id", w.AssignmentID).
		Str("updated_by", w.UpdatedBy).
		Msg("schedule window updated")
	return nil
}

func (g *ScheduleGate) DeleteWindow(ctx context.Context, classroomID, assignmentID string) error {
	return g.store.DeleteWindow(ctx, classroomID, assignmentID)
}

// RegisterAssessment records the classroom and time limit used at start.
func (g *ScheduleGate) RegisterAssessment(ctx context.Context, a *models.Assessment) error {
	if a.ID == "" {
		return errors.Wrap(ErrInvalidArgument, "assignment id is required")
	}
	if a.TimeLimitSeconds < 0 {
		return errors.Wrap(ErrInvalidArgument, "time limit must not be negative")
	}
	return g.store.PutAssessment(ctx, a)
}
