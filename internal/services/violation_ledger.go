package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/zaqqye/seb_proctor/internal/events"
	"github.com/zaqqye/seb_proctor/internal/metrics"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

// ViolationLedger is the only writer of violation counts and lock state.
type ViolationLedger struct {
	*core
}

type IncidentReport struct {
	SessionID        string
	ClientIncidentID string
	Kind             models.IncidentKind
	ObservedAt       time.Time
	Context          datatypes.JSON
}

type LedgerResult struct {
	SessionID      string               `json:"session_id"`
	Status         models.SessionStatus `json:"status"`
	ViolationCount int                  `json:"violation_count"`
	WarningIssued  bool                 `json:"warning_issued"`
	Locked         bool                 `json:"locked"`
	// Discarded is set when the session had already ended.
	Discarded bool `json:"discarded,omitempty"`
	// Duplicate is set when the report matched an incident already recorded.
	Duplicate bool `json:"duplicate,omitempty"`
}

func resultFrom(s *models.TestSession) *LedgerResult {
	return &LedgerResult{
		SessionID:      s.ID,
		Status:         s.Status,
		ViolationCount: s.ViolationCount,
		WarningIssued:  s.Warned,
		Locked:         s.Locked,
	}
}

// RecordIncident appends an incident and applies the escalation policy under
// the session row lock. Retried deliveries are matched by client incident id,
// or by kind and observed_at within the dedupe window when no id is sent.
func (l *ViolationLedger) RecordIncident(ctx context.Context, r IncidentReport) (*LedgerResult, error) {
	if !r.Kind.Valid() {
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown incident kind %q", r.Kind)
	}

	var (
		out         outbox
		res         *LedgerResult
		expired     *models.TestSession
		newlyLocked bool
	)
	err := l.store.Transaction(ctx, func(tx store.Tx) error {
		now := l.now()
		observed := r.ObservedAt.UTC()
		if observed.IsZero() || observed.After(now) {
			observed = now
		}

		s, err := tx.LockSession(r.SessionID)
		if err != nil {
			return notFound(err, ErrSessionNotFound)
		}
		if pastDeadline(s, now) {
			if err := finalizeExpiry(tx, s, &out, now); err != nil {
				return err
			}
			expired = s
		}
		if s.Status.Terminal() {
			res = resultFrom(s)
			res.Discarded = true
			return nil
		}

		dup, err := l.findDuplicate(tx, s.ID, r, observed)
		if err != nil {
			return err
		}
		if dup {
			res = resultFrom(s)
			res.Duplicate = true
			return nil
		}

		s.ViolationCount++
		inc := &models.SecurityIncident{
			SessionID:  s.ID,
			Kind:       r.Kind,
			ObservedAt: observed,
			Context:    r.Context,
			Sequence:   s.ViolationCount,
		}
		if r.ClientIncidentID != "" {
			id := r.ClientIncidentID
			inc.ClientIncidentID = &id
		}
		if err := tx.InsertIncident(inc); err != nil {
			return err
		}

		warn, lock := l.policy.Apply(s.ViolationCount)
		newlyWarned := warn && !s.Warned
		if newlyWarned {
			s.Warned = true
		}
		if lock && !s.Locked {
			s.Locked = true
			s.Status = models.SessionLocked
			s.LockedAt = &now
			newlyLocked = true
		}
		if err := tx.SaveSession(s); err != nil {
			return err
		}

		out.add(events.IncidentRecorded, s, now).Kind = r.Kind
		if newlyWarned {
			out.add(events.SessionWarned, s, now)
		}
		if newlyLocked {
			out.add(events.SessionLocked, s, now)
		}
		res = resultFrom(s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired != nil {
		l.settled(expired)
	}
	switch {
	case res.Discarded:
		metrics.IncidentsDiscarded.WithLabelValues("session_ended").Inc()
	case res.Duplicate:
		metrics.IncidentsDiscarded.WithLabelValues("duplicate").Inc()
	default:
		metrics.IncidentsRecorded.WithLabelValues(string(r.Kind)).Inc()
	}
	if newlyLocked {
		l.timers.Stop(res.SessionID)
		metrics.SessionsLocked.Inc()
		log.Info().
			Str("session_id", res.SessionID).
			Str("kind", string(r.Kind)).
			Int("violation_count", res.ViolationCount).
			Msg("session locked")
	}
	l.flush(ctx, out)
	return res, nil
}

func (l *ViolationLedger) findDuplicate(tx store.Tx, sessionID string, r IncidentReport, observed time.Time) (bool, error) {
	var err error
	if r.ClientIncidentID != "" {
		_, err = tx.FindIncidentByClientID(sessionID, r.ClientIncidentID)
	} else if l.dedupe > 0 {
		_, err = tx.FindIncidentNear(sessionID, r.Kind, observed.Add(-l.dedupe), observed.Add(l.dedupe))
	} else {
		return false, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Status reads the security state of a session without changing it.
func (l *ViolationLedger) Status(ctx context.Context, sessionID string) (*LedgerResult, error) {
	s, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, ErrSessionNotFound)
	}
	return resultFrom(s), nil
}
