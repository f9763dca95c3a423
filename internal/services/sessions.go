package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/zaqqye/seb_proctor/internal/events"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

// SessionService owns reads, submission and expiry of sessions.
type SessionService struct {
	*core
}

// SessionView is a session with its server derived countdown.
type SessionView struct {
	*models.TestSession
	RemainingSeconds int64     `json:"remaining_seconds"`
	ServerTime       time.Time `json:"server_time"`
}

func (s *SessionService) view(rec *models.TestSession) *SessionView {
	return &SessionView{
		TestSession:      rec,
		RemainingSeconds: s.timers.RemainingSeconds(rec),
		ServerTime:       s.now(),
	}
}

func (s *SessionService) Get(ctx context.Context, id string) (*SessionView, error) {
	rec, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrSessionNotFound)
	}
	return s.view(rec), nil
}

func (s *SessionService) List(ctx context.Context, f store.SessionFilter) ([]*SessionView, error) {
	recs, err := s.store.ListSessions(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]*SessionView, 0, len(recs))
	for i := range recs {
		out = append(out, s.view(&recs[i]))
	}
	return out, nil
}

func (s *SessionService) Incidents(ctx context.Context, id string) ([]models.SecurityIncident, error) {
	if _, err := s.store.GetSession(ctx, id); err != nil {
		return nil, notFound(err, ErrSessionNotFound)
	}
	return s.store.ListIncidents(ctx, id)
}

// Submit finishes an active session. The first submission wins: a session
// that already ended, by hand or by expiry, is returned unchanged. A nil
// payload submits the latest autosave snapshot.
func (s *SessionService) Submit(ctx context.Context, id string, payload json.RawMessage) (*models.TestSession, error) {
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, errors.Wrap(ErrInvalidArgument, "payload must be a JSON document")
	}

	var (
		out     outbox
		rec     *models.TestSession
		changed bool
	)
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		now := s.now()
		var err error
		rec, err = tx.LockSession(id)
		if err != nil {
			return notFound(err, ErrSessionNotFound)
		}
		switch rec.Status {
		case models.SessionSubmitted, models.SessionExpired:
			return nil
		case models.SessionVoided:
			return ErrSessionEnded
		case models.SessionLocked:
			return ErrSessionLocked
		}
		changed = true
		if pastDeadline(rec, now) {
			return finalizeExpiry(tx, rec, &out, now)
		}

		if len(payload) == 0 {
			snap, err := tx.GetSnapshot(rec.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if snap != nil {
				payload = json.RawMessage(snap.Payload)
			}
		}
		rec.Status = models.SessionSubmitted
		rec.SubmitReason = models.SubmitReasonManual
		rec.SubmittedAt = &now
		rec.SubmittedPayload = datatypes.JSON(payload)
		if err := tx.SaveSession(rec); err != nil {
			return err
		}
		out.add(events.SessionSubmitted, rec, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.settled(rec)
		if rec.SubmitReason == models.SubmitReasonManual {
			log.Info().Str("session_id", rec.ID).Msg("session submitted")
		}
	}
	s.flush(ctx, out)
	return rec, nil
}

// Expire is driven by the session clock. It is a no-op for sessions that are
// no longer active, and re-arms the timer when called before the deadline.
func (s *SessionService) Expire(ctx context.Context, id string) (*models.TestSession, error) {
	var (
		out     outbox
		rec     *models.TestSession
		expired bool
	)
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		now := s.now()
		var err error
		rec, err = tx.LockSession(id)
		if err != nil {
			return notFound(err, ErrSessionNotFound)
		}
		if !pastDeadline(rec, now) {
			return nil
		}
		expired = true
		return finalizeExpiry(tx, rec, &out, now)
	})
	if err != nil {
		return nil, err
	}
	switch {
	case expired:
		s.settled(rec)
	case rec.Status == models.SessionActive:
		s.timers.Start(rec)
	}
	s.flush(ctx, out)
	return rec, nil
}

// ResumeClocks re-arms expiry timers for every active session, typically at
// boot. Deadlines already in the past fire right away.
func (s *SessionService) ResumeClocks(ctx context.Context) (int, error) {
	recs, err := s.store.ListSessions(ctx, store.SessionFilter{Status: models.SessionActive})
	if err != nil {
		return 0, err
	}
	for i := range recs {
		s.timers.Start(&recs[i])
	}
	if len(recs) > 0 {
		log.Info().Int("sessions", len(recs)).Msg("session clocks resumed")
	}
	return len(recs), nil
}
