package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/events"
	"github.com/zaqqye/seb_proctor/internal/metrics"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

// UnlockGate clears a locked session with a session-scoped bypass code.
// Unlocking is a full restart: the locked session is voided and a new one
// begins with a fresh started_at and no saved answers.
type UnlockGate struct {
	*core
}

type UnlockResult struct {
	Session  *models.TestSession
	Previous *models.TestSession
}

func (u *UnlockGate) Unlock(ctx context.Context, sessionID, code string) (*UnlockResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	// student and assessment never change, so the attempt key can be read unlocked
	cur, err := u.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, ErrSessionNotFound)
	}

	var (
		out outbox
		res UnlockResult
	)
	err = u.store.Transaction(ctx, func(tx store.Tx) error {
		now := u.now()
		bc, err := tx.LockCode(code)
		if err != nil {
			return notFound(err, ErrInvalidCode)
		}
		if err := tx.LockAttempt(cur.StudentID, cur.AssessmentID); err != nil {
			return err
		}
		old, err := tx.LockSession(sessionID)
		if err != nil {
			return notFound(err, ErrSessionNotFound)
		}
		if err := checkCode(bc, models.ScopeSession, old.ClassroomID); err != nil {
			return err
		}
		if old.Status != models.SessionLocked {
			return ErrNotLocked
		}

		next := &models.TestSession{
			ID:                uuid.NewString(),
			AssessmentID:      old.AssessmentID,
			ClassroomID:       old.ClassroomID,
			StudentID:         old.StudentID,
			StartedAt:         now,
			TimeLimitSeconds:  old.TimeLimitSeconds,
			Status:            models.SessionActive,
			ReplacesSessionID: &old.ID,
		}
		bc.ConsumedAt = &now
		bc.ConsumedBy = &next.ID
		if err := tx.SaveCode(bc); err != nil {
			return err
		}
		old.Status = models.SessionVoided
		if err := tx.SaveSession(old); err != nil {
			return err
		}
		if err := tx.CreateSession(next); err != nil {
			return err
		}

		out.add(events.SessionUnlocked, old, now).NextSessionID = next.ID
		out.add(events.SessionStarted, next, now)
		res = UnlockResult{Session: next, Previous: old}
		return nil
	})
	if err != nil {
		u.rejected(models.ScopeSession, err)
		return nil, err
	}

	u.timers.Stop(res.Previous.ID)
	u.timers.Start(res.Session)
	metrics.SessionsFinished.WithLabelValues(string(models.SessionVoided), "unlock").Inc()
	metrics.SessionsStarted.WithLabelValues("unlock").Inc()
	log.Info().
		Str("session_id", res.Previous.ID).
		Str("next_session_id", res.Session.ID).
		Str("classroom_id", res.Session.ClassroomID).
		Msg("session unlocked")
	u.flush(ctx, out)
	return &res, nil
}
