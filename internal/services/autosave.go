package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/zaqqye/seb_proctor/internal/metrics"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

// AutosaveService stores the latest answer payload of an active session.
type AutosaveService struct {
	*core
}

type AutosaveResult struct {
	SessionID  string            `json:"session_id"`
	SaveStatus models.SaveStatus `json:"save_status"`
	SavedAt    *time.Time        `json:"saved_at"`
	Discarded  bool              `json:"discarded,omitempty"`
}

// Save overwrites the snapshot. Saves against a session that is no longer
// active are accepted and dropped.
func (a *AutosaveService) Save(ctx context.Context, sessionID string, payload json.RawMessage) (*AutosaveResult, error) {
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, errors.Wrap(ErrInvalidArgument, "payload must be a JSON document")
	}

	var (
		out     outbox
		res     *AutosaveResult
		expired *models.TestSession
	)
	err := a.store.Transaction(ctx, func(tx store.Tx) error {
		now := a.now()
		s, err := tx.LockSession(sessionID)
		if err != nil {
			return notFound(err, ErrSessionNotFound)
		}
		if pastDeadline(s, now) {
			if err := finalizeExpiry(tx, s, &out, now); err != nil {
				return err
			}
			expired = s
		}
		if s.Status != models.SessionActive {
			res = &AutosaveResult{SessionID: s.ID, SaveStatus: models.SaveSaved, Discarded: true}
			snap, err := tx.GetSnapshot(s.ID)
			if err == nil {
				res.SavedAt = &snap.SavedAt
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return nil
		}
		snap := &models.AutosaveSnapshot{SessionID: s.ID, Payload: datatypes.JSON(payload), SavedAt: now}
		if err := tx.PutSnapshot(snap); err != nil {
			return err
		}
		res = &AutosaveResult{SessionID: s.ID, SaveStatus: models.SaveSaved, SavedAt: &snap.SavedAt}
		return nil
	})
	if err != nil {
		metrics.AutosaveWrites.WithLabelValues("error").Inc()
		if !errors.Is(err, ErrSessionNotFound) {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("autosave failed")
		}
		return nil, err
	}
	if expired != nil {
		a.settled(expired)
	}
	if res.Discarded {
		metrics.AutosaveWrites.WithLabelValues("discarded").Inc()
	} else {
		metrics.AutosaveWrites.WithLabelValues("saved").Inc()
	}
	a.flush(ctx, out)
	return res, nil
}

func (a *AutosaveService) Get(ctx context.Context, sessionID string) (*models.AutosaveSnapshot, error) {
	if _, err := a.store.GetSession(ctx, sessionID); err != nil {
		return nil, notFound(err, ErrSessionNotFound)
	}
	snap, err := a.store.GetSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}
