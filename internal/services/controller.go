// Package services holds the proctoring state machine: schedule gate, session
// clock, violation ledger, unlock gate, autosave and the submit/expire path.
//
// Every state transition runs inside one store transaction that locks the
// rows it reads. Events and timer changes are applied only after the
// transaction commits.
package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/clock"
	"github.com/zaqqye/seb_proctor/internal/events"
	"github.com/zaqqye/seb_proctor/internal/metrics"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

// EscalationPolicy maps a violation count to warn and lock decisions.
type EscalationPolicy struct {
	WarnAt int
	LockAt int
}

func DefaultPolicy() EscalationPolicy {
	return EscalationPolicy{WarnAt: 1, LockAt: 2}
}

func (p EscalationPolicy) Apply(count int) (warn, lock bool) {
	return count >= p.WarnAt, count >= p.LockAt
}

type Deps struct {
	Store            store.Store
	Clock            clock.Clock
	Events           events.Publisher
	Policy           EscalationPolicy
	DefaultTimeLimit time.Duration
	DedupeWindow     time.Duration
	// ExpiryTimeout bounds the transaction run by an expiry timer.
	ExpiryTimeout time.Duration
}

// Controller bundles the components sharing one store and one session clock.
type Controller struct {
	Schedule *ScheduleGate
	Clock    *SessionClock
	Ledger   *ViolationLedger
	Unlock   *UnlockGate
	Autosave *AutosaveService
	Sessions *SessionService
	Codes    *CodeService
}

type core struct {
	store        store.Store
	clock        clock.Clock
	events       events.Publisher
	timers       *SessionClock
	policy       EscalationPolicy
	defaultLimit time.Duration
	dedupe       time.Duration
}

func New(d Deps) *Controller {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Policy.WarnAt <= 0 || d.Policy.LockAt <= 0 {
		d.Policy = DefaultPolicy()
	}
	if d.DefaultTimeLimit <= 0 {
		d.DefaultTimeLimit = time.Hour
	}
	if d.ExpiryTimeout <= 0 {
		d.ExpiryTimeout = 10 * time.Second
	}

	c := &core{
		store:        d.Store,
		clock:        d.Clock,
		events:       d.Events,
		timers:       NewSessionClock(d.Clock),
		policy:       d.Policy,
		defaultLimit: d.DefaultTimeLimit,
		dedupe:       d.DedupeWindow,
	}
	ctrl := &Controller{
		Schedule: &ScheduleGate{core: c},
		Clock:    c.timers,
		Ledger:   &ViolationLedger{core: c},
		Unlock:   &UnlockGate{core: c},
		Autosave: &AutosaveService{core: c},
		Sessions: &SessionService{core: c},
		Codes:    &CodeService{core: c},
	}
	timeout := d.ExpiryTimeout
	c.timers.SetExpiryHandler(func(sessionID string) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := ctrl.Sessions.Expire(ctx, sessionID); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("expiry transition failed")
		}
	})
	return ctrl
}

func (c *core) now() time.Time {
	return c.clock.Now()
}

// outbox collects events inside a transaction for publishing after commit.
type outbox []events.Event

func (o *outbox) add(t events.Type, s *models.TestSession, at time.Time) *events.Event {
	*o = append(*o, events.FromSession(t, s, at))
	return &(*o)[len(*o)-1]
}

func (c *core) flush(ctx context.Context, o outbox) {
	for _, e := range o {
		c.events.Publish(ctx, e)
	}
}

func pastDeadline(s *models.TestSession, now time.Time) bool {
	return s.Status == models.SessionActive && !now.Before(s.Deadline())
}

// finalizeExpiry ends an active session whose deadline has passed. Saved
// answers are auto-submitted; without a snapshot the session is expired.
func finalizeExpiry(tx store.Tx, s *models.TestSession, out *outbox, now time.Time) error {
	snap, err := tx.GetSnapshot(s.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	deadline := s.Deadline()
	s.SubmitReason = models.SubmitReasonExpired
	s.SubmittedAt = &deadline
	if snap != nil {
		s.Status = models.SessionSubmitted
		s.AutoSubmitted = true
		s.SubmittedPayload = snap.Payload
	} else {
		s.Status = models.SessionExpired
	}
	if err := tx.SaveSession(s); err != nil {
		return err
	}
	out.add(events.SessionExpired, s, now)
	return nil
}

// settled runs the bookkeeping for sessions that reached a terminal status.
func (c *core) settled(s *models.TestSession) {
	c.timers.Stop(s.ID)
	metrics.SessionsFinished.WithLabelValues(string(s.Status), s.SubmitReason).Inc()
	if s.SubmitReason == models.SubmitReasonExpired {
		log.Info().
			Str("session_id", s.ID).
			Str("status", string(s.Status)).
			Bool("auto_submitted", s.AutoSubmitted).
			Msg("session expired")
	}
}

func notFound(err error, replacement error) error {
	if errors.Is(err, store.ErrNotFound) {
		return replacement
	}
	return err
}
