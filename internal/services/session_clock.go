package services

import (
	"sync"
	"time"

	"github.com/zaqqye/seb_proctor/internal/clock"
	"github.com/zaqqye/seb_proctor/internal/metrics"
	"github.com/zaqqye/seb_proctor/internal/models"
)

// SessionClock arms one expiry timer per active session. Remaining time is
// always computed from started_at; the timer only decides when to look.
type SessionClock struct {
	clock clock.Clock

	mu       sync.Mutex
	timers   map[string]*armed
	seq      uint64
	onExpire func(sessionID string)
}

type armed struct {
	timer clock.Timer
	gen   uint64
}

// ClockHandle describes an armed session deadline.
type ClockHandle struct {
	SessionID string
	Deadline  time.Time
	sc        *SessionClock
}

func (h *ClockHandle) Remaining() time.Duration {
	left := h.Deadline.Sub(h.sc.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

func (h *ClockHandle) Stop() {
	h.sc.Stop(h.SessionID)
}

func NewSessionClock(c clock.Clock) *SessionClock {
	return &SessionClock{clock: c, timers: make(map[string]*armed)}
}

func (sc *SessionClock) SetExpiryHandler(f func(sessionID string)) {
	sc.mu.Lock()
	sc.onExpire = f
	sc.mu.Unlock()
}

// Start arms the expiry timer for an active session, replacing any earlier
// timer for the same id. Sessions in any other status get no timer.
func (sc *SessionClock) Start(s *models.TestSession) *ClockHandle {
	h := &ClockHandle{SessionID: s.ID, Deadline: s.Deadline(), sc: sc}
	if s.Status != models.SessionActive {
		sc.Stop(s.ID)
		return h
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if prev, ok := sc.timers[s.ID]; ok {
		prev.timer.Stop()
	}
	sc.seq++
	gen := sc.seq
	id := s.ID
	t := sc.clock.AfterFunc(h.Deadline.Sub(sc.clock.Now()), func() { sc.fire(id, gen) })
	sc.timers[id] = &armed{timer: t, gen: gen}
	metrics.ArmedTimers.Set(float64(len(sc.timers)))
	return h
}

func (sc *SessionClock) fire(id string, gen uint64) {
	sc.mu.Lock()
	cur, ok := sc.timers[id]
	if !ok || cur.gen != gen {
		sc.mu.Unlock()
		return
	}
	delete(sc.timers, id)
	metrics.ArmedTimers.Set(float64(len(sc.timers)))
	handler := sc.onExpire
	sc.mu.Unlock()

	if handler != nil {
		handler(id)
	}
}

func (sc *SessionClock) Stop(sessionID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if cur, ok := sc.timers[sessionID]; ok {
		cur.timer.Stop()
		delete(sc.timers, sessionID)
		metrics.ArmedTimers.Set(float64(len(sc.timers)))
	}
}

func (sc *SessionClock) StopAll() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for id, cur := range sc.timers {
		cur.timer.Stop()
		delete(sc.timers, id)
	}
	metrics.ArmedTimers.Set(0)
}

// Armed reports whether an expiry timer is pending for the session.
func (sc *SessionClock) Armed(sessionID string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, ok := sc.timers[sessionID]
	return ok
}

// RemainingSeconds rounds up so a session shows zero only once it is due.
// Non-active sessions report zero.
func (sc *SessionClock) RemainingSeconds(s *models.TestSession) int64 {
	if s.Status != models.SessionActive {
		return 0
	}
	left := s.Remaining(sc.clock.Now())
	return int64((left + time.Second - 1) / time.Second)
}
