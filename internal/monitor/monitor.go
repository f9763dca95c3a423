// Package monitor is the client-side incident sensor. It turns raw host
// signals into incident reports for one session and delivers them in the
// background; it never decides warn or lock itself.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/apiclient"
	"github.com/zaqqye/seb_proctor/internal/clock"
	"github.com/zaqqye/seb_proctor/internal/models"
)

type Reporter interface {
	ReportIncident(ctx context.Context, sessionID string, in apiclient.Incident) (*apiclient.LedgerResult, error)
}

type Config struct {
	BlurDebounce   time.Duration
	ReportTimeout  time.Duration
	MaxRetries     int // zero means the default; negative disables retries
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BlurDebounce:   1500 * time.Millisecond,
		ReportTimeout:  5 * time.Second,
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// State is the locally known security state. ViolationCount is optimistic
// until Confirmed: it counts reports not yet answered by the server.
type State struct {
	ViolationCount int
	Warned         bool
	Locked         bool
	Confirmed      bool
}

type Monitor struct {
	sessionID string
	reporter  Reporter
	journal   *Journal
	clock     clock.Clock
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	blur      clock.Timer
	blurAt    time.Time
	inflight  int
	state     State
	stopped   bool
	listeners []func(State)
}

// Start begins monitoring one session. Every Start must be paired with Stop.
// journal may be nil, in which case exhausted reports are only logged.
func Start(sessionID string, r Reporter, j *Journal, clk clock.Clock, cfg Config) *Monitor {
	if clk == nil {
		clk = clock.Real()
	}
	def := DefaultConfig()
	if cfg.BlurDebounce <= 0 {
		cfg.BlurDebounce = def.BlurDebounce
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = def.ReportTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	} else if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		sessionID: sessionID,
		reporter:  r,
		journal:   j,
		clock:     clk,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *Monitor) SessionID() string { return m.sessionID }

// OnChange registers f to be called with every state change.
func (m *Monitor) OnChange(f func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, f)
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Observe feeds a raw signal. It never blocks on the network.
func (m *Monitor) Observe(s Signal) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if restoresFocus(s) {
		m.cancelBlurLocked()
		m.mu.Unlock()
		return
	}
	kind, ok := Classify(s)
	if !ok {
		m.mu.Unlock()
		return
	}
	if kind == models.IncidentWindowBlur {
		if m.blur == nil {
			m.blurAt = m.clock.Now()
			m.blur = m.clock.AfterFunc(m.cfg.BlurDebounce, m.confirmBlur)
		}
		m.mu.Unlock()
		return
	}
	// a hidden tab also blurs the window; report it once
	m.cancelBlurLocked()
	m.mu.Unlock()
	m.Report(kind, m.clock.Now())
}

func (m *Monitor) cancelBlurLocked() {
	if m.blur != nil {
		m.blur.Stop()
		m.blur = nil
	}
}

func (m *Monitor) confirmBlur() {
	m.mu.Lock()
	if m.stopped || m.blur == nil {
		m.mu.Unlock()
		return
	}
	m.blur = nil
	at := m.blurAt
	m.mu.Unlock()
	m.Report(models.IncidentWindowBlur, at)
}

// Report sends an incident in the background and bumps the optimistic count.
func (m *Monitor) Report(kind models.IncidentKind, observedAt time.Time) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.inflight++
	m.state.ViolationCount++
	m.state.Warned = true
	m.state.Confirmed = false
	snap := m.state
	listeners := m.listeners
	m.wg.Add(1)
	m.mu.Unlock()
	notify(listeners, snap)

	in := apiclient.Incident{IncidentID: uuid.NewString(), Kind: string(kind), ObservedAt: observedAt}
	go func() {
		defer m.wg.Done()
		m.deliver(in)
	}()
}

func (m *Monitor) deliver(in apiclient.Incident) {
	attempts := 0
	var res *apiclient.LedgerResult
	op := func() error {
		attempts++
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ReportTimeout)
		defer cancel()
		r, err := m.reporter.ReportIncident(ctx, m.sessionID, in)
		if err != nil {
			if apiclient.IsTransient(err) && m.ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		res = r
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.InitialBackoff
	b.MaxInterval = m.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.cfg.MaxRetries)), m.ctx))

	if err == nil {
		m.adopt(res)
		return
	}
	m.mu.Lock()
	m.inflight--
	m.mu.Unlock()
	if apiclient.IsTransient(err) || m.ctx.Err() != nil {
		m.exhausted(in, attempts, err)
		return
	}
	log.Warn().Err(err).
		Str("session_id", m.sessionID).
		Str("kind", in.Kind).
		Msg("incident rejected by server")
}

func (m *Monitor) exhausted(in apiclient.Incident, attempts int, err error) {
	log.Warn().Err(err).
		Str("session_id", m.sessionID).
		Str("kind", in.Kind).
		Int("attempts", attempts).
		Msg("incident report failed, journaling for reconciliation")
	if m.journal == nil {
		return
	}
	e := Entry{
		SessionID:   m.sessionID,
		IncidentID:  in.IncidentID,
		Kind:        models.IncidentKind(in.Kind),
		ObservedAt:  in.ObservedAt,
		Attempts:    attempts,
		LastError:   err.Error(),
		JournaledAt: m.clock.Now(),
	}
	if jerr := m.journal.Append(e); jerr != nil {
		log.Error().Err(jerr).Str("session_id", m.sessionID).Msg("journal write failed")
	}
}

// adopt replaces the optimistic state with the server's answer. The count
// stays optimistic while other reports are still in flight.
func (m *Monitor) adopt(r *apiclient.LedgerResult) {
	m.mu.Lock()
	m.inflight--
	if r.ViolationCount > m.state.ViolationCount || m.inflight == 0 {
		m.state.ViolationCount = r.ViolationCount
	}
	m.state.Warned = r.WarningIssued || r.ViolationCount > 0
	m.state.Locked = m.state.Locked || r.Locked
	m.state.Confirmed = m.inflight == 0
	snap := m.state
	listeners := m.listeners
	m.mu.Unlock()
	notify(listeners, snap)
}

// Reconcile replays this session's journaled incidents and adopts the
// server's count.
func (m *Monitor) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	if m.journal == nil {
		return &ReconcileResult{}, nil
	}
	res, err := Reconcile(ctx, m.reporter, m.journal, func(e Entry) bool { return e.SessionID == m.sessionID })
	if err != nil {
		return res, err
	}
	if lr, ok := res.Latest[m.sessionID]; ok {
		m.mu.Lock()
		m.inflight++
		m.mu.Unlock()
		m.adopt(&lr)
	}
	return res, nil
}

// Stop cancels the pending blur and in-flight reports and waits for them.
// Reports cut short are journaled. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.cancelBlurLocked()
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

func notify(listeners []func(State), s State) {
	for _, f := range listeners {
		f(s)
	}
}
