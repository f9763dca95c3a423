// Package agent attaches the client-side proctoring pieces to one session:
// the incident monitor, the autosave channel and the countdown. All of them
// live exactly as long as the Attachment and are torn down by Close.
package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/apiclient"
	"github.com/zaqqye/seb_proctor/internal/autosave"
	"github.com/zaqqye/seb_proctor/internal/clock"
	"github.com/zaqqye/seb_proctor/internal/monitor"
)

var ErrSessionNotActive = errors.New("session is not active")

type API interface {
	monitor.Reporter
	autosave.Saver
	GetSession(ctx context.Context, id string) (*apiclient.Session, error)
	Submit(ctx context.Context, id string, payload json.RawMessage) (*apiclient.Session, error)
	Unlock(ctx context.Context, id, code string) (*apiclient.Session, error)
}

type Options struct {
	Clock    clock.Clock
	Journal  *monitor.Journal
	Monitor  monitor.Config
	Autosave autosave.Config
	// ExpiryLead is how long before the deadline pending answers are flushed.
	ExpiryLead time.Duration
	// CloseTimeout bounds the final flush in Close.
	CloseTimeout time.Duration
}

type Attachment struct {
	api   API
	clock clock.Clock
	opts  Options

	mon  *monitor.Monitor
	save *autosave.Channel

	mu       sync.Mutex
	session  apiclient.Session
	deadline time.Time
	expiry   clock.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// Attach loads the session and starts monitoring it. The countdown is
// anchored on the server's remaining_seconds, never decremented locally.
func Attach(ctx context.Context, api API, sessionID string, opts Options) (*Attachment, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.ExpiryLead <= 0 {
		opts.ExpiryLead = 2 * time.Second
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = 3 * time.Second
	}
	s, err := api.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.Active() {
		return nil, errors.Wrapf(ErrSessionNotActive, "session %s is %s", s.SessionID, s.Status)
	}

	a := &Attachment{
		api:     api,
		clock:   opts.Clock,
		opts:    opts,
		session: *s,
		done:    make(chan struct{}),
	}
	a.deadline = a.clock.Now().Add(time.Duration(s.RemainingSeconds) * time.Second)
	a.mon = monitor.Start(s.SessionID, api, opts.Journal, opts.Clock, opts.Monitor)
	a.save = autosave.Start(s.SessionID, api, opts.Clock, opts.Autosave)
	a.mon.OnChange(func(st monitor.State) {
		if st.Locked {
			// the listener runs on a monitor goroutine that Close waits for
			go a.locked()
		}
	})

	lead := a.deadline.Sub(a.clock.Now()) - opts.ExpiryLead
	a.mu.Lock()
	a.expiry = a.clock.AfterFunc(lead, a.expire)
	a.mu.Unlock()

	log.Debug().Str("session_id", s.SessionID).Int64("remaining_seconds", s.RemainingSeconds).Msg("session attached")
	return a, nil
}

// Restart spends a bypass code on a locked session and attaches to the
// replacement. Answers from the locked session are not carried over.
func Restart(ctx context.Context, api API, lockedSessionID, code string, opts Options) (*Attachment, error) {
	next, err := api.Unlock(ctx, lockedSessionID, code)
	if err != nil {
		return nil, err
	}
	return Attach(ctx, api, next.SessionID, opts)
}

func (a *Attachment) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.SessionID
}

func (a *Attachment) Session() apiclient.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Remaining is recomputed from the deadline on every call.
func (a *Attachment) Remaining() time.Duration {
	a.mu.Lock()
	deadline := a.deadline
	a.mu.Unlock()
	if d := deadline.Sub(a.clock.Now()); d > 0 {
		return d
	}
	return 0
}

func (a *Attachment) Observe(s monitor.Signal) { a.mon.Observe(s) }

func (a *Attachment) Edit(payload json.RawMessage) { a.save.Edit(payload) }

func (a *Attachment) Security() monitor.State { return a.mon.State() }

func (a *Attachment) SaveStatus() autosave.Snapshot { return a.save.Snapshot() }

func (a *Attachment) OnSecurityChange(f func(monitor.State)) { a.mon.OnChange(f) }

func (a *Attachment) OnSaveChange(f func(autosave.Snapshot)) { a.save.OnChange(f) }

// Done is closed once the attachment has been torn down.
func (a *Attachment) Done() <-chan struct{} { return a.done }

// Refresh resyncs status and the countdown with the server and detaches when
// the session has ended.
func (a *Attachment) Refresh(ctx context.Context) (*apiclient.Session, error) {
	s, err := a.api.GetSession(ctx, a.SessionID())
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.session = *s
	a.deadline = a.clock.Now().Add(time.Duration(s.RemainingSeconds) * time.Second)
	a.mu.Unlock()
	if !s.Active() {
		a.Close()
	}
	return s, nil
}

// Submit flushes pending answers, submits them and detaches. Submitting an
// already finished session returns it unchanged.
func (a *Attachment) Submit(ctx context.Context) (*apiclient.Session, error) {
	if err := a.save.Flush(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", a.SessionID()).Msg("flush before submit failed, submitting local answers")
	}
	s, err := a.api.Submit(ctx, a.SessionID(), a.save.Payload())
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.session = *s
	a.mu.Unlock()
	a.Close()
	return s, nil
}

func (a *Attachment) locked() {
	a.mu.Lock()
	a.session.Locked = true
	a.session.Status = "locked"
	a.mu.Unlock()
	log.Info().Str("session_id", a.SessionID()).Msg("session locked, waiting for teacher")
	a.Close()
}

// expire pushes the last answers before the server auto-submits, then
// detaches once the deadline has passed.
func (a *Attachment) expire() {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.CloseTimeout)
	defer cancel()
	if err := a.save.Flush(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", a.SessionID()).Msg("final autosave before expiry failed")
	}
	if rem := a.Remaining(); rem > 0 {
		a.mu.Lock()
		a.expiry = a.clock.AfterFunc(rem, a.Close)
		a.mu.Unlock()
		return
	}
	a.Close()
}

// Close flushes pending answers where possible and stops every background
// activity. Safe to call from any exit path, more than once.
func (a *Attachment) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		if a.expiry != nil {
			a.expiry.Stop()
		}
		a.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), a.opts.CloseTimeout)
		if err := a.save.Flush(ctx); err != nil {
			log.Debug().Err(err).Str("session_id", a.SessionID()).Msg("flush on close failed")
		}
		cancel()

		a.mon.Stop()
		a.save.Stop()
		close(a.done)
	})
}
