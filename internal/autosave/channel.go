// Package autosave keeps a student's in-progress answers flowing to the
// server on a fixed interval. Saving never blocks editing; failures only
// change the status indicator.
package autosave

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/apiclient"
	"github.com/zaqqye/seb_proctor/internal/clock"
	"github.com/zaqqye/seb_proctor/internal/models"
)

type Saver interface {
	Autosave(ctx context.Context, sessionID string, payload json.RawMessage) (*apiclient.AutosaveResult, error)
}

type Config struct {
	Interval       time.Duration
	Timeout        time.Duration
	MaxRetries     int // zero means the default; negative disables retries
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:       10 * time.Second,
		Timeout:        5 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Snapshot is what the status indicator shows.
type Snapshot struct {
	Status  models.SaveStatus
	SavedAt *time.Time
	Err     string
	// Discarded means the server no longer accepts saves for the session.
	Discarded bool
}

type Channel struct {
	sessionID string
	saver     Saver
	clock     clock.Clock
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	saveMu sync.Mutex

	mu        sync.Mutex
	payload   json.RawMessage
	version   uint64
	saved     uint64
	saving    bool
	snap      Snapshot
	ticker    clock.Timer
	stopped   bool
	listeners []func(Snapshot)
}

// Start arms the save interval for one session. Every Start must be paired
// with Stop.
func Start(sessionID string, s Saver, clk clock.Clock, cfg Config) *Channel {
	if clk == nil {
		clk = clock.Real()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
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
	c := &Channel{
		sessionID: sessionID,
		saver:     s,
		clock:     clk,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		snap:      Snapshot{Status: models.SaveSaved},
	}
	c.mu.Lock()
	c.ticker = clk.AfterFunc(cfg.Interval, c.tick)
	c.mu.Unlock()
	return c
}

// OnChange registers f to be called with every status change.
func (c *Channel) OnChange(f func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, f)
}

// Edit records the latest answers. It returns immediately.
func (c *Channel) Edit(payload json.RawMessage) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.payload = append(json.RawMessage(nil), payload...)
	c.version++
	c.snap.Status = models.SaveUnsaved
	c.snap.Err = ""
	snap, listeners := c.snap, c.listeners
	c.mu.Unlock()
	notify(listeners, snap)
}

// Payload returns the locally held answers, saved or not.
func (c *Channel) Payload() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(json.RawMessage(nil), c.payload...)
}

func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Channel) dirtyLocked() bool {
	return c.version != c.saved && !c.snap.Discarded
}

func (c *Channel) tick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.dirtyLocked() && !c.saving {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			_ = c.save(c.ctx)
		}()
	}
	c.ticker = c.clock.AfterFunc(c.cfg.Interval, c.tick)
	c.mu.Unlock()
}

// Flush saves pending edits now, waiting for any save already in flight.
func (c *Channel) Flush(ctx context.Context) error {
	return c.save(ctx)
}

func (c *Channel) save(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if !c.dirtyLocked() {
		c.mu.Unlock()
		return nil
	}
	payload := c.payload
	version := c.version
	c.saving = true
	c.snap.Status = models.SaveSaving
	snap, listeners := c.snap, c.listeners
	c.mu.Unlock()
	notify(listeners, snap)

	var res *apiclient.AutosaveResult
	op := func() error {
		actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		r, err := c.saver.Autosave(actx, c.sessionID, payload)
		if err != nil {
			if apiclient.IsTransient(err) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		res = r
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx))

	c.mu.Lock()
	c.saving = false
	switch {
	case err != nil:
		c.snap.Status = models.SaveError
		c.snap.Err = err.Error()
	case res.Discarded:
		c.snap.Discarded = true
		c.snap.Status = models.SaveSaved
		c.snap.SavedAt = res.SavedAt
	default:
		c.saved = version
		c.snap.SavedAt = res.SavedAt
		c.snap.Err = ""
		if c.version == version {
			c.snap.Status = models.SaveSaved
		} else {
			c.snap.Status = models.SaveUnsaved
		}
	}
	snap, listeners = c.snap, c.listeners
	c.mu.Unlock()
	notify(listeners, snap)

	if err != nil {
		log.Warn().Err(err).Str("session_id", c.sessionID).Msg("autosave failed, answers kept locally")
	}
	return err
}

// Stop cancels the interval and any save in flight. Call Flush first to
// push pending edits.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.ticker != nil {
		c.ticker.Stop()
	}
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func notify(listeners []func(Snapshot), s Snapshot) {
	for _, f := range listeners {
		f(s)
	}
}
