package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock that only moves when Advance or Set is called.
// Timers whose deadline is reached fire synchronously inside Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	c       *Manual
	at      time.Time
	f       func()
	stopped bool
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	t := &manualTimer{c: m, at: m.now.Add(d), f: f}
	fire := d <= 0
	if !fire {
		m.timers = append(m.timers, t)
	}
	m.mu.Unlock()
	if fire {
		go f()
	}
	return t
}

func (m *Manual) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Set moves the clock to t and runs every due timer in deadline order.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	var due, pending []*manualTimer
	for _, tm := range m.timers {
		if tm.stopped {
			continue
		}
		if !tm.at.After(m.now) {
			due = append(due, tm)
		} else {
			pending = append(pending, tm)
		}
	}
	m.timers = pending
	for _, tm := range due {
		tm.stopped = true
	}
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, tm := range due {
		tm.f()
	}
}

// Pending counts armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tm := range m.timers {
		if !tm.stopped {
			n++
		}
	}
	return n
}

func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
