package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/seb_proctor/internal/apiclient"
	"github.com/zaqqye/seb_proctor/internal/clock"
	"github.com/zaqqye/seb_proctor/internal/monitor"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu        sync.Mutex
	sessions  map[string]*apiclient.Session
	saves     []string
	submitted []string
	incidents int
	lockAt    int
}

func newFakeAPI(sessions ...apiclient.Session) *fakeAPI {
	f := &fakeAPI{sessions: map[string]*apiclient.Session{}, lockAt: 2}
	for i := range sessions {
		s := sessions[i]
		f.sessions[s.SessionID] = &s
	}
	return f
}

func (f *fakeAPI) GetSession(_ context.Context, id string) (*apiclient.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, &apiclient.Error{Status: 404, Code: "not_found"}
	}
	out := *s
	return &out, nil
}

func (f *fakeAPI) ReportIncident(_ context.Context, id string, _ apiclient.Incident) (*apiclient.LedgerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incidents++
	return &apiclient.LedgerResult{SessionID: id, ViolationCount: f.incidents, WarningIssued: true, Locked: f.incidents >= f.lockAt}, nil
}

func (f *fakeAPI) Autosave(_ context.Context, id string, payload json.RawMessage) (*apiclient.AutosaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, string(payload))
	now := epoch
	return &apiclient.AutosaveResult{SessionID: id, SaveStatus: "saved", SavedAt: &now}, nil
}

func (f *fakeAPI) Submit(_ context.Context, id string, payload json.RawMessage) (*apiclient.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, string(payload))
	s := f.sessions[id]
	s.Status = "submitted"
	s.RemainingSeconds = 0
	out := *s
	return &out, nil
}

func (f *fakeAPI) Unlock(_ context.Context, id, code string) (*apiclient.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code != "ABCD2345" {
		return nil, &apiclient.Error{Status: 400, Code: "invalid_code"}
	}
	f.sessions[id].Status = "voided"
	next := &apiclient.Session{SessionID: id + "-next", Status: "active", RemainingSeconds: 600, ReplacesSessionID: &id}
	f.sessions[next.SessionID] = next
	out := *next
	return &out, nil
}

func (f *fakeAPI) savesSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.saves...)
}

func active(id string, remaining int64) apiclient.Session {
	return apiclient.Session{SessionID: id, Status: "active", RemainingSeconds: remaining}
}

func opts(clk clock.Clock) Options {
	return Options{
		Clock:      clk,
		ExpiryLead: 2 * time.Second,
		Monitor:    monitor.Config{InitialBackoff: time.Millisecond, MaxRetries: 1},
	}
}

func isDone(a *Attachment) bool {
	select {
	case <-a.Done():
		return true
	default:
		return false
	}
}

func TestAttachRejectsEndedSession(t *testing.T) {
	api := newFakeAPI(apiclient.Session{SessionID: "s-1", Status: "submitted"})
	_, err := Attach(context.Background(), api, "s-1", opts(clock.NewManual(epoch)))
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestRemainingFollowsTheClock(t *testing.T) {
	clk := clock.NewManual(epoch)
	a, err := Attach(context.Background(), newFakeAPI(active("s-1", 600)), "s-1", opts(clk))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 600*time.Second, a.Remaining())
	clk.Advance(90 * time.Second)
	assert.Equal(t, 510*time.Second, a.Remaining())
}

func TestSubmitFlushesAndDetaches(t *testing.T) {
	api := newFakeAPI(active("s-1", 600))
	a, err := Attach(context.Background(), api, "s-1", opts(clock.NewManual(epoch)))
	require.NoError(t, err)

	a.Edit(json.RawMessage(`{"q1":"c"}`))
	s, err := a.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "submitted", s.Status)
	assert.Equal(t, []string{`{"q1":"c"}`}, api.savesSnapshot())
	assert.Equal(t, []string{`{"q1":"c"}`}, api.submitted)
	assert.True(t, isDone(a))
}

func TestLockDetaches(t *testing.T) {
	api := newFakeAPI(active("s-1", 600))
	a, err := Attach(context.Background(), api, "s-1", opts(clock.NewManual(epoch)))
	require.NoError(t, err)
	defer a.Close()

	a.Observe(monitor.SignalHidden)
	require.Eventually(t, func() bool { return a.Security().Confirmed }, time.Second, 5*time.Millisecond)
	assert.False(t, isDone(a))
	assert.True(t, a.Security().Warned)

	a.Observe(monitor.SignalAppBackground)
	require.Eventually(t, func() bool { return isDone(a) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "locked", a.Session().Status)
}

func TestExpiryFlushesBeforeDeadline(t *testing.T) {
	clk := clock.NewManual(epoch)
	api := newFakeAPI(active("s-1", 10))
	a, err := Attach(context.Background(), api, "s-1", opts(clk))
	require.NoError(t, err)
	defer a.Close()

	a.Edit(json.RawMessage(`{"q1":"d"}`))
	clk.Advance(8 * time.Second)
	assert.Equal(t, []string{`{"q1":"d"}`}, api.savesSnapshot())
	assert.False(t, isDone(a))

	clk.Advance(2 * time.Second)
	assert.True(t, isDone(a))
	assert.Zero(t, a.Remaining())
}

func TestRestartAttachesReplacement(t *testing.T) {
	api := newFakeAPI(apiclient.Session{SessionID: "s-1", Status: "locked", Locked: true})

	_, err := Restart(context.Background(), api, "s-1", "WRONG123", opts(clock.NewManual(epoch)))
	assert.Equal(t, "invalid_code", apiclient.ErrorCode(err))

	a, err := Restart(context.Background(), api, "s-1", "ABCD2345", opts(clock.NewManual(epoch)))
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "s-1-next", a.SessionID())
	assert.Equal(t, monitor.State{}, a.Security())
}

func TestCloseIsIdempotentAndStopsSensors(t *testing.T) {
	api := newFakeAPI(active("s-1", 600))
	a, err := Attach(context.Background(), api, "s-1", opts(clock.NewManual(epoch)))
	require.NoError(t, err)

	a.Close()
	a.Close()
	a.Observe(monitor.SignalHidden)
	api.mu.Lock()
	assert.Zero(t, api.incidents)
	api.mu.Unlock()
}

func TestRefreshDetachesEndedSession(t *testing.T) {
	api := newFakeAPI(active("s-1", 600))
	a, err := Attach(context.Background(), api, "s-1", opts(clock.NewManual(epoch)))
	require.NoError(t, err)

	api.mu.Lock()
	api.sessions["s-1"].Status = "expired"
	api.sessions["s-1"].RemainingSeconds = 0
	api.mu.Unlock()

	s, err := a.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "expired", s.Status)
	assert.True(t, isDone(a))
}
