package monitor

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/seb_proctor/internal/apiclient"
	"github.com/zaqqye/seb_proctor/internal/clock"
	"github.com/zaqqye/seb_proctor/internal/models"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fakeReporter fails the first failures calls with err (forever when negative),
// then counts distinct incident ids like the ledger.
type fakeReporter struct {
	mu       sync.Mutex
	failures int
	err      error
	block    bool
	calls    []apiclient.Incident
	seen     map[string]bool
}

func (f *fakeReporter) ReportIncident(ctx context.Context, sessionID string, in apiclient.Incident) (*apiclient.LedgerResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	block := f.block
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[in.IncidentID] = true
	n := len(f.seen)
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &apiclient.LedgerResult{SessionID: sessionID, ViolationCount: n, WarningIssued: true, Locked: n >= 2}, nil
}

func (f *fakeReporter) snapshot() []apiclient.Incident {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiclient.Incident(nil), f.calls...)
}

func fastConfig() Config {
	return Config{
		BlurDebounce:   1500 * time.Millisecond,
		ReportTimeout:  time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestClassify(t *testing.T) {
	cases := map[Signal]models.IncidentKind{
		SignalHidden:        models.IncidentTabSwitch,
		SignalBlur:          models.IncidentWindowBlur,
		SignalBeforeUnload:  models.IncidentNavigationAttempt,
		SignalPageHide:      models.IncidentNavigationAttempt,
		SignalAppBackground: models.IncidentAppSwitch,
		SignalOrientation:   models.IncidentOrientationCheat,
	}
	for sig, want := range cases {
		got, ok := Classify(sig)
		assert.True(t, ok, sig)
		assert.Equal(t, want, got, sig)
	}
	_, ok := Classify(SignalFocus)
	assert.False(t, ok)
}

func TestBlurNeedsToOutlastDebounce(t *testing.T) {
	clk := clock.NewManual(epoch)
	rep := &fakeReporter{}
	m := Start("s-1", rep, nil, clk, fastConfig())
	defer m.Stop()

	m.Observe(SignalBlur)
	clk.Advance(time.Second)
	m.Observe(SignalFocus)
	clk.Advance(5 * time.Second)
	assert.Empty(t, rep.snapshot())

	blurredAt := clk.Now()
	m.Observe(SignalBlur)
	m.Observe(SignalBlur)
	clk.Advance(1500 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rep.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	got := rep.snapshot()[0]
	assert.Equal(t, string(models.IncidentWindowBlur), got.Kind)
	assert.True(t, blurredAt.Equal(got.ObservedAt))
}

func TestHiddenTabReportsOnce(t *testing.T) {
	clk := clock.NewManual(epoch)
	rep := &fakeReporter{}
	m := Start("s-1", rep, nil, clk, fastConfig())
	defer m.Stop()

	m.Observe(SignalBlur)
	m.Observe(SignalHidden)
	clk.Advance(5 * time.Second)

	require.Eventually(t, func() bool { return m.State().Confirmed }, time.Second, 5*time.Millisecond)
	calls := rep.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, string(models.IncidentTabSwitch), calls[0].Kind)
	assert.Equal(t, State{ViolationCount: 1, Warned: true, Confirmed: true}, m.State())
}

func TestTransientFailuresRetryWithSameIncidentID(t *testing.T) {
	rep := &fakeReporter{failures: 2, err: &apiclient.Error{Status: http.StatusServiceUnavailable}}
	m := Start("s-1", rep, nil, clock.NewManual(epoch), fastConfig())
	defer m.Stop()

	m.Report(models.IncidentAppSwitch, epoch)
	assert.Equal(t, 1, m.State().ViolationCount)
	assert.False(t, m.State().Confirmed)

	require.Eventually(t, func() bool { return m.State().Confirmed }, time.Second, 5*time.Millisecond)
	calls := rep.snapshot()
	require.Len(t, calls, 3)
	assert.Equal(t, calls[0].IncidentID, calls[2].IncidentID)
}

func TestZeroRetriesMeansDefault(t *testing.T) {
	j := OpenJournal(filepath.Join(t.TempDir(), "incidents.jsonl"))
	rep := &fakeReporter{failures: 1, err: &apiclient.Error{Status: http.StatusServiceUnavailable}}
	m := Start("s-1", rep, j, clock.NewManual(epoch), Config{InitialBackoff: time.Millisecond})
	defer m.Stop()

	m.Report(models.IncidentTabSwitch, epoch)
	require.Eventually(t, func() bool { return m.State().Confirmed }, time.Second, 5*time.Millisecond)
	assert.Len(t, rep.snapshot(), 2)
	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNegativeRetriesJournalAfterOneAttempt(t *testing.T) {
	j := OpenJournal(filepath.Join(t.TempDir(), "incidents.jsonl"))
	rep := &fakeReporter{failures: 1, err: &apiclient.Error{Status: http.StatusServiceUnavailable}}
	m := Start("s-1", rep, j, clock.NewManual(epoch), Config{InitialBackoff: time.Millisecond, MaxRetries: -1})
	defer m.Stop()

	m.Report(models.IncidentTabSwitch, epoch)
	require.Eventually(t, func() bool {
		entries, _ := j.Entries()
		return len(entries) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, rep.snapshot(), 1)
}

func TestServerCountReplacesOptimisticCount(t *testing.T) {
	rep := &fakeReporter{}
	m := Start("s-1", rep, nil, clock.NewManual(epoch), fastConfig())
	defer m.Stop()

	var mu sync.Mutex
	var seen []State
	m.OnChange(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	m.Report(models.IncidentTabSwitch, epoch)
	require.Eventually(t, func() bool { return m.State().Confirmed }, time.Second, 5*time.Millisecond)
	m.Report(models.IncidentTabSwitch, epoch)
	require.Eventually(t, func() bool { return m.State().Locked }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, m.State().ViolationCount)
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, len(seen), 4)
}

func TestExhaustedReportsAreJournaledAndReconciled(t *testing.T) {
	j := OpenJournal(filepath.Join(t.TempDir(), "incidents.jsonl"))
	rep := &fakeReporter{failures: -1, err: &apiclient.Error{Status: http.StatusBadGateway}}
	m := Start("s-1", rep, j, clock.NewManual(epoch), fastConfig())
	defer m.Stop()

	m.Report(models.IncidentNavigationAttempt, epoch)
	require.Eventually(t, func() bool {
		entries, _ := j.Entries()
		return len(entries) == 1
	}, time.Second, 5*time.Millisecond)
	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Equal(t, "s-1", entries[0].SessionID)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.Len(t, rep.snapshot(), 3)

	rep.mu.Lock()
	rep.failures = 0
	rep.mu.Unlock()
	res, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, entries[0].IncidentID, rep.snapshot()[3].IncidentID)
	assert.True(t, m.State().Confirmed)
	assert.Equal(t, 1, m.State().ViolationCount)

	left, err := j.Entries()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRejectedReportIsNotJournaled(t *testing.T) {
	j := OpenJournal(filepath.Join(t.TempDir(), "incidents.jsonl"))
	rep := &fakeReporter{failures: -1, err: &apiclient.Error{Status: http.StatusNotFound, Code: "not_found"}}
	m := Start("s-1", rep, j, clock.NewManual(epoch), fastConfig())

	m.Report(models.IncidentTabSwitch, epoch)
	m.Stop()

	assert.Len(t, rep.snapshot(), 1)
	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStopCancelsInflightAndJournals(t *testing.T) {
	j := OpenJournal(filepath.Join(t.TempDir(), "incidents.jsonl"))
	rep := &fakeReporter{block: true}
	cfg := fastConfig()
	cfg.ReportTimeout = time.Minute
	m := Start("s-1", rep, j, clock.NewManual(epoch), cfg)

	done := make(chan struct{})
	go func() {
		m.Observe(SignalHidden)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Observe blocked on the network")
	}

	require.Eventually(t, func() bool { return len(rep.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()
	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	m.Observe(SignalHidden)
	assert.Len(t, rep.snapshot(), 1)
}

func TestReconcileKeepsTransientFailures(t *testing.T) {
	j := OpenJournal(filepath.Join(t.TempDir(), "incidents.jsonl"))
	require.NoError(t, j.Append(Entry{SessionID: "s-1", IncidentID: "a", Kind: models.IncidentTabSwitch, ObservedAt: epoch}))
	require.NoError(t, j.Append(Entry{SessionID: "s-2", IncidentID: "b", Kind: models.IncidentTabSwitch, ObservedAt: epoch}))

	rep := &fakeReporter{failures: -1, err: &apiclient.Error{Status: http.StatusInternalServerError}}
	res, err := Reconcile(context.Background(), rep, j, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Replayed)
	assert.Equal(t, 2, res.Remaining)

	entries, err := j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Attempts)
}
