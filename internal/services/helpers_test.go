package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zaqqye/seb_proctor/internal/clock"
	"github.com/zaqqye/seb_proctor/internal/events"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store/memstore"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.got))
	for _, e := range r.got {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	ctrl   *Controller
	store  *memstore.Store
	clock  *clock.Manual
	events *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewManual(epoch)
	st := memstore.New().WithNow(clk.Now)
	rec := &recorder{}
	ctrl := New(Deps{
		Store:            st,
		Clock:            clk,
		Events:           rec,
		DefaultTimeLimit: 10 * time.Minute,
		DedupeWindow:     2 * time.Second,
	})
	t.Cleanup(ctrl.Clock.StopAll)
	return &harness{ctrl: ctrl, store: st, clock: clk, events: rec}
}

func (h *harness) start(t *testing.T, student string) *models.TestSession {
	t.Helper()
	res, err := h.ctrl.Schedule.StartWithOverride(context.Background(), StartRequest{
		AssignmentID: "quiz-1",
		StudentID:    student,
		ClassroomID:  "class-a",
	})
	require.NoError(t, err)
	return res.Session
}

func (h *harness) issue(t *testing.T, scope models.CodeScope) string {
	t.Helper()
	bc, err := h.ctrl.Codes.Issue(context.Background(), IssueRequest{IssuerID: "teacher-1", Scope: scope})
	require.NoError(t, err)
	return bc.Code
}

func (h *harness) lock(t *testing.T, sessionID string) {
	t.Helper()
	ctx := context.Background()
	for _, kind := range []models.IncidentKind{models.IncidentTabSwitch, models.IncidentWindowBlur} {
		_, err := h.ctrl.Ledger.RecordIncident(ctx, IncidentReport{SessionID: sessionID, Kind: kind})
		require.NoError(t, err)
	}
}
