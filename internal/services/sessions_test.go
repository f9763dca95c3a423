package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/seb_proctor/internal/events"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

func countType(types []events.Type, want events.Type) int {
	n := 0
	for _, t := range types {
		if t == want {
			n++
		}
	}
	return n
}

func TestSubmitBeforeDeadlineWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.start(t, "stu-1")

	h.clock.Advance(10*time.Minute - time.Second)
	got, err := h.ctrl.Sessions.Submit(ctx, s.ID, []byte(`{"q1":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, models.SessionSubmitted, got.Status)
	assert.Equal(t, models.SubmitReasonManual, got.SubmitReason)
	assert.False(t, got.AutoSubmitted)
	assert.JSONEq(t, `{"q1":"a"}`, string(got.SubmittedPayload))

	h.clock.Advance(time.Hour)
	final, err := h.ctrl.Sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmitReasonManual, final.SubmitReason)
	assert.Zero(t, countType(h.events.types(), events.SessionExpired))
	assert.Zero(t, h.clock.Pending())
}

func TestExpiryAutoSubmitsSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.start(t, "stu-1")
	_, err := h.ctrl.Autosave.Save(ctx, s.ID, []byte(`{"q1":"c"}`))
	require.NoError(t, err)

	h.clock.Advance(10*time.Minute + time.Second)
	got, err := h.ctrl.Sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionSubmitted, got.Status)
	assert.Equal(t, models.SubmitReasonExpired, got.SubmitReason)
	assert.True(t, got.AutoSubmitted)
	assert.JSONEq(t, `{"q1":"c"}`, string(got.SubmittedPayload))
	require.NotNil(t, got.SubmittedAt)
	assert.Equal(t, s.Deadline(), *got.SubmittedAt)

	// the late manual submit converges on the same record
	again, err := h.ctrl.Sessions.Submit(ctx, s.ID, []byte(`{"q1":"late"}`))
	require.NoError(t, err)
	assert.Equal(t, models.SubmitReasonExpired, again.SubmitReason)
	assert.JSONEq(t, `{"q1":"c"}`, string(again.SubmittedPayload))
	assert.Equal(t, 1, countType(h.events.types(), events.SessionExpired))
	assert.Zero(t, countType(h.events.types(), events.SessionSubmitted))
}

func TestExpiryWithoutAnswers(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, "stu-1")
	h.clock.Advance(11 * time.Minute)

	got, err := h.ctrl.Sessions.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, got.Status)
	assert.Zero(t, got.RemainingSeconds)
}

func TestLateSubmitRunsExpiryWhenTimerLags(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.start(t, "stu-1")
	_, err := h.ctrl.Autosave.Save(ctx, s.ID, []byte(`{"q1":"d"}`))
	require.NoError(t, err)

	// simulate a timer that has not fired yet
	h.ctrl.Clock.StopAll()
	h.clock.Advance(10*time.Minute + time.Second)

	got, err := h.ctrl.Sessions.Submit(ctx, s.ID, []byte(`{"q1":"late"}`))
	require.NoError(t, err)
	assert.Equal(t, models.SessionSubmitted, got.Status)
	assert.Equal(t, models.SubmitReasonExpired, got.SubmitReason)
	assert.JSONEq(t, `{"q1":"d"}`, string(got.SubmittedPayload))

	again, err := h.ctrl.Sessions.Expire(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, got.SubmittedAt, again.SubmittedAt)
	assert.Equal(t, 1, countType(h.events.types(), events.SessionExpired))
}

func TestSubmitIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.start(t, "stu-1")

	first, err := h.ctrl.Sessions.Submit(ctx, s.ID, []byte(`{"q1":"a"}`))
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	second, err := h.ctrl.Sessions.Submit(ctx, s.ID, []byte(`{"q1":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, first.SubmittedAt, second.SubmittedAt)
	assert.JSONEq(t, `{"q1":"a"}`, string(second.SubmittedPayload))
	assert.Equal(t, 1, countType(h.events.types(), events.SessionSubmitted))
}

func TestSubmitUsesSnapshotWhenPayloadMissing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.start(t, "stu-1")
	_, err := h.ctrl.Autosave.Save(ctx, s.ID, []byte(`{"q2":"x"}`))
	require.NoError(t, err)

	got, err := h.ctrl.Sessions.Submit(ctx, s.ID, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"q2":"x"}`, string(got.SubmittedPayload))
}

func TestSubmitRefusedWhileLockedUntilUnlock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.start(t, "stu-1")
	h.lock(t, s.ID)

	_, err := h.ctrl.Sessions.Submit(ctx, s.ID, nil)
	assert.ErrorIs(t, err, ErrSessionLocked)

	res, err := h.ctrl.Unlock.Unlock(ctx, s.ID, h.issue(t, models.ScopeSession))
	require.NoError(t, err)
	_, err = h.ctrl.Sessions.Submit(ctx, s.ID, nil)
	assert.ErrorIs(t, err, ErrSessionEnded)

	got, err := h.ctrl.Sessions.Submit(ctx, res.Session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SessionSubmitted, got.Status)
}

func TestLockedSessionNeverExpires(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, "stu-1")
	h.lock(t, s.ID)
	h.clock.Advance(time.Hour)

	got, err := h.ctrl.Sessions.Expire(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionLocked, got.Status)
	assert.Zero(t, countType(h.events.types(), events.SessionExpired))
}

func TestEarlyExpireRearms(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, "stu-1")
	h.ctrl.Clock.StopAll()

	got, err := h.ctrl.Sessions.Expire(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.Status)
	assert.True(t, h.ctrl.Clock.Armed(s.ID))
}

func TestResumeClocks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.start(t, "stu-1")
	h.clock.Advance(5 * time.Minute)
	b := h.start(t, "stu-2")
	h.ctrl.Clock.StopAll()

	h.clock.Advance(6 * time.Minute)
	n, err := h.ctrl.Sessions.ResumeClocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// a's deadline had passed, its timer fires right away
	require.Eventually(t, func() bool {
		got, err := h.store.GetSession(ctx, a.ID)
		return err == nil && got.Status == models.SessionExpired
	}, time.Second, 5*time.Millisecond)

	assert.True(t, h.ctrl.Clock.Armed(b.ID))
	h.clock.Advance(5 * time.Minute)
	got, err := h.store.GetSession(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, got.Status)
}

func TestListSessionsForMonitoring(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.start(t, "stu-1")
	h.start(t, "stu-2")
	h.lock(t, a.ID)

	locked, err := h.ctrl.Sessions.List(ctx, store.SessionFilter{ClassroomID: "class-a", Status: models.SessionLocked})
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, a.ID, locked[0].ID)
	assert.Zero(t, locked[0].RemainingSeconds)
}
