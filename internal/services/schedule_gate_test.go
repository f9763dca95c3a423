package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/seb_proctor/internal/clock"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
	"github.com/zaqqye/seb_proctor/internal/store/memstore"
)

func closedUntil(t *testing.T, h *harness, start time.Time) {
	t.Helper()
	require.NoError(t, h.store.PutWindow(context.Background(), &models.ScheduleWindow{ClassroomID: "class-a", StartAt: &start}))
}

func TestCheckAvailabilityWithoutWindow(t *testing.T) {
	h := newHarness(t)
	av := h.ctrl.Schedule.CheckAvailability(context.Background(), "class-a", "")
	assert.True(t, av.Allowed)
	assert.Nil(t, av.Window)
	assert.Nil(t, av.NextAvailable)
}

func TestCheckAvailabilityOutsideWindow(t *testing.T) {
	h := newHarness(t)
	opens := epoch.Add(2 * time.Hour)
	closedUntil(t, h, opens)

	av := h.ctrl.Schedule.CheckAvailability(context.Background(), "class-a", "quiz-1")
	assert.False(t, av.Allowed)
	require.NotNil(t, av.NextAvailable)
	assert.Equal(t, opens, *av.NextAvailable)

	h.clock.Set(opens)
	av = h.ctrl.Schedule.CheckAvailability(context.Background(), "class-a", "quiz-1")
	assert.True(t, av.Allowed)
	assert.NotNil(t, av.Window)
}

func TestCheckAvailabilityAfterWindowEnd(t *testing.T) {
	h := newHarness(t)
	start, end := epoch.Add(-2*time.Hour), epoch.Add(-time.Hour)
	require.NoError(t, h.store.PutWindow(context.Background(), &models.ScheduleWindow{ClassroomID: "class-a", StartAt: &start, EndAt: &end}))

	av := h.ctrl.Schedule.CheckAvailability(context.Background(), "class-a", "")
	assert.False(t, av.Allowed)
	assert.Nil(t, av.NextAvailable)
}

type brokenWindows struct {
	*memstore.Store
}

func (brokenWindows) FindWindow(context.Context, string, string) (*models.ScheduleWindow, error) {
	return nil, errors.New("connection refused")
}

func TestCheckAvailabilityFailsOpen(t *testing.T) {
	clk := clock.NewManual(epoch)
	ctrl := New(Deps{Store: brokenWindows{memstore.New()}, Clock: clk})
	av := ctrl.Schedule.CheckAvailability(context.Background(), "class-a", "")
	assert.True(t, av.Allowed)
	assert.True(t, av.Degraded)

	res, err := ctrl.Schedule.StartWithOverride(context.Background(), StartRequest{AssignmentID: "quiz-1", StudentID: "stu-1", ClassroomID: "class-a"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, res.Session.Status)
	ctrl.Clock.StopAll()
}

func TestStartDeniedOutsideWindow(t *testing.T) {
	h := newHarness(t)
	opens := epoch.Add(time.Hour)
	closedUntil(t, h, opens)

	_, err := h.ctrl.Schedule.StartWithOverride(context.Background(), StartRequest{AssignmentID: "quiz-1", StudentID: "stu-1", ClassroomID: "class-a"})
	require.ErrorIs(t, err, ErrScheduleDenied)
	var denied *ScheduleDeniedError
	require.True(t, errors.As(err, &denied))
	require.NotNil(t, denied.NextAvailable)
	assert.Equal(t, opens, *denied.NextAvailable)

	sessions, _ := h.store.ListSessions(context.Background(), store.SessionFilter{})
	assert.Empty(t, sessions)
}

func TestStartWithOverrideConsumesCodeOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	closedUntil(t, h, epoch.Add(time.Hour))
	code := h.issue(t, models.ScopeSchedule)

	res, err := h.ctrl.Schedule.StartWithOverride(ctx, StartRequest{AssignmentID: "quiz-1", StudentID: "stu-1", ClassroomID: "class-a", OverrideCode: code})
	require.NoError(t, err)
	assert.True(t, res.Overridden)
	assert.Equal(t, models.SessionActive, res.Session.Status)
	require.NotNil(t, res.Session.OverrideCodeID)

	_, err = h.ctrl.Schedule.StartWithOverride(ctx, StartRequest{AssignmentID: "quiz-1", StudentID: "stu-2", ClassroomID: "class-a", OverrideCode: code})
	assert.ErrorIs(t, err, ErrCodeConsumed)
}

func TestConcurrentOverrideStartsShareOneCode(t *testing.T) {
	h := newHarness(t)
	closedUntil(t, h, epoch.Add(time.Hour))
	code := h.issue(t, models.ScopeSchedule)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		consumed int
	)
	for _, student := range []string{"stu-1", "stu-2", "stu-3", "stu-4"} {
		wg.Add(1)
		go func(student string) {
			defer wg.Done()
			_, err := h.ctrl.Schedule.StartWithOverride(context.Background(), StartRequest{
				AssignmentID: "quiz-1", StudentID: student, ClassroomID: "class-a", OverrideCode: code,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCodeConsumed):
				consumed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(student)
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, consumed)
}

func TestStartWithWrongCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	closedUntil(t, h, epoch.Add(time.Hour))
	sessionCode := h.issue(t, models.ScopeSession)

	req := StartRequest{AssignmentID: "quiz-1", StudentID: "stu-1", ClassroomID: "class-a"}
	req.OverrideCode = "NOPE1234"
	_, err := h.ctrl.Schedule.StartWithOverride(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidCode)

	req.OverrideCode = sessionCode
	_, err = h.ctrl.Schedule.StartWithOverride(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidCode)

	other, err := h.ctrl.Codes.Issue(ctx, IssueRequest{IssuerID: "teacher-1", Scope: models.ScopeSchedule, ClassroomID: "class-b"})
	require.NoError(t, err)
	req.OverrideCode = other.Code
	_, err = h.ctrl.Schedule.StartWithOverride(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestOverrideCodeNotSpentWhileWindowOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	code := h.issue(t, models.ScopeSchedule)

	res, err := h.ctrl.Schedule.StartWithOverride(ctx, StartRequest{AssignmentID: "quiz-1", StudentID: "stu-1", ClassroomID: "class-a", OverrideCode: code})
	require.NoError(t, err)
	assert.False(t, res.Overridden)

	unused := false
	live, err := h.ctrl.Codes.List(ctx, store.CodeFilter{Used: &unused})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, code, live[0].Code)
}

func TestStartResumesOpenSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.start(t, "stu-1")

	// the window closing later does not strand a running attempt
	closedUntil(t, h, epoch.Add(24*time.Hour))
	h.clock.Advance(time.Minute)
	res, err := h.ctrl.Schedule.StartWithOverride(ctx, StartRequest{AssignmentID: "quiz-1", StudentID: "stu-1", ClassroomID: "class-a"})
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, first.ID, res.Session.ID)
	assert.Equal(t, first.StartedAt, res.Session.StartedAt)
}

func TestStartRefusedWhileLocked(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, "stu-1")
	h.lock(t, s.ID)

	_, err := h.ctrl.Schedule.StartWithOverride(context.Background(), StartRequest{AssignmentID: "quiz-1", StudentID: "stu-1", ClassroomID: "class-a"})
	assert.ErrorIs(t, err, ErrSessionLocked)
}

func TestStartUsesRegisteredAssessment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.PutAssessment(ctx, &models.Assessment{ID: "quiz-9", ClassroomID: "class-z", TimeLimitSeconds: 300}))
	opens := epoch.Add(time.Hour)
	require.NoError(t, h.store.PutWindow(ctx, &models.ScheduleWindow{ClassroomID: "class-z", AssignmentID: "quiz-9", StartAt: &opens}))

	_, err := h.ctrl.Schedule.StartWithOverride(ctx, StartRequest{AssignmentID: "quiz-9", StudentID: "stu-1", ClassroomID: "class-a"})
	require.ErrorIs(t, err, ErrScheduleDenied)

	h.clock.Set(opens)
	res, err := h.ctrl.Schedule.StartWithOverride(ctx, StartRequest{AssignmentID: "quiz-9", StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Equal(t, "class-z", res.Session.ClassroomID)
	assert.Equal(t, int64(300), res.Session.TimeLimitSeconds)
}
