package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

func seedSession(t *testing.T, s *Store) *models.TestSession {
	t.Helper()
	sess := &models.TestSession{
		AssessmentID:     "a1",
		ClassroomID:      "c1",
		StudentID:        "s1",
		StartedAt:        time.Now().UTC(),
		TimeLimitSeconds: 600,
		Status:           models.SessionActive,
	}
	err := s.Transaction(context.Background(), func(tx store.Tx) error {
		return tx.CreateSession(sess)
	})
	require.NoError(t, err)
	return sess
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	s := New()
	sess := seedSession(t, s)
	boom := errors.New("boom")

	err := s.Transaction(context.Background(), func(tx store.Tx) error {
		locked, err := tx.LockSession(sess.ID)
		require.NoError(t, err)
		locked.ViolationCount = 5
		require.NoError(t, tx.SaveSession(locked))
		require.NoError(t, tx.InsertIncident(&models.SecurityIncident{SessionID: sess.ID, Kind: models.IncidentTabSwitch}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ViolationCount)
	incidents, _ := s.ListIncidents(context.Background(), sess.ID)
	assert.Empty(t, incidents)
}

func TestLockSessionSerialisesIncrements(t *testing.T) {
	s := New()
	sess := seedSession(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Transaction(context.Background(), func(tx store.Tx) error {
				locked, err := tx.LockSession(sess.ID)
				if err != nil {
					return err
				}
				locked.ViolationCount++
				return tx.SaveSession(locked)
			})
		}()
	}
	wg.Wait()

	got, _ := s.GetSession(context.Background(), sess.ID)
	assert.Equal(t, 50, got.ViolationCount)
}

func TestInsertIncidentRejectsDuplicateClientID(t *testing.T) {
	s := New()
	sess := seedSession(t, s)
	clientID := "inc-1"

	insert := func() error {
		return s.Transaction(context.Background(), func(tx store.Tx) error {
			return tx.InsertIncident(&models.SecurityIncident{SessionID: sess.ID, ClientIncidentID: &clientID, Kind: models.IncidentWindowBlur})
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), store.ErrDuplicate)
}

func TestFindWindowPrefersAssignment(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutWindow(ctx, &models.ScheduleWindow{ClassroomID: "c1", StartAt: &start}))

	w, err := s.FindWindow(ctx, "c1", "quiz-7")
	require.NoError(t, err)
	assert.Empty(t, w.AssignmentID)

	later := start.Add(24 * time.Hour)
	require.NoError(t, s.PutWindow(ctx, &models.ScheduleWindow{ClassroomID: "c1", AssignmentID: "quiz-7", StartAt: &later}))
	w, err = s.FindWindow(ctx, "c1", "quiz-7")
	require.NoError(t, err)
	assert.Equal(t, "quiz-7", w.AssignmentID)

	_, err = s.FindWindow(ctx, "c2", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListCodesUsedFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateCode(ctx, &models.BypassCode{Code: "AAAA1111", Scope: models.ScopeSession}))
	require.NoError(t, s.CreateCode(ctx, &models.BypassCode{Code: "BBBB2222", Scope: models.ScopeSchedule}))
	assert.ErrorIs(t, s.CreateCode(ctx, &models.BypassCode{Code: "AAAA1111"}), store.ErrDuplicate)

	err := s.Transaction(ctx, func(tx store.Tx) error {
		c, err := tx.LockCode("AAAA1111")
		if err != nil {
			return err
		}
		now := time.Now()
		c.ConsumedAt = &now
		return tx.SaveCode(c)
	})
	require.NoError(t, err)

	used := true
	spent, _ := s.ListCodes(ctx, store.CodeFilter{Used: &used})
	require.Len(t, spent, 1)
	assert.Equal(t, "AAAA1111", spent[0].Code)

	unused := false
	live, _ := s.ListCodes(ctx, store.CodeFilter{Used: &unused})
	require.Len(t, live, 1)
	assert.Equal(t, models.ScopeSchedule, live[0].Scope)
}

func TestFindOpenSessionSkipsTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := seedSession(t, s)
	err := s.Transaction(ctx, func(tx store.Tx) error {
		rec, err := tx.LockSession(first.ID)
		if err != nil {
			return err
		}
		rec.Status = models.SessionVoided
		return tx.SaveSession(rec)
	})
	require.NoError(t, err)

	err = s.Transaction(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.LockAttempt("s1", "a1"))
		_, err := tx.FindOpenSession("s1", "a1")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	second := seedSession(t, s)
	err = s.Transaction(ctx, func(tx store.Tx) error {
		rec, err := tx.FindOpenSession("s1", "a1")
		require.NoError(t, err)
		assert.Equal(t, second.ID, rec.ID)
		return nil
	})
	require.NoError(t, err)
}
