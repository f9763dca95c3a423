package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/seb_proctor/internal/store/memstore"
)

const seedYAML = `
assessments:
  - id: quiz-1
    classroom_id: class-a
    time_limit: 45m
windows:
  - classroom_id: class-a
    start_at: 2026-03-02T08:00:00Z
  - classroom_id: class-a
    assignment_id: quiz-1
    start_at: 2026-03-02T08:00:00+07:00
    end_at: 2026-03-02T10:00:00+07:00
`

func TestApplySeed(t *testing.T) {
	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	st := memstore.New()
	ctx := context.Background()
	require.NoError(t, ApplySeed(ctx, st, seed, "seed"))

	a, err := st.GetAssessment(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, int64(45*60), a.TimeLimitSeconds)

	w, err := st.FindWindow(ctx, "class-a", "quiz-1")
	require.NoError(t, err)
	require.NotNil(t, w.StartAt)
	assert.Equal(t, time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), *w.StartAt)
	assert.Equal(t, time.UTC, w.StartAt.Location())
	assert.Equal(t, "seed", w.UpdatedBy)

	w, err = st.FindWindow(ctx, "class-a", "quiz-2")
	require.NoError(t, err)
	assert.Nil(t, w.EndAt)
}

func TestParseSeedRejectsBadInput(t *testing.T) {
	_, err := ParseSeed([]byte("windows:\n  - start_at: 2026-03-02T08:00:00Z\n"))
	assert.Error(t, err)
	_, err = ParseSeed([]byte("assessments:\n  - id: q\n    time_limit: soon\n"))
	assert.Error(t, err)
	_, err = ParseSeed([]byte("windows:\n  - classroom_id: c\n    start_at: 2026-03-02T10:00:00Z\n    end_at: 2026-03-02T08:00:00Z\n"))
	assert.Error(t, err)
}
