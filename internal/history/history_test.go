package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	for i, outcome := range []string{"success", "failed", "success"} {
		err := s.RecordRun(ctx, RunSummary{
			ID:           string(rune('a' + i)),
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			FinishedAt:   base.Add(time.Duration(i)*time.Minute + 5*time.Second),
			Outcome:      outcome,
			StepsRun:     i,
			StepsSkipped: 10 - i,
		})
		require.NoError(t, err)
	}

	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID, "newest first")
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, "failed", runs[1].Outcome)
	assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Minute)))
}

func TestDuplicateRunIDRejected(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	run := RunSummary{ID: "dup", StartedAt: time.Now(), FinishedAt: time.Now(), Outcome: "success"}
	require.NoError(t, s.RecordRun(ctx, run))
	assert.Error(t, s.RecordRun(ctx, run))
}

func TestRecentOnEmptyStore(t *testing.T) {
	s := openStore(t)
	runs, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
