package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hkmacro/internal/executor"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "sub", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordAndRecent(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	for i, status := range []string{"completed", "failed", "cancelled"} {
		require.NoError(t, r.Record(ctx, Entry{
			ID:              string(rune('a' + i)),
			MacroID:         "m1",
			MacroName:       "Farm",
			Status:          status,
			StartedAt:       base.Add(time.Duration(i) * time.Minute),
			FinishedAt:      base.Add(time.Duration(i)*time.Minute + time.Second),
			ActionsExecuted: i,
		}))
	}
	require.NoError(t, r.Record(ctx, Entry{ID: "z", MacroID: "m2", MacroName: "Other", Status: "completed", StartedAt: base, FinishedAt: base}))

	recent, err := r.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
	assert.Equal(t, base.Add(2*time.Minute+time.Second), recent[0].FinishedAt)

	mine, err := r.ForMacro(ctx, "m2", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Other", mine[0].MacroName)
}

func TestFromInfo(t *testing.T) {
	now := time.Now()
	e := FromInfo(executor.Info{
		RunID: "r", MacroID: "m", MacroName: "n",
		Status: executor.Failed, Executed: 3,
		StartedAt: now, FinishedAt: now,
		Err: errors.New("boom"),
	})
	assert.Equal(t, "failed", e.Status)
	assert.Equal(t, "boom", e.Error)
	assert.Equal(t, 3, e.ActionsExecuted)

	e = FromInfo(executor.Info{Status: executor.Cancelled, Err: executor.ErrCancelled})
	assert.Empty(t, e.Error)
}

func TestErrorRoundTrip(t *testing.T) {
	r, err := Open(":memory:")
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, r.Record(ctx, Entry{ID: "x", MacroID: "m", MacroName: "n", Status: "failed", StartedAt: now, FinishedAt: now, Error: "action #1 failed"}))
	got, err := r.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "action #1 failed", got[0].Error)
	assert.True(t, now.Equal(got[0].FinishedAt))
}
