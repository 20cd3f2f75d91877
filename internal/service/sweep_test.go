package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ndemidova/callline/internal/calltask"
)

func TestSweep_FailsStaleSessionThroughRetryPolicy(t *testing.T) {
	st, mr, emitter := setupTest(t)
	defer mr.Close()
	ctx := context.Background()

	task := &calltask.Task{ID: "task-1", OwnerID: "owner-1", Status: calltask.TaskInProgress}
	require.NoError(t, st.CreateTask(ctx, task))

	stale := &calltask.Session{
		ID:          "sess-stale",
		TaskID:      task.ID,
		ProviderKey: "prov-stale",
		Status:      calltask.SessionRinging,
		StartedAt:   time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, st.CreateSession(ctx, stale))

	fresh := &calltask.Session{
		ID:          "sess-fresh",
		TaskID:      task.ID,
		ProviderKey: "prov-fresh",
		Status:      calltask.SessionRinging,
	}
	require.NoError(t, st.CreateSession(ctx, fresh))

	ing := newIngestor(st, emitter)
	sweeper := NewSweeper(st, ing, 15*time.Minute, zap.NewNop().Sugar())
	sweeper.Sweep(ctx)

	got, err := st.GetSessionByProviderKey(ctx, "prov-stale")
	require.NoError(t, err)
	assert.Equal(t, calltask.SessionFailed, got.Status)
	assert.Equal(t, "call timeout", got.FailureReason)

	untouched, err := st.GetSessionByProviderKey(ctx, "prov-fresh")
	require.NoError(t, err)
	assert.Equal(t, calltask.SessionRinging, untouched.Status)

	// The synthetic failure flows through the retry policy like any other.
	gotTask, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, calltask.TaskReadyToCall, gotTask.Status)
	assert.Equal(t, "retry attempt 1", gotTask.FailureReason)
}

func TestSweep_NoOpenSessions(t *testing.T) {
	st, mr, emitter := setupTest(t)
	defer mr.Close()

	ing := newIngestor(st, emitter)
	sweeper := NewSweeper(st, ing, 15*time.Minute, zap.NewNop().Sugar())

	// Must not panic or error with nothing to do.
	sweeper.Sweep(context.Background())
}
