package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edukit/agent-workflow/types"
)

// newTestRedisStore connects to a local Redis or skips the test when no
// server is reachable.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	store, err := NewRedisStore(RedisOptions{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		IdleTimeout:  5 * time.Minute,
	})
	if err != nil {
		t.Skipf("skipping Redis tests: %v", err)
	}
	return store
}

func cleanupRedis(t *testing.T, store *RedisStore, keys ...string) {
	t.Helper()
	ctx := context.Background()
	for _, key := range keys {
		if err := store.client.Del(ctx, key).Err(); err != nil {
			t.Logf("cleanup failed for %s: %v", key, err)
		}
	}
}

func TestRedisStore(t *testing.T) {
	store := newTestRedisStore(t)
	defer store.Close()

	ctx := context.Background()

	t.Run("SaveAndGetWorkflow", func(t *testing.T) {
		wf := newWorkflow("redis-wf-1")
		defer cleanupRedis(t, store, workflowPrefix+wf.ID)

		assert.NoError(t, store.SaveWorkflow(ctx, wf))

		got, err := store.GetWorkflow(ctx, wf.ID)
		assert.NoError(t, err)
		assert.Equal(t, wf.ID, got.ID)
		assert.Equal(t, wf.Name, got.Name)
		assert.Equal(t, wf.StartNodeID, got.StartNodeID)
		assert.Len(t, got.Nodes, len(wf.Nodes))

		_, err = store.GetWorkflow(ctx, "redis-missing")
		assert.ErrorIs(t, err, ErrWorkflowNotFound)
	})

	t.Run("SaveWorkflowsPipelined", func(t *testing.T) {
		batch := []*types.Workflow{newWorkflow("redis-wf-2"), newWorkflow("redis-wf-3")}
		defer cleanupRedis(t, store, workflowPrefix+"redis-wf-2", workflowPrefix+"redis-wf-3")

		assert.NoError(t, store.SaveWorkflows(ctx, batch))

		for _, wf := range batch {
			got, err := store.GetWorkflow(ctx, wf.ID)
			assert.NoError(t, err)
			assert.Equal(t, wf.ID, got.ID)
		}
	})

	t.Run("SaveAndGetExecution", func(t *testing.T) {
		exec := newExecution("redis-ex-1", types.StatusCompleted)
		exec.Context = map[string]interface{}{"lessonPlan": "drafted"}
		exec.NodeExecutionTimes["a"] = 42
		defer cleanupRedis(t, store, executionPrefix+exec.ID)

		assert.NoError(t, store.SaveExecution(ctx, exec))

		got, err := store.GetExecution(ctx, exec.ID)
		assert.NoError(t, err)
		assert.Equal(t, exec.ID, got.ID)
		assert.Equal(t, types.StatusCompleted, got.Status)
		assert.Equal(t, "drafted", got.Context["lessonPlan"])
		assert.Equal(t, int64(42), got.NodeExecutionTimes["a"])

		_, err = store.GetExecution(ctx, "redis-missing")
		assert.ErrorIs(t, err, ErrExecutionNotFound)
	})

	t.Run("ClearTerminal", func(t *testing.T) {
		terminal := newExecution("redis-ex-terminal", types.StatusFailed)
		running := newExecution("redis-ex-running", types.StatusRunning)
		defer cleanupRedis(t, store, executionPrefix+terminal.ID, executionPrefix+running.ID)

		assert.NoError(t, store.SaveExecution(ctx, terminal))
		assert.NoError(t, store.SaveExecution(ctx, running))

		assert.NoError(t, store.ClearTerminal(ctx))

		_, err := store.GetExecution(ctx, terminal.ID)
		assert.ErrorIs(t, err, ErrExecutionNotFound)

		got, err := store.GetExecution(ctx, running.ID)
		assert.NoError(t, err)
		assert.Equal(t, types.StatusRunning, got.Status)
	})

	t.Run("ListExecutions", func(t *testing.T) {
		var keys []string
		for i := 0; i < 3; i++ {
			exec := newExecution(fmt.Sprintf("redis-ex-list-%d", i), types.StatusRunning)
			keys = append(keys, executionPrefix+exec.ID)
			assert.NoError(t, store.SaveExecution(ctx, exec))
		}
		defer cleanupRedis(t, store, keys...)

		execs, err := store.ListExecutions(ctx)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, len(execs), 3)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		canceled, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, store.SaveWorkflow(canceled, newWorkflow("redis-wf-ctx")), context.Canceled)
		_, err := store.GetWorkflow(canceled, "redis-wf-ctx")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
