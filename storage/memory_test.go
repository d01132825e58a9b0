package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edukit/agent-workflow/types"
)

// Helper function to create a sample workflow
func newWorkflow(id string) *types.Workflow {
	wf := types.NewWorkflow(id, "Test Workflow", "", "1.0.0")
	wf.AddNode(&types.Node{ID: "a", Type: types.NodeAgentTask, AgentID: "agent", TaskType: "task"})
	wf.AddNode(&types.Node{ID: "b", Type: types.NodeTransform})
	wf.ConnectNodes("a", "b")
	wf.SetStartNode("a")
	return wf
}

// Helper function to create a sample execution
func newExecution(id string, status types.ExecutionStatus) *types.Execution {
	exec := types.NewExecution(id, "wf-1", "user-1",
		map[string]interface{}{"topic": "fractions"}, nil)
	exec.Status = status
	if status.Terminal() {
		now := time.Now()
		exec.CompletedAt = &now
	}
	return exec
}

func TestMemoryStore(t *testing.T) {
	t.Run("NewMemoryStore", func(t *testing.T) {
		store := NewMemoryStore()
		assert.NotNil(t, store)
		assert.Empty(t, store.workflows)
		assert.Empty(t, store.executions)
	})

	t.Run("SaveAndGetWorkflow", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		wf := newWorkflow("wf-1")
		assert.NoError(t, store.SaveWorkflow(ctx, wf))

		got, err := store.GetWorkflow(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, wf, got)

		_, err = store.GetWorkflow(ctx, "missing")
		assert.ErrorIs(t, err, ErrWorkflowNotFound)
	})

	t.Run("ListWorkflows", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			assert.NoError(t, store.SaveWorkflow(ctx, newWorkflow(fmt.Sprintf("wf-%d", i))))
		}

		wfs, err := store.ListWorkflows(ctx)
		assert.NoError(t, err)
		assert.Len(t, wfs, 3)
	})

	t.Run("SaveWorkflows", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		batch := []*types.Workflow{newWorkflow("wf-1"), newWorkflow("wf-2")}
		assert.NoError(t, store.SaveWorkflows(ctx, batch))

		wfs, err := store.ListWorkflows(ctx)
		assert.NoError(t, err)
		assert.Len(t, wfs, 2)
	})

	t.Run("SaveAndGetExecution", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		exec := newExecution("ex-1", types.StatusRunning)
		assert.NoError(t, store.SaveExecution(ctx, exec))

		got, err := store.GetExecution(ctx, "ex-1")
		assert.NoError(t, err)
		assert.Equal(t, exec, got)

		_, err = store.GetExecution(ctx, "missing")
		assert.ErrorIs(t, err, ErrExecutionNotFound)
	})

	t.Run("ClearTerminal", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		assert.NoError(t, store.SaveExecution(ctx, newExecution("ex-1", types.StatusCompleted)))
		assert.NoError(t, store.SaveExecution(ctx, newExecution("ex-2", types.StatusFailed)))
		assert.NoError(t, store.SaveExecution(ctx, newExecution("ex-3", types.StatusRunning)))

		assert.NoError(t, store.ClearTerminal(ctx))

		execs, err := store.ListExecutions(ctx)
		assert.NoError(t, err)
		assert.Len(t, execs, 1)
		assert.Equal(t, "ex-3", execs[0].ID)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		store := NewMemoryStore()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, store.SaveWorkflow(ctx, newWorkflow("wf-1")), context.Canceled)
		_, err := store.GetWorkflow(ctx, "wf-1")
		assert.ErrorIs(t, err, context.Canceled)
		_, err = store.ListExecutions(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				store.SaveWorkflow(ctx, newWorkflow(fmt.Sprintf("wf-%d", i)))
			}(i)
			go func(i int) {
				defer wg.Done()
				store.SaveExecution(ctx, newExecution(fmt.Sprintf("ex-%d", i), types.StatusRunning))
			}(i)
		}
		wg.Wait()

		wfs, err := store.ListWorkflows(ctx)
		assert.NoError(t, err)
		assert.Len(t, wfs, 20)

		execs, err := store.ListExecutions(ctx)
		assert.NoError(t, err)
		assert.Len(t, execs, 20)
	})
}
