package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/edukit/agent-workflow/types"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It is the engine's default when no store is supplied.
type MemoryStore struct {
	workflows  map[string]*types.Workflow
	executions map[string]*types.Execution
	mu         sync.RWMutex
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  make(map[string]*types.Workflow),
		executions: make(map[string]*types.Execution),
	}
}

// getItem is a standalone generic helper function.
func getItem[T any](ctx context.Context, mu *sync.RWMutex, m map[string]T, id string, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		mu.RLock()
		defer mu.RUnlock()
		item, ok := m[id]
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: id=%s", errNotFound, id)
		}
		return item, nil
	})
}

// listItems collects all values of a map under the read lock.
func listItems[T any](ctx context.Context, mu *sync.RWMutex, m map[string]T) ([]T, error) {
	return withContext(ctx, func() ([]T, error) {
		mu.RLock()
		defer mu.RUnlock()
		items := make([]T, 0, len(m))
		for _, item := range m {
			items = append(items, item)
		}
		return items, nil
	})
}

// SaveWorkflow saves a workflow definition to memory.
func (s *MemoryStore) SaveWorkflow(ctx context.Context, wf *types.Workflow) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.workflows[wf.ID] = wf
		return nil
	})
}

// GetWorkflow retrieves a workflow definition from memory.
func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	return getItem(ctx, &s.mu, s.workflows, id, ErrWorkflowNotFound)
}

// ListWorkflows returns all stored workflow definitions.
func (s *MemoryStore) ListWorkflows(ctx context.Context) ([]*types.Workflow, error) {
	return listItems(ctx, &s.mu, s.workflows)
}

// SaveWorkflows saves multiple workflow definitions in a single lock.
func (s *MemoryStore) SaveWorkflows(ctx context.Context, wfs []*types.Workflow) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, wf := range wfs {
			s.workflows[wf.ID] = wf
		}
		return nil
	})
}

// SaveExecution saves an execution record to memory.
func (s *MemoryStore) SaveExecution(ctx context.Context, exec *types.Execution) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.executions[exec.ID] = exec
		return nil
	})
}

// GetExecution retrieves an execution record from memory.
func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	return getItem(ctx, &s.mu, s.executions, id, ErrExecutionNotFound)
}

// ListExecutions returns all stored execution records.
func (s *MemoryStore) ListExecutions(ctx context.Context) ([]*types.Execution, error) {
	return listItems(ctx, &s.mu, s.executions)
}

// ClearTerminal removes completed and failed execution records.
func (s *MemoryStore) ClearTerminal(ctx context.Context) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, exec := range s.executions {
			if exec.Status.Terminal() {
				delete(s.executions, id)
			}
		}
		return nil
	})
}
