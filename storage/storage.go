package storage

import (
	"context"
	"errors"

	"github.com/edukit/agent-workflow/types"
)

// Errors
var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrExecutionNotFound = errors.New("execution not found")
)

// Store defines the interface for persisting and retrieving workflow
// definitions and execution records. The engine treats a store as an
// archive: in-flight executions live in the engine's own table and are
// written through at state transitions.
type Store interface {
	// SaveWorkflow saves a workflow definition.
	SaveWorkflow(ctx context.Context, wf *types.Workflow) error

	// GetWorkflow retrieves a workflow by id.
	GetWorkflow(ctx context.Context, id string) (*types.Workflow, error)

	// ListWorkflows returns all stored workflow definitions, unspecified order.
	ListWorkflows(ctx context.Context) ([]*types.Workflow, error)

	// SaveWorkflows saves multiple workflow definitions in one operation.
	SaveWorkflows(ctx context.Context, wfs []*types.Workflow) error

	// SaveExecution saves an execution record.
	SaveExecution(ctx context.Context, exec *types.Execution) error

	// GetExecution retrieves an execution record by id.
	GetExecution(ctx context.Context, id string) (*types.Execution, error)

	// ListExecutions returns all stored execution records, unspecified order.
	ListExecutions(ctx context.Context) ([]*types.Execution, error)

	// ClearTerminal removes completed and failed execution records.
	ClearTerminal(ctx context.Context) error
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}

// withContextError handles context cancellation for operations that only return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
