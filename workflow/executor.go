package workflow

import "context"

// TaskExecutor is the engine's only external dependency: the capability
// that performs the actual work of an agent task node. The engine never
// inspects how the work is done; it hands over the node's agent id, task
// type, mapped input, and the user the execution runs on behalf of, and
// takes back an output mapping or an error.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, agentID, taskType string, input map[string]interface{}, userID string) (map[string]interface{}, error)
}

// TaskExecutorFunc is a function adapter for TaskExecutor.
type TaskExecutorFunc func(ctx context.Context, agentID, taskType string, input map[string]interface{}, userID string) (map[string]interface{}, error)

// ExecuteTask implements the TaskExecutor interface.
func (f TaskExecutorFunc) ExecuteTask(ctx context.Context, agentID, taskType string, input map[string]interface{}, userID string) (map[string]interface{}, error) {
	return f(ctx, agentID, taskType, input, userID)
}
