package types

import "time"

// ExecutionStatus is the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	// StatusPaused is reserved; the engine never transitions into it.
	StatusPaused ExecutionStatus = "paused"
)

// Terminal reports whether the status is a final one.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Execution is the mutable runtime record for one invocation of a workflow.
// It is written exclusively by the engine call that created it; concurrent
// readers must go through Clone.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Status     ExecutionStatus `json:"status"`
	UserID     string          `json:"user_id,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Traversal logs, append-only and in visit order. A node id may repeat
	// when cycles are explicitly allowed.
	CurrentNodeIDs   []string `json:"current_node_ids"`
	CompletedNodeIDs []string `json:"completed_node_ids"`
	FailedNodeIDs    []string `json:"failed_node_ids"`

	InputData  map[string]interface{} `json:"input_data,omitempty"`
	Context    map[string]interface{} `json:"context"`
	OutputData map[string]interface{} `json:"output_data,omitempty"`

	NodeExecutionTimes   map[string]int64 `json:"node_execution_times"`
	ErrorMessages        []string         `json:"error_messages,omitempty"`
	TotalExecutionTimeMs int64            `json:"total_execution_time_ms"`
}

// NewExecution creates a running execution seeded with the caller's input
// and initial context.
func NewExecution(id, workflowID, userID string, input, initial map[string]interface{}) *Execution {
	ctx := make(map[string]interface{}, len(initial))
	for k, v := range initial {
		ctx[k] = v
	}
	return &Execution{
		ID:                 id,
		WorkflowID:         workflowID,
		Status:             StatusRunning,
		UserID:             userID,
		StartedAt:          time.Now(),
		InputData:          input,
		Context:            ctx,
		NodeExecutionTimes: make(map[string]int64),
	}
}

// Clone returns a snapshot safe to hand to readers while the owning call is
// still appending. Slices and top-level maps are copied; values inside
// Context are shared, callers must treat them as read-only.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	c := *e
	c.CurrentNodeIDs = append([]string(nil), e.CurrentNodeIDs...)
	c.CompletedNodeIDs = append([]string(nil), e.CompletedNodeIDs...)
	c.FailedNodeIDs = append([]string(nil), e.FailedNodeIDs...)
	c.ErrorMessages = append([]string(nil), e.ErrorMessages...)
	c.Context = copyMap(e.Context)
	c.InputData = copyMap(e.InputData)
	c.OutputData = copyMap(e.OutputData)
	if e.NodeExecutionTimes != nil {
		c.NodeExecutionTimes = make(map[string]int64, len(e.NodeExecutionTimes))
		for k, v := range e.NodeExecutionTimes {
			c.NodeExecutionTimes[k] = v
		}
	}
	if e.CompletedAt != nil {
		at := *e.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
