package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edukit/agent-workflow/rules"
)

// NodeType identifies what kind of work a node performs.
type NodeType string

const (
	NodeAgentTask   NodeType = "agent_task"
	NodeCondition   NodeType = "condition"
	NodeParallel    NodeType = "parallel"
	NodeTransform   NodeType = "transform"
	NodeHumanReview NodeType = "human_review"
)

// Declared-intent defaults applied when a node is added with zero values.
// The engine records these fields but does not enforce them; enforcement
// belongs to the task executor.
const (
	DefaultRetryCount     = 3
	DefaultTimeoutSeconds = 300
)

// ErrNodeNotFound is returned when a referenced node id is absent from a workflow.
var ErrNodeNotFound = errors.New("node not found")

// InvalidWorkflowError carries the full list of validation errors for a workflow.
type InvalidWorkflowError struct {
	WorkflowID string
	Errors     []string
}

func (e *InvalidWorkflowError) Error() string {
	return fmt.Sprintf("invalid workflow %s: %s", e.WorkflowID, strings.Join(e.Errors, "; "))
}

// Node is one step in a workflow graph.
//
// Predicate and Transformer are function-valued and excluded from
// serialization; ConditionExpr is the serializable alternative for
// condition nodes and is evaluated by the engine's rules.Evaluator.
type Node struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Type NodeType `json:"type"`

	// Agent task configuration, required when Type is NodeAgentTask.
	AgentID  string `json:"agent_id,omitempty"`
	TaskType string `json:"task_type,omitempty"`

	// Condition configuration.
	ConditionExpr string          `json:"condition_expr,omitempty"`
	Predicate     rules.Predicate `json:"-"`

	// Transform configuration.
	Transformer rules.Transformer `json:"-"`

	NextNodeIDs   []string `json:"next_node_ids,omitempty"`
	OnErrorNodeID string   `json:"on_error_node_id,omitempty"`

	// target key -> dot-separated source path
	InputMapping  map[string]string `json:"input_mapping,omitempty"`
	OutputMapping map[string]string `json:"output_mapping,omitempty"`

	RetryCount     int `json:"retry_count,omitempty"`
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Workflow is a directed graph of nodes with a single designated start node.
// It is mutated only while being assembled; once registered with an engine,
// concurrent mutation is undefined behavior.
type Workflow struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Version     string           `json:"version,omitempty"`
	Nodes       map[string]*Node `json:"nodes"`
	StartNodeID string           `json:"start_node_id,omitempty"`
	EndNodeIDs  []string         `json:"end_node_ids,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewWorkflow creates an empty workflow with the given identity.
func NewWorkflow(id, name, description, version string) *Workflow {
	now := time.Now()
	return &Workflow{
		ID:          id,
		Name:        name,
		Description: description,
		Version:     version,
		Nodes:       make(map[string]*Node),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AddNode adds a node to the workflow, generating an id when absent and
// applying the declared retry/timeout defaults. Duplicate ids are rejected.
func (w *Workflow) AddNode(n *Node) error {
	if n == nil {
		return errors.New("node cannot be nil")
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if w.Nodes == nil {
		w.Nodes = make(map[string]*Node)
	}
	if _, exists := w.Nodes[n.ID]; exists {
		return fmt.Errorf("duplicate node id %s", n.ID)
	}
	if n.RetryCount == 0 {
		n.RetryCount = DefaultRetryCount
	}
	if n.TimeoutSeconds == 0 {
		n.TimeoutSeconds = DefaultTimeoutSeconds
	}
	w.Nodes[n.ID] = n
	w.UpdatedAt = time.Now()
	return nil
}

// ConnectNodes appends toID to the outgoing edges of fromID.
func (w *Workflow) ConnectNodes(fromID, toID string) error {
	from, ok := w.Nodes[fromID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, fromID)
	}
	if _, ok := w.Nodes[toID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, toID)
	}
	from.NextNodeIDs = append(from.NextNodeIDs, toID)
	w.UpdatedAt = time.Now()
	return nil
}

// SetStartNode designates the entry point of the graph.
func (w *Workflow) SetStartNode(id string) error {
	if _, ok := w.Nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	w.StartNodeID = id
	w.UpdatedAt = time.Now()
	return nil
}

// Validate checks the structure of the workflow and collects every problem
// it finds rather than stopping at the first. The reachability walk keeps a
// visited set, so cyclic graphs do not loop it.
func (w *Workflow) Validate() (bool, []string) {
	var errs []string

	if len(w.Nodes) == 0 {
		errs = append(errs, "workflow has no nodes")
	}
	if w.StartNodeID == "" {
		errs = append(errs, "workflow has no start node")
	} else if _, ok := w.Nodes[w.StartNodeID]; !ok {
		errs = append(errs, fmt.Sprintf("start node %s does not exist", w.StartNodeID))
	}

	reachable := w.reachableFrom(w.StartNodeID)

	var unreachable []string
	for id := range w.Nodes {
		if !reachable[id] {
			unreachable = append(unreachable, id)
		}
	}
	if len(unreachable) > 0 && w.StartNodeID != "" {
		sort.Strings(unreachable)
		errs = append(errs, fmt.Sprintf("unreachable nodes: %s", strings.Join(unreachable, ", ")))
	}

	ids := make([]string, 0, len(w.Nodes))
	for id := range w.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := w.Nodes[id]
		if n.Type == NodeAgentTask {
			if n.AgentID == "" {
				errs = append(errs, fmt.Sprintf("node %s: missing agentId", id))
			}
			if n.TaskType == "" {
				errs = append(errs, fmt.Sprintf("node %s: missing taskType", id))
			}
		}
		for _, next := range n.NextNodeIDs {
			if _, ok := w.Nodes[next]; !ok {
				errs = append(errs, fmt.Sprintf("node %s: next node %s does not exist", id, next))
			}
		}
		if n.OnErrorNodeID != "" {
			if _, ok := w.Nodes[n.OnErrorNodeID]; !ok {
				errs = append(errs, fmt.Sprintf("node %s: error node %s does not exist", id, n.OnErrorNodeID))
			}
		}
	}

	return len(errs) == 0, errs
}

// EndNodes returns the ids of nodes with no outgoing edges, sorted.
func (w *Workflow) EndNodes() []string {
	var ends []string
	for id, n := range w.Nodes {
		if len(n.NextNodeIDs) == 0 {
			ends = append(ends, id)
		}
	}
	sort.Strings(ends)
	return ends
}

// reachableFrom walks the graph breadth-first from the given node id.
// On-error edges count as reachability edges, so a fallback node wired
// only through OnErrorNodeID is not flagged unreachable.
func (w *Workflow) reachableFrom(start string) map[string]bool {
	visited := make(map[string]bool)
	if _, ok := w.Nodes[start]; !ok {
		return visited
	}
	queue := []string{start}
	visited[start] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node := w.Nodes[id]
		edges := node.NextNodeIDs
		if node.OnErrorNodeID != "" {
			edges = append(append([]string(nil), edges...), node.OnErrorNodeID)
		}
		for _, next := range edges {
			if visited[next] {
				continue
			}
			if _, ok := w.Nodes[next]; !ok {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}
	return visited
}
