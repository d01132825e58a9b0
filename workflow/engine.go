package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/songzhibin97/gkit/generator"

	"github.com/edukit/agent-workflow/events"
	"github.com/edukit/agent-workflow/rules"
	"github.com/edukit/agent-workflow/storage"
	"github.com/edukit/agent-workflow/types"
)

// Standard error definitions
var (
	ErrWorkflowNotFound     = errors.New("workflow not found")
	ErrExecutionNotFound    = errors.New("execution not found")
	ErrNoStartNode          = errors.New("workflow has no start node")
	ErrNoExecutorConfigured = errors.New("no task executor configured")
	ErrMaxNodeVisits        = errors.New("maximum node visits exceeded")
)

// DefaultMaxNodeVisits bounds how often a single node may be entered during
// one traversal. Validation only proves reachability, not acyclicity, so the
// engine refuses to loop unless a caller raises the limit explicitly.
const DefaultMaxNodeVisits = 1

// NodeExecutionError wraps the underlying task, transform, or condition
// failure with the failing node's identity.
type NodeExecutionError struct {
	NodeID   string
	NodeName string
	Err      error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("Node %s (%s): %v", e.NodeID, e.NodeName, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// Engine registers workflows, runs executions against the injected task
// executor, and answers telemetry queries over its execution table.
//
// The registries are the only shared mutable state; each Execution is
// written exclusively by the call that created it, and readers get
// snapshots via Clone.
type Engine struct {
	workflows     map[string]*types.Workflow
	executions    map[string]*types.Execution
	executor      TaskExecutor
	evaluator     rules.Evaluator
	store         storage.Store
	eventBus      *events.EventBus
	logger        *slog.Logger
	generate      generator.Generator
	maxNodeVisits int
	mu            sync.RWMutex
}

// NewEngine creates a workflow engine. The generator is required for
// execution ids; a nil store defaults to in-memory; a nil executor is legal
// until an agent task node runs.
func NewEngine(generate generator.Generator, store storage.Store, executor TaskExecutor, options ...events.EventBusOption) (*Engine, error) {
	if generate == nil {
		return nil, errors.New("generator is required")
	}

	if store == nil {
		store = storage.NewMemoryStore()
	}

	return &Engine{
		workflows:     make(map[string]*types.Workflow),
		executions:    make(map[string]*types.Execution),
		executor:      executor,
		evaluator:     rules.NewExprEvaluator(),
		store:         store,
		eventBus:      events.NewEventBus(options...),
		logger:        slog.Default(),
		generate:      generate,
		maxNodeVisits: DefaultMaxNodeVisits,
	}, nil
}

// SubscribeEvent subscribes an event handler to a specific event type.
func (e *Engine) SubscribeEvent(eventType string, handler events.EventHandler) {
	e.eventBus.Subscribe(eventType, handler)
}

// SetEvaluator sets a custom evaluator for expression-based condition nodes.
func (e *Engine) SetEvaluator(evaluator rules.Evaluator) {
	if evaluator == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evaluator = evaluator
}

// SetLogger replaces the engine's logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

// SetMaxNodeVisits raises the per-traversal visit limit, opting into cyclic
// workflows with bounded iterations. Values below one are ignored.
func (e *Engine) SetMaxNodeVisits(n int) {
	if n < 1 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxNodeVisits = n
}

// RegisterWorkflow validates, persists, and caches a workflow definition.
// Re-registering under the same id overwrites the previous definition for
// subsequently started executions only.
func (e *Engine) RegisterWorkflow(ctx context.Context, wf *types.Workflow) error {
	if wf == nil {
		return errors.New("workflow cannot be nil")
	}
	if wf.ID == "" {
		return errors.New("workflow id is required")
	}
	if ok, verrs := wf.Validate(); !ok {
		return &types.InvalidWorkflowError{WorkflowID: wf.ID, Errors: verrs}
	}
	wf.EndNodeIDs = wf.EndNodes()

	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.mu.Unlock()

	e.log().Info("workflow registered", "workflow_id", wf.ID, "name", wf.Name, "nodes", len(wf.Nodes))
	return nil
}

// GetWorkflow retrieves a workflow by id, checking the cache first then the store.
func (e *Engine) GetWorkflow(ctx context.Context, workflowID string) (*types.Workflow, error) {
	e.mu.RLock()
	wf, ok := e.workflows[workflowID]
	e.mu.RUnlock()

	if ok {
		return wf, nil
	}

	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}

	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.mu.Unlock()

	return wf, nil
}

// ListWorkflows returns every registered workflow in unspecified order.
func (e *Engine) ListWorkflows(ctx context.Context) ([]*types.Workflow, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		e.mu.RLock()
		defer e.mu.RUnlock()
		wfs := make([]*types.Workflow, 0, len(e.workflows))
		for _, wf := range e.workflows {
			wfs = append(wfs, wf)
		}
		return wfs, nil
	}
}

// ExecuteOption configures an ExecuteWorkflow call.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	userID  string
	initial map[string]interface{}
}

// WithUserID attributes the execution to a user; the id is handed through
// to the task executor untouched.
func WithUserID(userID string) ExecuteOption {
	return func(o *executeOptions) { o.userID = userID }
}

// WithInitialContext seeds the execution context before the first node runs.
func WithInitialContext(initial map[string]interface{}) ExecuteOption {
	return func(o *executeOptions) { o.initial = initial }
}

// ExecuteWorkflow runs a registered workflow synchronously to completion or
// failure, walking the graph from the start node by recursive descent.
//
// Failure is dual-signaled: the returned error and the stored execution's
// Failed status are both authoritative, so callers that only poll
// GetExecutionStatus still observe the failure.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]interface{}, opts ...ExecuteOption) (*types.Execution, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	wf, err := e.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.StartNodeID == "" {
		// Registration already guarantees this; execution re-checks.
		return nil, ErrNoStartNode
	}

	var options executeOptions
	for _, opt := range opts {
		opt(&options)
	}

	id, err := e.generate.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution id: %w", err)
	}

	exec := types.NewExecution(strconv.FormatUint(id, 10), wf.ID, options.userID, input, options.initial)

	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.mu.Unlock()

	if err := e.store.SaveExecution(ctx, exec.Clone()); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	e.log().Info("execution started", "execution_id", exec.ID, "workflow_id", wf.ID, "user_id", options.userID)
	e.publishEvent(ctx, events.TypeExecutionStarted, exec, nil)

	visits := make(map[string]int)
	_, runErr := e.executeNode(ctx, wf, exec, wf.StartNodeID, input, visits)

	e.mu.Lock()
	now := time.Now()
	exec.CompletedAt = &now
	exec.TotalExecutionTimeMs = now.Sub(exec.StartedAt).Milliseconds()
	if runErr != nil {
		exec.Status = types.StatusFailed
		exec.ErrorMessages = append(exec.ErrorMessages, runErr.Error())
	} else {
		exec.Status = types.StatusCompleted
	}
	e.mu.Unlock()

	if err := e.store.SaveExecution(ctx, exec.Clone()); err != nil {
		e.log().Error("failed to save terminal execution", "execution_id", exec.ID, "error", err)
	}

	if runErr != nil {
		e.log().Error("execution failed", "execution_id", exec.ID, "workflow_id", wf.ID, "error", runErr)
		e.publishEvent(ctx, events.TypeExecutionFailed, exec, map[string]interface{}{"error": runErr.Error()})
		return exec, runErr
	}

	e.log().Info("execution completed", "execution_id", exec.ID, "workflow_id", wf.ID, "total_ms", exec.TotalExecutionTimeMs)
	e.publishEvent(ctx, events.TypeExecutionCompleted, exec, nil)
	return exec, nil
}

// executeNode runs one node and then every successor, threading the full
// accumulated execution context to each. It returns the node's own result.
func (e *Engine) executeNode(ctx context.Context, wf *types.Workflow, exec *types.Execution, nodeID string, data map[string]interface{}, visits map[string]int) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	node, ok := wf.Nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, nodeID)
	}

	visits[nodeID]++
	if limit := e.visitLimit(); visits[nodeID] > limit {
		return nil, fmt.Errorf("%w: node %s entered %d times, limit %d", ErrMaxNodeVisits, nodeID, visits[nodeID], limit)
	}

	e.mu.Lock()
	exec.CurrentNodeIDs = append(exec.CurrentNodeIDs, nodeID)
	e.mu.Unlock()

	e.log().Debug("executing node", "execution_id", exec.ID, "node_id", nodeID, "type", node.Type)
	start := time.Now()

	result, err := e.runNode(ctx, node, MapData(data, node.InputMapping), exec.UserID)
	if err != nil {
		return e.handleNodeError(ctx, wf, exec, node, data, visits, err)
	}

	mappedOutput := MapData(result, node.OutputMapping)

	e.mu.Lock()
	err = mergeContext(exec.Context, mappedOutput)
	if err == nil {
		exec.CompletedNodeIDs = append(exec.CompletedNodeIDs, nodeID)
		exec.NodeExecutionTimes[nodeID] = time.Since(start).Milliseconds()
	}
	e.mu.Unlock()
	if err != nil {
		return e.handleNodeError(ctx, wf, exec, node, data, visits, err)
	}

	e.publishEvent(ctx, events.TypeNodeCompleted, exec, map[string]interface{}{"node_id": nodeID})

	// Successors see the cumulative context of all ancestors, not just this
	// node's output. A downstream failure is handled as this node's failure
	// so the on-error route of any ancestor can still catch it.
	for _, next := range node.NextNodeIDs {
		if _, err := e.executeNode(ctx, wf, exec, next, e.contextSnapshot(exec), visits); err != nil {
			return e.handleNodeError(ctx, wf, exec, node, data, visits, err)
		}
	}

	return result, nil
}

// runNode dispatches on the node kind and performs the node's own work.
func (e *Engine) runNode(ctx context.Context, node *types.Node, input map[string]interface{}, userID string) (map[string]interface{}, error) {
	e.mu.RLock()
	executor, evaluator := e.executor, e.evaluator
	e.mu.RUnlock()

	switch node.Type {
	case types.NodeAgentTask:
		if executor == nil {
			return nil, ErrNoExecutorConfigured
		}
		return executor.ExecuteTask(ctx, node.AgentID, node.TaskType, input, userID)

	case types.NodeTransform:
		if node.Transformer != nil {
			return node.Transformer.Transform(input)
		}
		return input, nil

	case types.NodeCondition:
		// The boolean is recorded, not branched on; all successors run
		// regardless of the outcome.
		pass := true
		var err error
		switch {
		case node.Predicate != nil:
			pass, err = node.Predicate.Evaluate(input)
		case node.ConditionExpr != "":
			pass, err = evaluator.Evaluate(node.ConditionExpr, input)
		}
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"conditionResult": pass}, nil

	case types.NodeParallel, types.NodeHumanReview:
		// Reserved kinds run as pass-through.
		return input, nil

	default:
		return nil, fmt.Errorf("unknown node type %q", node.Type)
	}
}

// handleNodeError records the failure and either reroutes to the node's
// on-error target with the original input data, or propagates.
func (e *Engine) handleNodeError(ctx context.Context, wf *types.Workflow, exec *types.Execution, node *types.Node, data map[string]interface{}, visits map[string]int, cause error) (map[string]interface{}, error) {
	nodeErr := &NodeExecutionError{NodeID: node.ID, NodeName: node.Name, Err: cause}

	e.mu.Lock()
	exec.FailedNodeIDs = append(exec.FailedNodeIDs, node.ID)
	exec.ErrorMessages = append(exec.ErrorMessages, nodeErr.Error())
	e.mu.Unlock()

	e.log().Error("node failed", "execution_id", exec.ID, "node_id", node.ID, "error", cause)
	e.publishEvent(ctx, events.TypeNodeFailed, exec, map[string]interface{}{"node_id": node.ID, "error": cause.Error()})

	if node.OnErrorNodeID != "" {
		e.log().Debug("rerouting to error node", "execution_id", exec.ID, "node_id", node.ID, "error_node_id", node.OnErrorNodeID)
		return e.executeNode(ctx, wf, exec, node.OnErrorNodeID, data, visits)
	}
	return nil, nodeErr
}

// GetExecutionStatus returns a consistent snapshot of an execution, live
// table first, store fallback.
func (e *Engine) GetExecutionStatus(ctx context.Context, executionID string) (*types.Execution, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	e.mu.RLock()
	exec, ok := e.executions[executionID]
	var snapshot *types.Execution
	if ok {
		snapshot = exec.Clone()
	}
	e.mu.RUnlock()

	if ok {
		return snapshot, nil
	}

	stored, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	return stored, nil
}

// ListExecutions returns snapshots of every execution the engine has run.
func (e *Engine) ListExecutions(ctx context.Context) ([]*types.Execution, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		e.mu.RLock()
		defer e.mu.RUnlock()
		execs := make([]*types.Execution, 0, len(e.executions))
		for _, exec := range e.executions {
			execs = append(execs, exec.Clone())
		}
		return execs, nil
	}
}

// Stats aggregates across all executions. Computed on demand by filtering
// the execution table, so each call is O(number of executions).
type Stats struct {
	TotalExecutions     int
	Completed           int
	Failed              int
	Running             int
	SuccessRate         float64 // completed over terminal executions
	AverageCompletionMs float64 // over completed executions
	TotalNodesExecuted  int
}

// Stats computes aggregate statistics over the execution table.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var s Stats
	var completionSum int64
	for _, exec := range e.executions {
		s.TotalExecutions++
		s.TotalNodesExecuted += len(exec.CompletedNodeIDs)
		switch exec.Status {
		case types.StatusCompleted:
			s.Completed++
			completionSum += exec.TotalExecutionTimeMs
		case types.StatusFailed:
			s.Failed++
		case types.StatusRunning:
			s.Running++
		}
	}
	if terminal := s.Completed + s.Failed; terminal > 0 {
		s.SuccessRate = float64(s.Completed) / float64(terminal)
	}
	if s.Completed > 0 {
		s.AverageCompletionMs = float64(completionSum) / float64(s.Completed)
	}
	return s
}

// NodeTiming aggregates per-node execution times for one workflow.
type NodeTiming struct {
	Count int
	AvgMs float64
	MinMs int64
	MaxMs int64
}

// NodeStats computes per-node timing statistics across every execution of
// the given workflow.
func (e *Engine) NodeStats(workflowID string) map[string]NodeTiming {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sums := make(map[string]int64)
	stats := make(map[string]NodeTiming)
	for _, exec := range e.executions {
		if exec.WorkflowID != workflowID {
			continue
		}
		for nodeID, ms := range exec.NodeExecutionTimes {
			t, seen := stats[nodeID]
			if !seen || ms < t.MinMs {
				t.MinMs = ms
			}
			if ms > t.MaxMs {
				t.MaxMs = ms
			}
			t.Count++
			sums[nodeID] += ms
			stats[nodeID] = t
		}
	}
	for nodeID, t := range stats {
		t.AvgMs = float64(sums[nodeID]) / float64(t.Count)
		stats[nodeID] = t
	}
	return stats
}

// Stop gracefully stops the engine's event processing.
func (e *Engine) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		e.eventBus.Stop()
		return nil
	}
}

// publishEvent publishes an event asynchronously to the event bus.
func (e *Engine) publishEvent(ctx context.Context, eventType string, exec *types.Execution, data map[string]interface{}) {
	go e.eventBus.Publish(ctx, events.Event{
		Type:        eventType,
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Data:        data,
	})
}

// contextSnapshot copies the execution context for handing to a successor.
func (e *Engine) contextSnapshot(exec *types.Execution) map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snapshot := make(map[string]interface{}, len(exec.Context))
	for k, v := range exec.Context {
		snapshot[k] = v
	}
	return snapshot
}

func (e *Engine) visitLimit() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxNodeVisits
}

func (e *Engine) log() *slog.Logger {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.logger
}

// mergeContext merges a node's mapped output into the accumulated context.
// A colliding key replaces the prior value wholesale, even when both sides
// are maps; an earlier node's subkeys never survive a later write.
func mergeContext(dst map[string]interface{}, src map[string]interface{}) error {
	if len(src) == 0 {
		return nil
	}
	for k := range src {
		delete(dst, k)
	}
	return mergo.Merge(&dst, src, mergo.WithOverride)
}
