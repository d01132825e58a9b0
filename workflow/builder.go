package workflow

import (
	"fmt"

	"github.com/edukit/agent-workflow/rules"
	"github.com/edukit/agent-workflow/types"
)

// Builder assembles a workflow as a linear chain: each added node is wired
// to the previous one and the first node becomes the start node. Branching
// graphs are built by calling ConnectNodes on the underlying workflow
// (via Workflow()) before Build.
type Builder struct {
	wf   *types.Workflow
	prev *types.Node
	last *types.Node
	errs []string
}

// NewBuilder creates a builder for a workflow with the given identity.
func NewBuilder(id, name string) *Builder {
	return &Builder{wf: types.NewWorkflow(id, name, "", "1.0.0")}
}

// Describe sets the workflow description.
func (b *Builder) Describe(description string) *Builder {
	b.wf.Description = description
	return b
}

// Version sets the workflow version.
func (b *Builder) Version(version string) *Builder {
	b.wf.Version = version
	return b
}

// AgentTask appends an agent task node.
func (b *Builder) AgentTask(name, agentID, taskType string) *Builder {
	return b.add(&types.Node{
		Name:     name,
		Type:     types.NodeAgentTask,
		AgentID:  agentID,
		TaskType: taskType,
	})
}

// Transform appends a transform node. A nil transformer passes input through.
func (b *Builder) Transform(name string, fn rules.Transformer) *Builder {
	return b.add(&types.Node{
		Name:        name,
		Type:        types.NodeTransform,
		Transformer: fn,
	})
}

// Condition appends a condition node backed by a predicate.
func (b *Builder) Condition(name string, p rules.Predicate) *Builder {
	return b.add(&types.Node{
		Name:      name,
		Type:      types.NodeCondition,
		Predicate: p,
	})
}

// ConditionExpr appends a condition node backed by an expression evaluated
// by the engine's evaluator.
func (b *Builder) ConditionExpr(name, expression string) *Builder {
	return b.add(&types.Node{
		Name:          name,
		Type:          types.NodeCondition,
		ConditionExpr: expression,
	})
}

// HumanReview appends a human review node (pass-through until review
// semantics land).
func (b *Builder) HumanReview(name string) *Builder {
	return b.add(&types.Node{
		Name: name,
		Type: types.NodeHumanReview,
	})
}

// WithID renames the last added node, rewiring the edge and start node that
// reference it.
func (b *Builder) WithID(id string) *Builder {
	if b.last == nil || id == "" || id == b.last.ID {
		return b
	}
	if _, exists := b.wf.Nodes[id]; exists {
		b.errs = append(b.errs, fmt.Sprintf("duplicate node id %s", id))
		return b
	}
	delete(b.wf.Nodes, b.last.ID)
	if b.prev != nil && len(b.prev.NextNodeIDs) > 0 {
		b.prev.NextNodeIDs[len(b.prev.NextNodeIDs)-1] = id
	}
	if b.wf.StartNodeID == b.last.ID {
		b.wf.StartNodeID = id
	}
	b.last.ID = id
	b.wf.Nodes[id] = b.last
	return b
}

// WithInputMapping sets the last node's input mapping.
func (b *Builder) WithInputMapping(mapping map[string]string) *Builder {
	if b.last != nil {
		b.last.InputMapping = mapping
	}
	return b
}

// WithOutputMapping sets the last node's output mapping.
func (b *Builder) WithOutputMapping(mapping map[string]string) *Builder {
	if b.last != nil {
		b.last.OutputMapping = mapping
	}
	return b
}

// OnError routes the last node's failures to the given node id.
func (b *Builder) OnError(nodeID string) *Builder {
	if b.last != nil {
		b.last.OnErrorNodeID = nodeID
	}
	return b
}

// WithRetry sets the last node's declared retry count.
func (b *Builder) WithRetry(count int) *Builder {
	if b.last != nil {
		b.last.RetryCount = count
	}
	return b
}

// WithTimeout sets the last node's declared timeout in seconds.
func (b *Builder) WithTimeout(seconds int) *Builder {
	if b.last != nil {
		b.last.TimeoutSeconds = seconds
	}
	return b
}

// Workflow exposes the underlying workflow for direct graph surgery before
// Build.
func (b *Builder) Workflow() *types.Workflow {
	return b.wf
}

// Build validates the assembled workflow and returns it, populating the end
// node list. Returns *types.InvalidWorkflowError when validation fails.
func (b *Builder) Build() (*types.Workflow, error) {
	errs := b.errs
	if ok, verrs := b.wf.Validate(); !ok {
		errs = append(errs, verrs...)
	}
	if len(errs) > 0 {
		return nil, &types.InvalidWorkflowError{WorkflowID: b.wf.ID, Errors: errs}
	}
	b.wf.EndNodeIDs = b.wf.EndNodes()
	return b.wf, nil
}

func (b *Builder) add(n *types.Node) *Builder {
	if err := b.wf.AddNode(n); err != nil {
		b.errs = append(b.errs, err.Error())
		return b
	}
	if b.last != nil {
		if err := b.wf.ConnectNodes(b.last.ID, n.ID); err != nil {
			b.errs = append(b.errs, err.Error())
		}
	} else {
		b.wf.StartNodeID = n.ID
	}
	b.prev = b.last
	b.last = n
	return b
}
