package flow

import (
	"fmt"

	"github.com/talentops/reqflow/pkg/models"
)

// DefaultStepCeiling bounds dry runs. Production advancement has no ceiling;
// graphs are expected to be acyclic and the dry run is where an authored
// cycle gets caught before activation.
const DefaultStepCeiling = 100

// DryRunStep is one visited node in a simulated execution.
type DryRunStep struct {
	NodeID          string          `json:"node_id"`
	NodeType        models.NodeType `json:"node_type"`
	ConditionResult *bool           `json:"condition_result,omitempty"`
}

// DryRunResult is the trace of a simulated execution.
type DryRunResult struct {
	Steps     []DryRunStep `json:"steps"`
	Completed bool         `json:"completed"`
}

// DryRun walks the graph against the given context without persisting
// anything. Approval nodes are traversed as if approved. A walk exceeding
// the ceiling aborts with ErrStepCeilingExceeded, the possible-infinite-loop
// diagnostic for cyclic graphs.
func DryRun(f *models.Flow, context map[string]any, ceiling int) (*DryRunResult, error) {
	if ceiling <= 0 {
		ceiling = DefaultStepCeiling
	}

	startNode := f.StartNode()
	if startNode == nil {
		return nil, ErrNoStartNode
	}

	result := &DryRunResult{Steps: make([]DryRunStep, 0)}
	node := startNode

	for range ceiling {
		trace := DryRunStep{NodeID: node.NodeID, NodeType: node.Type}

		var next *models.FlowConnection

		if node.Type == models.NodeTypeCondition {
			conditionResult := EvaluateNode(node, context)
			trace.ConditionResult = &conditionResult
			next = NextConnection(f, node, conditionResult)
		} else {
			outgoing := f.OutgoingConnections(node.NodeID)
			if len(outgoing) > 0 {
				next = outgoing[0]
			}
		}

		result.Steps = append(result.Steps, trace)

		if next == nil {
			result.Completed = true

			return result, nil
		}

		target := f.NodeByID(next.TargetNodeID)
		if target == nil {
			return result, fmt.Errorf("connection %s targets unknown node %s", next.ID, next.TargetNodeID)
		}

		node = target
	}

	return result, fmt.Errorf("%w (ceiling %d)", ErrStepCeilingExceeded, ceiling)
}
