package flow

import (
	"fmt"

	"github.com/talentops/reqflow/pkg/models"
)

// Validate checks the structural invariants of a flow graph and returns a
// *StructuralError listing every violation found. It runs at flow create and
// update time, before persistence; executions trust the already-validated
// graph and never re-validate.
func Validate(flow *models.Flow) error {
	violations := make([]string, 0)

	startCount := 0
	endCount := 0
	nodesByID := make(map[string]*models.FlowNode, len(flow.Nodes))

	for _, node := range flow.Nodes {
		if _, duplicate := nodesByID[node.NodeID]; duplicate {
			violations = append(violations, fmt.Sprintf("duplicate node id %q", node.NodeID))
		}

		nodesByID[node.NodeID] = node

		switch node.Type {
		case models.NodeTypeStart:
			startCount++
		case models.NodeTypeEnd:
			endCount++
		case models.NodeTypeApproval, models.NodeTypeCondition, models.NodeTypeNotification:
			violations = append(violations, validateProperties(node)...)
		default:
			violations = append(violations, fmt.Sprintf("node %q has unknown type %q", node.NodeID, node.Type))
		}
	}

	if startCount == 0 {
		violations = append(violations, "flow has no start node")
	}

	if startCount > 1 {
		violations = append(violations, fmt.Sprintf("flow has %d start nodes, expected exactly one", startCount))
	}

	if endCount == 0 {
		violations = append(violations, "flow has no end node")
	}

	for _, conn := range flow.Connections {
		violations = append(violations, validateConnection(conn, nodesByID)...)
	}

	if len(violations) > 0 {
		return &StructuralError{FlowID: flow.ID, Violations: violations}
	}

	return nil
}

func validateProperties(node *models.FlowNode) []string {
	violations := make([]string, 0)
	props := node.Properties

	switch node.Type {
	case models.NodeTypeApproval:
		if props.ApproverType == "" {
			violations = append(violations, fmt.Sprintf("approval node %q is missing approverType", node.NodeID))
		}

		if props.TimeoutDays == nil {
			violations = append(violations, fmt.Sprintf("approval node %q is missing timeoutDays", node.NodeID))
		} else if *props.TimeoutDays < 0 {
			violations = append(violations, fmt.Sprintf("approval node %q has negative timeoutDays", node.NodeID))
		}
	case models.NodeTypeCondition:
		if len(props.Conditions) == 0 {
			violations = append(violations, fmt.Sprintf("condition node %q has no conditions", node.NodeID))
		}
	case models.NodeTypeNotification:
		if props.Recipients == "" {
			violations = append(violations, fmt.Sprintf("notification node %q is missing recipients", node.NodeID))
		}

		if props.Message == "" {
			violations = append(violations, fmt.Sprintf("notification node %q is missing message", node.NodeID))
		}
	}

	return violations
}

func validateConnection(conn *models.FlowConnection, nodesByID map[string]*models.FlowNode) []string {
	violations := make([]string, 0)

	if conn.SourceNodeID == conn.TargetNodeID {
		violations = append(violations, fmt.Sprintf("connection %q is a self-loop on node %q", conn.ID, conn.SourceNodeID))
	}

	source, sourceKnown := nodesByID[conn.SourceNodeID]
	if !sourceKnown {
		violations = append(violations, fmt.Sprintf("connection %q references unknown source node %q", conn.ID, conn.SourceNodeID))
	}

	if _, targetKnown := nodesByID[conn.TargetNodeID]; !targetKnown {
		violations = append(violations, fmt.Sprintf("connection %q references unknown target node %q", conn.ID, conn.TargetNodeID))
	}

	if !sourceKnown {
		return violations
	}

	// Condition nodes branch on true/false; every other type emits output.
	if source.Type == models.NodeTypeCondition {
		if conn.Type != models.ConnectionTypeTrue && conn.Type != models.ConnectionTypeFalse {
			violations = append(violations, fmt.Sprintf(
				"connection %q from condition node %q must be true or false, got %q", conn.ID, conn.SourceNodeID, conn.Type))
		}
	} else if conn.Type != models.ConnectionTypeOutput {
		violations = append(violations, fmt.Sprintf(
			"connection %q from %s node %q must be output, got %q", conn.ID, source.Type, conn.SourceNodeID, conn.Type))
	}

	return violations
}
