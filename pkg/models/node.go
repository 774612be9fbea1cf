package models

// NodeType represents the behavioral type of a flow node.
type NodeType string

const (
	NodeTypeStart        NodeType = "start"
	NodeTypeApproval     NodeType = "approval"
	NodeTypeCondition    NodeType = "condition"
	NodeTypeNotification NodeType = "notification"
	NodeTypeEnd          NodeType = "end"
)

// FlowNode is a typed vertex in a flow graph. NodeID is the frontend-stable
// identifier, unique within the flow. Position is display-only and has no
// behavioral effect.
type FlowNode struct {
	NodeID     string         `json:"node_id" validate:"required"`
	Type       NodeType       `json:"node_type" validate:"required"`
	Name       string         `json:"name"`
	PositionX  int            `json:"position_x"`
	PositionY  int            `json:"position_y"`
	Properties NodeProperties `json:"properties"`
}

// IsTerminal reports whether the node type ends an execution when reached.
func (n *FlowNode) IsTerminal() bool {
	return n.Type == NodeTypeEnd
}

// ConnectionType represents the label of a directed edge between two nodes.
// Condition nodes branch on true/false; every other node type uses output.
type ConnectionType string

const (
	ConnectionTypeOutput ConnectionType = "output"
	ConnectionTypeTrue   ConnectionType = "true"
	ConnectionTypeFalse  ConnectionType = "false"
)

// FlowConnection is a directed, typed edge between two nodes of the same flow.
type FlowConnection struct {
	ID           string         `json:"id"`
	SourceNodeID string         `json:"source_node_id" validate:"required"`
	TargetNodeID string         `json:"target_node_id" validate:"required"`
	Type         ConnectionType `json:"connection_type" validate:"required"`
}

// Matches reports whether the connection routes the given condition result.
func (c *FlowConnection) Matches(result bool) bool {
	if result {
		return c.Type == ConnectionTypeTrue
	}

	return c.Type == ConnectionTypeFalse
}
