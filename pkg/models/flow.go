// Package models defines the core domain models for versioned approval flows.
package models

import "time"

// FlowStatus represents the lifecycle state of a flow version.
type FlowStatus string

const (
	FlowStatusDraft    FlowStatus = "draft"    // Editable, not executable
	FlowStatusActive   FlowStatus = "active"   // Current version, drives new executions
	FlowStatusArchived FlowStatus = "archived" // Historical, never un-archived
)

// Flow is one immutable version of an approval flow definition. At most one
// flow is active system-wide; activation archives the previous active version.
type Flow struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"        validate:"required,min=3"`
	Description string            `json:"description"`
	Version     int               `json:"version"`
	Status      FlowStatus        `json:"status"      validate:"required"`
	Nodes       []*FlowNode       `json:"nodes"`
	Connections []*FlowConnection `json:"connections"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedBy   string            `json:"created_by"`
	ActivatedBy string            `json:"activated_by,omitempty"`
	ActivatedAt *time.Time        `json:"activated_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IsActive reports whether this version currently drives new executions.
func (f *Flow) IsActive() bool {
	return f.Status == FlowStatusActive
}

// NodeByID returns the node with the given frontend-stable node id, or nil.
func (f *Flow) NodeByID(nodeID string) *FlowNode {
	for _, node := range f.Nodes {
		if node.NodeID == nodeID {
			return node
		}
	}

	return nil
}

// StartNode returns the flow's start node, or nil when the graph has none.
func (f *Flow) StartNode() *FlowNode {
	for _, node := range f.Nodes {
		if node.Type == NodeTypeStart {
			return node
		}
	}

	return nil
}

// OutgoingConnections returns the connections leaving the given node, in
// definition order.
func (f *Flow) OutgoingConnections(nodeID string) []*FlowConnection {
	connections := make([]*FlowConnection, 0)

	for _, conn := range f.Connections {
		if conn.SourceNodeID == nodeID {
			connections = append(connections, conn)
		}
	}

	return connections
}
