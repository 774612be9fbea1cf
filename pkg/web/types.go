// Package web provides HTTP request and response types for the flow API.
package web

import (
	"github.com/talentops/reqflow/pkg/models"
)

// CreateFlowRequest is the request body for creating a new flow version.
// Structural validation of the graph happens in the service layer; the web
// layer only requires the acting user.
type CreateFlowRequest struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Actor       string                   `json:"actor"              validate:"required"`
	Nodes       []*models.FlowNode       `json:"nodes"`
	Connections []*models.FlowConnection `json:"connections"`
	Metadata    map[string]any           `json:"metadata,omitempty"`
}

// ActivateFlowRequest is the request body for activating a flow version.
type ActivateFlowRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// DryRunRequest carries the simulated requisition context for a dry run.
type DryRunRequest struct {
	Context map[string]any `json:"context"`
}

// StartExecutionRequest is the request body for starting a flow execution.
type StartExecutionRequest struct {
	Requisition map[string]any `json:"requisition" validate:"required"`
	StartedBy   string         `json:"started_by"  validate:"required"`
}

// DecisionRequest is the request body for approving or rejecting a step.
type DecisionRequest struct {
	Actor    string `json:"actor"    validate:"required"`
	Approved bool   `json:"approved"`
	Comments string `json:"comments"`
}
