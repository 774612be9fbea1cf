package models

import "time"

// Audit actions recorded for flow lifecycle and execution events.
const (
	AuditActionFlowCreated        = "flow_created"
	AuditActionFlowUpdated        = "flow_updated"
	AuditActionFlowActivated      = "flow_activated"
	AuditActionFlowArchived       = "flow_archived"
	AuditActionExecutionStarted   = "execution_started"
	AuditActionExecutionCompleted = "execution_completed"
	AuditActionExecutionFailed    = "execution_failed"
	AuditActionStepAssigned       = "step_assigned"
	AuditActionStepApproved       = "step_approved"
	AuditActionStepRejected       = "step_rejected"
)

// AuditEntry is one append-only history record. PreviousState captures the
// overwritten status for lifecycle transitions.
type AuditEntry struct {
	ID            string         `json:"id"`
	FlowID        string         `json:"flow_id"`
	ExecutionID   string         `json:"execution_id,omitempty"`
	Action        string         `json:"action" validate:"required"`
	Actor         string         `json:"actor"`
	Details       map[string]any `json:"details,omitempty"`
	PreviousState string         `json:"previous_state,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
