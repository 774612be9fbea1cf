package models

import "time"

// ExecutionStatus represents the lifecycle state of one flow execution.
// Cancelled is an administrative overwrite; the executor never sets it.
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusInProgress ExecutionStatus = "in_progress"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusCancelled  ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further steps will be created.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// StepStatus represents the state of one visited node within an execution.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusSkipped    StepStatus = "skipped"
	StepStatusFailed     StepStatus = "failed"
)

// FlowExecution is one run of a flow against one subject record. Context is
// an immutable snapshot of the subject taken at start and is the read-only
// evaluation environment for every condition in this execution.
type FlowExecution struct {
	ID            string          `json:"id"`
	FlowID        string          `json:"flow_id"    validate:"required"`
	SubjectID     string          `json:"subject_id" validate:"required"`
	CurrentNodeID *string         `json:"current_node_id,omitempty"`
	Status        ExecutionStatus `json:"status"`
	Context       map[string]any  `json:"execution_context"`
	StartedBy     string          `json:"started_by"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// FlowExecutionStep records one node visit. StepOrder is 1-based, strictly
// increasing and unique per execution. AssignedTo/ApprovedBy/ApprovedAt are
// populated for approval nodes only.
type FlowExecutionStep struct {
	ID           string         `json:"id"`
	ExecutionID  string         `json:"execution_id" validate:"required"`
	NodeID       string         `json:"node_id"      validate:"required"`
	NodeType     NodeType       `json:"node_type"`
	StepOrder    int            `json:"step_order"   validate:"min=1"`
	Status       StepStatus     `json:"status"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	AssignedTo   *string        `json:"assigned_to,omitempty"`
	ApprovedBy   *string        `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time     `json:"approved_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}
