// Package events defines event types for flow lifecycle and execution
// notifications.
package events

import (
	"time"
)

type EventType string

// Topic is the single bus topic all flow events are published on.
const Topic = "reqflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Flow lifecycle events.
	FlowCreatedEvent   EventType = "flow.created"
	FlowActivatedEvent EventType = "flow.activated"
	FlowArchivedEvent  EventType = "flow.archived"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"

	// Approval step events.
	StepAssignedEvent EventType = "step.assigned"
	StepApprovedEvent EventType = "step.approved"
	StepRejectedEvent EventType = "step.rejected"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type FlowCreated struct {
	BaseEvent

	Name    string `json:"name"`
	Version int    `json:"version"`
	Actor   string `json:"actor"`
}

func (e FlowCreated) GetType() EventType {
	return FlowCreatedEvent
}

type FlowActivated struct {
	BaseEvent

	Version        int    `json:"version"`
	Actor          string `json:"actor"`
	PreviousFlowID string `json:"previous_flow_id,omitempty"`
}

func (e FlowActivated) GetType() EventType {
	return FlowActivatedEvent
}

type FlowArchived struct {
	BaseEvent

	Version int    `json:"version"`
	Actor   string `json:"actor"`
}

func (e FlowArchived) GetType() EventType {
	return FlowArchivedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	SubjectID   string `json:"subject_id"`
	StartedBy   string `json:"started_by"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	SubjectID   string        `json:"subject_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	SubjectID   string `json:"subject_id"`
	Reason      string `json:"reason"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type StepAssigned struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	NodeID      string `json:"node_id"`
	AssignedTo  string `json:"assigned_to"`
}

func (e StepAssigned) GetType() EventType {
	return StepAssignedEvent
}

type StepApproved struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	NodeID      string `json:"node_id"`
	ApprovedBy  string `json:"approved_by"`
	Comments    string `json:"comments,omitempty"`
}

func (e StepApproved) GetType() EventType {
	return StepApprovedEvent
}

type StepRejected struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
	NodeID      string `json:"node_id"`
	RejectedBy  string `json:"rejected_by"`
	Comments    string `json:"comments,omitempty"`
}

func (e StepRejected) GetType() EventType {
	return StepRejectedEvent
}
