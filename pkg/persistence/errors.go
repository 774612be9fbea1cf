// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrActiveFlowNotFound indicates no flow currently has status=active.
	ErrActiveFlowNotFound = errors.New("active flow not found")

	// ErrActiveFlowConflict indicates a write would leave two flows active at
	// once. Raised by the single-active-flow uniqueness guard.
	ErrActiveFlowConflict = errors.New("another flow is already active")

	// ErrExecutionNotFound indicates an execution was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrStepNotFound indicates an execution step was not found.
	ErrStepNotFound = errors.New("execution step not found")

	// ErrStepAlreadyExists indicates a step with the same (execution,
	// step_order) already exists. A retried advancement hits this instead of
	// duplicating the step.
	ErrStepAlreadyExists = errors.New("execution step already exists")

	// ErrStepConflict indicates a guarded step transition lost the
	// check-and-set race: the step was no longer in the expected status.
	ErrStepConflict = errors.New("step not in expected status")
)

// FlowError wraps flow-related errors with additional context.
type FlowError struct {
	Op      string // Operation being performed (e.g., "GetByID", "Save", "Activate")
	FlowID  string // Flow ID if applicable
	Err     error  // Underlying error
	Message string // Additional context message
}

func (e *FlowError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for flow %s: %s (%v)", e.Op, e.FlowID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for flow errors.
func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, flowID string, err error) *FlowError {
	return &FlowError{
		Op:     op,
		FlowID: flowID,
		Err:    err,
	}
}

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed
	ExecutionID string // Execution ID
	StepID      string // Step ID if applicable
	Err         error  // Underlying error
}

func (e *ExecutionError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s operation failed for step %s in execution %s: %v", e.Op, e.StepID, e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// IsFlowNotFound checks if an error indicates a flow was not found.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsActiveFlowConflict checks if an error indicates the single-active-flow
// guard rejected a write.
func IsActiveFlowConflict(err error) bool {
	return errors.Is(err, ErrActiveFlowConflict)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsStepConflict checks if an error indicates a lost step check-and-set race.
func IsStepConflict(err error) bool {
	return errors.Is(err, ErrStepConflict)
}
