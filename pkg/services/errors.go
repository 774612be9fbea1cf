// Package services provides the application layer between HTTP handlers and
// the flow engine, with standardized error types for service operations.
package services

import (
	"errors"
	"fmt"

	"github.com/talentops/reqflow/pkg/flow"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrFlowNameRequired    = errors.New("flow name is required")
	ErrNodesRequired       = errors.New("flow must have at least one node")
	ErrRequisitionRequired = errors.New("requisition payload is required")
	ErrInvalidApprover     = errors.New("actor is required for approval decisions")

	// Business logic conflicts (409 Conflict).
	ErrCannotDeleteActive = errors.New("cannot delete the active flow")
	ErrCannotModifyActive = errors.New("cannot modify an active or archived flow")
	ErrNoActiveFlow       = errors.New("no active flow to execute")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrRequisitionRequired) ||
		errors.Is(err, ErrInvalidApprover) ||
		flow.IsStructural(err)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotDeleteActive) ||
		errors.Is(err, ErrCannotModifyActive) ||
		errors.Is(err, ErrNoActiveFlow) ||
		errors.Is(err, flow.ErrFlowAlreadyActive) ||
		errors.Is(err, flow.ErrStepNotPending)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error with context.
func NewConflictError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
