// Package flow implements the approval flow engine: graph validation,
// condition evaluation, the flow version registry and the execution state
// machine.
package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Precondition violations surfaced to callers of the registry and executor.
var (
	// ErrFlowNotActive is returned when an execution is started on a flow
	// whose status is not active.
	ErrFlowNotActive = errors.New("flow is not active")

	// ErrNoStartNode is returned when an execution is started on a flow
	// without a start node.
	ErrNoStartNode = errors.New("flow has no start node")

	// ErrFlowAlreadyActive is returned when activating a flow that is already
	// the active version.
	ErrFlowAlreadyActive = errors.New("flow is already active")

	// ErrNoActiveFlow is returned when a new execution is requested and no
	// flow version is active.
	ErrNoActiveFlow = errors.New("no active flow")

	// ErrStepNotPending is returned by ApproveStep when the step is not
	// awaiting action, including when a concurrent call won the transition.
	ErrStepNotPending = errors.New("step is not pending approval")

	// ErrUnauthorized is returned by ApproveStep when the actor is neither
	// the assignee nor granted the approve-on-behalf permission.
	ErrUnauthorized = errors.New("actor is not authorized to act on this step")

	// ErrStepCeilingExceeded is returned by dry runs that visit more steps
	// than the defensive ceiling allows, indicating a possible cycle.
	ErrStepCeilingExceeded = errors.New("step ceiling exceeded: flow may contain an infinite loop")
)

// StructuralError reports why a flow graph failed validation. It collects
// every violation found so authors can fix the graph in one pass and
// resubmit.
type StructuralError struct {
	FlowID     string
	Violations []string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("flow %s is structurally invalid: %s", e.FlowID, strings.Join(e.Violations, "; "))
}

// IsStructural checks if an error is a graph validation failure.
func IsStructural(err error) bool {
	var target *StructuralError

	return errors.As(err, &target)
}
