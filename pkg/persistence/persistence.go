// Package persistence provides the data storage abstraction for flows,
// executions and audit history.
package persistence

import (
	"context"
	"time"

	"github.com/talentops/reqflow/pkg/models"
)

// Persistence aggregates the repositories of one storage backend.
type Persistence interface {
	FlowRepository() FlowRepository
	ExecutionRepository() ExecutionRepository
	AuditRepository() AuditRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowRepository stores flow definitions. GetByID and GetActive return
// (nil, nil) when no matching flow exists.
type FlowRepository interface {
	GetAll(ctx context.Context) ([]*models.Flow, error)
	GetByID(ctx context.Context, id string) (*models.Flow, error)

	// GetActive returns the single flow with status=active, if any.
	GetActive(ctx context.Context) (*models.Flow, error)

	// MaxVersion returns the highest version across all flows, 0 when none.
	MaxVersion(ctx context.Context) (int, error)

	Save(ctx context.Context, flow *models.Flow) error
	Delete(ctx context.Context, id string) error

	// Activate atomically archives the current active flow (when one exists)
	// and marks the given flow active, stamping activation metadata. A reader
	// must never observe two active flows; concurrent calls are serialized by
	// the backend. The archived previous flow is returned, nil when there was
	// none.
	Activate(ctx context.Context, flowID, actor string, at time.Time) (*models.Flow, error)
}

// ExecutionRepository stores executions and their steps.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.FlowExecution) error
	GetExecution(ctx context.Context, id string) (*models.FlowExecution, error)
	UpdateExecution(ctx context.Context, execution *models.FlowExecution) error
	ListExecutionsByFlow(ctx context.Context, flowID string) ([]*models.FlowExecution, error)
	ListExecutionsBySubject(ctx context.Context, subjectID string) ([]*models.FlowExecution, error)

	// AppendStep persists a new step and the updated execution row as one
	// atomic unit. The unique (execution_id, step_order) constraint makes a
	// retried advancement idempotent: a duplicate append fails with
	// ErrStepAlreadyExists instead of creating a second step.
	AppendStep(ctx context.Context, execution *models.FlowExecution, step *models.FlowExecutionStep) error

	GetStep(ctx context.Context, stepID string) (*models.FlowExecutionStep, error)
	UpdateStep(ctx context.Context, step *models.FlowExecutionStep) error

	// TransitionStep writes the step's mutable fields guarded by an exclusive
	// check-and-set on its current status: the write succeeds only when the
	// stored status still equals expected, otherwise ErrStepConflict is
	// returned and the step is left untouched. First caller wins.
	TransitionStep(ctx context.Context, step *models.FlowExecutionStep, expected models.StepStatus) error

	ListSteps(ctx context.Context, executionID string) ([]*models.FlowExecutionStep, error)

	// ListOpenApprovalSteps returns in_progress approval steps across all
	// executions, oldest first. Used by the reminder scanner.
	ListOpenApprovalSteps(ctx context.Context) ([]*models.FlowExecutionStep, error)

	// PurgeTerminalExecutions bulk-deletes executions (and their steps) that
	// reached a terminal status before the cutoff. Returns the number of
	// executions removed.
	PurgeTerminalExecutions(ctx context.Context, before time.Time) (int64, error)
}

// AuditRepository is the append-only history sink.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByFlow(ctx context.Context, flowID string) ([]*models.AuditEntry, error)
}
