package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence"
)

// Registry enforces the singleton-active-flow invariant across versions and
// resolves the active flow for new executions. Activation and archival of
// the previous active version are applied by the persistence layer as one
// atomic unit, so concurrent activations of different versions can never
// leave two flows active.
type Registry struct {
	flows  persistence.FlowRepository
	audit  AuditSink
	logger *slog.Logger
}

// NewRegistry creates a flow registry.
func NewRegistry(flows persistence.FlowRepository, audit AuditSink, logger *slog.Logger) *Registry {
	return &Registry{
		flows:  flows,
		audit:  audit,
		logger: logger.With("module", "flow_registry"),
	}
}

// GetActive returns the flow that drives new executions, or nil when no
// version has been activated yet.
func (r *Registry) GetActive(ctx context.Context) (*models.Flow, error) {
	return r.flows.GetActive(ctx)
}

// CreateNewVersion allocates the next version number and saves the given
// definition as a draft. The graph is validated before anything is written.
func (r *Registry) CreateNewVersion(ctx context.Context, actor string, definition *models.Flow) (*models.Flow, error) {
	if err := Validate(definition); err != nil {
		return nil, err
	}

	maxVersion, err := r.flows.MaxVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to determine next version: %w", err)
	}

	now := time.Now().UTC()

	if definition.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate flow ID: %w", err)
		}

		definition.ID = id.String()
	}

	definition.Version = maxVersion + 1
	definition.Status = models.FlowStatusDraft
	definition.CreatedBy = actor
	definition.CreatedAt = now
	definition.UpdatedAt = now

	if err := r.flows.Save(ctx, definition); err != nil {
		return nil, fmt.Errorf("failed to save flow version %d: %w", definition.Version, err)
	}

	r.recordAudit(ctx, &models.AuditEntry{
		FlowID: definition.ID,
		Action: models.AuditActionFlowCreated,
		Actor:  actor,
		Details: map[string]any{
			"name":    definition.Name,
			"version": definition.Version,
		},
	})

	r.logger.InfoContext(ctx, "Created new flow version",
		"flow_id", definition.ID, "version", definition.Version)

	return definition, nil
}

// Activate makes the given flow the single active version, archiving the
// previously active flow in the same transaction. Fails with
// ErrFlowAlreadyActive when the flow is already active.
func (r *Registry) Activate(ctx context.Context, flowID, actor string) (*models.Flow, error) {
	target, err := r.flows.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if target == nil {
		return nil, persistence.NewFlowError("Activate", flowID, persistence.ErrFlowNotFound)
	}

	if target.IsActive() {
		return nil, ErrFlowAlreadyActive
	}

	now := time.Now().UTC()

	previous, err := r.flows.Activate(ctx, flowID, actor, now)
	if err != nil {
		return nil, err
	}

	if previous != nil {
		r.recordAudit(ctx, &models.AuditEntry{
			FlowID:        previous.ID,
			Action:        models.AuditActionFlowArchived,
			Actor:         actor,
			PreviousState: string(models.FlowStatusActive),
			Details:       map[string]any{"version": previous.Version},
		})
	}

	r.recordAudit(ctx, &models.AuditEntry{
		FlowID:        flowID,
		Action:        models.AuditActionFlowActivated,
		Actor:         actor,
		PreviousState: string(target.Status),
		Details:       map[string]any{"version": target.Version},
	})

	r.logger.InfoContext(ctx, "Activated flow version",
		"flow_id", flowID, "version", target.Version, "actor", actor)

	return r.flows.GetByID(ctx, flowID)
}

func (r *Registry) recordAudit(ctx context.Context, entry *models.AuditEntry) {
	if r.audit == nil {
		return
	}

	if err := r.audit.Record(ctx, entry); err != nil {
		r.logger.WarnContext(ctx, "Failed to record audit entry",
			"flow_id", entry.FlowID, "action", entry.Action, "error", err)
	}
}
