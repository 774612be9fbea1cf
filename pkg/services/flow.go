package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/talentops/reqflow/pkg/flow"
	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence"
)

// FlowService exposes flow definition management: versioned creation,
// activation, dry runs and the audit trail.
type FlowService struct {
	persistence persistence.Persistence
	registry    *flow.Registry
	validator   *validator.Validate
}

// NewFlowService creates a new flow service.
func NewFlowService(p persistence.Persistence, registry *flow.Registry, v *validator.Validate) *FlowService {
	return &FlowService{
		persistence: p,
		registry:    registry,
		validator:   v,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *FlowService) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListFlows returns all flow versions, newest first.
func (s *FlowService) ListFlows(ctx context.Context) ([]*models.Flow, error) {
	flows, err := s.persistence.FlowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return flows, nil
}

// GetFlow returns one flow version, or nil when it does not exist.
func (s *FlowService) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	return s.persistence.FlowRepository().GetByID(ctx, id)
}

// GetActiveFlow returns the flow driving new executions, or nil.
func (s *FlowService) GetActiveFlow(ctx context.Context) (*models.Flow, error) {
	return s.registry.GetActive(ctx)
}

// CreateFlowRequest is the payload for creating a new flow version.
type CreateFlowRequest struct {
	Name        string                   `json:"name"        validate:"required,min=3"`
	Description string                   `json:"description"`
	Nodes       []*models.FlowNode       `json:"nodes"       validate:"required,min=1"`
	Connections []*models.FlowConnection `json:"connections"`
	Metadata    map[string]any           `json:"metadata,omitempty"`
}

// CreateFlow validates the definition and saves it as the next draft version.
func (s *FlowService) CreateFlow(ctx context.Context, actor string, req CreateFlowRequest) (*models.Flow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError("CreateFlow", "INVALID_FLOW", err.Error(), ErrInvalidRequest)
	}

	definition := &models.Flow{
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Connections: req.Connections,
		Metadata:    req.Metadata,
	}

	created, err := s.registry.CreateNewVersion(ctx, actor, definition)
	if err != nil {
		return nil, err
	}

	return created, nil
}

// ActivateFlow makes the given version the single active flow.
func (s *FlowService) ActivateFlow(ctx context.Context, flowID, actor string) (*models.Flow, error) {
	return s.registry.Activate(ctx, flowID, actor)
}

// DeleteFlow removes a flow version. Only drafts may be deleted; the active
// flow backs in-flight executions and archived versions are history.
func (s *FlowService) DeleteFlow(ctx context.Context, flowID string) error {
	f, err := s.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return err
	}

	if f == nil {
		return persistence.NewFlowError("DeleteFlow", flowID, persistence.ErrFlowNotFound)
	}

	if f.Status != models.FlowStatusDraft {
		if f.IsActive() {
			return NewConflictError("DeleteFlow", "FLOW_ACTIVE",
				"the active flow cannot be deleted", ErrCannotDeleteActive)
		}

		return NewConflictError("DeleteFlow", "FLOW_NOT_DRAFT",
			"only draft flows can be deleted", ErrCannotModifyActive)
	}

	return s.persistence.FlowRepository().Delete(ctx, flowID)
}

// DryRunFlow simulates an execution of the given version against a context
// without persisting anything. Approval nodes are traversed as approved.
func (s *FlowService) DryRunFlow(ctx context.Context, flowID string, evalContext map[string]any) (*flow.DryRunResult, error) {
	f, err := s.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if f == nil {
		return nil, persistence.NewFlowError("DryRunFlow", flowID, persistence.ErrFlowNotFound)
	}

	return flow.DryRun(f, evalContext, flow.DefaultStepCeiling)
}

// AuditTrail returns the audit history of a flow, oldest first.
func (s *FlowService) AuditTrail(ctx context.Context, flowID string) ([]*models.AuditEntry, error) {
	return s.persistence.AuditRepository().ListByFlow(ctx, flowID)
}
