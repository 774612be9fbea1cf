package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/talentops/reqflow/pkg/flow"
	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/otelhelper"
	"github.com/talentops/reqflow/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// requisitionSchema is the wire-level contract for requisition payloads
// submitted by upstream HR systems. Struct validation alone cannot reject
// unknown shapes coming in as raw JSON.
var requisitionSchema = map[string]any{
	"type":     "object",
	"required": []any{"id", "position_title", "headcount"},
	"properties": map[string]any{
		"id":             map[string]any{"type": "string", "minLength": 1},
		"position_title": map[string]any{"type": "string", "minLength": 1},
		"department":     map[string]any{"type": "string"},
		"location":       map[string]any{"type": "string"},
		"headcount":      map[string]any{"type": "integer", "minimum": 1},
		"budget_amount":  map[string]any{"type": "number", "minimum": 0},
		"currency":       map[string]any{"type": "string"},
		"priority":       map[string]any{"type": "string"},
	},
}

// ExecutionService exposes execution lifecycle operations: starting a flow
// for a requisition, approving or rejecting suspended steps, and queries.
type ExecutionService struct {
	persistence persistence.Persistence
	registry    *flow.Registry
	executor    *flow.Executor
	validator   *validator.Validate
	tracer      trace.Tracer
}

// NewExecutionService creates a new execution service.
func NewExecutionService(p persistence.Persistence, registry *flow.Registry, executor *flow.Executor, v *validator.Validate) *ExecutionService {
	return &ExecutionService{
		persistence: p,
		registry:    registry,
		executor:    executor,
		validator:   v,
		tracer:      otel.Tracer("reqflow.services.execution"),
	}
}

// StartExecutionRequest is the payload for starting an execution.
type StartExecutionRequest struct {
	Requisition map[string]any `json:"requisition" validate:"required"`
	StartedBy   string         `json:"started_by"  validate:"required"`
}

// StartExecution routes a requisition through the active flow. The payload
// is validated against the requisition schema before anything runs.
func (s *ExecutionService) StartExecution(ctx context.Context, req StartExecutionRequest) (*models.FlowExecution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError("StartExecution", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	if err := validateRequisitionPayload(req.Requisition); err != nil {
		return nil, NewValidationError("StartExecution", "INVALID_REQUISITION", err.Error(), ErrRequisitionRequired)
	}

	active, err := s.registry.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active flow: %w", err)
	}

	if active == nil {
		return nil, NewConflictError("StartExecution", "NO_ACTIVE_FLOW",
			"no flow is currently active", ErrNoActiveFlow)
	}

	subject := requisitionFromPayload(req.Requisition)

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "StartExecution",
		attribute.String(otelhelper.FlowIDKey, active.ID),
		attribute.String(otelhelper.SubjectIDKey, subject.ID),
		attribute.String(otelhelper.ActorKey, req.StartedBy),
	)
	defer span.End()

	execution, err := s.executor.StartExecution(ctx, active, subject)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	execution.StartedBy = req.StartedBy

	if err := s.persistence.ExecutionRepository().UpdateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to record execution starter: %w", err)
	}

	return execution, nil
}

// GetExecution returns one execution, or nil when it does not exist.
func (s *ExecutionService) GetExecution(ctx context.Context, id string) (*models.FlowExecution, error) {
	return s.persistence.ExecutionRepository().GetExecution(ctx, id)
}

// ListSteps returns an execution's steps in order.
func (s *ExecutionService) ListSteps(ctx context.Context, executionID string) ([]*models.FlowExecutionStep, error) {
	execution, err := s.persistence.ExecutionRepository().GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution == nil {
		return nil, persistence.NewExecutionError("ListSteps", executionID, persistence.ErrExecutionNotFound)
	}

	return s.persistence.ExecutionRepository().ListSteps(ctx, executionID)
}

// ListExecutionsBySubject returns the executions routed for a requisition.
func (s *ExecutionService) ListExecutionsBySubject(ctx context.Context, subjectID string) ([]*models.FlowExecution, error) {
	return s.persistence.ExecutionRepository().ListExecutionsBySubject(ctx, subjectID)
}

// ApprovalRequest is the payload for deciding a suspended approval step.
type ApprovalRequest struct {
	Actor    string `json:"actor"    validate:"required"`
	Approved bool   `json:"approved"`
	Comments string `json:"comments"`
}

// DecideStep applies an approval decision to a suspended step.
func (s *ExecutionService) DecideStep(ctx context.Context, stepID string, req ApprovalRequest) (*models.FlowExecutionStep, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError("DecideStep", "INVALID_DECISION", err.Error(), ErrInvalidApprover)
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "DecideStep",
		attribute.String(otelhelper.StepIDKey, stepID),
		attribute.String(otelhelper.ActorKey, req.Actor),
		attribute.Bool("reqflow.decision.approved", req.Approved),
	)
	defer span.End()

	step, err := s.executor.ApproveStep(ctx, stepID, req.Actor, req.Approved, req.Comments)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return step, nil
}

// PendingApprovals returns the open approval steps assigned to the given
// user, oldest first. An empty assignee returns all open approvals.
func (s *ExecutionService) PendingApprovals(ctx context.Context, assignee string) ([]*models.FlowExecutionStep, error) {
	steps, err := s.persistence.ExecutionRepository().ListOpenApprovalSteps(ctx)
	if err != nil {
		return nil, err
	}

	if assignee == "" {
		return steps, nil
	}

	assigned := make([]*models.FlowExecutionStep, 0)

	for _, step := range steps {
		if step.AssignedTo != nil && *step.AssignedTo == assignee {
			assigned = append(assigned, step)
		}
	}

	return assigned, nil
}

// validateRequisitionPayload validates raw requisition JSON against the
// schema contract.
func validateRequisitionPayload(payload map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(requisitionSchema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("requisition validation failed: %s", strings.Join(details, "; "))
	}

	return nil
}

// requisitionFromPayload maps validated raw JSON onto the requisition model.
func requisitionFromPayload(payload map[string]any) *models.Requisition {
	req := &models.Requisition{
		ID:             stringField(payload, "id"),
		PositionTitle:  stringField(payload, "position_title"),
		Department:     stringField(payload, "department"),
		Location:       stringField(payload, "location"),
		EmploymentType: stringField(payload, "employment_type"),
		Currency:       stringField(payload, "currency"),
		Priority:       stringField(payload, "priority"),
		Justification:  stringField(payload, "justification"),
		Status:         stringField(payload, "status"),
	}

	if v, ok := payload["headcount"].(float64); ok {
		req.Headcount = int(v)
	} else if v, ok := payload["headcount"].(int); ok {
		req.Headcount = v
	}

	if v, ok := payload["budget_amount"].(float64); ok {
		req.BudgetAmount = v
	}

	return req
}

func stringField(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}

	return ""
}
