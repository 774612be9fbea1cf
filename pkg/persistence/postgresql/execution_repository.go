package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence"
)

const uniqueViolationCode = "23505"

// ExecutionRepository handles execution and step database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , flow_id
  , subject_id
  , current_node_id
  , status
  , context
  , started_by
  , created_at
  , completed_at
`

// CreateExecution inserts a new execution row.
func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.FlowExecution) error {
	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	query := `
		INSERT INTO flow_executions (id, flow_id, subject_id, current_node_id, status, context, started_by, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.FlowID,
		execution.SubjectID,
		execution.CurrentNodeID,
		execution.Status,
		contextJSON,
		execution.StartedBy,
		execution.CreatedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// GetExecution returns the execution with the given ID, or nil.
func (r *ExecutionRepository) GetExecution(ctx context.Context, id string) (*models.FlowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM flow_executions WHERE id = $1`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// UpdateExecution writes the mutable execution fields.
func (r *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.FlowExecution) error {
	query := `
		UPDATE flow_executions
		SET current_node_id = $1, status = $2, completed_at = $3
		WHERE id = $4
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.CurrentNodeID, execution.Status, execution.CompletedAt, execution.ID)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	return nil
}

// ListExecutionsByFlow returns executions of the given flow, oldest first.
func (r *ExecutionRepository) ListExecutionsByFlow(ctx context.Context, flowID string) ([]*models.FlowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM flow_executions WHERE flow_id = $1 ORDER BY created_at`

	return r.listExecutions(ctx, query, flowID)
}

// ListExecutionsBySubject returns executions routed for the given subject,
// oldest first.
func (r *ExecutionRepository) ListExecutionsBySubject(ctx context.Context, subjectID string) ([]*models.FlowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM flow_executions WHERE subject_id = $1 ORDER BY created_at`

	return r.listExecutions(ctx, query, subjectID)
}

// AppendStep inserts the step and updates the execution in one transaction.
// The unique (execution_id, step_order) index rejects a duplicate append so
// a retried advancement cannot create the same step twice.
func (r *ExecutionRepository) AppendStep(ctx context.Context, execution *models.FlowExecution, step *models.FlowExecutionStep) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inputJSON, outputJSON, err := marshalStepData(step)
	if err != nil {
		return err
	}

	stepQuery := `
		INSERT INTO flow_execution_steps (id, execution_id, node_id, node_type, step_order, status,
input_data, output_data, assigned_to, approved_by, approved_at, error_message, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = tx.ExecContext(ctx, stepQuery,
		step.ID,
		step.ExecutionID,
		step.NodeID,
		step.NodeType,
		step.StepOrder,
		step.Status,
		inputJSON,
		outputJSON,
		step.AssignedTo,
		step.ApprovedBy,
		step.ApprovedAt,
		step.ErrorMessage,
		step.CreatedAt,
		step.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
			err = persistence.NewExecutionError("AppendStep", execution.ID, persistence.ErrStepAlreadyExists)

			return err
		}

		return fmt.Errorf("failed to insert step: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE flow_executions SET current_node_id = $1, status = $2 WHERE id = $3
	`, execution.CurrentNodeID, execution.Status, execution.ID)
	if err != nil {
		return fmt.Errorf("failed to update execution with step: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step append: %w", err)
	}

	return nil
}

const stepColumns = `
	id
  , execution_id
  , node_id
  , node_type
  , step_order
  , status
  , input_data
  , output_data
  , assigned_to
  , approved_by
  , approved_at
  , error_message
  , created_at
  , completed_at
`

// GetStep returns the step with the given ID, or nil.
func (r *ExecutionRepository) GetStep(ctx context.Context, stepID string) (*models.FlowExecutionStep, error) {
	query := `SELECT ` + stepColumns + ` FROM flow_execution_steps WHERE id = $1`

	step, err := r.scanStep(r.db.QueryRowContext(ctx, query, stepID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	return step, nil
}

// UpdateStep writes the mutable step fields unconditionally.
func (r *ExecutionRepository) UpdateStep(ctx context.Context, step *models.FlowExecutionStep) error {
	return r.writeStep(ctx, step, "")
}

// TransitionStep writes the step only when its stored status still matches
// expected, so exactly one of two concurrent transitions wins.
func (r *ExecutionRepository) TransitionStep(ctx context.Context, step *models.FlowExecutionStep, expected models.StepStatus) error {
	return r.writeStep(ctx, step, expected)
}

func (r *ExecutionRepository) writeStep(ctx context.Context, step *models.FlowExecutionStep, expected models.StepStatus) error {
	inputJSON, outputJSON, err := marshalStepData(step)
	if err != nil {
		return err
	}

	query := `
		UPDATE flow_execution_steps
		SET status = $1, input_data = $2, output_data = $3, assigned_to = $4,
			approved_by = $5, approved_at = $6, error_message = $7, completed_at = $8
		WHERE id = $9
	`
	args := []any{
		step.Status, inputJSON, outputJSON, step.AssignedTo,
		step.ApprovedBy, step.ApprovedAt, step.ErrorMessage, step.CompletedAt,
		step.ID,
	}

	if expected != "" {
		query += ` AND status = $10`
		args = append(args, expected)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		stored, err := r.GetStep(ctx, step.ID)
		if err != nil {
			return err
		}

		if stored == nil {
			return persistence.NewExecutionError("UpdateStep", step.ExecutionID, persistence.ErrStepNotFound)
		}

		return persistence.NewExecutionError("TransitionStep", step.ExecutionID, persistence.ErrStepConflict)
	}

	return nil
}

// ListSteps returns the steps of an execution ordered by step_order.
func (r *ExecutionRepository) ListSteps(ctx context.Context, executionID string) ([]*models.FlowExecutionStep, error) {
	query := `SELECT ` + stepColumns + ` FROM flow_execution_steps WHERE execution_id = $1 ORDER BY step_order`

	return r.listSteps(ctx, query, executionID)
}

// ListOpenApprovalSteps returns all approval steps currently awaiting a
// decision, oldest first. The reminder scanner feeds on this.
func (r *ExecutionRepository) ListOpenApprovalSteps(ctx context.Context) ([]*models.FlowExecutionStep, error) {
	query := `SELECT ` + stepColumns + ` FROM flow_execution_steps
		WHERE node_type = 'approval' AND status = 'in_progress'
		ORDER BY created_at`

	return r.listSteps(ctx, query)
}

// PurgeTerminalExecutions deletes terminal executions completed before the
// cutoff. Steps go with them via ON DELETE CASCADE.
func (r *ExecutionRepository) PurgeTerminalExecutions(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM flow_executions
		WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge executions: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return purged, nil
}

func (r *ExecutionRepository) listExecutions(ctx context.Context, query string, args ...any) ([]*models.FlowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.FlowExecution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) listSteps(ctx context.Context, query string, args ...any) ([]*models.FlowExecutionStep, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.FlowExecutionStep, 0)

	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func (r *ExecutionRepository) scanExecution(row rowScanner) (*models.FlowExecution, error) {
	var (
		execution     models.FlowExecution
		currentNodeID sql.NullString
		contextJSON   []byte
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.FlowID,
		&execution.SubjectID,
		&currentNodeID,
		&execution.Status,
		&contextJSON,
		&execution.StartedBy,
		&execution.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if currentNodeID.Valid {
		execution.CurrentNodeID = &currentNodeID.String
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &execution.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
		}
	}

	return &execution, nil
}

func (r *ExecutionRepository) scanStep(row rowScanner) (*models.FlowExecutionStep, error) {
	var (
		step        models.FlowExecutionStep
		inputJSON   []byte
		outputJSON  []byte
		assignedTo  sql.NullString
		approvedBy  sql.NullString
		approvedAt  sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&step.ID,
		&step.ExecutionID,
		&step.NodeID,
		&step.NodeType,
		&step.StepOrder,
		&step.Status,
		&inputJSON,
		&outputJSON,
		&assignedTo,
		&approvedBy,
		&approvedAt,
		&step.ErrorMessage,
		&step.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignedTo.Valid {
		step.AssignedTo = &assignedTo.String
	}

	if approvedBy.Valid {
		step.ApprovedBy = &approvedBy.String
	}

	if approvedAt.Valid {
		step.ApprovedAt = &approvedAt.Time
	}

	if completedAt.Valid {
		step.CompletedAt = &completedAt.Time
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &step.InputData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step input data: %w", err)
		}
	}

	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &step.OutputData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step output data: %w", err)
		}
	}

	return &step, nil
}

func marshalStepData(step *models.FlowExecutionStep) ([]byte, []byte, error) {
	inputData := step.InputData
	if inputData == nil {
		inputData = map[string]any{}
	}

	outputData := step.OutputData
	if outputData == nil {
		outputData = map[string]any{}
	}

	inputJSON, err := json.Marshal(inputData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal step input data: %w", err)
	}

	outputJSON, err := json.Marshal(outputData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal step output data: %w", err)
	}

	return inputJSON, outputJSON, nil
}
