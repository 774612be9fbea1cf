package file

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence"
)

// ExecutionRepository stores executions under executions/ and steps under
// steps/, one JSON file per record.
type ExecutionRepository struct {
	persistence *Persistence
}

func (r *ExecutionRepository) CreateExecution(_ context.Context, execution *models.FlowExecution) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.persistence.writeJSON(r.persistence.dir("executions", execution.ID+".json"), execution)
}

func (r *ExecutionRepository) GetExecution(_ context.Context, id string) (*models.FlowExecution, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.loadExecution(id)
}

func (r *ExecutionRepository) UpdateExecution(_ context.Context, execution *models.FlowExecution) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.persistence.writeJSON(r.persistence.dir("executions", execution.ID+".json"), execution)
}

func (r *ExecutionRepository) ListExecutionsByFlow(_ context.Context, flowID string) ([]*models.FlowExecution, error) {
	return r.listExecutions(func(e *models.FlowExecution) bool {
		return e.FlowID == flowID
	})
}

func (r *ExecutionRepository) ListExecutionsBySubject(_ context.Context, subjectID string) ([]*models.FlowExecution, error) {
	return r.listExecutions(func(e *models.FlowExecution) bool {
		return e.SubjectID == subjectID
	})
}

// AppendStep writes the step and the updated execution under one lock
// acquisition. A step with the same (execution, step_order) already on disk
// fails the append, keeping retried advancements idempotent.
func (r *ExecutionRepository) AppendStep(_ context.Context, execution *models.FlowExecution, step *models.FlowExecutionStep) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	existing, err := r.loadSteps(func(s *models.FlowExecutionStep) bool {
		return s.ExecutionID == step.ExecutionID && s.StepOrder == step.StepOrder
	})
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		return persistence.NewExecutionError("AppendStep", execution.ID, persistence.ErrStepAlreadyExists)
	}

	if err := r.persistence.writeJSON(r.persistence.dir("steps", step.ID+".json"), step); err != nil {
		return err
	}

	return r.persistence.writeJSON(r.persistence.dir("executions", execution.ID+".json"), execution)
}

func (r *ExecutionRepository) GetStep(_ context.Context, stepID string) (*models.FlowExecutionStep, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.loadStep(stepID)
}

func (r *ExecutionRepository) UpdateStep(_ context.Context, step *models.FlowExecutionStep) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.persistence.writeJSON(r.persistence.dir("steps", step.ID+".json"), step)
}

// TransitionStep re-reads the stored step under the lock and only writes
// when its status still matches expected. First caller wins.
func (r *ExecutionRepository) TransitionStep(_ context.Context, step *models.FlowExecutionStep, expected models.StepStatus) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	stored, err := r.loadStep(step.ID)
	if err != nil {
		return err
	}

	if stored == nil {
		return persistence.NewExecutionError("TransitionStep", step.ExecutionID, persistence.ErrStepNotFound)
	}

	if stored.Status != expected {
		return persistence.NewExecutionError("TransitionStep", step.ExecutionID, persistence.ErrStepConflict)
	}

	return r.persistence.writeJSON(r.persistence.dir("steps", step.ID+".json"), step)
}

func (r *ExecutionRepository) ListSteps(_ context.Context, executionID string) ([]*models.FlowExecutionStep, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	steps, err := r.loadSteps(func(s *models.FlowExecutionStep) bool {
		return s.ExecutionID == executionID
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].StepOrder < steps[j].StepOrder
	})

	return steps, nil
}

func (r *ExecutionRepository) ListOpenApprovalSteps(_ context.Context) ([]*models.FlowExecutionStep, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	steps, err := r.loadSteps(func(s *models.FlowExecutionStep) bool {
		return s.NodeType == models.NodeTypeApproval && s.Status == models.StepStatusInProgress
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].CreatedAt.Before(steps[j].CreatedAt)
	})

	return steps, nil
}

func (r *ExecutionRepository) PurgeTerminalExecutions(_ context.Context, before time.Time) (int64, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	executions, err := r.loadExecutions()
	if err != nil {
		return 0, err
	}

	var purged int64

	for _, execution := range executions {
		if !execution.Status.IsTerminal() {
			continue
		}

		if execution.CompletedAt == nil || !execution.CompletedAt.Before(before) {
			continue
		}

		steps, err := r.loadSteps(func(s *models.FlowExecutionStep) bool {
			return s.ExecutionID == execution.ID
		})
		if err != nil {
			return purged, err
		}

		for _, step := range steps {
			if err := os.Remove(r.persistence.dir("steps", step.ID+".json")); err != nil && !os.IsNotExist(err) {
				return purged, err
			}
		}

		if err := os.Remove(r.persistence.dir("executions", execution.ID+".json")); err != nil && !os.IsNotExist(err) {
			return purged, err
		}

		purged++
	}

	return purged, nil
}

func (r *ExecutionRepository) listExecutions(match func(*models.FlowExecution) bool) ([]*models.FlowExecution, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	executions, err := r.loadExecutions()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.FlowExecution, 0)

	for _, execution := range executions {
		if match(execution) {
			matched = append(matched, execution)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (r *ExecutionRepository) loadExecution(id string) (*models.FlowExecution, error) {
	var execution models.FlowExecution

	found, err := r.persistence.readJSON(r.persistence.dir("executions", id+".json"), &execution)
	if err != nil || !found {
		return nil, err
	}

	return &execution, nil
}

func (r *ExecutionRepository) loadExecutions() ([]*models.FlowExecution, error) {
	paths, err := r.persistence.listJSON(r.persistence.dir("executions"))
	if err != nil {
		return nil, err
	}

	executions := make([]*models.FlowExecution, 0, len(paths))

	for _, path := range paths {
		var execution models.FlowExecution

		if _, err := r.persistence.readJSON(path, &execution); err != nil {
			return nil, err
		}

		executions = append(executions, &execution)
	}

	return executions, nil
}

func (r *ExecutionRepository) loadStep(id string) (*models.FlowExecutionStep, error) {
	var step models.FlowExecutionStep

	found, err := r.persistence.readJSON(r.persistence.dir("steps", id+".json"), &step)
	if err != nil || !found {
		return nil, err
	}

	return &step, nil
}

func (r *ExecutionRepository) loadSteps(match func(*models.FlowExecutionStep) bool) ([]*models.FlowExecutionStep, error) {
	paths, err := r.persistence.listJSON(r.persistence.dir("steps"))
	if err != nil {
		return nil, err
	}

	steps := make([]*models.FlowExecutionStep, 0)

	for _, path := range paths {
		var step models.FlowExecutionStep

		if _, err := r.persistence.readJSON(path, &step); err != nil {
			return nil, err
		}

		if match(&step) {
			steps = append(steps, &step)
		}
	}

	return steps, nil
}
