package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func sampleFlow(id string, version int, status models.FlowStatus) *models.Flow {
	return &models.Flow{
		ID:      id,
		Name:    "MPR Approval",
		Version: version,
		Status:  status,
		Nodes: []*models.FlowNode{
			{NodeID: "start-1", Type: models.NodeTypeStart},
			{NodeID: "end-1", Type: models.NodeTypeEnd},
		},
		Connections: []*models.FlowConnection{
			{ID: "c1", SourceNodeID: "start-1", TargetNodeID: "end-1", Type: models.ConnectionTypeOutput},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func sampleExecution(id, flowID string) *models.FlowExecution {
	return &models.FlowExecution{
		ID:        id,
		FlowID:    flowID,
		SubjectID: "req-1",
		Status:    models.ExecutionStatusInProgress,
		Context:   map[string]any{"budget_amount": 80000.0},
		StartedBy: "user-1",
		CreatedAt: time.Now().UTC(),
	}
}

func sampleStep(id, executionID string, order int, status models.StepStatus) *models.FlowExecutionStep {
	return &models.FlowExecutionStep{
		ID:          id,
		ExecutionID: executionID,
		NodeID:      "appr-1",
		NodeType:    models.NodeTypeApproval,
		StepOrder:   order,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestFlowRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).FlowRepository()

	f := sampleFlow("flow-1", 1, models.FlowStatusDraft)
	require.NoError(t, repo.Save(ctx, f))

	loaded, err := repo.GetByID(ctx, "flow-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, f.Name, loaded.Name)
	assert.Len(t, loaded.Nodes, 2)

	missing, err := repo.GetByID(ctx, "flow-none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFlowRepository_MaxVersion(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).FlowRepository()

	max, err := repo.MaxVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, max)

	require.NoError(t, repo.Save(ctx, sampleFlow("flow-1", 1, models.FlowStatusArchived)))
	require.NoError(t, repo.Save(ctx, sampleFlow("flow-2", 3, models.FlowStatusDraft)))

	max, err = repo.MaxVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, max)
}

func TestFlowRepository_ActivateArchivesPrevious(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).FlowRepository()

	require.NoError(t, repo.Save(ctx, sampleFlow("flow-1", 1, models.FlowStatusActive)))
	require.NoError(t, repo.Save(ctx, sampleFlow("flow-2", 2, models.FlowStatusDraft)))

	at := time.Now().UTC()

	previous, err := repo.Activate(ctx, "flow-2", "user-admin", at)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, "flow-1", previous.ID)

	activated, err := repo.GetByID(ctx, "flow-2")
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusActive, activated.Status)
	assert.Equal(t, "user-admin", activated.ActivatedBy)
	require.NotNil(t, activated.ActivatedAt)

	archived, err := repo.GetByID(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusArchived, archived.Status)

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "flow-2", active.ID)
}

func TestFlowRepository_ActivateMissingFlow(t *testing.T) {
	repo := newTestPersistence(t).FlowRepository()

	_, err := repo.Activate(context.Background(), "missing", "user-admin", time.Now())
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestFlowRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).FlowRepository()

	require.NoError(t, repo.Save(ctx, sampleFlow("flow-1", 1, models.FlowStatusDraft)))
	require.NoError(t, repo.Delete(ctx, "flow-1"))

	loaded, err := repo.GetByID(ctx, "flow-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	err = repo.Delete(ctx, "flow-1")
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestExecutionRepository_AppendStepIsAtomicAndIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).ExecutionRepository()

	execution := sampleExecution("exec-1", "flow-1")
	require.NoError(t, repo.CreateExecution(ctx, execution))

	step := sampleStep("step-1", "exec-1", 1, models.StepStatusInProgress)
	execution.CurrentNodeID = &step.NodeID
	require.NoError(t, repo.AppendStep(ctx, execution, step))

	// A retry of the same advancement must not duplicate the step.
	duplicate := sampleStep("step-other", "exec-1", 1, models.StepStatusPending)

	err := repo.AppendStep(ctx, execution, duplicate)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrStepAlreadyExists)

	steps, err := repo.ListSteps(ctx, "exec-1")
	require.NoError(t, err)
	assert.Len(t, steps, 1)

	stored, err := repo.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.NotNil(t, stored.CurrentNodeID)
	assert.Equal(t, "appr-1", *stored.CurrentNodeID)
}

func TestExecutionRepository_TransitionStepConflict(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).ExecutionRepository()

	execution := sampleExecution("exec-1", "flow-1")
	require.NoError(t, repo.CreateExecution(ctx, execution))

	step := sampleStep("step-1", "exec-1", 1, models.StepStatusInProgress)
	require.NoError(t, repo.AppendStep(ctx, execution, step))

	approved := *step
	approved.Status = models.StepStatusCompleted
	require.NoError(t, repo.TransitionStep(ctx, &approved, models.StepStatusInProgress))

	// The stored step is no longer in progress; a second transition loses.
	again := *step
	again.Status = models.StepStatusFailed

	err := repo.TransitionStep(ctx, &again, models.StepStatusInProgress)
	assert.True(t, persistence.IsStepConflict(err))

	stored, err := repo.GetStep(ctx, "step-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusCompleted, stored.Status)
}

func TestExecutionRepository_ListStepsOrdered(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).ExecutionRepository()

	execution := sampleExecution("exec-1", "flow-1")
	require.NoError(t, repo.CreateExecution(ctx, execution))

	for _, order := range []int{3, 1, 2} {
		step := sampleStep("step-"+string(rune('0'+order)), "exec-1", order, models.StepStatusCompleted)
		require.NoError(t, repo.AppendStep(ctx, execution, step))
	}

	steps, err := repo.ListSteps(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)

	for i, step := range steps {
		assert.Equal(t, i+1, step.StepOrder)
	}
}

func TestExecutionRepository_ListOpenApprovalSteps(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).ExecutionRepository()

	execution := sampleExecution("exec-1", "flow-1")
	require.NoError(t, repo.CreateExecution(ctx, execution))

	open := sampleStep("step-1", "exec-1", 1, models.StepStatusInProgress)
	require.NoError(t, repo.AppendStep(ctx, execution, open))

	closed := sampleStep("step-2", "exec-1", 2, models.StepStatusCompleted)
	require.NoError(t, repo.AppendStep(ctx, execution, closed))

	notApproval := sampleStep("step-3", "exec-1", 3, models.StepStatusInProgress)
	notApproval.NodeType = models.NodeTypeNotification
	require.NoError(t, repo.AppendStep(ctx, execution, notApproval))

	steps, err := repo.ListOpenApprovalSteps(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "step-1", steps[0].ID)
}

func TestExecutionRepository_ListByFlowAndSubject(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).ExecutionRepository()

	first := sampleExecution("exec-1", "flow-1")
	require.NoError(t, repo.CreateExecution(ctx, first))

	second := sampleExecution("exec-2", "flow-2")
	second.SubjectID = "req-2"
	require.NoError(t, repo.CreateExecution(ctx, second))

	byFlow, err := repo.ListExecutionsByFlow(ctx, "flow-1")
	require.NoError(t, err)
	require.Len(t, byFlow, 1)
	assert.Equal(t, "exec-1", byFlow[0].ID)

	bySubject, err := repo.ListExecutionsBySubject(ctx, "req-2")
	require.NoError(t, err)
	require.Len(t, bySubject, 1)
	assert.Equal(t, "exec-2", bySubject[0].ID)
}

func TestExecutionRepository_PurgeTerminalExecutions(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).ExecutionRepository()

	old := time.Now().UTC().Add(-48 * time.Hour)

	done := sampleExecution("exec-done", "flow-1")
	done.Status = models.ExecutionStatusCompleted
	done.CompletedAt = &old
	require.NoError(t, repo.CreateExecution(ctx, done))
	require.NoError(t, repo.AppendStep(ctx, done, sampleStep("step-done", "exec-done", 1, models.StepStatusCompleted)))

	running := sampleExecution("exec-running", "flow-1")
	require.NoError(t, repo.CreateExecution(ctx, running))

	purged, err := repo.PurgeTerminalExecutions(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	gone, err := repo.GetExecution(ctx, "exec-done")
	require.NoError(t, err)
	assert.Nil(t, gone)

	steps, err := repo.ListSteps(ctx, "exec-done")
	require.NoError(t, err)
	assert.Empty(t, steps)

	kept, err := repo.GetExecution(ctx, "exec-running")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestAuditRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).AuditRepository()

	require.NoError(t, repo.Append(ctx, &models.AuditEntry{
		FlowID: "flow-1",
		Action: models.AuditActionFlowActivated,
		Actor:  "user-admin",
	}))
	require.NoError(t, repo.Append(ctx, &models.AuditEntry{
		FlowID: "flow-2",
		Action: models.AuditActionFlowCreated,
		Actor:  "user-admin",
	}))

	entries, err := repo.ListByFlow(ctx, "flow-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionFlowActivated, entries[0].Action)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := newTestPersistence(t)

	assert.NoError(t, p.HealthCheck(context.Background()))
	assert.NoError(t, p.Close(context.Background()))
}
