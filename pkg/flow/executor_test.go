package flow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence/file"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (n *recordingNotifier) Send(_ context.Context, recipients, subject, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fail {
		return errors.New("smtp unreachable")
	}

	n.sent = append(n.sent, recipients+"|"+subject+"|"+message)

	return nil
}

type stubAuthz map[string]bool

func (a stubAuthz) Check(_ context.Context, principal, _ string) (bool, error) {
	return a[principal], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// approvalFlow builds the canonical test graph:
//
//	start → condition →(true) approval → notification → end
//	                   ↘(false) end
func approvalFlow() *models.Flow {
	return &models.Flow{
		ID:      "flow-exec",
		Name:    "MPR Approval",
		Version: 1,
		Status:  models.FlowStatusActive,
		Nodes: []*models.FlowNode{
			{NodeID: "start-1", Type: models.NodeTypeStart},
			{
				NodeID: "cond-1",
				Type:   models.NodeTypeCondition,
				Properties: models.NodeProperties{
					Conditions: []*models.FlowCondition{
						{Field: "budget_amount", Operator: models.OperatorGreaterThan, Value: "50000", GroupID: 1},
					},
				},
			},
			{
				NodeID: "appr-1",
				Type:   models.NodeTypeApproval,
				Properties: models.NodeProperties{
					ApproverType: "department_head",
					TimeoutDays:  intPtr(3),
				},
			},
			{
				NodeID: "notif-1",
				Type:   models.NodeTypeNotification,
				Name:   "Requisition approved",
				Properties: models.NodeProperties{
					Recipients: "recruiting@example.com",
					Message:    "Requisition was approved",
				},
			},
			{NodeID: "end-1", Type: models.NodeTypeEnd},
		},
		Connections: []*models.FlowConnection{
			{ID: "c1", SourceNodeID: "start-1", TargetNodeID: "cond-1", Type: models.ConnectionTypeOutput},
			{ID: "c2", SourceNodeID: "cond-1", TargetNodeID: "appr-1", Type: models.ConnectionTypeTrue},
			{ID: "c3", SourceNodeID: "cond-1", TargetNodeID: "end-1", Type: models.ConnectionTypeFalse},
			{ID: "c4", SourceNodeID: "appr-1", TargetNodeID: "notif-1", Type: models.ConnectionTypeOutput},
			{ID: "c5", SourceNodeID: "notif-1", TargetNodeID: "end-1", Type: models.ConnectionTypeOutput},
		},
	}
}

func approvedRequisition() *models.Requisition {
	return &models.Requisition{
		ID:            "req-1",
		PositionTitle: "Backend Engineer",
		Department:    "Engineering",
		Headcount:     1,
		BudgetAmount:  80000,
		Priority:      "urgent",
	}
}

type executorFixture struct {
	executor    *Executor
	persistence *file.Persistence
	notifier    *recordingNotifier
	resolver    StaticResolver
	authz       stubAuthz
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	notifier := &recordingNotifier{}
	resolver := StaticResolver{
		"department_head": &models.UserRef{ID: "user-head", DisplayName: "Head of Dept"},
	}
	authz := stubAuthz{}

	executor := NewExecutor(
		p.FlowRepository(), p.ExecutionRepository(),
		authz, resolver, notifier, nil, testLogger(),
	)

	return &executorFixture{
		executor:    executor,
		persistence: p,
		notifier:    notifier,
		resolver:    resolver,
		authz:       authz,
	}
}

func (f *executorFixture) saveFlow(t *testing.T, definition *models.Flow) {
	t.Helper()
	require.NoError(t, f.persistence.FlowRepository().Save(context.Background(), definition))
}

func TestStartExecution_RejectsInactiveFlow(t *testing.T) {
	fixture := newExecutorFixture(t)
	definition := approvalFlow()
	definition.Status = models.FlowStatusDraft

	_, err := fixture.executor.StartExecution(context.Background(), definition, approvedRequisition())
	assert.ErrorIs(t, err, ErrFlowNotActive)
}

func TestStartExecution_RejectsFlowWithoutStartNode(t *testing.T) {
	fixture := newExecutorFixture(t)
	definition := approvalFlow()
	definition.Nodes = definition.Nodes[1:]

	_, err := fixture.executor.StartExecution(context.Background(), definition, approvedRequisition())
	assert.ErrorIs(t, err, ErrNoStartNode)
}

func TestStartExecution_SuspendsAtApproval(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	definition := approvalFlow()
	fixture.saveFlow(t, definition)

	execution, err := fixture.executor.StartExecution(ctx, definition, approvedRequisition())
	require.NoError(t, err)

	stored, err := fixture.persistence.ExecutionRepository().GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusInProgress, stored.Status)
	require.NotNil(t, stored.CurrentNodeID)
	assert.Equal(t, "appr-1", *stored.CurrentNodeID)

	steps, err := fixture.persistence.ExecutionRepository().ListSteps(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3) // start, condition, approval

	// step_order values form a contiguous 1-based sequence.
	for i, step := range steps {
		assert.Equal(t, i+1, step.StepOrder)
	}

	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
	assert.Equal(t, models.StepStatusCompleted, steps[1].Status)
	assert.Equal(t, map[string]any{"evaluated": true}, steps[1].OutputData)

	approval := steps[2]
	assert.Equal(t, models.StepStatusInProgress, approval.Status)
	require.NotNil(t, approval.AssignedTo)
	assert.Equal(t, "user-head", *approval.AssignedTo)
}

func TestStartExecution_FalseBranchCompletesWithoutApproval(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	definition := approvalFlow()
	fixture.saveFlow(t, definition)

	subject := approvedRequisition()
	subject.BudgetAmount = 10000 // below the condition threshold

	execution, err := fixture.executor.StartExecution(ctx, definition, subject)
	require.NoError(t, err)

	stored, err := fixture.persistence.ExecutionRepository().GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	steps, err := fixture.persistence.ExecutionRepository().ListSteps(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3) // start, condition, end
	assert.Equal(t, "end-1", steps[2].NodeID)
	assert.Equal(t, map[string]any{"flow_completed": true}, steps[2].OutputData)
	assert.Empty(t, fixture.notifier.sent)
}

func TestApproveStep_CompletesFlowAndNotifies(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	definition := approvalFlow()
	fixture.saveFlow(t, definition)

	execution, err := fixture.executor.StartExecution(ctx, definition, approvedRequisition())
	require.NoError(t, err)

	approval := suspendedStep(t, fixture, execution.ID)

	step, err := fixture.executor.ApproveStep(ctx, approval.ID, "user-head", true, "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusCompleted, step.Status)
	require.NotNil(t, step.ApprovedBy)
	assert.Equal(t, "user-head", *step.ApprovedBy)
	assert.Equal(t, "looks good", step.OutputData["comments"])

	stored, err := fixture.persistence.ExecutionRepository().GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)

	steps, err := fixture.persistence.ExecutionRepository().ListSteps(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 5) // start, condition, approval, notification, end

	for i, s := range steps {
		assert.Equal(t, i+1, s.StepOrder)
	}

	require.Len(t, fixture.notifier.sent, 1)
	assert.Contains(t, fixture.notifier.sent[0], "recruiting@example.com")
	assert.Contains(t, fixture.notifier.sent[0], "Requisition was approved")
}

func TestApproveStep_RejectFailsExecutionWithoutAdvancing(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	definition := approvalFlow()
	fixture.saveFlow(t, definition)

	execution, err := fixture.executor.StartExecution(ctx, definition, approvedRequisition())
	require.NoError(t, err)

	approval := suspendedStep(t, fixture, execution.ID)

	step, err := fixture.executor.ApproveStep(ctx, approval.ID, "user-head", false, "budget frozen")
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Equal(t, "budget frozen", step.ErrorMessage)

	stored, err := fixture.persistence.ExecutionRepository().GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)

	// No further steps were created after the rejection.
	steps, err := fixture.persistence.ExecutionRepository().ListSteps(ctx, execution.ID)
	require.NoError(t, err)
	assert.Len(t, steps, 3)
	assert.Empty(t, fixture.notifier.sent)
}

func TestApproveStep_UnauthorizedActor(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	definition := approvalFlow()
	fixture.saveFlow(t, definition)

	execution, err := fixture.executor.StartExecution(ctx, definition, approvedRequisition())
	require.NoError(t, err)

	approval := suspendedStep(t, fixture, execution.ID)

	_, err = fixture.executor.ApproveStep(ctx, approval.ID, "user-other", true, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Granting approve-on-behalf lets a different actor complete the step.
	fixture.authz["user-admin"] = true

	step, err := fixture.executor.ApproveStep(ctx, approval.ID, "user-admin", true, "on behalf")
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusCompleted, step.Status)
}

func TestApproveStep_SecondCallObservesNotPending(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	definition := approvalFlow()
	fixture.saveFlow(t, definition)

	execution, err := fixture.executor.StartExecution(ctx, definition, approvedRequisition())
	require.NoError(t, err)

	approval := suspendedStep(t, fixture, execution.ID)

	_, err = fixture.executor.ApproveStep(ctx, approval.ID, "user-head", true, "")
	require.NoError(t, err)

	_, err = fixture.executor.ApproveStep(ctx, approval.ID, "user-head", true, "")
	assert.ErrorIs(t, err, ErrStepNotPending)
}

// Two concurrent approvals of the same step: exactly one wins the guarded
// transition, the other observes ErrStepNotPending.
func TestApproveStep_ConcurrentCallsExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	definition := approvalFlow()
	fixture.saveFlow(t, definition)

	execution, err := fixture.executor.StartExecution(ctx, definition, approvedRequisition())
	require.NoError(t, err)

	approval := suspendedStep(t, fixture, execution.ID)

	results := make(chan error, 2)

	var wg sync.WaitGroup

	for range 2 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := fixture.executor.ApproveStep(ctx, approval.ID, "user-head", true, "")
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	succeeded := 0
	notPending := 0

	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrStepNotPending):
			notPending++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, notPending)
}

func TestAdvance_UnresolvableApproverStallsStep(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	delete(fixture.resolver, "department_head")

	definition := approvalFlow()
	fixture.saveFlow(t, definition)

	execution, err := fixture.executor.StartExecution(ctx, definition, approvedRequisition())
	require.NoError(t, err)

	stored, err := fixture.persistence.ExecutionRepository().GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	// The execution stalls in progress rather than failing outright.
	assert.Equal(t, models.ExecutionStatusInProgress, stored.Status)

	steps, err := fixture.persistence.ExecutionRepository().ListSteps(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	failed := steps[2]
	assert.Equal(t, models.StepStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "department_head")
	assert.Nil(t, failed.AssignedTo)
}

func TestAdvance_NotificationFailureDoesNotStall(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	fixture.notifier.fail = true

	definition := approvalFlow()
	fixture.saveFlow(t, definition)

	execution, err := fixture.executor.StartExecution(ctx, definition, approvedRequisition())
	require.NoError(t, err)

	approval := suspendedStep(t, fixture, execution.ID)

	_, err = fixture.executor.ApproveStep(ctx, approval.ID, "user-head", true, "")
	require.NoError(t, err)

	stored, err := fixture.persistence.ExecutionRepository().GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
}

func TestAdvance_NodeWithoutOutgoingCompletesSilently(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	// A start node with no outgoing edges at all.
	definition := &models.Flow{
		ID:     "flow-dangling",
		Name:   "Dangling",
		Status: models.FlowStatusActive,
		Nodes: []*models.FlowNode{
			{NodeID: "start-1", Type: models.NodeTypeStart},
		},
	}
	fixture.saveFlow(t, definition)

	execution, err := fixture.executor.StartExecution(ctx, definition, approvedRequisition())
	require.NoError(t, err)

	stored, err := fixture.persistence.ExecutionRepository().GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
}

func suspendedStep(t *testing.T, fixture *executorFixture, executionID string) *models.FlowExecutionStep {
	t.Helper()

	steps, err := fixture.persistence.ExecutionRepository().ListSteps(context.Background(), executionID)
	require.NoError(t, err)

	for _, step := range steps {
		if step.Status == models.StepStatusInProgress {
			return step
		}
	}

	t.Fatal("no suspended step found")

	return nil
}
