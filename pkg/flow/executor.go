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

// Executor is the execution state machine. It creates an execution for a
// subject record, walks the graph node by node, suspends at approval nodes
// and resumes when the assignee (or someone approving on their behalf)
// calls ApproveStep.
//
// Steps within one execution are strictly ordered; advancement never begins
// until the prior step reached a terminal per-step state, so no two steps of
// the same execution are ever concurrently in progress.
type Executor struct {
	flows      persistence.FlowRepository
	executions persistence.ExecutionRepository
	authz      AuthorizationPort
	resolver   ApproverResolver
	notifier   NotificationPort
	audit      AuditSink
	logger     *slog.Logger
}

// NewExecutor creates a flow executor with its collaborator ports.
func NewExecutor(
	flows persistence.FlowRepository,
	executions persistence.ExecutionRepository,
	authz AuthorizationPort,
	resolver ApproverResolver,
	notifier NotificationPort,
	audit AuditSink,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		flows:      flows,
		executions: executions,
		authz:      authz,
		resolver:   resolver,
		notifier:   notifier,
		audit:      audit,
		logger:     logger.With("module", "flow_executor"),
	}
}

// StartExecution creates an execution of the given flow for a subject record
// and advances it until it completes or suspends at an approval node.
//
// The subject snapshot taken here is the read-only evaluation environment
// for every condition in this execution; later edits to the subject record
// do not affect an execution already in flight.
func (e *Executor) StartExecution(ctx context.Context, f *models.Flow, subject models.Subject) (*models.FlowExecution, error) {
	if !f.IsActive() {
		return nil, ErrFlowNotActive
	}

	startNode := f.StartNode()
	if startNode == nil {
		return nil, ErrNoStartNode
	}

	executionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution ID: %w", err)
	}

	now := time.Now().UTC()
	execution := &models.FlowExecution{
		ID:        executionID.String(),
		FlowID:    f.ID,
		SubjectID: subject.SubjectID(),
		Status:    models.ExecutionStatusPending,
		Context:   subject.ExecutionSnapshot(),
		CreatedAt: now,
	}

	if err := e.executions.CreateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	logger := e.logger.With("execution_id", execution.ID, "flow_id", f.ID, "subject_id", execution.SubjectID)
	logger.InfoContext(ctx, "Starting flow execution")

	// The start node is visited and completed in one stroke.
	startStep, err := e.appendStep(ctx, execution, startNode, 1, nil)
	if err != nil {
		return nil, err
	}

	startStep.Status = models.StepStatusCompleted
	startStep.CompletedAt = &now
	startStep.OutputData = map[string]any{"started": true}

	if err := e.executions.UpdateStep(ctx, startStep); err != nil {
		return nil, persistence.NewExecutionError("StartExecution", execution.ID, err)
	}

	e.recordAudit(ctx, &models.AuditEntry{
		FlowID:      f.ID,
		ExecutionID: execution.ID,
		Action:      models.AuditActionExecutionStarted,
		Details:     map[string]any{"subject_id": execution.SubjectID},
	})

	if err := e.advance(ctx, f, execution, startStep); err != nil {
		return nil, err
	}

	return execution, nil
}

// ApproveStep resolves a suspended approval step. On approval the step is
// completed and the execution advances; on rejection the step fails and the
// entire execution terminates as failed with no further advancement.
//
// The transition out of in_progress is a guarded check-and-set: of two
// concurrent calls on the same step exactly one succeeds, the other observes
// ErrStepNotPending.
func (e *Executor) ApproveStep(ctx context.Context, stepID, actor string, approved bool, comments string) (*models.FlowExecutionStep, error) {
	step, err := e.executions.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}

	if step == nil {
		return nil, persistence.NewExecutionError("ApproveStep", "", persistence.ErrStepNotFound)
	}

	if step.Status != models.StepStatusInProgress {
		return nil, ErrStepNotPending
	}

	if err := e.authorizeActor(ctx, step, actor); err != nil {
		return nil, err
	}

	execution, err := e.executions.GetExecution(ctx, step.ExecutionID)
	if err != nil {
		return nil, err
	}

	if execution == nil {
		return nil, persistence.NewExecutionError("ApproveStep", step.ExecutionID, persistence.ErrExecutionNotFound)
	}

	now := time.Now().UTC()

	if approved {
		step.Status = models.StepStatusCompleted
		step.ApprovedBy = &actor
		step.ApprovedAt = &now
		step.CompletedAt = &now
		step.OutputData = map[string]any{
			"approved":    true,
			"approved_by": actor,
			"comments":    comments,
		}
	} else {
		reason := comments
		if reason == "" {
			reason = "rejected"
		}

		step.Status = models.StepStatusFailed
		step.ApprovedBy = &actor
		step.ApprovedAt = &now
		step.CompletedAt = &now
		step.ErrorMessage = reason
		step.OutputData = map[string]any{
			"approved":    false,
			"approved_by": actor,
			"comments":    comments,
		}
	}

	err = e.executions.TransitionStep(ctx, step, models.StepStatusInProgress)
	if err != nil {
		if persistence.IsStepConflict(err) {
			// A concurrent call won the transition.
			return nil, ErrStepNotPending
		}

		return nil, err
	}

	logger := e.logger.With("execution_id", execution.ID, "step_id", step.ID, "actor", actor)

	if !approved {
		logger.InfoContext(ctx, "Step rejected, failing execution")

		e.failExecution(ctx, execution, "rejected at step "+step.NodeID)
		e.recordAudit(ctx, &models.AuditEntry{
			FlowID:      execution.FlowID,
			ExecutionID: execution.ID,
			Action:      models.AuditActionStepRejected,
			Actor:       actor,
			Details:     map[string]any{"node_id": step.NodeID, "comments": comments},
		})

		return step, nil
	}

	logger.InfoContext(ctx, "Step approved, advancing execution")

	e.recordAudit(ctx, &models.AuditEntry{
		FlowID:      execution.FlowID,
		ExecutionID: execution.ID,
		Action:      models.AuditActionStepApproved,
		Actor:       actor,
		Details:     map[string]any{"node_id": step.NodeID, "comments": comments},
	})

	f, err := e.flows.GetByID(ctx, execution.FlowID)
	if err != nil {
		return nil, err
	}

	if f == nil {
		return nil, persistence.NewFlowError("ApproveStep", execution.FlowID, persistence.ErrFlowNotFound)
	}

	if err := e.advance(ctx, f, execution, step); err != nil {
		return nil, err
	}

	return step, nil
}

// advance walks the graph from the node of the last terminal step until the
// execution completes or suspends. Each iteration resolves the next edge,
// appends the next step atomically with the execution update, then
// dispatches on the node type.
func (e *Executor) advance(ctx context.Context, f *models.Flow, execution *models.FlowExecution, lastStep *models.FlowExecutionStep) error {
	current := lastStep

	for {
		outgoing := f.OutgoingConnections(current.NodeID)
		if len(outgoing) == 0 {
			// No next node: the execution is done. Not an error; flows may
			// legitimately end on any node without outgoing edges.
			return e.completeExecution(ctx, execution)
		}

		next := outgoing[0]

		currentNode := f.NodeByID(current.NodeID)
		if currentNode != nil && currentNode.Type == models.NodeTypeCondition {
			result := EvaluateNode(currentNode, execution.Context)
			next = NextConnection(f, currentNode, result)
		}

		nextNode := f.NodeByID(next.TargetNodeID)
		if nextNode == nil {
			// Validation forbids dangling edges; reaching one means the
			// stored graph is corrupt.
			e.failExecution(ctx, execution, "connection targets unknown node "+next.TargetNodeID)

			return persistence.NewExecutionError("advance", execution.ID,
				fmt.Errorf("connection %s targets unknown node %s", next.ID, next.TargetNodeID))
		}

		step, err := e.appendStep(ctx, execution, nextNode, current.StepOrder+1, current.OutputData)
		if err != nil {
			return err
		}

		done, err := e.dispatch(ctx, f, execution, nextNode, step)
		if err != nil {
			return err
		}

		if done {
			return nil
		}

		current = step
	}
}

// dispatch handles one freshly created step according to its node type.
// It returns true when the advancement loop should stop: the execution
// completed, suspended at an approval, or stalled on an unresolvable
// approver.
func (e *Executor) dispatch(ctx context.Context, f *models.Flow, execution *models.FlowExecution, node *models.FlowNode, step *models.FlowExecutionStep) (bool, error) {
	now := time.Now().UTC()

	switch node.Type {
	case models.NodeTypeStart:
		// Unreachable after the first step; completed defensively so a
		// malformed graph cannot wedge the loop.
		step.Status = models.StepStatusCompleted
		step.CompletedAt = &now

		return false, e.updateStep(ctx, execution, step)

	case models.NodeTypeCondition:
		step.Status = models.StepStatusCompleted
		step.CompletedAt = &now
		step.OutputData = map[string]any{"evaluated": true}

		return false, e.updateStep(ctx, execution, step)

	case models.NodeTypeNotification:
		e.sendNotification(ctx, node, execution)

		step.Status = models.StepStatusCompleted
		step.CompletedAt = &now
		step.OutputData = map[string]any{"notification_sent": true}

		return false, e.updateStep(ctx, execution, step)

	case models.NodeTypeApproval:
		return true, e.assignApproval(ctx, execution, node, step)

	case models.NodeTypeEnd:
		step.Status = models.StepStatusCompleted
		step.CompletedAt = &now
		step.OutputData = map[string]any{"flow_completed": true}

		if err := e.updateStep(ctx, execution, step); err != nil {
			return true, err
		}

		return true, e.completeExecution(ctx, execution)

	default:
		step.Status = models.StepStatusSkipped
		step.CompletedAt = &now

		e.logger.WarnContext(ctx, "Skipping node of unknown type",
			"execution_id", execution.ID, "node_id", node.NodeID, "node_type", node.Type)

		return false, e.updateStep(ctx, execution, step)
	}
}

// assignApproval resolves the assignee and suspends the execution. When no
// approver resolves, the step is failed and the execution deliberately stays
// in progress: surfacing the problem on the step lets an operator fix the
// assignment data and re-trigger, instead of failing the whole execution.
func (e *Executor) assignApproval(ctx context.Context, execution *models.FlowExecution, node *models.FlowNode, step *models.FlowExecutionStep) error {
	subject := &snapshotSubject{id: execution.SubjectID, context: execution.Context}

	assignee, err := e.resolver.Resolve(ctx, node.Properties.ApproverType, subject)
	if err != nil {
		e.logger.ErrorContext(ctx, "Approver resolution failed",
			"execution_id", execution.ID, "approver_type", node.Properties.ApproverType, "error", err)
	}

	if assignee == nil {
		now := time.Now().UTC()
		step.Status = models.StepStatusFailed
		step.CompletedAt = &now
		step.ErrorMessage = fmt.Sprintf("no approver could be resolved for type %q", node.Properties.ApproverType)

		return e.updateStep(ctx, execution, step)
	}

	step.Status = models.StepStatusInProgress
	step.AssignedTo = &assignee.ID

	e.logger.InfoContext(ctx, "Execution suspended at approval step",
		"execution_id", execution.ID, "node_id", node.NodeID, "assigned_to", assignee.ID)

	if err := e.updateStep(ctx, execution, step); err != nil {
		return err
	}

	e.recordAudit(ctx, &models.AuditEntry{
		FlowID:      execution.FlowID,
		ExecutionID: execution.ID,
		Action:      models.AuditActionStepAssigned,
		Details: map[string]any{
			"step_id":     step.ID,
			"node_id":     node.NodeID,
			"assigned_to": assignee.ID,
		},
	})

	return nil
}

// sendNotification dispatches the node's message. Delivery failures are
// logged and swallowed: a broken mailer must not stall an approval chain.
func (e *Executor) sendNotification(ctx context.Context, node *models.FlowNode, execution *models.FlowExecution) {
	subjectLine := node.Name
	if s, ok := node.Properties.Extra["subject"].(string); ok && s != "" {
		subjectLine = s
	}

	err := e.notifier.Send(ctx, node.Properties.Recipients, subjectLine, node.Properties.Message)
	if err != nil {
		e.logger.ErrorContext(ctx, "Notification dispatch failed",
			"execution_id", execution.ID, "node_id", node.NodeID, "error", err)
	}
}

// appendStep creates the next step atomically with the execution update. The
// (execution, step_order) uniqueness guard makes a retried advancement fail
// fast instead of duplicating the step.
func (e *Executor) appendStep(ctx context.Context, execution *models.FlowExecution, node *models.FlowNode, order int, inputData map[string]any) (*models.FlowExecutionStep, error) {
	stepID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate step ID: %w", err)
	}

	step := &models.FlowExecutionStep{
		ID:          stepID.String(),
		ExecutionID: execution.ID,
		NodeID:      node.NodeID,
		NodeType:    node.Type,
		StepOrder:   order,
		Status:      models.StepStatusPending,
		InputData:   inputData,
		CreatedAt:   time.Now().UTC(),
	}

	execution.CurrentNodeID = &node.NodeID
	if order > 1 {
		execution.Status = models.ExecutionStatusInProgress
	}

	if err := e.executions.AppendStep(ctx, execution, step); err != nil {
		return nil, persistence.NewExecutionError("appendStep", execution.ID, err)
	}

	return step, nil
}

func (e *Executor) updateStep(ctx context.Context, execution *models.FlowExecution, step *models.FlowExecutionStep) error {
	if err := e.executions.UpdateStep(ctx, step); err != nil {
		return persistence.NewExecutionError("updateStep", execution.ID, err)
	}

	return nil
}

func (e *Executor) completeExecution(ctx context.Context, execution *models.FlowExecution) error {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &now

	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		return persistence.NewExecutionError("completeExecution", execution.ID, err)
	}

	e.logger.InfoContext(ctx, "Execution completed", "execution_id", execution.ID)

	e.recordAudit(ctx, &models.AuditEntry{
		FlowID:      execution.FlowID,
		ExecutionID: execution.ID,
		Action:      models.AuditActionExecutionCompleted,
	})

	return nil
}

func (e *Executor) failExecution(ctx context.Context, execution *models.FlowExecution, reason string) {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.CompletedAt = &now

	if err := e.executions.UpdateExecution(ctx, execution); err != nil {
		e.logger.ErrorContext(ctx, "Failed to mark execution failed",
			"execution_id", execution.ID, "error", err)

		return
	}

	e.recordAudit(ctx, &models.AuditEntry{
		FlowID:      execution.FlowID,
		ExecutionID: execution.ID,
		Action:      models.AuditActionExecutionFailed,
		Details:     map[string]any{"reason": reason},
	})
}

// authorizeActor allows the assignee, or anyone granted approve-on-behalf.
func (e *Executor) authorizeActor(ctx context.Context, step *models.FlowExecutionStep, actor string) error {
	if step.AssignedTo != nil && *step.AssignedTo == actor {
		return nil
	}

	if e.authz == nil {
		return ErrUnauthorized
	}

	allowed, err := e.authz.Check(ctx, actor, PermissionApproveOnBehalf)
	if err != nil {
		return fmt.Errorf("authorization check failed: %w", err)
	}

	if !allowed {
		return ErrUnauthorized
	}

	return nil
}

func (e *Executor) recordAudit(ctx context.Context, entry *models.AuditEntry) {
	if e.audit == nil {
		return
	}

	if err := e.audit.Record(ctx, entry); err != nil {
		e.logger.WarnContext(ctx, "Failed to record audit entry",
			"execution_id", entry.ExecutionID, "action", entry.Action, "error", err)
	}
}

// snapshotSubject lets the resolver see the frozen execution context when
// the original subject record is no longer on hand, e.g. on resume after an
// approval that arrives days later.
type snapshotSubject struct {
	id      string
	context map[string]any
}

func (s *snapshotSubject) SubjectID() string {
	return s.id
}

func (s *snapshotSubject) ExecutionSnapshot() map[string]any {
	return s.context
}
