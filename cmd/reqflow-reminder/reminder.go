// Package main provides the reqflow reminder worker. It periodically scans
// open approval steps and nudges approvers whose steps have sat past the
// node's reminder threshold, flagging steps past their timeout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talentops/reqflow/pkg/flow"
	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence"
	"github.com/talentops/reqflow/pkg/template"
)

const day = 24 * time.Hour

// DefaultMessageTemplate is the reminder body rendered against the
// execution's subject snapshot.
const DefaultMessageTemplate = "The requisition {{ .subject.position_title }} " +
	"({{ .execution.subject_id }}) has been waiting on your approval for {{ .age_days }} day(s)."

// Reminder scans open approval steps against their node thresholds.
type Reminder struct {
	persistence     persistence.Persistence
	notifier        flow.NotificationPort
	logger          *slog.Logger
	messageTemplate string
	now             func() time.Time
}

func NewReminder(p persistence.Persistence, notifier flow.NotificationPort, logger *slog.Logger) *Reminder {
	return &Reminder{
		persistence:     p,
		notifier:        notifier,
		logger:          logger.With("module", "reminder"),
		messageTemplate: DefaultMessageTemplate,
		now:             time.Now,
	}
}

// ScanResult summarizes one scan pass.
type ScanResult struct {
	Scanned  int
	Reminded int
	TimedOut int
}

// Scan walks the open approval steps once. Notification failures are logged
// and do not stop the pass.
func (r *Reminder) Scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult

	steps, err := r.persistence.ExecutionRepository().ListOpenApprovalSteps(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list open approval steps: %w", err)
	}

	result.Scanned = len(steps)

	for _, step := range steps {
		node, execution, err := r.nodeForStep(ctx, step)
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping step with unresolvable node",
				"step_id", step.ID, "error", err)

			continue
		}

		age := r.now().Sub(step.CreatedAt)

		if timedOut(node.Properties.TimeoutDays, age) {
			result.TimedOut++

			r.logger.WarnContext(ctx, "Approval step exceeded its timeout",
				"step_id", step.ID,
				"execution_id", step.ExecutionID,
				"node_id", step.NodeID,
				"age_days", int(age/day))
		}

		if !due(node.Properties.ReminderDays, age) {
			continue
		}

		if err := r.remind(ctx, step, execution, age); err != nil {
			r.logger.WarnContext(ctx, "Failed to send reminder",
				"step_id", step.ID, "error", err)

			continue
		}

		result.Reminded++
	}

	return result, nil
}

func (r *Reminder) nodeForStep(ctx context.Context, step *models.FlowExecutionStep) (*models.FlowNode, *models.FlowExecution, error) {
	execution, err := r.persistence.ExecutionRepository().GetExecution(ctx, step.ExecutionID)
	if err != nil {
		return nil, nil, err
	}

	if execution == nil {
		return nil, nil, fmt.Errorf("execution %s not found", step.ExecutionID)
	}

	f, err := r.persistence.FlowRepository().GetByID(ctx, execution.FlowID)
	if err != nil {
		return nil, nil, err
	}

	if f == nil {
		return nil, nil, fmt.Errorf("flow %s not found", execution.FlowID)
	}

	node := f.NodeByID(step.NodeID)
	if node == nil {
		return nil, nil, fmt.Errorf("node %s not found in flow %s", step.NodeID, f.ID)
	}

	return node, execution, nil
}

func (r *Reminder) remind(ctx context.Context, step *models.FlowExecutionStep, execution *models.FlowExecution, age time.Duration) error {
	if step.AssignedTo == nil {
		return fmt.Errorf("step %s has no assignee", step.ID)
	}

	message, err := template.Render(r.messageTemplate, map[string]any{
		"subject": execution.Context,
		"execution": map[string]any{
			"id":         execution.ID,
			"subject_id": execution.SubjectID,
		},
		"age_days": int(age / day),
	})
	if err != nil {
		return fmt.Errorf("failed to render reminder message: %w", err)
	}

	subject := "Approval pending: requisition awaiting your decision"

	return r.notifier.Send(ctx, *step.AssignedTo, subject, message)
}

func due(reminderDays *int, age time.Duration) bool {
	return reminderDays != nil && *reminderDays > 0 && age >= time.Duration(*reminderDays)*day
}

func timedOut(timeoutDays *int, age time.Duration) bool {
	return timeoutDays != nil && *timeoutDays > 0 && age >= time.Duration(*timeoutDays)*day
}
