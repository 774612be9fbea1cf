// Package audit records flow lifecycle history. Entries are persisted to the
// audit log and mirrored onto the event bus so downstream consumers (HR
// reporting, SIEM forwarders) can follow along without polling.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talentops/reqflow/pkg/eventbus"
	"github.com/talentops/reqflow/pkg/events"
	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence"
)

// Recorder persists audit entries and publishes the matching bus event.
// It implements flow.AuditSink.
type Recorder struct {
	repository persistence.AuditRepository
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
}

// NewRecorder creates an audit recorder. publisher may be nil, in which case
// entries are persisted only.
func NewRecorder(repository persistence.AuditRepository, publisher eventbus.EventPublisher, logger *slog.Logger) *Recorder {
	return &Recorder{
		repository: repository,
		publisher:  publisher,
		logger:     logger.With("module", "audit"),
	}
}

// Record appends the entry to the audit log, then publishes it. Publish
// failures are logged and swallowed; the persisted entry is the source of
// truth and a broker outage must not fail the operation being audited.
func (r *Recorder) Record(ctx context.Context, entry *models.AuditEntry) error {
	if err := r.repository.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if r.publisher == nil {
		return nil
	}

	event := eventForEntry(entry)
	if event == nil {
		return nil
	}

	if err := r.publisher.Publish(ctx, entry.FlowID, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish audit event",
			"flow_id", entry.FlowID, "action", entry.Action, "error", err)
	}

	return nil
}

// eventForEntry maps an audit action onto its bus event, or nil for actions
// with no event counterpart.
func eventForEntry(entry *models.AuditEntry) eventbus.Event {
	base := events.BaseEvent{
		ID:        entry.ID,
		Timestamp: entry.CreatedAt,
		FlowID:    entry.FlowID,
		Metadata:  entry.Details,
	}

	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}

	switch entry.Action {
	case models.AuditActionFlowCreated:
		base.Type = events.FlowCreatedEvent

		return events.FlowCreated{
			BaseEvent: base,
			Name:      detailString(entry, "name"),
			Version:   detailInt(entry, "version"),
			Actor:     entry.Actor,
		}
	case models.AuditActionFlowActivated:
		base.Type = events.FlowActivatedEvent

		return events.FlowActivated{
			BaseEvent: base,
			Version:   detailInt(entry, "version"),
			Actor:     entry.Actor,
		}
	case models.AuditActionFlowArchived:
		base.Type = events.FlowArchivedEvent

		return events.FlowArchived{
			BaseEvent: base,
			Version:   detailInt(entry, "version"),
			Actor:     entry.Actor,
		}
	case models.AuditActionExecutionStarted:
		base.Type = events.ExecutionStartedEvent

		return events.ExecutionStarted{
			BaseEvent:   base,
			ExecutionID: entry.ExecutionID,
			SubjectID:   detailString(entry, "subject_id"),
			StartedBy:   entry.Actor,
		}
	case models.AuditActionExecutionCompleted:
		base.Type = events.ExecutionCompletedEvent

		return events.ExecutionCompleted{
			BaseEvent:   base,
			ExecutionID: entry.ExecutionID,
			SubjectID:   detailString(entry, "subject_id"),
		}
	case models.AuditActionExecutionFailed:
		base.Type = events.ExecutionFailedEvent

		return events.ExecutionFailed{
			BaseEvent:   base,
			ExecutionID: entry.ExecutionID,
			SubjectID:   detailString(entry, "subject_id"),
			Reason:      detailString(entry, "reason"),
		}
	case models.AuditActionStepAssigned:
		base.Type = events.StepAssignedEvent

		return events.StepAssigned{
			BaseEvent:   base,
			ExecutionID: entry.ExecutionID,
			StepID:      detailString(entry, "step_id"),
			NodeID:      detailString(entry, "node_id"),
			AssignedTo:  detailString(entry, "assigned_to"),
		}
	case models.AuditActionStepApproved:
		base.Type = events.StepApprovedEvent

		return events.StepApproved{
			BaseEvent:   base,
			ExecutionID: entry.ExecutionID,
			NodeID:      detailString(entry, "node_id"),
			ApprovedBy:  entry.Actor,
			Comments:    detailString(entry, "comments"),
		}
	case models.AuditActionStepRejected:
		base.Type = events.StepRejectedEvent

		return events.StepRejected{
			BaseEvent:   base,
			ExecutionID: entry.ExecutionID,
			NodeID:      detailString(entry, "node_id"),
			RejectedBy:  entry.Actor,
			Comments:    detailString(entry, "comments"),
		}
	default:
		return nil
	}
}

func detailString(entry *models.AuditEntry, key string) string {
	if s, ok := entry.Details[key].(string); ok {
		return s
	}

	return ""
}

func detailInt(entry *models.AuditEntry, key string) int {
	switch v := entry.Details[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
