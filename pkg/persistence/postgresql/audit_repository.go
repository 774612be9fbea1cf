package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/talentops/reqflow/pkg/models"
)

// AuditRepository handles the append-only audit log.
type AuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Append records one audit entry, filling in ID and timestamp when absent.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate audit entry ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO flow_audit_log (id, flow_id, execution_id, action, actor, previous_state, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.FlowID,
		nullableString(entry.ExecutionID),
		entry.Action,
		entry.Actor,
		entry.PreviousState,
		detailsJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListByFlow returns the audit trail of a flow, oldest first.
func (r *AuditRepository) ListByFlow(ctx context.Context, flowID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, flow_id, execution_id, action, actor, previous_state, details, created_at
		FROM flow_audit_log
		WHERE flow_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]*models.AuditEntry, 0)

	for rows.Next() {
		var (
			entry       models.AuditEntry
			executionID sql.NullString
			detailsJSON []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.FlowID,
			&executionID,
			&entry.Action,
			&entry.Actor,
			&entry.PreviousState,
			&detailsJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if executionID.Valid {
			entry.ExecutionID = executionID.String
		}

		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
