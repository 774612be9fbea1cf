package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/talentops/reqflow/pkg/models"
)

// AuditRepository appends one JSON file per entry under audit/.
type AuditRepository struct {
	persistence *Persistence
}

func (r *AuditRepository) Append(_ context.Context, entry *models.AuditEntry) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

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

	return r.persistence.writeJSON(r.persistence.dir("audit", entry.ID+".json"), entry)
}

func (r *AuditRepository) ListByFlow(_ context.Context, flowID string) ([]*models.AuditEntry, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	paths, err := r.persistence.listJSON(r.persistence.dir("audit"))
	if err != nil {
		return nil, err
	}

	entries := make([]*models.AuditEntry, 0)

	for _, path := range paths {
		var entry models.AuditEntry

		if _, err := r.persistence.readJSON(path, &entry); err != nil {
			return nil, err
		}

		if entry.FlowID == flowID {
			entries = append(entries, &entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return entries, nil
}
