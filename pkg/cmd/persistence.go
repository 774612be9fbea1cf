package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talentops/reqflow/pkg/persistence"
	"github.com/talentops/reqflow/pkg/persistence/file"
	"github.com/talentops/reqflow/pkg/persistence/postgresql"
)

// NewPersistence creates a persistence backend from a database URL.
// postgres:// URLs get the PostgreSQL backend; anything else is treated as
// a directory path for the file backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		return "postgresql"
	default:
		return "file"
	}
}
