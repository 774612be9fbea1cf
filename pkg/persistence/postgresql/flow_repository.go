package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence"
)

// FlowRepository handles flow definition database operations. Nodes and
// connections live in child tables and are replaced wholesale on save; an
// ordinal column preserves definition order, which routing depends on.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

const flowColumns = `
	id
  , name
  , description
  , version
  , status
  , metadata
  , created_by
  , activated_by
  , activated_at
  , created_at
  , updated_at
`

// GetAll returns all flow versions, newest first.
func (r *FlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows ORDER BY version DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer func(ctx context.Context, r *FlowRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		f, err := r.scanFlowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		if err := r.loadGraph(ctx, f); err != nil {
			return nil, err
		}

		flows = append(flows, f)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

// GetByID returns the flow with the given ID, or nil when it does not exist.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = $1`

	return r.getOne(ctx, query, id)
}

// GetActive returns the single active flow, or nil when none is activated.
func (r *FlowRepository) GetActive(ctx context.Context) (*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE status = 'active'`

	return r.getOne(ctx, query)
}

// MaxVersion returns the highest version number ever assigned, 0 when the
// table is empty.
func (r *FlowRepository) MaxVersion(ctx context.Context) (int, error) {
	var version int

	err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM flows").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query max flow version: %w", err)
	}

	return version, nil
}

// Save upserts the flow base row and replaces its nodes and connections in a
// single transaction.
func (r *FlowRepository) Save(ctx context.Context, f *models.Flow) error {
	now := time.Now().UTC()

	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}

	f.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	metadataJSON, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	flowQuery := `
		INSERT INTO flows (id, name, description, version, status, metadata,
created_by, activated_by, activated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			activated_by = EXCLUDED.activated_by,
			activated_at = EXCLUDED.activated_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, flowQuery,
		f.ID,
		f.Name,
		f.Description,
		f.Version,
		f.Status,
		metadataJSON,
		f.CreatedBy,
		f.ActivatedBy,
		f.ActivatedAt,
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save flow base: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM flow_connections WHERE flow_id = $1", f.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing connections: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM flow_nodes WHERE flow_id = $1", f.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	if err = r.saveNodes(ctx, tx, f); err != nil {
		return err
	}

	if err = r.saveConnections(ctx, tx, f); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete removes a flow version and its graph.
func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	return nil
}

// Activate archives the currently active flow and marks the target active in
// one transaction. The partial unique index on status='active' backs the
// singleton invariant even under concurrent activations of different
// versions. Returns the previously active flow, or nil.
func (r *FlowRepository) Activate(ctx context.Context, flowID, actor string, at time.Time) (*models.Flow, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var previousID sql.NullString

	err = tx.QueryRowContext(ctx, `
		UPDATE flows SET status = 'archived', updated_at = $1
		WHERE status = 'active' AND id <> $2
		RETURNING id
	`, at, flowID).Scan(&previousID)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil // nothing was active before
	}

	if err != nil {
		return nil, fmt.Errorf("failed to archive previous active flow: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE flows SET status = 'active', activated_by = $1, activated_at = $2, updated_at = $2
		WHERE id = $3
	`, actor, at, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to activate flow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = persistence.NewFlowError("Activate", flowID, persistence.ErrFlowNotFound)

		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}

	if !previousID.Valid {
		return nil, nil
	}

	return r.GetByID(ctx, previousID.String)
}

func (r *FlowRepository) getOne(ctx context.Context, query string, args ...any) (*models.Flow, error) {
	row := r.db.QueryRowContext(ctx, query, args...)

	f, err := r.scanFlowBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	if err := r.loadGraph(ctx, f); err != nil {
		return nil, err
	}

	return f, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *FlowRepository) scanFlowBase(row rowScanner) (*models.Flow, error) {
	var (
		f            models.Flow
		metadataJSON []byte
		activatedAt  sql.NullTime
	)

	err := row.Scan(
		&f.ID,
		&f.Name,
		&f.Description,
		&f.Version,
		&f.Status,
		&metadataJSON,
		&f.CreatedBy,
		&f.ActivatedBy,
		&activatedAt,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &f.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if activatedAt.Valid {
		f.ActivatedAt = &activatedAt.Time
	}

	return &f, nil
}

func (r *FlowRepository) loadGraph(ctx context.Context, f *models.Flow) error {
	if err := r.loadNodes(ctx, f); err != nil {
		return fmt.Errorf("failed to load flow nodes: %w", err)
	}

	if err := r.loadConnections(ctx, f); err != nil {
		return fmt.Errorf("failed to load flow connections: %w", err)
	}

	return nil
}

func (r *FlowRepository) loadNodes(ctx context.Context, f *models.Flow) error {
	query := `
		SELECT node_id, node_type, name, position_x, position_y, properties
		FROM flow_nodes
		WHERE flow_id = $1
		ORDER BY ordinal
	`

	rows, err := r.db.QueryContext(ctx, query, f.ID)
	if err != nil {
		return err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	f.Nodes = make([]*models.FlowNode, 0)

	for rows.Next() {
		var (
			node           models.FlowNode
			propertiesJSON []byte
		)

		err := rows.Scan(&node.NodeID, &node.Type, &node.Name, &node.PositionX, &node.PositionY, &propertiesJSON)
		if err != nil {
			return err
		}

		if len(propertiesJSON) > 0 {
			if err := json.Unmarshal(propertiesJSON, &node.Properties); err != nil {
				return fmt.Errorf("failed to unmarshal node properties: %w", err)
			}
		}

		f.Nodes = append(f.Nodes, &node)
	}

	return rows.Err()
}

func (r *FlowRepository) loadConnections(ctx context.Context, f *models.Flow) error {
	query := `
		SELECT id, source_node_id, target_node_id, connection_type
		FROM flow_connections
		WHERE flow_id = $1
		ORDER BY ordinal
	`

	rows, err := r.db.QueryContext(ctx, query, f.ID)
	if err != nil {
		return err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	f.Connections = make([]*models.FlowConnection, 0)

	for rows.Next() {
		var conn models.FlowConnection

		err := rows.Scan(&conn.ID, &conn.SourceNodeID, &conn.TargetNodeID, &conn.Type)
		if err != nil {
			return err
		}

		f.Connections = append(f.Connections, &conn)
	}

	return rows.Err()
}

func (r *FlowRepository) saveNodes(ctx context.Context, tx *sql.Tx, f *models.Flow) error {
	query := `
		INSERT INTO flow_nodes (flow_id, node_id, node_type, name, position_x, position_y, properties, ordinal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for ordinal, node := range f.Nodes {
		propertiesJSON, err := json.Marshal(node.Properties)
		if err != nil {
			return fmt.Errorf("failed to marshal node properties: %w", err)
		}

		_, err = tx.ExecContext(ctx, query,
			f.ID, node.NodeID, node.Type, node.Name, node.PositionX, node.PositionY, propertiesJSON, ordinal)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.NodeID, err)
		}
	}

	return nil
}

func (r *FlowRepository) saveConnections(ctx context.Context, tx *sql.Tx, f *models.Flow) error {
	query := `
		INSERT INTO flow_connections (flow_id, id, source_node_id, target_node_id, connection_type, ordinal)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for ordinal, conn := range f.Connections {
		_, err := tx.ExecContext(ctx, query,
			f.ID, conn.ID, conn.SourceNodeID, conn.TargetNodeID, conn.Type, ordinal)
		if err != nil {
			return fmt.Errorf("failed to save connection %s: %w", conn.ID, err)
		}
	}

	return nil
}
