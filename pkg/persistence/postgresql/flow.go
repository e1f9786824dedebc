package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

const flowColumns = `
			id
		  , organization_id
		  , name
		  , nodes
		  , edges
		  , draft_nodes
		  , draft_edges
		  , variables
		  , viewport
		  , is_published
		  , published_at
		  , created_by_prompt
		  , created_at
		  , updated_at`

// FlowRepository handles flow-related database operations. Both graph
// snapshots are stored as JSONB documents next to the flow row.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

// GetAll returns the flows of organizationID, newest first. An empty
// organizationID returns every flow.
func (r *FlowRepository) GetAll(ctx context.Context, organizationID string) ([]*models.Flow, error) {
	query := `SELECT` + flowColumns + `
		FROM flows
		WHERE ($1 = '' OR organization_id = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	query := `SELECT` + flowColumns + `
		FROM flows
		WHERE id = $1
	`

	flow, err := scanFlow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	return flow, nil
}

// Save upserts the flow, assigning an id and timestamps when missing.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()

	if flow.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		flow.ID = id
	}

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	documents, err := marshalAll(
		nonNil(flow.Nodes), nonNil(flow.Edges),
		nonNil(flow.DraftNodes), nonNil(flow.DraftEdges),
		nonNil(flow.Variables), flow.Viewport,
	)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	query := `
		INSERT INTO flows (id, organization_id, name, nodes, edges, draft_nodes, draft_edges,
variables, viewport, is_published, published_at, created_by_prompt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			draft_nodes = EXCLUDED.draft_nodes,
			draft_edges = EXCLUDED.draft_edges,
			variables = EXCLUDED.variables,
			viewport = EXCLUDED.viewport,
			is_published = EXCLUDED.is_published,
			published_at = EXCLUDED.published_at,
			created_by_prompt = EXCLUDED.created_by_prompt,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID,
		flow.OrganizationID,
		flow.Name,
		documents[0],
		documents[1],
		documents[2],
		documents[3],
		documents[4],
		documents[5],
		flow.IsPublished,
		flow.PublishedAt,
		flow.CreatedByPrompt,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

// Delete removes the flow together with its triggers and sessions.
func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = $1", id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	return nil
}

func scanFlow(row scanner) (*models.Flow, error) {
	var (
		flow                                 models.Flow
		nodes, edges, draftNodes, draftEdges []byte
		variables, viewport                  []byte
		publishedAt                          sql.NullTime
	)

	err := row.Scan(
		&flow.ID,
		&flow.OrganizationID,
		&flow.Name,
		&nodes,
		&edges,
		&draftNodes,
		&draftEdges,
		&variables,
		&viewport,
		&flow.IsPublished,
		&publishedAt,
		&flow.CreatedByPrompt,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalAll(
		document{nodes, &flow.Nodes},
		document{edges, &flow.Edges},
		document{draftNodes, &flow.DraftNodes},
		document{draftEdges, &flow.DraftEdges},
		document{variables, &flow.Variables},
		document{viewport, &flow.Viewport},
	)
	if err != nil {
		return nil, err
	}

	if publishedAt.Valid {
		flow.PublishedAt = &publishedAt.Time
	}

	return &flow, nil
}

// document pairs a JSONB column with its destination.
type document struct {
	raw  []byte
	dest any
}

func unmarshalAll(documents ...document) error {
	for _, d := range documents {
		if len(d.raw) == 0 {
			continue
		}

		err := json.Unmarshal(d.raw, d.dest)
		if err != nil {
			return fmt.Errorf("failed to unmarshal %T: %w", d.dest, err)
		}
	}

	return nil
}

func marshalAll(values ...any) ([][]byte, error) {
	documents := make([][]byte, 0, len(values))

	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
		}

		documents = append(documents, raw)
	}

	return documents, nil
}

// nonNil keeps NOT NULL array columns from receiving a JSON null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
