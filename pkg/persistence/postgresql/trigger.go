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

const triggerColumns = `
			id
		  , flow_id
		  , organization_id
		  , type
		  , conditions
		  , priority
		  , is_active
		  , created_at`

// TriggerRepository handles trigger-related database operations.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

func (r *TriggerRepository) GetByID(ctx context.Context, id string) (*models.Trigger, error) {
	query := `SELECT` + triggerColumns + `
		FROM triggers
		WHERE id = $1
	`

	trigger, err := scanTrigger(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trigger %s: %w", id, persistence.ErrTriggerNotFound)
		}

		return nil, fmt.Errorf("failed to scan trigger %s: %w", id, err)
	}

	return trigger, nil
}

func (r *TriggerRepository) GetByFlow(ctx context.Context, flowID string) ([]*models.Trigger, error) {
	query := `SELECT` + triggerColumns + `
		FROM triggers
		WHERE flow_id = $1
		ORDER BY created_at, id
	`

	return r.query(ctx, query, flowID)
}

// GetActive returns the active triggers of triggerType in definition order.
// An empty organizationID matches every organization.
func (r *TriggerRepository) GetActive(ctx context.Context, organizationID string, triggerType models.TriggerType) ([]*models.Trigger, error) {
	query := `SELECT` + triggerColumns + `
		FROM triggers
		WHERE is_active
		  AND type = $1
		  AND ($2 = '' OR organization_id = $2)
		ORDER BY created_at, id
	`

	return r.query(ctx, query, string(triggerType), organizationID)
}

func (r *TriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	if trigger.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		trigger.ID = id
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	conditions, err := json.Marshal(trigger.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger conditions: %w", err)
	}

	query := `
		INSERT INTO triggers (id, flow_id, organization_id, type, conditions, priority, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			flow_id = EXCLUDED.flow_id,
			organization_id = EXCLUDED.organization_id,
			type = EXCLUDED.type,
			conditions = EXCLUDED.conditions,
			priority = EXCLUDED.priority,
			is_active = EXCLUDED.is_active
	`

	_, err = r.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.FlowID,
		trigger.OrganizationID,
		string(trigger.Type),
		conditions,
		trigger.Priority,
		trigger.IsActive,
		trigger.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
	}

	return nil
}

func (r *TriggerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM triggers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	if affected == 0 {
		return fmt.Errorf("trigger %s: %w", id, persistence.ErrTriggerNotFound)
	}

	return nil
}

func (r *TriggerRepository) query(ctx context.Context, query string, args ...any) ([]*models.Trigger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	triggers := make([]*models.Trigger, 0)

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		triggers = append(triggers, trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func scanTrigger(row scanner) (*models.Trigger, error) {
	var (
		trigger     models.Trigger
		triggerType string
		conditions  []byte
	)

	err := row.Scan(
		&trigger.ID,
		&trigger.FlowID,
		&trigger.OrganizationID,
		&triggerType,
		&conditions,
		&trigger.Priority,
		&trigger.IsActive,
		&trigger.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	trigger.Type = models.TriggerType(triggerType)

	err = unmarshalAll(document{conditions, &trigger.Conditions})
	if err != nil {
		return nil, err
	}

	return &trigger, nil
}
