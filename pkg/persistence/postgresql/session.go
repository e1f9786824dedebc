package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

const sessionColumns = `
			id
		  , flow_id
		  , trigger_id
		  , organization_id
		  , chat_id
		  , customer_id
		  , current_node_id
		  , status
		  , variables
		  , message_history
		  , waiting
		  , timeout_at
		  , resume_at
		  , debounce_timestamp
		  , pending_input
		  , error
		  , created_at
		  , updated_at
		  , ended_at`

// SessionRepository handles session-related database operations. The
// cancel_requested flag is owned by RequestCancel and never written by Save,
// so a runner persisting its progress cannot erase a pending cancellation.
type SessionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSessionRepository(db *sql.DB, logger *slog.Logger) *SessionRepository {
	return &SessionRepository{db: db, logger: logger}
}

func (r *SessionRepository) Save(ctx context.Context, session *models.FlowSession) error {
	if session.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		session.ID = id
	}

	variables := session.Variables
	if variables == nil {
		variables = map[string]string{}
	}

	documents, err := marshalAll(variables, nonNil(session.MessageHistory), session.PendingInput)
	if err != nil {
		return persistence.NewSessionError("Save", session.ID, err)
	}

	query := `
		INSERT INTO flow_sessions (id, flow_id, trigger_id, organization_id, chat_id, customer_id,
current_node_id, status, variables, message_history, waiting, timeout_at, resume_at,
debounce_timestamp, pending_input, error, created_at, updated_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			current_node_id = EXCLUDED.current_node_id,
			status = EXCLUDED.status,
			variables = EXCLUDED.variables,
			message_history = EXCLUDED.message_history,
			waiting = EXCLUDED.waiting,
			timeout_at = EXCLUDED.timeout_at,
			resume_at = EXCLUDED.resume_at,
			debounce_timestamp = EXCLUDED.debounce_timestamp,
			pending_input = EXCLUDED.pending_input,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			ended_at = EXCLUDED.ended_at
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.FlowID,
		session.TriggerID,
		session.OrganizationID,
		session.ChatID,
		session.CustomerID,
		session.CurrentNodeID,
		string(session.Status),
		documents[0],
		documents[1],
		string(session.Waiting),
		session.TimeoutAt,
		session.ResumeAt,
		session.DebounceTimestamp,
		documents[2],
		session.Error,
		session.CreatedAt,
		session.UpdatedAt,
		session.EndedAt,
	)
	if err != nil {
		return persistence.NewSessionError("Save", session.ID, err)
	}

	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.FlowSession, error) {
	query := `SELECT` + sessionColumns + `
		FROM flow_sessions
		WHERE id = $1
	`

	return r.one(ctx, "GetByID", id, query, id)
}

func (r *SessionRepository) GetActiveByChat(ctx context.Context, chatID string) (*models.FlowSession, error) {
	query := `SELECT` + sessionColumns + `
		FROM flow_sessions
		WHERE chat_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.one(ctx, "GetActiveByChat", "chat "+chatID, query, chatID)
}

func (r *SessionRepository) GetLatestByFlowAndChat(ctx context.Context, flowID, chatID string) (*models.FlowSession, error) {
	query := `SELECT` + sessionColumns + `
		FROM flow_sessions
		WHERE flow_id = $1 AND chat_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.one(ctx, "GetLatestByFlowAndChat", "chat "+chatID, query, flowID, chatID)
}

// GetDue selects active sessions with any timer at or before now, then keeps
// those whose effective due time has elapsed.
func (r *SessionRepository) GetDue(ctx context.Context, now time.Time) ([]*models.FlowSession, error) {
	query := `SELECT` + sessionColumns + `
		FROM flow_sessions
		WHERE status = 'active'
		  AND (resume_at <= $1 OR timeout_at <= $1 OR debounce_timestamp <= $1)
		ORDER BY updated_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, persistence.NewSessionError("GetDue", "", err)
	}

	defer closeRows(ctx, r.logger, rows)

	due := make([]*models.FlowSession, 0)

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, persistence.NewSessionError("GetDue", "", err)
		}

		if session.IsDue(now) {
			due = append(due, session)
		}
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewSessionError("GetDue", "", err)
	}

	return due, nil
}

func (r *SessionRepository) RequestCancel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE flow_sessions SET cancel_requested = true WHERE id = $1", id)
	if err != nil {
		return persistence.NewSessionError("RequestCancel", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewSessionError("RequestCancel", id, err)
	}

	if affected == 0 {
		return persistence.NewSessionError("RequestCancel", id, persistence.ErrSessionNotFound)
	}

	return nil
}

func (r *SessionRepository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool

	err := r.db.QueryRowContext(ctx, "SELECT cancel_requested FROM flow_sessions WHERE id = $1", id).Scan(&requested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, persistence.NewSessionError("IsCancelRequested", id, err)
	}

	return requested, nil
}

func (r *SessionRepository) one(ctx context.Context, op, ref, query string, args ...any) (*models.FlowSession, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewSessionError(op, ref, persistence.ErrSessionNotFound)
		}

		return nil, persistence.NewSessionError(op, ref, err)
	}

	return session, nil
}

func scanSession(row scanner) (*models.FlowSession, error) {
	var (
		session                                models.FlowSession
		status, waiting                        string
		variables, history, pending            []byte
		timeoutAt, resumeAt, debounceAt, endAt sql.NullTime
	)

	err := row.Scan(
		&session.ID,
		&session.FlowID,
		&session.TriggerID,
		&session.OrganizationID,
		&session.ChatID,
		&session.CustomerID,
		&session.CurrentNodeID,
		&status,
		&variables,
		&history,
		&waiting,
		&timeoutAt,
		&resumeAt,
		&debounceAt,
		&pending,
		&session.Error,
		&session.CreatedAt,
		&session.UpdatedAt,
		&endAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = models.SessionStatus(status)
	session.Waiting = models.WaitKind(waiting)
	session.TimeoutAt = nullTime(timeoutAt)
	session.ResumeAt = nullTime(resumeAt)
	session.DebounceTimestamp = nullTime(debounceAt)
	session.EndedAt = nullTime(endAt)

	err = unmarshalAll(
		document{variables, &session.Variables},
		document{history, &session.MessageHistory},
		document{pending, &session.PendingInput},
	)
	if err != nil {
		return nil, err
	}

	return &session, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time

	return &v
}
