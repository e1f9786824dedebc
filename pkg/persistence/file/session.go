package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// SessionRepository handles session-related file operations. Lookups scan
// the sessions directory, which is fine for local and test use.
type SessionRepository struct {
	mu        sync.RWMutex
	sessions  store[models.FlowSession]
	cancelDir string
}

func NewSessionRepository(root string) *SessionRepository {
	return &SessionRepository{
		sessions:  newStore[models.FlowSession](root, "sessions"),
		cancelDir: filepath.Join(root, "session_cancellations"),
	}
}

func (r *SessionRepository) Save(_ context.Context, session *models.FlowSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}

	err := r.sessions.write(session.ID, session)
	if err != nil {
		return persistence.NewSessionError("Save", session.ID, err)
	}

	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, id string) (*models.FlowSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, err := r.sessions.read(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewSessionError("GetByID", id, persistence.ErrSessionNotFound)
		}

		return nil, persistence.NewSessionError("GetByID", id, err)
	}

	return session, nil
}

func (r *SessionRepository) GetActiveByChat(_ context.Context, chatID string) (*models.FlowSession, error) {
	found, err := r.latest(func(s *models.FlowSession) bool {
		return s.ChatID == chatID && s.Status == models.SessionStatusActive
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.NewSessionError("GetActiveByChat", "chat "+chatID, persistence.ErrSessionNotFound)
	}

	return found, nil
}

func (r *SessionRepository) GetLatestByFlowAndChat(_ context.Context, flowID, chatID string) (*models.FlowSession, error) {
	found, err := r.latest(func(s *models.FlowSession) bool {
		return s.FlowID == flowID && s.ChatID == chatID
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.NewSessionError("GetLatestByFlowAndChat", "chat "+chatID, persistence.ErrSessionNotFound)
	}

	return found, nil
}

func (r *SessionRepository) latest(match func(*models.FlowSession) bool) (*models.FlowSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.sessions.list()
	if err != nil {
		return nil, err
	}

	var found *models.FlowSession

	for _, s := range all {
		if match(s) && (found == nil || s.CreatedAt.After(found.CreatedAt)) {
			found = s
		}
	}

	return found, nil
}

func (r *SessionRepository) GetDue(_ context.Context, now time.Time) ([]*models.FlowSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.sessions.list()
	if err != nil {
		return nil, err
	}

	due := make([]*models.FlowSession, 0)
	for _, s := range all {
		if s.IsDue(now) {
			due = append(due, s)
		}
	}

	return due, nil
}

func (r *SessionRepository) RequestCancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := validateID(id)
	if err != nil {
		return err
	}

	if _, err := os.Stat(r.sessions.path(id)); errors.Is(err, os.ErrNotExist) {
		return persistence.NewSessionError("RequestCancel", id, persistence.ErrSessionNotFound)
	}

	err = os.MkdirAll(r.cancelDir, 0750)
	if err != nil {
		return persistence.NewSessionError("RequestCancel", id, err)
	}

	err = os.WriteFile(filepath.Join(r.cancelDir, id), []byte(time.Now().UTC().Format(time.RFC3339)), 0600)
	if err != nil {
		return persistence.NewSessionError("RequestCancel", id, err)
	}

	return nil
}

func (r *SessionRepository) IsCancelRequested(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	err := validateID(id)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filepath.Join(r.cancelDir, id))
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, persistence.NewSessionError("IsCancelRequested", id, err)
}
