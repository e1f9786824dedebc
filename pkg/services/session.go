package services

import (
	"context"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// Canceller stops a running or waiting session.
type Canceller interface {
	Cancel(ctx context.Context, sessionID string) error
}

// Session exposes flow sessions to operators.
type Session struct {
	persistence persistence.Persistence
	canceller   Canceller
}

// NewSession creates a new session service.
func NewSession(persistence persistence.Persistence, canceller Canceller) *Session {
	return &Session{
		persistence: persistence,
		canceller:   canceller,
	}
}

// FetchByID retrieves a session by its ID.
func (s *Session) FetchByID(ctx context.Context, id string) (*models.FlowSession, error) {
	return s.persistence.SessionRepository().GetByID(ctx, id)
}

// ActiveByChat returns the active session of a chat.
func (s *Session) ActiveByChat(ctx context.Context, chatID string) (*models.FlowSession, error) {
	return s.persistence.SessionRepository().GetActiveByChat(ctx, chatID)
}

// Cancel ends an active session and returns it in its final state.
func (s *Session) Cancel(ctx context.Context, id string) (*models.FlowSession, error) {
	session, err := s.persistence.SessionRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.IsTerminal() {
		return nil, fmt.Errorf("session %s is %s: %w", id, session.Status, ErrSessionEnded)
	}

	err = s.canceller.Cancel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel session %s: %w", id, err)
	}

	return s.persistence.SessionRepository().GetByID(ctx, id)
}
