// Package persistence provides the storage abstraction for flows, triggers and sessions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

type Persistence interface {
	FlowRepository() FlowRepository
	TriggerRepository() TriggerRepository
	SessionRepository() SessionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowRepository stores flows with both their draft and published snapshots.
type FlowRepository interface {
	// GetAll lists the flows of an organization, newest first. An empty
	// organizationID lists every flow.
	GetAll(ctx context.Context, organizationID string) ([]*models.Flow, error)
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
	Delete(ctx context.Context, id string) error
}

// TriggerRepository stores triggers. Lists are returned in definition order
// (creation time, then id), which breaks priority ties.
type TriggerRepository interface {
	GetByID(ctx context.Context, id string) (*models.Trigger, error)
	GetByFlow(ctx context.Context, flowID string) ([]*models.Trigger, error)
	// GetActive lists active triggers of the given type. An empty
	// organizationID spans every organization.
	GetActive(ctx context.Context, organizationID string, triggerType models.TriggerType) ([]*models.Trigger, error)
	Save(ctx context.Context, trigger *models.Trigger) error
	Delete(ctx context.Context, id string) error
}

// SessionRepository stores flow sessions. A cancel request is kept apart
// from the session document so a worker saving the session never erases it.
type SessionRepository interface {
	Save(ctx context.Context, session *models.FlowSession) error
	GetByID(ctx context.Context, id string) (*models.FlowSession, error)
	// GetActiveByChat returns the active session bound to chatID.
	GetActiveByChat(ctx context.Context, chatID string) (*models.FlowSession, error)
	// GetLatestByFlowAndChat returns the most recently created session of
	// flowID for chatID, whatever its status.
	GetLatestByFlowAndChat(ctx context.Context, flowID, chatID string) (*models.FlowSession, error)
	// GetDue returns active sessions whose delay, debounce or input timeout
	// elapsed at now.
	GetDue(ctx context.Context, now time.Time) ([]*models.FlowSession, error)
	RequestCancel(ctx context.Context, id string) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)
}
