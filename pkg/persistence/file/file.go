// Package file provides file-based persistence for flows, triggers and sessions.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/dukex/chatflow/pkg/persistence"
)

// Persistence implements persistence.Persistence with one JSON document per
// record under a root directory.
type Persistence struct {
	root        string
	flowRepo    *FlowRepository
	triggerRepo *TriggerRepository
	sessionRepo *SessionRepository
}

// NewPersistence creates a file persistence rooted at root. A file:// prefix
// is accepted.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:        cleanRoot,
		flowRepo:    NewFlowRepository(cleanRoot),
		triggerRepo: NewTriggerRepository(cleanRoot),
		sessionRepo: NewSessionRepository(cleanRoot),
	}
}

func (fp *Persistence) FlowRepository() persistence.FlowRepository {
	return fp.flowRepo
}

func (fp *Persistence) TriggerRepository() persistence.TriggerRepository {
	return fp.triggerRepo
}

func (fp *Persistence) SessionRepository() persistence.SessionRepository {
	return fp.sessionRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
