package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/chatflow/pkg/session"
	"github.com/dukex/chatflow/pkg/session/redislock"
)

const lockPrefix = "chatflow:"

// NewGuard builds the per-chat guard. An empty lockerURL or "memory" keeps
// the locks in process; a redis:// URL shares them across workers.
func NewGuard(logger *slog.Logger, lockerURL string) (*session.Guard, error) {
	switch {
	case lockerURL == "" || lockerURL == "memory":
		return session.NewGuard(session.WithLogger(logger)), nil
	case strings.HasPrefix(lockerURL, "redis://"), strings.HasPrefix(lockerURL, "rediss://"):
		locker, err := redislock.NewLockerFromURL(lockerURL, lockPrefix)
		if err != nil {
			return nil, err
		}

		return session.NewGuard(session.WithLogger(logger), session.WithLocker(locker)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocker, lockerURL)
	}
}
