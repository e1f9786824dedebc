// Package log configures the process-wide slog logger for the chatflow binaries.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// ServiceName is attached to every record written through the default logger.
const ServiceName = "chatflow"

// ParseLevel maps a level name, in any case, to its slog level. Unknown names
// fall back to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level

	err := level.UnmarshalText([]byte(strings.TrimSpace(name)))
	if err != nil {
		return slog.LevelInfo
	}

	return level
}

// Setup installs a text logger on stderr at logLevel as the default logger.
func Setup(logLevel string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})

	slog.SetDefault(slog.New(handler).With("service", ServiceName))
}

// WithModule scopes the default logger to one component, such as the
// worker or the session guard.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
