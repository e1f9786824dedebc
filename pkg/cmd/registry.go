// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"errors"
	"log/slog"

	"github.com/dukex/chatflow/pkg/registry"
)

var (
	ErrInvalidDatabaseURL  = errors.New("invalid database url")
	ErrUnsupportedEventBus = errors.New("unsupported event bus provider")
	ErrUnsupportedLocker   = errors.New("unsupported locker")
)

// NewRegistry returns a registry holding every built-in node type.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)
	reg.RegisterDefaultNodes()

	return reg
}
