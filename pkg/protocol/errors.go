package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField       = errors.New("missing required field")
	ErrInvalidField       = errors.New("invalid field")
	ErrServiceUnavailable = errors.New("service not configured")
	ErrCancelled          = errors.New("session cancelled")
)

// ConfigError reports a node whose configuration cannot be executed.
type ConfigError struct {
	NodeID string
	Field  string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("node %s: field %s: %v", e.NodeID, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func NewConfigError(nodeID, field string, err error) *ConfigError {
	return &ConfigError{NodeID: nodeID, Field: field, Err: err}
}

// ExternalError reports a failed call to a service outside the engine.
type ExternalError struct {
	NodeID     string
	Service    string
	StatusCode int
	Err        error
}

func (e *ExternalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("node %s: %s returned %d: %v", e.NodeID, e.Service, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("node %s: %s failed: %v", e.NodeID, e.Service, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the call may succeed if repeated: network
// failures and server errors are, client errors are not.
func (e *ExternalError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

func IsConfigError(err error) bool {
	var configErr *ConfigError

	return errors.As(err, &configErr)
}

func IsExternalError(err error) bool {
	var externalErr *ExternalError

	return errors.As(err, &externalErr)
}
