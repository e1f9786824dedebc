// Package services provides the flow, trigger and session operations behind the HTTP API.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/registry"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrFlowNil            = errors.New("flow cannot be nil")
	ErrFlowNameRequired   = errors.New("flow name is required")
	ErrUnknownNodeType    = errors.New("unknown node type")
	ErrInvalidTriggerRule = errors.New("invalid trigger rule")

	// Business Logic Conflicts (409 Conflict).
	ErrTriggerOrganization = errors.New("trigger belongs to another organization than its flow")
	ErrNodeExists          = errors.New("node id already used in the draft")
	ErrSessionEnded        = errors.New("session already ended")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrUnknownNodeType) ||
		errors.Is(err, ErrInvalidTriggerRule) ||
		errors.Is(err, registry.ErrInvalidConfig) ||
		errors.Is(err, registry.ErrNotRegistered) ||
		models.IsValidationError(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrTriggerOrganization) ||
		errors.Is(err, ErrNodeExists) ||
		errors.Is(err, ErrSessionEnded)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
