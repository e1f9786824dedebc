package models

import (
	"errors"
	"strings"
)

var (
	ErrNoStartNode        = errors.New("flow has no start node")
	ErrMultipleStartNodes = errors.New("flow has more than one start node")
	ErrNodeNotFound       = errors.New("node not found")
)

// ValidationError aggregates the structural problems found in a graph.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}

	return "invalid flow: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

func (e *ValidationError) add(err error) {
	e.Problems = append(e.Problems, err)
}

func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}

	return e
}

// IsValidationError reports whether err carries structural flow problems.
func IsValidationError(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}
