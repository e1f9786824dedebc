package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/chatflow/pkg/persistence"
)

// store keeps one JSON document per id in a directory.
type store[T any] struct {
	dir string
}

func newStore[T any](root, name string) store[T] {
	return store[T]{dir: filepath.Join(root, name)}
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", persistence.ErrInvalidID, id)
	}

	return nil
}

func (s store[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// read returns os.ErrNotExist when the document is missing.
func (s store[T]) read(id string) (*T, error) {
	err := validateID(id)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(s.path(id)) // #nosec G304 -- id is validated above
	if err != nil {
		return nil, err
	}

	var value T

	err = json.Unmarshal(body, &value)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return &value, nil
}

// write replaces the document atomically through a rename.
func (s store[T]) write(id string, value *T) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	err = os.MkdirAll(s.dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", id, err)
	}

	_, err = tmp.Write(data)
	closeErr := tmp.Close()

	if err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Rename(tmp.Name(), s.path(id))
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return nil
}

func (s store[T]) remove(id string) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	return os.Remove(s.path(id))
}

func (s store[T]) list() ([]*T, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*T{}, nil
		}

		return nil, fmt.Errorf("failed to read directory %s: %w", s.dir, err)
	}

	values := make([]*T, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		value, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		values = append(values, value)
	}

	return values, nil
}
