// Package registry maps node types to the executors that run them.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrNotRegistered = errors.New("node type not registered")
	ErrInvalidConfig = errors.New("node configuration does not match its schema")
)

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	executors map[models.NodeType]protocol.NodeExecutor
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		executors: make(map[models.NodeType]protocol.NodeExecutor),
	}
}

// RegisterNode adds an executor. A later registration for the same type
// replaces the earlier one.
func (r *Registry) RegisterNode(executor protocol.NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[executor.Type()]; exists {
		r.logger.Warn("replacing node executor", "node_type", executor.Type())
	}

	r.executors[executor.Type()] = executor
}

// Executor returns the executor registered for nodeType.
func (r *Registry) Executor(nodeType models.NodeType) (protocol.NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, nodeType)
	}

	return executor, nil
}

// Types returns the registered node types in the canonical order of
// models.NodeTypes.
func (r *Registry) Types() []models.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.NodeType, 0, len(r.executors))
	for _, t := range models.NodeTypes {
		if _, ok := r.executors[t]; ok {
			types = append(types, t)
		}
	}

	return types
}

// Descriptors describes every registered node type. Handles are those of an
// unconfigured node; configured condition, input and openai nodes add their
// indexed handles.
func (r *Registry) Descriptors() []models.NodeTypeDescriptor {
	types := r.Types()
	descriptors := make([]models.NodeTypeDescriptor, 0, len(types))

	for _, t := range types {
		executor, _ := r.Executor(t)

		data, err := models.NewNodeData(t)
		if err != nil {
			continue
		}

		node := &models.Node{Type: t, Data: data}

		descriptors = append(descriptors, models.NodeTypeDescriptor{
			Type:        t,
			Name:        executor.Name(),
			Description: executor.Description(),
			Schema:      executor.Schema(),
			Handles:     node.Handles(),
		})
	}

	return descriptors
}

// ValidateNode checks the node payload against the schema of its executor.
func (r *Registry) ValidateNode(node *models.Node) error {
	executor, err := r.Executor(node.Type)
	if err != nil {
		return fmt.Errorf("node %s: %w", node.ID, err)
	}

	schema := executor.Schema()
	if schema == nil || node.Data == nil {
		return nil
	}

	payload, err := json.Marshal(node.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", node.ID, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("node %s: %w", node.ID, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}

	return fmt.Errorf("node %s: %w: %s", node.ID, ErrInvalidConfig, strings.Join(problems, "; "))
}

// ValidateGraph runs ValidateNode over every node and joins the failures.
func (r *Registry) ValidateGraph(graph *models.Graph) error {
	var errs []error

	for _, n := range graph.Nodes {
		err := r.ValidateNode(n)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
