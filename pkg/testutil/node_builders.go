// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Epoch is the fixed start time of fake clocks built by this package.
var Epoch = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

// CreateTestNode creates a node of the given type with its payload.
func CreateTestNode(id string, nodeType models.NodeType, data models.NodeData) *models.Node {
	return &models.Node{ID: id, Type: nodeType, Data: data}
}

// StartNode creates the entry node of a flow.
func StartNode(id string) *models.Node {
	return CreateTestNode(id, models.NodeTypeStart, &models.StartData{BaseData: models.BaseData{IsStart: true}})
}

// TextNode creates a plain text message node.
func TextNode(id, text string) *models.Node {
	return CreateTestNode(id, models.NodeTypeText, &models.TextData{Text: text})
}

// OptionsInputNode creates an input node with multiple-choice options.
func OptionsInputNode(id, variable string, timeout int, options ...string) *models.Node {
	opts := make([]models.InputOption, 0, len(options))
	for _, o := range options {
		opts = append(opts, models.InputOption{Text: o})
	}

	return CreateTestNode(id, models.NodeTypeInput, &models.InputData{
		InputType: models.InputTypeOptions,
		Options:   opts,
		Config:    models.InputConfig{VariableName: variable, Timeout: timeout},
	})
}

// TextInputNode creates a free text input node.
func TextInputNode(id, variable string, timeout int) *models.Node {
	return CreateTestNode(id, models.NodeTypeInput, &models.InputData{
		InputType: models.InputTypeText,
		Config:    models.InputConfig{VariableName: variable, Timeout: timeout},
	})
}

// Edge creates a connection bound to a source handle.
func Edge(source, handle, target string) *models.Connection {
	return &models.Connection{
		ID:           source + "->" + target + ":" + handle,
		Source:       source,
		SourceHandle: handle,
		Target:       target,
	}
}

// CreateTestFlow creates a published flow with the given graph.
func CreateTestFlow(nodes []*models.Node, edges []*models.Connection, overrides ...func(*models.Flow)) *models.Flow {
	flow := &models.Flow{
		ID:             uuid.NewString(),
		OrganizationID: "org-1",
		Name:           "Test Flow",
		Nodes:          nodes,
		Edges:          edges,
		DraftNodes:     (&models.Graph{Nodes: nodes}).Clone().Nodes,
		DraftEdges:     (&models.Graph{Edges: edges}).Clone().Edges,
		IsPublished:    true,
		CreatedAt:      Epoch,
		UpdatedAt:      Epoch,
	}

	for _, override := range overrides {
		override(flow)
	}

	return flow
}

// WithVariables sets the flow variables.
func WithVariables(vars ...models.Variable) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Variables = vars
	}
}

// CreateTestSession creates an active session bound to flow.
func CreateTestSession(flow *models.Flow) *models.FlowSession {
	return &models.FlowSession{
		ID:             uuid.NewString(),
		FlowID:         flow.ID,
		OrganizationID: flow.OrganizationID,
		ChatID:         "chat-1",
		CustomerID:     "customer-1",
		Status:         models.SessionStatusActive,
		Variables:      flow.InitialVariables(),
		CreatedAt:      Epoch,
		UpdatedAt:      Epoch,
	}
}

// NewExecutionContext creates an execution context over a fresh session of
// flow, driven by a fake clock.
func NewExecutionContext(flow *models.Flow, services protocol.Services) (*protocol.ExecutionContext, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(Epoch)

	return &protocol.ExecutionContext{
		Session:  CreateTestSession(flow),
		Flow:     flow,
		Customer: &models.Customer{ID: "customer-1", Name: "Ana", CustomFields: map[string]string{}},
		Chat:     &models.Chat{ID: "chat-1", Channel: "whatsapp", Status: "open", StartTime: Epoch},
		Services: services,
		Clock:    clock,
		Logger:   slog.Default(),
	}, clock
}
