// Package delay provides the node that pauses a session for a number of seconds.
package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// DelayNode suspends the session through a scheduled resumption instead of
// blocking the worker.
type DelayNode struct{}

func NewDelayNode() *DelayNode { return &DelayNode{} }

func (n *DelayNode) Type() models.NodeType { return models.NodeTypeDelay }

func (n *DelayNode) Name() string { return "Delay" }

func (n *DelayNode) Description() string {
	return "Waits for a number of seconds before continuing."
}

func (n *DelayNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "Delay",
		Properties: map[string]*models.Property{
			"label":        {Type: "string"},
			"delaySeconds": {Type: "integer", Minimum: models.Ptr(0.0), Default: 0},
		},
		Required: []string{"delaySeconds"},
	}
}

// Execute suspends the session, or continues at once when no delay is set.
// A resumed delay node continues on its default handle.
func (n *DelayNode) Execute(_ context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.DelayData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected delay data", protocol.ErrInvalidField))
	}

	if data.DelaySeconds < 0 {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "delaySeconds", fmt.Errorf("%w: %d is negative", protocol.ErrInvalidField, data.DelaySeconds))
	}

	if data.DelaySeconds == 0 || execCtx.Session.Waiting == models.WaitDelay {
		return protocol.Follow(models.HandleDefault), nil
	}

	return protocol.Sleep(execCtx.Clock.Now().Add(time.Duration(data.DelaySeconds) * time.Second)), nil
}
