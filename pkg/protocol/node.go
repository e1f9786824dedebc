// Package protocol defines the contract between the session engine and the node executors.
package protocol

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// NodeExecutor runs one node kind and describes its configuration.
type NodeExecutor interface {
	// Type returns the node type this executor handles
	Type() models.NodeType

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema of the node data payload
	Schema() *models.JSONSchema

	// Execute runs the node and tells the engine where to go next
	Execute(ctx context.Context, execCtx *ExecutionContext, node *models.Node) (Result, error)
}

// Result is what a node execution asks the engine to do next. Exactly one of
// Handle, JumpTo or Suspend is meaningful.
type Result struct {
	// Handle is the output handle to follow.
	Handle string
	// JumpTo transfers control to a node without edge lookup.
	JumpTo string
	// Suspend parks the session on the current node.
	Suspend *Suspension
}

// Suspension parks a session until an input arrives or a timer fires.
type Suspension struct {
	Kind models.WaitKind
	// Until is the delay resume time or the input timeout. Zero means the
	// input never times out.
	Until time.Time
}

// Follow continues on the given handle.
func Follow(handle string) Result {
	return Result{Handle: handle}
}

// Jump transfers control to nodeID.
func Jump(nodeID string) Result {
	return Result{JumpTo: nodeID}
}

// WaitForInput suspends until the next inbound message or until timeout.
func WaitForInput(timeout time.Time) Result {
	return Result{Suspend: &Suspension{Kind: models.WaitInput, Until: timeout}}
}

// Sleep suspends until the given time.
func Sleep(until time.Time) Result {
	return Result{Suspend: &Suspension{Kind: models.WaitDelay, Until: until}}
}
