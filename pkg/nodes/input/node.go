// Package input provides the node that waits for a customer reply and branches on it.
package input

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

type InputNode struct{}

func NewInputNode() *InputNode { return &InputNode{} }

func (n *InputNode) Type() models.NodeType { return models.NodeTypeInput }

func (n *InputNode) Name() string { return "Input" }

func (n *InputNode) Description() string {
	return "Waits for the customer reply, stores it in a variable and branches on the chosen option or on timeout."
}

func (n *InputNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "Input",
		Properties: map[string]*models.Property{
			"label":     {Type: "string"},
			"inputType": {Type: "string", Enum: []any{"text", "options"}, Default: "text"},
			"options": {
				Type:  "array",
				Items: &models.Property{Type: "object", Properties: map[string]*models.Property{"text": {Type: "string"}}},
			},
			"config": {
				Type: "object",
				Properties: map[string]*models.Property{
					"variableName":   {Type: "string"},
					"timeout":        {Type: "integer", Minimum: models.Ptr(0.0), Description: "Seconds to wait. Zero waits forever."},
					"fallbackNodeId": {Type: "string"},
				},
			},
		},
		Required: []string{"inputType"},
	}
}

// Execute suspends on first entry. When resumed it either follows the
// timeout handle or stores the reply and picks the matching handle.
func (n *InputNode) Execute(_ context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.InputData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected input data", protocol.ErrInvalidField))
	}

	if execCtx.TimedOut {
		return protocol.Follow(models.HandleTimeout), nil
	}

	if execCtx.Input == nil {
		var timeout time.Time
		if data.Config.Timeout > 0 {
			timeout = execCtx.Clock.Now().Add(time.Duration(data.Config.Timeout) * time.Second)
		}

		return protocol.WaitForInput(timeout), nil
	}

	reply := *execCtx.Input
	execCtx.SetVariable(data.Config.VariableName, reply)

	if data.InputType != models.InputTypeOptions {
		return protocol.Follow(models.HandleText), nil
	}

	if i, found := MatchOption(data.Options, reply); found {
		return protocol.Follow(models.OptionHandle(i)), nil
	}

	if _, wired := execCtx.Graph().Next(node.ID, models.HandleNoMatch); !wired && data.Config.FallbackNodeID != "" {
		return protocol.Jump(data.Config.FallbackNodeID), nil
	}

	return protocol.Follow(models.HandleNoMatch), nil
}

// MatchOption finds the option chosen by reply: an exact case-insensitive
// match of the option text, its 1-based position, or as a last resort the
// single option whose text appears in the reply.
func MatchOption(options []models.InputOption, reply string) (int, bool) {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	if normalized == "" {
		return 0, false
	}

	for i, o := range options {
		if strings.ToLower(strings.TrimSpace(o.Text)) == normalized {
			return i, true
		}
	}

	if n, err := strconv.Atoi(normalized); err == nil && n >= 1 && n <= len(options) {
		return n - 1, true
	}

	match := -1

	for i, o := range options {
		keyword := strings.ToLower(strings.TrimSpace(o.Text))
		if keyword == "" || !strings.Contains(normalized, keyword) {
			continue
		}

		if match >= 0 {
			return 0, false
		}

		match = i
	}

	return match, match >= 0
}
