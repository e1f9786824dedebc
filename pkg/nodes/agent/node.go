// Package agent provides the node that hands a conversation turn to an external agent service.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

const historyWindow = 20

type AgentNode struct {
	retries  uint64
	interval time.Duration
}

func NewAgentNode() *AgentNode {
	return &AgentNode{retries: 2, interval: time.Second}
}

// NewAgentNodeWithRetry sets how many times a failed call is repeated and the
// pause between attempts.
func NewAgentNodeWithRetry(retries uint64, interval time.Duration) *AgentNode {
	return &AgentNode{retries: retries, interval: interval}
}

func (n *AgentNode) Type() models.NodeType { return models.NodeTypeAgentIA }

func (n *AgentNode) Name() string { return "AI Agent" }

func (n *AgentNode) Description() string {
	return "Sends the latest customer message to an AI agent and replies with its answer."
}

func (n *AgentNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "AI Agent",
		Properties: map[string]*models.Property{
			"label":        {Type: "string"},
			"promptId":     {Type: "string", Description: "Agent prompt identifier."},
			"variableName": {Type: "string", Description: "Variable receiving the agent answer."},
		},
		Required: []string{"promptId"},
	}
}

func (n *AgentNode) Execute(ctx context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.AgentIAData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected agenteia data", protocol.ErrInvalidField))
	}

	if data.PromptID == "" {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "promptId", protocol.ErrMissingField)
	}

	if execCtx.Services.Agent == nil {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "agent", protocol.ErrServiceUnavailable)
	}

	session := execCtx.Session
	req := protocol.AgentRequest{
		PromptID:   data.PromptID,
		SessionID:  session.ID,
		ChatID:     session.ChatID,
		CustomerID: session.CustomerID,
		Message:    lastCustomerMessage(session.MessageHistory),
		History:    recent(session.MessageHistory, historyWindow),
	}

	err := execCtx.BeforeSideEffect(ctx)
	if err != nil {
		return protocol.Result{}, err
	}

	var answer string

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(n.interval), n.retries), ctx)

	err = backoff.Retry(func() error {
		var askErr error

		answer, askErr = execCtx.Services.Agent.Ask(ctx, req)
		if askErr != nil {
			execCtx.Logger.WarnContext(ctx, "agent call failed", "node_id", node.ID, "error", askErr)
		}

		return askErr
	}, policy)
	if err != nil {
		return protocol.Result{}, &protocol.ExternalError{NodeID: node.ID, Service: "agent", Err: err}
	}

	execCtx.SetVariable(data.VariableName, answer)

	if strings.TrimSpace(answer) != "" {
		err = execCtx.Send(ctx, node, models.OutboundMessage{Type: models.MessageText, Text: answer})
		if err != nil {
			return protocol.Result{}, err
		}
	}

	return protocol.Follow(models.HandleDefault), nil
}

func lastCustomerMessage(history []models.HistoryEntry) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleCustomer {
			return history[i].Content
		}
	}

	return ""
}

func recent(history []models.HistoryEntry, n int) []models.HistoryEntry {
	if len(history) <= n {
		return history
	}

	return history[len(history)-n:]
}
