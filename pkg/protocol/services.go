package protocol

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
)

// Outbound delivers messages to the customer through the hosting service.
type Outbound interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// ChatRole is the role of a message in a model conversation.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole
	Content string
}

// ToolSpec is a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ToolCall struct {
	Name      string
	Arguments string
}

type CompletionRequest struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	Messages    []ChatMessage
	Tools       []ToolSpec
}

type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

type SpeechRequest struct {
	Model string
	Voice string
	Input string
}

// LLMClient talks to a language model provider.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Speech(ctx context.Context, req SpeechRequest) ([]byte, error)
}

type AgentRequest struct {
	PromptID   string
	SessionID  string
	ChatID     string
	CustomerID string
	Message    string
	History    []models.HistoryEntry
}

// AgentClient delegates a turn to an external agent service.
type AgentClient interface {
	Ask(ctx context.Context, req AgentRequest) (string, error)
}

// CustomerUpdate is the mutation an update_customer node applies.
type CustomerUpdate struct {
	Field    models.CustomerField
	FunnelID string
	StageID  string
	TeamID   string
	UserID   string
	Value    string
}

// CustomerService reads and mutates the CRM records bound to a session.
type CustomerService interface {
	GetCustomer(ctx context.Context, customerID string) (*models.Customer, error)
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	UpdateCustomer(ctx context.Context, customerID string, update CustomerUpdate) error
	// ListOpenChats returns the open chats of an organization, for the
	// inactivity sweep.
	ListOpenChats(ctx context.Context, organizationID string) ([]*models.Chat, error)
}

// PromptStore resolves stored prompts by id.
type PromptStore interface {
	GetPrompt(ctx context.Context, promptID string) (string, error)
}

// Services groups the collaborators node executors may call.
type Services struct {
	Outbound  Outbound
	LLM       LLMClient
	Agent     AgentClient
	Customers CustomerService
	Prompts   PromptStore
}
