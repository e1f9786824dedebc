package mocks

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockOutbound is a mock implementation of protocol.Outbound.
type MockOutbound struct {
	mock.Mock
}

func (m *MockOutbound) Send(ctx context.Context, msg models.OutboundMessage) error {
	args := m.Called(ctx, msg)

	return args.Error(0)
}

// Sent returns the messages passed to Send, in order.
func (m *MockOutbound) Sent() []models.OutboundMessage {
	sent := make([]models.OutboundMessage, 0, len(m.Calls))

	for _, call := range m.Calls {
		if call.Method != "Send" {
			continue
		}

		sent = append(sent, call.Arguments.Get(1).(models.OutboundMessage))
	}

	return sent
}

// MockLLMClient is a mock implementation of protocol.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Complete(ctx context.Context, req protocol.CompletionRequest) (*protocol.Completion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.Completion), args.Error(1)
}

func (m *MockLLMClient) Speech(ctx context.Context, req protocol.SpeechRequest) ([]byte, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]byte), args.Error(1)
}

// MockAgentClient is a mock implementation of protocol.AgentClient.
type MockAgentClient struct {
	mock.Mock
}

func (m *MockAgentClient) Ask(ctx context.Context, req protocol.AgentRequest) (string, error) {
	args := m.Called(ctx, req)

	return args.String(0), args.Error(1)
}

// MockCustomerService is a mock implementation of protocol.CustomerService.
type MockCustomerService struct {
	mock.Mock
}

func (m *MockCustomerService) GetCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Customer), args.Error(1)
}

func (m *MockCustomerService) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockCustomerService) UpdateCustomer(ctx context.Context, customerID string, update protocol.CustomerUpdate) error {
	args := m.Called(ctx, customerID, update)

	return args.Error(0)
}

func (m *MockCustomerService) ListOpenChats(ctx context.Context, organizationID string) ([]*models.Chat, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Chat), args.Error(1)
}

// MockPromptStore is a mock implementation of protocol.PromptStore.
type MockPromptStore struct {
	mock.Mock
}

func (m *MockPromptStore) GetPrompt(ctx context.Context, promptID string) (string, error) {
	args := m.Called(ctx, promptID)

	return args.String(0), args.Error(1)
}
