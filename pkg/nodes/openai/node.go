package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidToolArguments = errors.New("invalid tool arguments")

// Execute runs the configured generation. A tool call never falls through to
// the default handle: it jumps to the tool target, or follows the tool handle.
func (n *OpenAINode) Execute(ctx context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.OpenAIData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected openai data", protocol.ErrInvalidField))
	}

	if execCtx.Services.LLM == nil {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "llm", protocol.ErrServiceUnavailable)
	}

	prompt, err := resolvePrompt(ctx, execCtx, node.ID, data)
	if err != nil {
		return protocol.Result{}, err
	}

	switch data.APIType {
	case models.OpenAITextToSpeech:
		if strings.TrimSpace(prompt) == "" {
			return protocol.Result{}, protocol.NewConfigError(node.ID, "prompt", protocol.ErrMissingField)
		}

		err = speak(ctx, execCtx, node, data, prompt)
		if err != nil {
			return protocol.Result{}, err
		}

		return protocol.Follow(models.HandleDefault), nil
	case models.OpenAITextGeneration, models.OpenAIAudioGeneration, "":
		return generate(ctx, execCtx, node, data, prompt)
	default:
		return protocol.Result{}, protocol.NewConfigError(node.ID, "apiType", fmt.Errorf("%w: %q", protocol.ErrInvalidField, data.APIType))
	}
}

func resolvePrompt(ctx context.Context, execCtx *protocol.ExecutionContext, nodeID string, data *models.OpenAIData) (string, error) {
	if data.PromptID == "" {
		return execCtx.Interpolate(data.Prompt), nil
	}

	if execCtx.Services.Prompts == nil {
		return "", protocol.NewConfigError(nodeID, "promptId", protocol.ErrServiceUnavailable)
	}

	prompt, err := execCtx.Services.Prompts.GetPrompt(ctx, data.PromptID)
	if err != nil {
		return "", &protocol.ExternalError{NodeID: nodeID, Service: "prompts", Err: err}
	}

	return execCtx.Interpolate(prompt), nil
}

func generate(ctx context.Context, execCtx *protocol.ExecutionContext, node *models.Node, data *models.OpenAIData, prompt string) (protocol.Result, error) {
	model := data.Model
	if model == "" {
		model = DefaultModel
	}

	req := protocol.CompletionRequest{
		Model:       model,
		Temperature: data.Temperature,
		MaxTokens:   data.MaxTokens,
		Messages:    conversation(prompt, execCtx.Session.MessageHistory),
		Tools:       toolSpecs(data.Tools),
	}

	err := execCtx.BeforeSideEffect(ctx)
	if err != nil {
		return protocol.Result{}, err
	}

	completion, err := execCtx.Services.LLM.Complete(ctx, req)
	if err != nil {
		return protocol.Result{}, &protocol.ExternalError{NodeID: node.ID, Service: "openai", Err: err}
	}

	if len(completion.ToolCalls) > 0 {
		return routeToolCall(execCtx, node, data, completion.ToolCalls[0])
	}

	execCtx.SetVariable(data.VariableName, completion.Content)

	deliverAudio := data.APIType == models.OpenAIAudioGeneration || data.MessageType == string(models.MessageAudio)

	switch {
	case completion.Content == "":
	case deliverAudio:
		err = speak(ctx, execCtx, node, data, completion.Content)
	case data.MessageType == string(models.MessageText):
		err = execCtx.Send(ctx, node, models.OutboundMessage{Type: models.MessageText, Text: completion.Content})
	}

	if err != nil {
		return protocol.Result{}, err
	}

	return protocol.Follow(models.HandleDefault), nil
}

func speak(ctx context.Context, execCtx *protocol.ExecutionContext, node *models.Node, data *models.OpenAIData, text string) error {
	voice := data.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	err := execCtx.BeforeSideEffect(ctx)
	if err != nil {
		return err
	}

	audio, err := execCtx.Services.LLM.Speech(ctx, protocol.SpeechRequest{
		Model: DefaultSpeechModel,
		Voice: voice,
		Input: text,
	})
	if err != nil {
		return &protocol.ExternalError{NodeID: node.ID, Service: "openai", Err: err}
	}

	return execCtx.Send(ctx, node, models.OutboundMessage{Type: models.MessageAudio, Text: text, Audio: audio})
}

// routeToolCall stores the call arguments and picks the tool's route. A call
// to an unknown tool, or with arguments that do not satisfy the tool's
// parameter schema, follows the error handle.
func routeToolCall(execCtx *protocol.ExecutionContext, node *models.Node, data *models.OpenAIData, call protocol.ToolCall) (protocol.Result, error) {
	index := -1

	for i, tool := range data.Tools {
		if tool.Name == call.Name {
			index = i

			break
		}
	}

	if index < 0 {
		execCtx.Logger.Warn("model called an unknown tool", "node_id", node.ID, "tool", call.Name)

		return protocol.Follow(models.HandleError), nil
	}

	tool := data.Tools[index]

	err := validateArguments(tool.Parameters, call.Arguments)
	if err != nil {
		execCtx.Logger.Warn("tool call rejected", "node_id", node.ID, "tool", call.Name, "error", err)
		execCtx.Record(models.RoleError, "tool_call", err.Error(), node.ID)

		return protocol.Follow(models.HandleError), nil
	}

	execCtx.SetVariable(data.VariableName, call.Arguments)
	execCtx.Record(models.RoleSystem, "tool_call", call.Name+" "+call.Arguments, node.ID)

	if tool.TargetNodeID != "" {
		return protocol.Jump(tool.TargetNodeID), nil
	}

	return protocol.Follow(models.ToolHandle(index)), nil
}

func validateArguments(parameters map[string]any, arguments string) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}

	if !json.Valid([]byte(arguments)) {
		return fmt.Errorf("%w: not valid JSON", ErrInvalidToolArguments)
	}

	if len(parameters) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(parameters), gojsonschema.NewStringLoader(arguments))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToolArguments, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidToolArguments, strings.Join(problems, "; "))
	}

	return nil
}

// conversation turns the prompt and the session history into model messages.
// Error entries are left out.
func conversation(prompt string, history []models.HistoryEntry) []protocol.ChatMessage {
	messages := make([]protocol.ChatMessage, 0, len(history)+1)

	if strings.TrimSpace(prompt) != "" {
		messages = append(messages, protocol.ChatMessage{Role: protocol.ChatRoleSystem, Content: prompt})
	}

	for _, entry := range history {
		if entry.Content == "" {
			continue
		}

		switch entry.Role {
		case models.RoleCustomer:
			messages = append(messages, protocol.ChatMessage{Role: protocol.ChatRoleUser, Content: entry.Content})
		case models.RoleBot:
			messages = append(messages, protocol.ChatMessage{Role: protocol.ChatRoleAssistant, Content: entry.Content})
		case models.RoleSystem:
			messages = append(messages, protocol.ChatMessage{Role: protocol.ChatRoleSystem, Content: entry.Content})
		}
	}

	return messages
}

func toolSpecs(tools []models.OpenAITool) []protocol.ToolSpec {
	if len(tools) == 0 {
		return nil
	}

	specs := make([]protocol.ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, protocol.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}

	return specs
}
