// Package openai implements protocol.LLMClient on top of the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukex/chatflow/pkg/protocol"
	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var ErrEmptyCompletion = errors.New("completion has no choices")

type completeFunc func(ctx context.Context, params sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)

type speechFunc func(ctx context.Context, params sdk.AudioSpeechNewParams, opts ...option.RequestOption) (*http.Response, error)

type Client struct {
	logger   *slog.Logger
	complete completeFunc
	speech   speechFunc
}

// NewClient builds a client from SDK request options such as
// option.WithAPIKey and option.WithBaseURL.
func NewClient(logger *slog.Logger, opts ...option.RequestOption) *Client {
	client := sdk.NewClient(opts...)

	return &Client{
		logger:   logger.With("module", "llm_openai"),
		complete: client.Chat.Completions.New,
		speech:   client.Audio.Speech.New,
	}
}

func (c *Client) Complete(ctx context.Context, req protocol.CompletionRequest) (*protocol.Completion, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(req.Model),
		Messages: messages(req.Messages),
	}

	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}

	for _, t := range req.Tools {
		fn := sdk.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: sdk.FunctionParameters(t.Parameters),
		}

		if t.Description != "" {
			fn.Description = sdk.String(t.Description)
		}

		params.Tools = append(params.Tools, sdk.ChatCompletionToolParam{Function: fn})
	}

	c.logger.DebugContext(ctx, "requesting completion", "model", req.Model, "messages", len(req.Messages), "tools", len(req.Tools))

	completion, err := c.complete(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	message := completion.Choices[0].Message
	result := &protocol.Completion{Content: message.Content}

	for _, call := range message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, protocol.ToolCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	return result, nil
}

func (c *Client) Speech(ctx context.Context, req protocol.SpeechRequest) ([]byte, error) {
	resp, err := c.speech(ctx, sdk.AudioSpeechNewParams{
		Input: req.Input,
		Model: sdk.SpeechModel(req.Model),
		Voice: sdk.AudioSpeechNewParamsVoice(req.Voice),
	})
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}

	return audio, nil
}

func messages(in []protocol.ChatMessage) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(in))

	for _, m := range in {
		switch m.Role {
		case protocol.ChatRoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case protocol.ChatRoleAssistant:
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}

	return out
}
