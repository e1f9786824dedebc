// Package openai provides the language model node: text generation, tool
// routing and speech synthesis.
package openai

import (
	"github.com/dukex/chatflow/pkg/models"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultSpeechModel = "tts-1"
	DefaultVoice       = "alloy"
)

type OpenAINode struct{}

func NewOpenAINode() *OpenAINode { return &OpenAINode{} }

func (n *OpenAINode) Type() models.NodeType { return models.NodeTypeOpenAI }

func (n *OpenAINode) Name() string { return "OpenAI" }

func (n *OpenAINode) Description() string {
	return "Generates a reply with a language model, routes tool calls, or synthesizes speech."
}

func (n *OpenAINode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "OpenAI",
		Properties: map[string]*models.Property{
			"label": {Type: "string"},
			"apiType": {
				Type:    "string",
				Enum:    []any{"textGeneration", "audioGeneration", "textToSpeech"},
				Default: "textGeneration",
			},
			"model":        {Type: "string", Default: DefaultModel},
			"temperature":  {Type: "number", Minimum: models.Ptr(0.0)},
			"maxTokens":    {Type: "integer", Minimum: models.Ptr(1.0)},
			"variableName": {Type: "string", Description: "Variable receiving the model response."},
			"promptId":     {Type: "string", Description: "Stored prompt used as the system message."},
			"prompt":       {Type: "string", Description: "Inline prompt used when promptId is empty. Supports {{variable}} interpolation."},
			"messageType":  {Type: "string", Enum: []any{"", "text", "audio"}},
			"voice":        {Type: "string", Default: DefaultVoice},
			"tools": {
				Type: "array",
				Items: &models.Property{
					Type: "object",
					Properties: map[string]*models.Property{
						"name":         {Type: "string"},
						"description":  {Type: "string"},
						"parameters":   {Type: "object", Description: "JSON schema of the tool arguments."},
						"targetNodeId": {Type: "string"},
					},
				},
			},
		},
		Required: []string{"apiType"},
	}
}
