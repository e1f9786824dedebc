// Package message provides the executors that deliver content: text, media and system messages.
package message

import (
	"github.com/dukex/chatflow/pkg/models"
)

// TextNode sends text, optionally split in paragraphs, with links and list menus.
type TextNode struct{}

func NewTextNode() *TextNode { return &TextNode{} }

func (n *TextNode) Type() models.NodeType { return models.NodeTypeText }

func (n *TextNode) Name() string { return "Text" }

func (n *TextNode) Description() string {
	return "Sends a text message. Can split paragraphs into separate messages, send links on their own and attach a list menu."
}

func (n *TextNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "Text",
		Properties: map[string]*models.Property{
			"label":           {Type: "string"},
			"text":            {Type: "string", Description: "Message text. Supports {{variable}} interpolation.", MinLength: models.Ptr(1)},
			"splitParagraphs": {Type: "boolean", Description: "Send one message per paragraph separated by a blank line.", Default: false},
			"extractLinks":    {Type: "boolean", Description: "Send every URL found in the text as its own message.", Default: false},
			"listMenu": {
				Type:     "object",
				Required: []string{"title", "buttonText", "sections"},
				Properties: map[string]*models.Property{
					"title":       {Type: "string"},
					"description": {Type: "string"},
					"buttonText":  {Type: "string"},
					"footer":      {Type: "string"},
					"sections":    {Type: "array", Items: &models.Property{Type: "object"}},
				},
			},
		},
		Required: []string{"text"},
	}
}

// MediaNode sends an audio, image, video or document.
type MediaNode struct {
	nodeType models.NodeType
}

func NewMediaNode(nodeType models.NodeType) *MediaNode {
	return &MediaNode{nodeType: nodeType}
}

func (n *MediaNode) Type() models.NodeType { return n.nodeType }

func (n *MediaNode) Name() string {
	switch n.nodeType {
	case models.NodeTypeAudio:
		return "Audio"
	case models.NodeTypeImage:
		return "Image"
	case models.NodeTypeVideo:
		return "Video"
	default:
		return "Document"
	}
}

func (n *MediaNode) Description() string {
	return "Sends a " + string(n.nodeType) + " file from a URL or an uploaded file."
}

func (n *MediaNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: n.Name(),
		Properties: map[string]*models.Property{
			"label":    {Type: "string"},
			"mediaUrl": {Type: "string", Description: "Supports {{variable}} interpolation."},
			"fileId":   {Type: "string"},
			"fileName": {Type: "string"},
			"caption":  {Type: "string"},
		},
	}
}

// SystemMessageNode adds context for the language model without messaging the customer.
type SystemMessageNode struct{}

func NewSystemMessageNode() *SystemMessageNode { return &SystemMessageNode{} }

func (n *SystemMessageNode) Type() models.NodeType { return models.NodeTypeSystemMessage }

func (n *SystemMessageNode) Name() string { return "System Message" }

func (n *SystemMessageNode) Description() string {
	return "Injects a message into the model context history. Never delivered to the customer."
}

func (n *SystemMessageNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "System Message",
		Properties: map[string]*models.Property{
			"label": {Type: "string"},
			"text":  {Type: "string"},
		},
		Required: []string{"text"},
	}
}
