// Package request provides the HTTP request node that maps response fields into variables.
package request

import (
	"net/http"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 2
)

// RequestNode performs an HTTP call. Network failures and 5xx responses are
// retried with exponential backoff; other failures are returned at once.
type RequestNode struct {
	client          *http.Client
	maxRetries      uint64
	initialInterval time.Duration
}

// Option configures a RequestNode.
type Option func(*RequestNode)

// WithClient sets the HTTP client used for requests.
func WithClient(client *http.Client) Option {
	return func(n *RequestNode) { n.client = client }
}

// WithRetries sets the number of retries after the first attempt and the
// first backoff interval.
func WithRetries(maxRetries uint64, initialInterval time.Duration) Option {
	return func(n *RequestNode) {
		n.maxRetries = maxRetries
		n.initialInterval = initialInterval
	}
}

func NewRequestNode(opts ...Option) *RequestNode {
	n := &RequestNode{
		client:          &http.Client{Timeout: defaultTimeout},
		maxRetries:      defaultMaxRetries,
		initialInterval: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

func (n *RequestNode) Type() models.NodeType { return models.NodeTypeRequest }

func (n *RequestNode) Name() string { return "HTTP Request" }

func (n *RequestNode) Description() string {
	return "Calls an HTTP endpoint and copies values from the JSON response into variables."
}

func (n *RequestNode) Schema() *models.JSONSchema {
	keyValue := &models.Property{
		Type: "object",
		Properties: map[string]*models.Property{
			"key":   {Type: "string"},
			"value": {Type: "string"},
		},
	}

	return &models.JSONSchema{
		Type:  "object",
		Title: "HTTP Request",
		Properties: map[string]*models.Property{
			"label":    {Type: "string"},
			"method":   {Type: "string", Enum: []any{"GET", "POST", "PUT", "PATCH", "DELETE"}, Default: "GET"},
			"url":      {Type: "string", Description: "Absolute http(s) URL. Supports {{variable}} interpolation."},
			"headers":  {Type: "array", Items: keyValue},
			"params":   {Type: "array", Items: keyValue},
			"body":     {Type: "string"},
			"bodyType": {Type: "string", Enum: []any{"none", "json", "form", "text"}},
			"variableMappings": {
				Type: "array",
				Items: &models.Property{
					Type: "object",
					Properties: map[string]*models.Property{
						"variable": {Type: "string"},
						"jsonPath": {Type: "string", Description: "JSONPath such as $.data.id, or a dotted path such as data.id."},
					},
				},
			},
		},
		Required: []string{"url"},
	}
}
