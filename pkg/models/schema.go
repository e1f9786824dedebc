package models

// SchemaProvider is implemented by node executors that describe their configuration.
type SchemaProvider interface {
	GetSchema() *JSONSchema
}

// JSONSchema is the subset of JSON Schema used to describe node data payloads.
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property is a JSON Schema property.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []any                `json:"enum,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Format      string               `json:"format,omitempty"`
	Minimum     *float64             `json:"minimum,omitempty"`
	MinLength   *int                 `json:"minLength,omitempty"`
	MaxLength   *int                 `json:"maxLength,omitempty"`
	Pattern     string               `json:"pattern,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// NodeTypeDescriptor describes a node kind to API clients: its configuration
// schema and a sample of the handles it exposes.
type NodeTypeDescriptor struct {
	Type        NodeType    `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Schema      *JSONSchema `json:"schema"`
	Handles     []string    `json:"handles"`
}

// Ptr returns a pointer to v. Used to fill optional schema bounds.
func Ptr[T any](v T) *T {
	return &v
}
