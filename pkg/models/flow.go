package models

import (
	"time"
)

// Flow is an authored conversation graph. Nodes and Edges are the published
// snapshot the runtime executes; DraftNodes and DraftEdges are edited freely
// and copied over on publish.
type Flow struct {
	ID              string        `json:"id"`
	OrganizationID  string        `json:"organization_id"`
	Name            string        `json:"name"                        validate:"required,min=1"`
	Nodes           []*Node       `json:"nodes"`
	Edges           []*Connection `json:"edges"`
	DraftNodes      []*Node       `json:"draft_nodes"`
	DraftEdges      []*Connection `json:"draft_edges"`
	Variables       []Variable    `json:"variables"`
	Viewport        Viewport      `json:"viewport"`
	IsPublished     bool          `json:"is_published"`
	PublishedAt     *time.Time    `json:"published_at,omitempty"`
	CreatedByPrompt string        `json:"created_by_prompt,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Viewport is the editor camera. The runtime ignores it.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Variable is a flow-scoped value interpolated as {{name}}.
type Variable struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	TestValue string `json:"testValue,omitempty"`
}

// Published returns the graph the runtime executes.
func (f *Flow) Published() *Graph {
	return &Graph{Nodes: f.Nodes, Edges: f.Edges}
}

// Draft returns the graph being edited.
func (f *Flow) Draft() *Graph {
	return &Graph{Nodes: f.DraftNodes, Edges: f.DraftEdges}
}

// Publish validates the draft and copies it into the published snapshot. The
// two snapshots never share nodes or edges.
func (f *Flow) Publish(now time.Time) error {
	draft := f.Draft()

	err := draft.ValidateForPublish()
	if err != nil {
		return err
	}

	published := draft.Clone()
	f.Nodes = published.Nodes
	f.Edges = published.Edges
	f.IsPublished = true
	f.PublishedAt = &now
	f.UpdatedAt = now

	return nil
}

// InitialVariables returns the design-time defaults a new session starts with.
// Variables without a name are incomplete and skipped.
func (f *Flow) InitialVariables() map[string]string {
	vars := make(map[string]string, len(f.Variables))

	for _, v := range f.Variables {
		if v.Name == "" {
			continue
		}

		vars[v.Name] = v.Value
	}

	return vars
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	clone := *f

	published := f.Published().Clone()
	clone.Nodes = published.Nodes
	clone.Edges = published.Edges

	draft := f.Draft().Clone()
	clone.DraftNodes = draft.Nodes
	clone.DraftEdges = draft.Edges

	if f.Variables != nil {
		clone.Variables = append([]Variable(nil), f.Variables...)
	}

	if f.PublishedAt != nil {
		at := *f.PublishedAt
		clone.PublishedAt = &at
	}

	return &clone
}
