package models

import (
	"fmt"
)

// Graph is one snapshot (published or draft) of a flow's nodes and edges.
type Graph struct {
	Nodes []*Node
	Edges []*Connection
}

// NodeByID returns the node with the given id.
func (g *Graph) NodeByID(id string) (*Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return nil, false
}

// StartNode returns the single entry node of the graph.
func (g *Graph) StartNode() (*Node, error) {
	var start *Node

	for _, n := range g.Nodes {
		if !n.IsStart() {
			continue
		}

		if start != nil {
			return nil, ErrMultipleStartNodes
		}

		start = n
	}

	if start == nil {
		return nil, ErrNoStartNode
	}

	return start, nil
}

// ViableConnections returns the edges the runtime may follow. Edges pointing
// at missing nodes, touching a group, or bound to a handle the source node no
// longer exposes are void and left out.
func (g *Graph) ViableConnections() []*Connection {
	viable := make([]*Connection, 0, len(g.Edges))

	for _, e := range g.Edges {
		if g.isViable(e) {
			viable = append(viable, e)
		}
	}

	return viable
}

func (g *Graph) isViable(e *Connection) bool {
	source, ok := g.NodeByID(e.Source)
	if !ok || source.Type == NodeTypeGroup {
		return false
	}

	target, ok := g.NodeByID(e.Target)
	if !ok || target.Type == NodeTypeGroup {
		return false
	}

	return source.HasHandle(e.SourceHandle)
}

// Next returns the node id wired to the given handle of nodeID. The second
// result is false when no viable edge leaves that handle.
func (g *Graph) Next(nodeID, handle string) (string, bool) {
	source, ok := g.NodeByID(nodeID)
	if !ok {
		return "", false
	}

	handle = source.normalizeHandle(handle)

	for _, e := range g.Edges {
		if e.Source != nodeID || source.normalizeHandle(e.SourceHandle) != handle {
			continue
		}

		if g.isViable(e) {
			return e.Target, true
		}
	}

	return "", false
}

// Validate checks the structural rules every saved graph must satisfy. A
// graph without nodes is valid and inert.
func (g *Graph) Validate() error {
	verr := &ValidationError{}

	if len(g.Nodes) == 0 {
		return nil
	}

	g.validateNodes(verr)
	g.validateEdges(verr)

	return verr.orNil()
}

// ValidateForPublish applies Validate plus the rules that only matter for an
// executable graph: a start node must exist and every loop must pass through
// a node that waits for the customer or a timer.
func (g *Graph) ValidateForPublish() error {
	if len(g.Nodes) == 0 {
		return &ValidationError{Problems: []error{ErrNoStartNode}}
	}

	verr := &ValidationError{}
	g.validateNodes(verr)
	g.validateEdges(verr)

	if cycle := g.tightCycle(); cycle != nil {
		verr.add(fmt.Errorf("loop without input or delay through nodes %v", cycle))
	}

	return verr.orNil()
}

func (g *Graph) validateNodes(verr *ValidationError) {
	seen := make(map[string]bool, len(g.Nodes))

	for _, n := range g.Nodes {
		if n.ID == "" {
			verr.add(fmt.Errorf("node with empty id"))

			continue
		}

		if seen[n.ID] {
			verr.add(fmt.Errorf("duplicate node id %s", n.ID))
		}

		seen[n.ID] = true

		if !n.Type.Valid() {
			verr.add(fmt.Errorf("node %s: %w: %q", n.ID, ErrUnknownNodeType, n.Type))
		}

		if jump, ok := n.Data.(*JumpToData); ok {
			target, found := g.NodeByID(jump.TargetNodeID)
			if !found || target.Type == NodeTypeGroup {
				verr.add(fmt.Errorf("node %s: jump target %q: %w", n.ID, jump.TargetNodeID, ErrNodeNotFound))
			}
		}

		if ai, ok := n.Data.(*OpenAIData); ok {
			for i, tool := range ai.Tools {
				if tool.TargetNodeID == "" {
					continue
				}

				if _, found := g.NodeByID(tool.TargetNodeID); !found {
					verr.add(fmt.Errorf("node %s: tool %d target %q: %w", n.ID, i, tool.TargetNodeID, ErrNodeNotFound))
				}
			}
		}
	}

	_, err := g.StartNode()
	if err != nil {
		verr.add(err)
	}
}

func (g *Graph) validateEdges(verr *ValidationError) {
	for _, e := range g.Edges {
		if _, ok := g.NodeByID(e.Source); !ok {
			verr.add(fmt.Errorf("edge %s: source %q: %w", e.ID, e.Source, ErrNodeNotFound))
		}

		if _, ok := g.NodeByID(e.Target); !ok {
			verr.add(fmt.Errorf("edge %s: target %q: %w", e.ID, e.Target, ErrNodeNotFound))
		}
	}
}

// tightCycle returns the nodes of a loop that never suspends, or nil.
func (g *Graph) tightCycle() []string {
	adjacency := make(map[string][]string, len(g.Nodes))

	for _, e := range g.ViableConnections() {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	for _, n := range g.Nodes {
		switch data := n.Data.(type) {
		case *JumpToData:
			adjacency[n.ID] = append(adjacency[n.ID], data.TargetNodeID)
		case *OpenAIData:
			for _, tool := range data.Tools {
				if tool.TargetNodeID != "" {
					adjacency[n.ID] = append(adjacency[n.ID], tool.TargetNodeID)
				}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(g.Nodes))
	stack := make([]string, 0, len(g.Nodes))

	var visit func(id string) []string

	visit = func(id string) []string {
		node, ok := g.NodeByID(id)
		if !ok || suspends(node) {
			return nil
		}

		switch state[id] {
		case done:
			return nil
		case visiting:
			for i, s := range stack {
				if s == id {
					return append([]string(nil), stack[i:]...)
				}
			}

			return []string{id}
		}

		state[id] = visiting
		stack = append(stack, id)

		for _, next := range adjacency[id] {
			if cycle := visit(next); cycle != nil {
				return cycle
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done

		return nil
	}

	for _, n := range g.Nodes {
		if cycle := visit(n.ID); cycle != nil {
			return cycle
		}
	}

	return nil
}

func suspends(n *Node) bool {
	switch data := n.Data.(type) {
	case *InputData:
		return true
	case *DelayData:
		return data.DelaySeconds > 0
	default:
		return false
	}
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	clone := &Graph{}

	if g.Nodes != nil {
		clone.Nodes = make([]*Node, 0, len(g.Nodes))
		for _, n := range g.Nodes {
			clone.Nodes = append(clone.Nodes, n.Clone())
		}
	}

	if g.Edges != nil {
		clone.Edges = make([]*Connection, 0, len(g.Edges))
		for _, e := range g.Edges {
			edge := *e
			clone.Edges = append(clone.Edges, &edge)
		}
	}

	return clone
}
