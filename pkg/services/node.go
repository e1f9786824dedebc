package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/google/uuid"
)

// CreateNodeRequest represents the request to add a node to a flow draft.
type CreateNodeRequest struct {
	ID       string
	Type     models.NodeType
	Position models.Position
	Data     json.RawMessage
}

// UpdateNodeRequest represents the request to update a draft node. The type
// of a node never changes.
type UpdateNodeRequest struct {
	Position models.Position
	Data     json.RawMessage
}

// Node edits single nodes of a flow draft.
type Node struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewNode creates a new node service.
func NewNode(persistence persistence.Persistence, registry *registry.Registry) *Node {
	return &Node{
		persistence: persistence,
		registry:    registry,
	}
}

// NodeTypes describes every node type the runtime can execute.
func (n *Node) NodeTypes() []models.NodeTypeDescriptor {
	return n.registry.Descriptors()
}

// CreateNode adds a node to the draft of a flow.
func (n *Node) CreateNode(ctx context.Context, flowID string, req CreateNodeRequest) (*models.Node, error) {
	flow, err := n.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	if _, exists := flow.Draft().NodeByID(id); exists {
		return nil, fmt.Errorf("node %s: %w", id, ErrNodeExists)
	}

	node, err := n.decode(id, req.Type, req.Data)
	if err != nil {
		return nil, err
	}

	node.Position = req.Position
	flow.DraftNodes = append(flow.DraftNodes, node)

	err = n.save(ctx, flow)
	if err != nil {
		return nil, err
	}

	return node, nil
}

// GetNode retrieves a node of the draft of a flow.
func (n *Node) GetNode(ctx context.Context, flowID, nodeID string) (*models.Node, error) {
	flow, err := n.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	node, found := flow.Draft().NodeByID(nodeID)
	if !found {
		return nil, fmt.Errorf("node %s: %w", nodeID, models.ErrNodeNotFound)
	}

	return node, nil
}

// UpdateNode replaces the payload and position of a draft node.
func (n *Node) UpdateNode(ctx context.Context, flowID, nodeID string, req UpdateNodeRequest) (*models.Node, error) {
	flow, err := n.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	existing, found := flow.Draft().NodeByID(nodeID)
	if !found {
		return nil, fmt.Errorf("node %s: %w", nodeID, models.ErrNodeNotFound)
	}

	updated, err := n.decode(nodeID, existing.Type, req.Data)
	if err != nil {
		return nil, err
	}

	existing.Data = updated.Data
	existing.Position = req.Position

	err = n.save(ctx, flow)
	if err != nil {
		return nil, err
	}

	return existing, nil
}

// DeleteNode removes a draft node and every edge touching it.
func (n *Node) DeleteNode(ctx context.Context, flowID, nodeID string) error {
	flow, err := n.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return err
	}

	if _, found := flow.Draft().NodeByID(nodeID); !found {
		return fmt.Errorf("node %s: %w", nodeID, models.ErrNodeNotFound)
	}

	flow.DraftNodes = slices.DeleteFunc(flow.DraftNodes, func(node *models.Node) bool {
		return node.ID == nodeID
	})
	flow.DraftEdges = slices.DeleteFunc(flow.DraftEdges, func(edge *models.Connection) bool {
		return edge.Source == nodeID || edge.Target == nodeID
	})

	return n.save(ctx, flow)
}

func (n *Node) decode(id string, nodeType models.NodeType, raw json.RawMessage) (*models.Node, error) {
	data, err := models.NewNodeData(nodeType)
	if err != nil {
		return nil, NewValidationError("decode", "UNKNOWN_NODE_TYPE", err.Error(), ErrUnknownNodeType)
	}

	if len(raw) > 0 {
		err = json.Unmarshal(raw, data)
		if err != nil {
			return nil, NewValidationError("decode", "INVALID_NODE_DATA",
				fmt.Sprintf("invalid %s data: %v", nodeType, err), ErrInvalidRequest)
		}
	}

	node := &models.Node{ID: id, Type: nodeType, Data: data}

	err = n.registry.ValidateNode(node)
	if err != nil {
		return nil, err
	}

	return node, nil
}

func (n *Node) save(ctx context.Context, flow *models.Flow) error {
	err := flow.Draft().Validate()
	if err != nil {
		return err
	}

	flow.UpdatedAt = time.Now().UTC()

	err = n.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return fmt.Errorf("failed to save flow %s: %w", flow.ID, err)
	}

	return nil
}
