package registry

import (
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/nodes/agent"
	"github.com/dukex/chatflow/pkg/nodes/condition"
	"github.com/dukex/chatflow/pkg/nodes/control"
	"github.com/dukex/chatflow/pkg/nodes/customer"
	"github.com/dukex/chatflow/pkg/nodes/delay"
	"github.com/dukex/chatflow/pkg/nodes/input"
	"github.com/dukex/chatflow/pkg/nodes/message"
	"github.com/dukex/chatflow/pkg/nodes/openai"
	"github.com/dukex/chatflow/pkg/nodes/request"
	"github.com/dukex/chatflow/pkg/nodes/variable"
)

// RegisterDefaultNodes registers an executor for every built-in node type.
func (r *Registry) RegisterDefaultNodes() {
	// Structure
	r.RegisterNode(control.NewStartNode())
	r.RegisterNode(control.NewJumpToNode())
	r.RegisterNode(control.NewGroupNode())

	// Messages
	r.RegisterNode(message.NewTextNode())
	r.RegisterNode(message.NewSystemMessageNode())

	for _, t := range []models.NodeType{models.NodeTypeAudio, models.NodeTypeImage, models.NodeTypeVideo, models.NodeTypeDocument} {
		r.RegisterNode(message.NewMediaNode(t))
	}

	// Logic
	r.RegisterNode(delay.NewDelayNode())
	r.RegisterNode(variable.NewVariableNode())
	r.RegisterNode(condition.NewConditionNode())
	r.RegisterNode(input.NewInputNode())

	// Integrations
	r.RegisterNode(customer.NewUpdateCustomerNode())
	r.RegisterNode(openai.NewOpenAINode())
	r.RegisterNode(agent.NewAgentNode())
	r.RegisterNode(request.NewRequestNode())
}
