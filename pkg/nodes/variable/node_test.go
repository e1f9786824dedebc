package variable

import (
	"context"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariableNode_Execute(t *testing.T) {
	execCtx, _ := testutil.NewExecutionContext(testutil.CreateTestFlow(nil, nil), protocol.Services{})
	execCtx.Session.Variables["first"] = "Ana"
	node := testutil.CreateTestNode("v", models.NodeTypeVariable, &models.VariableData{
		Name:  "greeting",
		Value: "Hello {{first}} from {{chat.channel}}",
	})

	result, err := NewVariableNode().Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, models.HandleDefault, result.Handle)
	assert.Equal(t, "Hello Ana from whatsapp", execCtx.Session.Variables["greeting"])
}

func TestVariableNode_Execute_Overwrites(t *testing.T) {
	execCtx, _ := testutil.NewExecutionContext(testutil.CreateTestFlow(nil, nil), protocol.Services{})
	execCtx.Session.Variables["count"] = "1"
	node := testutil.CreateTestNode("v", models.NodeTypeVariable, &models.VariableData{Name: "count", Value: "2"})

	_, err := NewVariableNode().Execute(context.Background(), execCtx, node)
	require.NoError(t, err)
	assert.Equal(t, "2", execCtx.Session.Variables["count"])
}

func TestVariableNode_Execute_MissingName(t *testing.T) {
	execCtx, _ := testutil.NewExecutionContext(testutil.CreateTestFlow(nil, nil), protocol.Services{})
	node := testutil.CreateTestNode("v", models.NodeTypeVariable, &models.VariableData{Value: "x"})

	_, err := NewVariableNode().Execute(context.Background(), execCtx, node)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrMissingField)
}
