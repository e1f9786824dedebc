package control

import (
	"context"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartNode_Execute(t *testing.T) {
	start := testutil.StartNode("s")
	execCtx, _ := testutil.NewExecutionContext(testutil.CreateTestFlow([]*models.Node{start}, nil), protocol.Services{})

	result, err := NewStartNode().Execute(context.Background(), execCtx, start)
	require.NoError(t, err)
	assert.Equal(t, models.HandleDefault, result.Handle)
}

func TestJumpToNode_Execute(t *testing.T) {
	jump := testutil.CreateTestNode("j", models.NodeTypeJumpTo, &models.JumpToData{TargetNodeID: "menu"})
	menu := testutil.TextNode("menu", "Menu")
	execCtx, _ := testutil.NewExecutionContext(testutil.CreateTestFlow([]*models.Node{jump, menu}, nil), protocol.Services{})

	result, err := NewJumpToNode().Execute(context.Background(), execCtx, jump)
	require.NoError(t, err)
	assert.Equal(t, "menu", result.JumpTo)
	assert.Empty(t, result.Handle)
}

func TestJumpToNode_Execute_InvalidTarget(t *testing.T) {
	testCases := []struct {
		name   string
		target string
	}{
		{"empty target", ""},
		{"missing target", "ghost"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			jump := testutil.CreateTestNode("j", models.NodeTypeJumpTo, &models.JumpToData{TargetNodeID: tc.target})
			execCtx, _ := testutil.NewExecutionContext(testutil.CreateTestFlow([]*models.Node{jump}, nil), protocol.Services{})

			_, err := NewJumpToNode().Execute(context.Background(), execCtx, jump)
			require.Error(t, err)
			assert.True(t, protocol.IsConfigError(err))
		})
	}
}

func TestGroupNode_Execute(t *testing.T) {
	group := testutil.CreateTestNode("g", models.NodeTypeGroup, &models.GroupData{Color: "#fff"})
	execCtx, _ := testutil.NewExecutionContext(testutil.CreateTestFlow([]*models.Node{group}, nil), protocol.Services{})

	_, err := NewGroupNode().Execute(context.Background(), execCtx, group)
	require.ErrorIs(t, err, ErrNotExecutable)
	assert.Empty(t, group.Handles())
}
