package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	ids []string
}

func (r *recordingInvalidator) Invalidate(flowID string) {
	r.ids = append(r.ids, flowID)
}

func newStore(t *testing.T) persistence.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func newRegistry() *registry.Registry {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultNodes()

	return reg
}

func greetingDraft() DraftRequest {
	return DraftRequest{
		Name:           "Greeting",
		OrganizationID: "org-1",
		Nodes: []*models.Node{
			testutil.StartNode("start"),
			testutil.TextNode("hello", "Hello {{customer.name}}"),
		},
		Edges: []*models.Connection{testutil.Edge("start", models.HandleDefault, "hello")},
	}
}

func TestFlow_Create(t *testing.T) {
	ctx := context.Background()
	service := NewFlow(newStore(t), nil)

	t.Run("stores an unpublished draft", func(t *testing.T) {
		req := greetingDraft()
		req.Variables = []models.Variable{{ID: "a", Name: "Plan"}, {ID: "b", Name: "plan"}}

		flow, err := service.Create(ctx, req)
		require.NoError(t, err)

		assert.NotEmpty(t, flow.ID)
		assert.False(t, flow.IsPublished)
		assert.Empty(t, flow.Nodes, "nothing is published yet")
		assert.Len(t, flow.DraftNodes, 2)
		assert.Equal(t, "plan", flow.Variables[0].Name)
		assert.Empty(t, flow.Variables[1].Name, "duplicate names are cleared")

		stored, err := service.FetchByID(ctx, flow.ID)
		require.NoError(t, err)
		assert.Equal(t, flow.Name, stored.Name)
	})

	t.Run("accepts an empty draft", func(t *testing.T) {
		flow, err := service.Create(ctx, DraftRequest{Name: "Empty", OrganizationID: "org-1"})
		require.NoError(t, err)
		assert.Empty(t, flow.DraftNodes)
	})

	t.Run("requires a name", func(t *testing.T) {
		req := greetingDraft()
		req.Name = "  "

		_, err := service.Create(ctx, req)
		require.ErrorIs(t, err, ErrFlowNameRequired)
		assert.True(t, IsValidationError(err))
	})

	t.Run("rejects a structurally broken draft", func(t *testing.T) {
		req := greetingDraft()
		req.Nodes = append(req.Nodes, testutil.StartNode("second-start"))

		_, err := service.Create(ctx, req)
		require.ErrorIs(t, err, models.ErrMultipleStartNodes)
		assert.True(t, IsValidationError(err))
	})
}

func TestFlow_UpdateDraft_KeepsPublishedGraph(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	service := NewFlow(store, nil)
	publishing := NewPublishing(store, newRegistry(), nil)

	flow, err := service.Create(ctx, greetingDraft())
	require.NoError(t, err)

	_, err = publishing.Publish(ctx, flow.ID)
	require.NoError(t, err)

	req := greetingDraft()
	req.Nodes = append(req.Nodes, testutil.TextNode("bye", "Bye"))
	req.Edges = append(req.Edges, testutil.Edge("hello", models.HandleDefault, "bye"))

	updated, err := service.UpdateDraft(ctx, flow.ID, req)
	require.NoError(t, err)

	assert.Len(t, updated.DraftNodes, 3)
	assert.Len(t, updated.Nodes, 2, "the published snapshot only changes on publish")
	assert.True(t, updated.IsPublished)

	_, err = service.UpdateDraft(ctx, "missing", req)
	require.ErrorIs(t, err, persistence.ErrFlowNotFound)
}

func TestFlow_List(t *testing.T) {
	ctx := context.Background()
	service := NewFlow(newStore(t), nil)

	for _, org := range []string{"org-1", "org-1", "org-2"} {
		req := greetingDraft()
		req.OrganizationID = org

		_, err := service.Create(ctx, req)
		require.NoError(t, err)
	}

	flows, err := service.List(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, flows, 2)

	flows, err = service.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, flows, 3)
}

func TestFlow_Delete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	invalidator := &recordingInvalidator{}
	service := NewFlow(store, invalidator)
	triggers := NewTrigger(store)

	flow, err := service.Create(ctx, greetingDraft())
	require.NoError(t, err)

	trigger, err := triggers.Create(ctx, &models.Trigger{FlowID: flow.ID, Type: models.TriggerTypeFirstContact, IsActive: true})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, flow.ID))

	_, err = service.FetchByID(ctx, flow.ID)
	require.ErrorIs(t, err, persistence.ErrFlowNotFound)

	_, err = triggers.FetchByID(ctx, trigger.ID)
	require.ErrorIs(t, err, persistence.ErrTriggerNotFound)

	assert.Equal(t, []string{flow.ID}, invalidator.ids)

	require.ErrorIs(t, service.Delete(ctx, flow.ID), persistence.ErrFlowNotFound)
}

func TestFlow_HealthCheck(t *testing.T) {
	message, ok := NewFlow(newStore(t), nil).HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	message, ok = NewFlow(nil, nil).HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", message)
}

func TestPublishing_Publish(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name      string
		draft     func() DraftRequest
		wantErr   error
		validates bool
	}{
		{
			name:  "valid draft",
			draft: greetingDraft,
		},
		{
			name:      "empty draft",
			draft:     func() DraftRequest { return DraftRequest{Name: "Empty"} },
			wantErr:   models.ErrNoStartNode,
			validates: true,
		},
		{
			name: "loop that never waits",
			draft: func() DraftRequest {
				req := greetingDraft()
				req.Edges = append(req.Edges, testutil.Edge("hello", models.HandleDefault, "start"))

				return req
			},
			validates: true,
		},
		{
			name: "node payload outside its schema",
			draft: func() DraftRequest {
				req := greetingDraft()
				req.Nodes = append(req.Nodes, testutil.CreateTestNode("wait", models.NodeTypeDelay, &models.DelayData{DelaySeconds: -5}))

				return req
			},
			wantErr:   registry.ErrInvalidConfig,
			validates: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			invalidator := &recordingInvalidator{}
			flows := NewFlow(store, nil)
			publishing := NewPublishing(store, newRegistry(), invalidator)

			flow, err := flows.Create(ctx, tc.draft())
			require.NoError(t, err)

			published, err := publishing.Publish(ctx, flow.ID)
			if tc.validates {
				require.Error(t, err)
				assert.True(t, IsValidationError(err), "got %v", err)

				if tc.wantErr != nil {
					require.ErrorIs(t, err, tc.wantErr)
				}

				assert.Empty(t, invalidator.ids)

				return
			}

			require.NoError(t, err)
			assert.True(t, published.IsPublished)
			assert.NotNil(t, published.PublishedAt)
			assert.Len(t, published.Nodes, len(published.DraftNodes))
			assert.NotSame(t, published.Nodes[0], published.DraftNodes[0], "snapshots never share nodes")
			assert.Equal(t, []string{flow.ID}, invalidator.ids)

			stored, err := flows.FetchByID(ctx, flow.ID)
			require.NoError(t, err)
			assert.True(t, stored.IsPublished)

			next, wired := stored.Published().Next("start", models.HandleDefault)
			assert.True(t, wired)
			assert.Equal(t, "hello", next)
		})
	}

	t.Run("unknown flow", func(t *testing.T) {
		_, err := NewPublishing(newStore(t), newRegistry(), nil).Publish(ctx, "missing")
		require.ErrorIs(t, err, persistence.ErrFlowNotFound)
	})

	t.Run("trigger of another organization", func(t *testing.T) {
		store := newStore(t)

		flow, err := NewFlow(store, nil).Create(ctx, greetingDraft())
		require.NoError(t, err)

		require.NoError(t, store.TriggerRepository().Save(ctx, &models.Trigger{
			ID:             "stray",
			FlowID:         flow.ID,
			OrganizationID: "org-2",
			Type:           models.TriggerTypeFirstContact,
			IsActive:       true,
		}))

		_, err = NewPublishing(store, newRegistry(), nil).Publish(ctx, flow.ID)
		require.ErrorIs(t, err, ErrTriggerOrganization)
		assert.True(t, IsConflictError(err))
	})
}

func TestNode_CRUD(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	flows := NewFlow(store, nil)
	nodes := NewNode(store, newRegistry())

	flow, err := flows.Create(ctx, greetingDraft())
	require.NoError(t, err)

	created, err := nodes.CreateNode(ctx, flow.ID, CreateNodeRequest{
		Type:     models.NodeTypeDelay,
		Position: models.Position{X: 10, Y: 20},
		Data:     json.RawMessage(`{"delaySeconds": 30}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 30, created.Data.(*models.DelayData).DelaySeconds)

	fetched, err := nodes.GetNode(ctx, flow.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Position{X: 10, Y: 20}, fetched.Position)

	updated, err := nodes.UpdateNode(ctx, flow.ID, created.ID, UpdateNodeRequest{
		Data: json.RawMessage(`{"delaySeconds": 5}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Data.(*models.DelayData).DelaySeconds)

	_, err = nodes.UpdateNode(ctx, flow.ID, created.ID, UpdateNodeRequest{
		Data: json.RawMessage(`{"delaySeconds": -1}`),
	})
	require.ErrorIs(t, err, registry.ErrInvalidConfig)

	require.NoError(t, nodes.DeleteNode(ctx, flow.ID, "hello"))

	stored, err := flows.FetchByID(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, stored.DraftNodes, 2)
	assert.Empty(t, stored.DraftEdges, "edges touching the node are removed")

	_, err = nodes.GetNode(ctx, flow.ID, "hello")
	require.ErrorIs(t, err, models.ErrNodeNotFound)
}

func TestNode_CreateNode_Rejects(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	flows := NewFlow(store, nil)
	nodes := NewNode(store, newRegistry())

	flow, err := flows.Create(ctx, greetingDraft())
	require.NoError(t, err)

	_, err = nodes.CreateNode(ctx, flow.ID, CreateNodeRequest{ID: "hello", Type: models.NodeTypeText})
	require.ErrorIs(t, err, ErrNodeExists)
	assert.True(t, IsConflictError(err))

	_, err = nodes.CreateNode(ctx, flow.ID, CreateNodeRequest{Type: "carousel"})
	require.ErrorIs(t, err, ErrUnknownNodeType)
	assert.True(t, IsValidationError(err))

	_, err = nodes.CreateNode(ctx, flow.ID, CreateNodeRequest{Type: models.NodeTypeText, Data: json.RawMessage(`{"text": 5}`)})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = nodes.CreateNode(ctx, flow.ID, CreateNodeRequest{Type: models.NodeTypeStart})
	require.ErrorIs(t, err, models.ErrMultipleStartNodes)

	assert.Len(t, nodes.NodeTypes(), len(models.NodeTypes))
}

func TestTrigger_Create(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	flows := NewFlow(store, nil)
	triggers := NewTrigger(store)

	flow, err := flows.Create(ctx, greetingDraft())
	require.NoError(t, err)

	t.Run("inherits the organization of the flow", func(t *testing.T) {
		trigger, err := triggers.Create(ctx, &models.Trigger{
			FlowID:   flow.ID,
			Type:     models.TriggerTypeFirstContact,
			IsActive: true,
			Conditions: models.TriggerConditions{
				Rules: []models.TriggerRule{models.NewChannelRule("r1", "whatsapp")},
			},
		})
		require.NoError(t, err)

		assert.NotEmpty(t, trigger.ID)
		assert.Equal(t, "org-1", trigger.OrganizationID)
		assert.Equal(t, models.OperatorAnd, trigger.Conditions.Operator)
		assert.False(t, trigger.CreatedAt.IsZero())
	})

	testCases := []struct {
		name    string
		trigger *models.Trigger
		wantErr error
	}{
		{
			name:    "another organization",
			trigger: &models.Trigger{FlowID: flow.ID, OrganizationID: "org-2", Type: models.TriggerTypeFirstContact},
			wantErr: ErrTriggerOrganization,
		},
		{
			name:    "unknown flow",
			trigger: &models.Trigger{FlowID: "missing", Type: models.TriggerTypeFirstContact},
			wantErr: persistence.ErrFlowNotFound,
		},
		{
			name:    "inactivity trigger without inactivity rule",
			trigger: &models.Trigger{FlowID: flow.ID, Type: models.TriggerTypeInactivity},
			wantErr: ErrInvalidTriggerRule,
		},
		{
			name: "non positive inactivity minutes",
			trigger: &models.Trigger{
				FlowID: flow.ID,
				Type:   models.TriggerTypeInactivity,
				Conditions: models.TriggerConditions{
					Rules: []models.TriggerRule{models.NewInactivityRule("r1", models.InactivityCustomer, 0)},
				},
			},
			wantErr: ErrInvalidTriggerRule,
		},
		{
			name: "unknown timezone",
			trigger: &models.Trigger{
				FlowID: flow.ID,
				Type:   models.TriggerTypeFirstContact,
				Conditions: models.TriggerConditions{
					Rules: []models.TriggerRule{models.NewScheduleRule("r1", "Mars/Olympus")},
				},
			},
			wantErr: ErrInvalidTriggerRule,
		},
		{
			name:    "nil trigger",
			wantErr: ErrInvalidRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := triggers.Create(ctx, tc.trigger)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestTrigger_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	flows := NewFlow(store, nil)
	triggers := NewTrigger(store)

	flow, err := flows.Create(ctx, greetingDraft())
	require.NoError(t, err)

	first, err := triggers.Create(ctx, &models.Trigger{FlowID: flow.ID, Type: models.TriggerTypeFirstContact})
	require.NoError(t, err)

	_, err = triggers.Create(ctx, &models.Trigger{FlowID: flow.ID, Type: models.TriggerTypeFirstContact, Priority: 3})
	require.NoError(t, err)

	listed, err := triggers.ListByFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	require.NoError(t, triggers.Delete(ctx, first.ID))
	require.ErrorIs(t, triggers.Delete(ctx, first.ID), persistence.ErrTriggerNotFound)

	listed, err = triggers.ListByFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	_, err = triggers.ListByFlow(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrFlowNotFound)
}

type fakeCanceller struct {
	sessions persistence.SessionRepository
	calls    []string
}

func (f *fakeCanceller) Cancel(ctx context.Context, id string) error {
	f.calls = append(f.calls, id)

	session, err := f.sessions.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = session.End(models.SessionStatusInactive, testutil.Epoch)
	if err != nil {
		return err
	}

	return f.sessions.Save(ctx, session)
}

func TestSession_Cancel(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	canceller := &fakeCanceller{sessions: store.SessionRepository()}
	service := NewSession(store, canceller)

	flow := testutil.CreateTestFlow(nil, nil)
	require.NoError(t, store.FlowRepository().Save(ctx, flow))

	session := testutil.CreateTestSession(flow)
	require.NoError(t, store.SessionRepository().Save(ctx, session))

	active, err := service.ActiveByChat(ctx, session.ChatID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, active.ID)

	cancelled, err := service.Cancel(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusInactive, cancelled.Status)
	assert.Equal(t, []string{session.ID}, canceller.calls)

	_, err = service.Cancel(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionEnded)
	assert.True(t, IsConflictError(err))
	assert.Len(t, canceller.calls, 1)

	_, err = service.Cancel(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrSessionNotFound)
}
