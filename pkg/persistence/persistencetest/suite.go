// Package persistencetest holds the behaviour every persistence.Persistence
// implementation must show. Implementations run it from their own tests.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty persistence for one subtest.
type Factory func(t *testing.T) persistence.Persistence

// Run executes the repository contract against the implementation built by
// newPersistence.
func Run(t *testing.T, newPersistence Factory) {
	t.Helper()

	t.Run("FlowRoundTrip", func(t *testing.T) { testFlowRoundTrip(t, newPersistence(t)) })
	t.Run("FlowList", func(t *testing.T) { testFlowList(t, newPersistence(t)) })
	t.Run("FlowNotFound", func(t *testing.T) { testFlowNotFound(t, newPersistence(t)) })
	t.Run("TriggerOrder", func(t *testing.T) { testTriggerOrder(t, newPersistence(t)) })
	t.Run("TriggerDelete", func(t *testing.T) { testTriggerDelete(t, newPersistence(t)) })
	t.Run("SessionLookups", func(t *testing.T) { testSessionLookups(t, newPersistence(t)) })
	t.Run("SessionDue", func(t *testing.T) { testSessionDue(t, newPersistence(t)) })
	t.Run("SessionCancel", func(t *testing.T) { testSessionCancel(t, newPersistence(t)) })
}

func sampleFlow() *models.Flow {
	start := testutil.StartNode("start")
	ask := testutil.OptionsInputNode("ask", "choice", 60, "Sales", "Support")
	jump := testutil.CreateTestNode("jump", models.NodeTypeJumpTo, &models.JumpToData{TargetNodeID: "ask"})

	return testutil.CreateTestFlow(
		[]*models.Node{start, ask, jump},
		[]*models.Connection{
			testutil.Edge("start", "", "ask"),
			testutil.Edge("ask", models.OptionHandle(1), "jump"),
		},
		func(f *models.Flow) {
			f.ID = uuid.NewString()
			f.Viewport = models.Viewport{X: 10, Y: 20, Zoom: 1.5}
		},
		testutil.WithVariables(models.Variable{ID: "v1", Name: "plan", Value: "basic"}),
	)
}

func testFlowRoundTrip(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	repo := p.FlowRepository()
	flow := sampleFlow()

	require.NoError(t, repo.Save(ctx, flow))

	loaded, err := repo.GetByID(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.Name, loaded.Name)
	assert.Equal(t, flow.Viewport, loaded.Viewport)
	assert.Equal(t, flow.Variables, loaded.Variables)
	require.Len(t, loaded.Nodes, 3)
	assert.IsType(t, &models.InputData{}, loaded.Nodes[1].Data)
	assert.Equal(t, "ask", loaded.Nodes[2].Data.(*models.JumpToData).TargetNodeID)
	assert.Len(t, loaded.DraftEdges, 2)

	next, ok := loaded.Published().Next("ask", models.OptionHandle(1))
	assert.True(t, ok)
	assert.Equal(t, "jump", next)

	loaded.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, loaded))

	again, err := repo.GetByID(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", again.Name)
}

func testFlowList(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	repo := p.FlowRepository()

	a := sampleFlow()
	b := sampleFlow()
	b.OrganizationID = "org-2"

	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	all, err := repo.GetAll(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	org2, err := repo.GetAll(ctx, "org-2")
	require.NoError(t, err)
	require.Len(t, org2, 1)
	assert.Equal(t, b.ID, org2[0].ID)
}

func testFlowNotFound(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	repo := p.FlowRepository()

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsFlowNotFound(err))

	flow := sampleFlow()
	require.NoError(t, repo.Save(ctx, flow))
	require.NoError(t, repo.Delete(ctx, flow.ID))

	_, err = repo.GetByID(ctx, flow.ID)
	assert.True(t, persistence.IsFlowNotFound(err))

	err = repo.Delete(ctx, flow.ID)
	assert.True(t, persistence.IsFlowNotFound(err))
}

func newTrigger(flowID string, createdAt time.Time, active bool) *models.Trigger {
	return &models.Trigger{
		ID:             uuid.NewString(),
		FlowID:         flowID,
		OrganizationID: "org-1",
		Type:           models.TriggerTypeFirstContact,
		Conditions: models.TriggerConditions{
			Operator: models.OperatorAnd,
			Rules:    []models.TriggerRule{models.NewChannelRule("r1", "whatsapp")},
		},
		IsActive:  active,
		CreatedAt: createdAt,
	}
}

func testTriggerOrder(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	flows := p.FlowRepository()
	repo := p.TriggerRepository()

	flow := sampleFlow()
	require.NoError(t, flows.Save(ctx, flow))

	second := newTrigger(flow.ID, testutil.Epoch.Add(time.Minute), true)
	first := newTrigger(flow.ID, testutil.Epoch, true)
	inactive := newTrigger(flow.ID, testutil.Epoch, false)
	inactivity := newTrigger(flow.ID, testutil.Epoch, true)
	inactivity.Type = models.TriggerTypeInactivity

	for _, tr := range []*models.Trigger{second, first, inactive, inactivity} {
		require.NoError(t, repo.Save(ctx, tr))
	}

	active, err := repo.GetActive(ctx, "org-1", models.TriggerTypeFirstContact)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, second.ID, active[1].ID)
	assert.Equal(t, []string{"whatsapp"}, mustChannels(t, active[0]))

	anyOrg, err := repo.GetActive(ctx, "", models.TriggerTypeInactivity)
	require.NoError(t, err)
	assert.Len(t, anyOrg, 1)

	byFlow, err := repo.GetByFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, byFlow, 4)
}

func mustChannels(t *testing.T, tr *models.Trigger) []string {
	t.Helper()

	params, err := tr.Conditions.Rules[0].ChannelParams()
	require.NoError(t, err)

	return params.Channels
}

func testTriggerDelete(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	flows := p.FlowRepository()
	repo := p.TriggerRepository()

	flow := sampleFlow()
	require.NoError(t, flows.Save(ctx, flow))

	tr := newTrigger(flow.ID, testutil.Epoch, true)
	require.NoError(t, repo.Save(ctx, tr))

	loaded, err := repo.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.FlowID, loaded.FlowID)

	require.NoError(t, repo.Delete(ctx, tr.ID))

	_, err = repo.GetByID(ctx, tr.ID)
	assert.True(t, persistence.IsTriggerNotFound(err))
}

func newSession(flow *models.Flow, chatID string, createdAt time.Time) *models.FlowSession {
	s := testutil.CreateTestSession(flow)
	s.ChatID = chatID
	s.CurrentNodeID = "start"
	s.CreatedAt = createdAt
	s.UpdatedAt = createdAt

	return s
}

func testSessionLookups(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	flows := p.FlowRepository()
	repo := p.SessionRepository()

	flow := sampleFlow()
	require.NoError(t, flows.Save(ctx, flow))

	old := newSession(flow, "chat-1", testutil.Epoch)
	require.NoError(t, old.End(models.SessionStatusInactive, testutil.Epoch.Add(time.Minute)))

	current := newSession(flow, "chat-1", testutil.Epoch.Add(time.Hour))
	current.Variables["plan"] = "pro"
	current.Append(models.HistoryEntry{ID: "h1", Role: models.RoleCustomer, Content: "hi", Timestamp: testutil.Epoch})

	require.NoError(t, repo.Save(ctx, old))
	require.NoError(t, repo.Save(ctx, current))

	active, err := repo.GetActiveByChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, current.ID, active.ID)
	assert.Equal(t, "pro", active.Variables["plan"])
	require.Len(t, active.MessageHistory, 1)
	assert.Equal(t, "hi", active.MessageHistory[0].Content)

	latest, err := repo.GetLatestByFlowAndChat(ctx, flow.ID, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, current.ID, latest.ID)

	_, err = repo.GetActiveByChat(ctx, "chat-2")
	assert.True(t, persistence.IsSessionNotFound(err))

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsSessionNotFound(err))
}

func testSessionDue(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	flows := p.FlowRepository()
	repo := p.SessionRepository()

	flow := sampleFlow()
	require.NoError(t, flows.Save(ctx, flow))

	now := testutil.Epoch.Add(time.Hour)
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	delayed := newSession(flow, "chat-1", testutil.Epoch)
	delayed.Waiting = models.WaitDelay
	delayed.ResumeAt = &past

	timedOut := newSession(flow, "chat-2", testutil.Epoch)
	timedOut.Waiting = models.WaitInput
	timedOut.TimeoutAt = &past

	debouncing := newSession(flow, "chat-3", testutil.Epoch)
	debouncing.Waiting = models.WaitInput
	debouncing.TimeoutAt = &future
	debouncing.DebounceTimestamp = &past
	debouncing.PendingInput = []string{"hello"}

	waiting := newSession(flow, "chat-4", testutil.Epoch)
	waiting.Waiting = models.WaitInput
	waiting.TimeoutAt = &future

	ended := newSession(flow, "chat-5", testutil.Epoch)
	ended.Waiting = models.WaitDelay
	ended.ResumeAt = &past
	ended.Status = models.SessionStatusInactive

	for _, s := range []*models.FlowSession{delayed, timedOut, debouncing, waiting, ended} {
		require.NoError(t, repo.Save(ctx, s))
	}

	due, err := repo.GetDue(ctx, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, s := range due {
		ids = append(ids, s.ID)
	}

	assert.ElementsMatch(t, []string{delayed.ID, timedOut.ID, debouncing.ID}, ids)
}

func testSessionCancel(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	flows := p.FlowRepository()
	repo := p.SessionRepository()

	flow := sampleFlow()
	require.NoError(t, flows.Save(ctx, flow))

	s := newSession(flow, "chat-1", testutil.Epoch)
	require.NoError(t, repo.Save(ctx, s))

	requested, err := repo.IsCancelRequested(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, requested)

	require.NoError(t, repo.RequestCancel(ctx, s.ID))

	s.CurrentNodeID = "ask"
	require.NoError(t, repo.Save(ctx, s), "saving keeps the cancel request")

	requested, err = repo.IsCancelRequested(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, requested)

	err = repo.RequestCancel(ctx, uuid.NewString())
	assert.True(t, persistence.IsSessionNotFound(err))
}
