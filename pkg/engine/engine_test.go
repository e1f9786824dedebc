package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/mocks"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type harness struct {
	engine    *Engine
	store     *file.Persistence
	outbound  *mocks.MockOutbound
	publisher *mocks.RecordingPublisher
	clock     *clockwork.FakeClock
}

func newHarness(t *testing.T, customers protocol.CustomerService, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		store:     file.NewPersistence(t.TempDir()),
		outbound:  &mocks.MockOutbound{},
		publisher: &mocks.RecordingPublisher{},
		clock:     clockwork.NewFakeClockAt(testutil.Epoch),
	}

	h.outbound.On("Send", mock.Anything, mock.Anything).Return(nil).Maybe()

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultNodes()

	services := protocol.Services{Outbound: h.outbound}
	if customers != nil {
		services.Customers = customers
	}

	opts = append([]Option{WithClock(h.clock), WithPublisher(h.publisher)}, opts...)
	h.engine = New(slog.Default(), h.store, reg, services, opts...)

	return h
}

func (h *harness) saveFlow(t *testing.T, flow *models.Flow) *models.Flow {
	t.Helper()

	require.NoError(t, h.store.FlowRepository().Save(context.Background(), flow))

	return flow
}

func (h *harness) saveTrigger(t *testing.T, trigger *models.Trigger) *models.Trigger {
	t.Helper()

	if trigger.OrganizationID == "" {
		trigger.OrganizationID = "org-1"
	}

	trigger.IsActive = true

	require.NoError(t, h.store.TriggerRepository().Save(context.Background(), trigger))

	return trigger
}

func (h *harness) session(t *testing.T, id string) *models.FlowSession {
	t.Helper()

	session, err := h.store.SessionRepository().GetByID(context.Background(), id)
	require.NoError(t, err)

	return session
}

func (h *harness) activeSession(t *testing.T, chatID string) *models.FlowSession {
	t.Helper()

	session, err := h.store.SessionRepository().GetActiveByChat(context.Background(), chatID)
	require.NoError(t, err)

	return session
}

func (h *harness) texts() []string {
	sent := h.outbound.Sent()
	texts := make([]string, 0, len(sent))

	for _, msg := range sent {
		texts = append(texts, msg.Text)
	}

	return texts
}

func firstContactTrigger(flowID string, priority int) *models.Trigger {
	return &models.Trigger{
		FlowID:   flowID,
		Type:     models.TriggerTypeFirstContact,
		Priority: priority,
		Conditions: models.TriggerConditions{
			Operator: models.OperatorAnd,
			Rules:    []models.TriggerRule{models.NewChannelRule("channel", "whatsapp")},
		},
	}
}

func inbound(text string) models.InboundEvent {
	return models.InboundEvent{
		ID:             "message-1",
		OrganizationID: "org-1",
		ChatID:         "chat-1",
		CustomerID:     "customer-1",
		Channel:        "whatsapp",
		Text:           text,
		FirstContact:   true,
	}
}

// greetingFlow greets, asks for a reply and echoes it back.
func greetingFlow(timeout int, extra ...*models.Connection) *models.Flow {
	edges := []*models.Connection{
		testutil.Edge("start", models.HandleDefault, "welcome"),
		testutil.Edge("welcome", models.HandleDefault, "ask"),
		testutil.Edge("ask", models.HandleText, "echo"),
	}

	return testutil.CreateTestFlow(
		[]*models.Node{
			testutil.StartNode("start"),
			testutil.TextNode("welcome", "Welcome!"),
			testutil.TextInputNode("ask", "answer", timeout),
			testutil.TextNode("echo", "You said {{answer}}"),
			testutil.TextNode("nudge", "Are you there?"),
		},
		append(edges, extra...),
	)
}

func TestEngine_HandleInbound_StartsFlowAndWaitsForInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	flow := h.saveFlow(t, greetingFlow(0))
	trigger := h.saveTrigger(t, firstContactTrigger(flow.ID, 0))

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("hi")))

	session := h.activeSession(t, "chat-1")
	assert.Equal(t, flow.ID, session.FlowID)
	assert.Equal(t, trigger.ID, session.TriggerID)
	assert.Equal(t, "ask", session.CurrentNodeID)
	assert.Equal(t, models.WaitInput, session.Waiting)
	assert.Nil(t, session.TimeoutAt, "a zero timeout waits forever")
	assert.Equal(t, []string{"Welcome!"}, h.texts())

	require.NotEmpty(t, session.MessageHistory)
	assert.Equal(t, models.RoleCustomer, session.MessageHistory[0].Role)
	assert.Equal(t, "hi", session.MessageHistory[0].Content)

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("pizza")))

	processed, err := h.engine.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed, "the debounce window has not elapsed")

	h.clock.Advance(DefaultDebounceWindow)

	processed, err = h.engine.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	ended := h.session(t, session.ID)
	assert.Equal(t, models.SessionStatusInactive, ended.Status)
	assert.Equal(t, "pizza", ended.Variables["answer"])
	assert.Equal(t, []string{"Welcome!", "You said pizza"}, h.texts())
	assert.NotNil(t, ended.EndedAt)

	types := h.publisher.Types()
	require.NotEmpty(t, types)
	assert.Equal(t, events.SessionStartedEvent, types[0])
	assert.Equal(t, events.SessionEndedEvent, types[len(types)-1])
}

func TestEngine_HandleInbound_DebounceCoalescesMessages(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	flow := h.saveFlow(t, greetingFlow(0))
	h.saveTrigger(t, firstContactTrigger(flow.ID, 0))

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("hi")))

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("hello")))
	h.clock.Advance(time.Second)
	require.NoError(t, h.engine.HandleInbound(ctx, inbound("world")))

	waiting := h.activeSession(t, "chat-1")
	assert.Equal(t, []string{"hello", "world"}, waiting.PendingInput)
	require.NotNil(t, waiting.DebounceTimestamp)
	assert.Equal(t, testutil.Epoch.Add(time.Second+DefaultDebounceWindow), *waiting.DebounceTimestamp)

	h.clock.Advance(DefaultDebounceWindow - time.Second)

	processed, err := h.engine.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed, "each message restarts the window")

	h.clock.Advance(time.Second)

	processed, err = h.engine.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	ended := h.session(t, waiting.ID)
	assert.Equal(t, "hello\nworld", ended.Variables["answer"])
	assert.Empty(t, ended.PendingInput)
	assert.Equal(t, []string{"Welcome!", "You said hello\nworld"}, h.texts())
}

func TestEngine_HandleInbound_ZeroDebounceEvaluatesImmediately(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, WithDebounceWindow(0))
	flow := h.saveFlow(t, greetingFlow(0))
	h.saveTrigger(t, firstContactTrigger(flow.ID, 0))

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("hi")))
	session := h.activeSession(t, "chat-1")

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("tacos")))

	ended := h.session(t, session.ID)
	assert.Equal(t, models.SessionStatusInactive, ended.Status)
	assert.Equal(t, []string{"Welcome!", "You said tacos"}, h.texts())
}

func TestEngine_HandleInbound_NoMatchingTrigger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	flow := h.saveFlow(t, greetingFlow(0))
	h.saveTrigger(t, firstContactTrigger(flow.ID, 0))

	event := inbound("hi")
	event.Channel = "email"
	require.NoError(t, h.engine.HandleInbound(ctx, event))

	event = inbound("hi")
	event.FirstContact = false
	require.NoError(t, h.engine.HandleInbound(ctx, event))

	_, err := h.store.SessionRepository().GetActiveByChat(ctx, "chat-1")
	require.ErrorIs(t, err, persistence.ErrSessionNotFound)
	assert.Empty(t, h.outbound.Sent())
}

func TestEngine_HandleInbound_MissingChat(t *testing.T) {
	h := newHarness(t, nil)

	event := inbound("hi")
	event.ChatID = ""

	require.ErrorIs(t, h.engine.HandleInbound(context.Background(), event), ErrMissingChat)
}

func TestEngine_HandleInbound_RequiresOrganization(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	flow := h.saveFlow(t, greetingFlow(0))
	h.saveTrigger(t, firstContactTrigger(flow.ID, 0))

	event := inbound("hi")
	event.OrganizationID = ""

	err := h.engine.HandleInbound(ctx, event)
	require.ErrorIs(t, err, ErrMissingOrganization)
	assert.True(t, IsPermanent(err))

	_, err = h.store.SessionRepository().GetActiveByChat(ctx, "chat-1")
	require.ErrorIs(t, err, persistence.ErrSessionNotFound)
	assert.Empty(t, h.outbound.Sent())
}

func TestEngine_HandleInbound_OnlyOwnOrganizationTriggers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	flow := h.saveFlow(t, greetingFlow(0))

	other := firstContactTrigger(flow.ID, 0)
	other.OrganizationID = "org-2"
	h.saveTrigger(t, other)

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("hi")))

	_, err := h.store.SessionRepository().GetActiveByChat(ctx, "chat-1")
	require.ErrorIs(t, err, persistence.ErrSessionNotFound)
	assert.Empty(t, h.outbound.Sent())
}

func TestEngine_HandleInbound_RejectsOtherOrganizationOnActiveChat(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	flow := h.saveFlow(t, greetingFlow(0))
	h.saveTrigger(t, firstContactTrigger(flow.ID, 0))

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("hi")))

	event := inbound("pizza")
	event.OrganizationID = "org-2"

	err := h.engine.HandleInbound(ctx, event)
	require.ErrorIs(t, err, ErrOrganizationMismatch)

	active, err := h.store.SessionRepository().GetActiveByChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Empty(t, active.PendingInput)
	assert.Equal(t, models.WaitInput, active.Waiting)
}

func TestEngine_HandleInbound_HighestPriorityWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	low := h.saveFlow(t, testutil.CreateTestFlow(
		[]*models.Node{testutil.StartNode("start"), testutil.TextNode("hello", "low")},
		[]*models.Connection{testutil.Edge("start", models.HandleDefault, "hello")},
	))
	high := h.saveFlow(t, testutil.CreateTestFlow(
		[]*models.Node{testutil.StartNode("start"), testutil.TextNode("hello", "high")},
		[]*models.Connection{testutil.Edge("start", models.HandleDefault, "hello")},
	))

	h.saveTrigger(t, firstContactTrigger(low.ID, 1))
	h.saveTrigger(t, firstContactTrigger(high.ID, 5))

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("hi")))

	assert.Equal(t, []string{"high"}, h.texts())
}

func TestEngine_HandleInbound_MessageDuringDelayIsRecorded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	flow := h.saveFlow(t, testutil.CreateTestFlow(
		[]*models.Node{
			testutil.StartNode("start"),
			testutil.CreateTestNode("wait", models.NodeTypeDelay, &models.DelayData{DelaySeconds: 30}),
			testutil.TextNode("later", "later"),
		},
		[]*models.Connection{
			testutil.Edge("start", models.HandleDefault, "wait"),
			testutil.Edge("wait", models.HandleDefault, "later"),
		},
	))
	h.saveTrigger(t, firstContactTrigger(flow.ID, 0))

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("hi")))

	session := h.activeSession(t, "chat-1")
	assert.Equal(t, models.WaitDelay, session.Waiting)
	require.NotNil(t, session.ResumeAt)
	assert.Equal(t, testutil.Epoch.Add(30*time.Second), *session.ResumeAt)
	assert.Empty(t, h.outbound.Sent())

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("still there?")))

	session = h.activeSession(t, "chat-1")
	assert.Empty(t, session.PendingInput, "only input nodes buffer messages")
	assert.Equal(t, "still there?", session.MessageHistory[len(session.MessageHistory)-1].Content)

	h.clock.Advance(29 * time.Second)

	processed, err := h.engine.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)

	h.clock.Advance(time.Second)

	processed, err = h.engine.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	assert.Equal(t, []string{"later"}, h.texts())
	assert.Equal(t, models.SessionStatusInactive, h.session(t, session.ID).Status)
}

func TestEngine_InputTimeout(t *testing.T) {
	testCases := []struct {
		name       string
		edges      []*models.Connection
		wantStatus models.SessionStatus
		wantTexts  []string
	}{
		{
			name:       "wired timeout handle",
			edges:      []*models.Connection{testutil.Edge("ask", models.HandleTimeout, "nudge")},
			wantStatus: models.SessionStatusInactive,
			wantTexts:  []string{"Welcome!", "Are you there?"},
		},
		{
			name:       "unwired timeout handle",
			wantStatus: models.SessionStatusTimeout,
			wantTexts:  []string{"Welcome!"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, nil)
			flow := h.saveFlow(t, greetingFlow(60, tc.edges...))

			started, err := h.engine.Start(ctx, StartRequest{FlowID: flow.ID, ChatID: "chat-1", CustomerID: "customer-1"})
			require.NoError(t, err)
			require.NotNil(t, started.TimeoutAt)
			assert.Equal(t, testutil.Epoch.Add(time.Minute), *started.TimeoutAt)

			h.clock.Advance(time.Minute)

			processed, err := h.engine.ProcessDue(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, processed)

			ended := h.session(t, started.ID)
			assert.Equal(t, tc.wantStatus, ended.Status)
			assert.Equal(t, tc.wantTexts, h.texts())
		})
	}
}

func TestEngine_HandleInbound_AfterInputDeadline(t *testing.T) {
	testCases := []struct {
		name       string
		edges      []*models.Connection
		wantStatus models.SessionStatus
		wantTexts  []string
	}{
		{
			name:       "wired timeout handle",
			edges:      []*models.Connection{testutil.Edge("ask", models.HandleTimeout, "nudge")},
			wantStatus: models.SessionStatusInactive,
			wantTexts:  []string{"Welcome!", "Are you there?"},
		},
		{
			name:       "unwired timeout handle",
			wantStatus: models.SessionStatusTimeout,
			wantTexts:  []string{"Welcome!"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, nil)
			flow := h.saveFlow(t, greetingFlow(30, tc.edges...))
			h.saveTrigger(t, firstContactTrigger(flow.ID, 0))

			require.NoError(t, h.engine.HandleInbound(ctx, inbound("hi")))
			waiting := h.activeSession(t, "chat-1")

			h.clock.Advance(45 * time.Second)
			require.NoError(t, h.engine.HandleInbound(ctx, inbound("late")))

			ended := h.session(t, waiting.ID)
			assert.Equal(t, tc.wantStatus, ended.Status)
			assert.Empty(t, ended.Variables["answer"])
			assert.Equal(t, tc.wantTexts, h.texts())

			contents := make([]string, 0, len(ended.MessageHistory))
			for _, entry := range ended.MessageHistory {
				contents = append(contents, entry.Content)
			}

			assert.Contains(t, contents, "late", "the late message stays in history")

			h.clock.Advance(DefaultDebounceWindow)

			processed, err := h.engine.ProcessDue(ctx)
			require.NoError(t, err)
			assert.Zero(t, processed)
		})
	}
}

func TestEngine_HandleInbound_BufferedAnswerBeatsLateMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	flow := h.saveFlow(t, greetingFlow(30))
	h.saveTrigger(t, firstContactTrigger(flow.ID, 0))

	require.NoError(t, h.engine.HandleInbound(ctx, inbound("hi")))
	waiting := h.activeSession(t, "chat-1")

	h.clock.Advance(20 * time.Second)
	require.NoError(t, h.engine.HandleInbound(ctx, inbound("pizza")))

	h.clock.Advance(15 * time.Second)
	require.NoError(t, h.engine.HandleInbound(ctx, inbound("late")))

	ended := h.session(t, waiting.ID)
	assert.Equal(t, models.SessionStatusInactive, ended.Status)
	assert.Equal(t, "pizza", ended.Variables["answer"])
	assert.Equal(t, []string{"Welcome!", "You said pizza"}, h.texts())
}

var errStorageDown = errors.New("storage down")

// flakySessions fails the cancel lookup made right after a checkpoint save.
type flakySessions struct {
	persistence.SessionRepository
	failing atomic.Bool
}

func (s *flakySessions) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	if s.failing.Load() {
		return false, errStorageDown
	}

	return s.SessionRepository.IsCancelRequested(ctx, id)
}

type flakyStore struct {
	*file.Persistence
	sessions *flakySessions
}

func (s *flakyStore) SessionRepository() persistence.SessionRepository {
	return s.sessions
}

func TestEngine_ProcessDue_BufferedInputSurvivesInterruptedResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	sessions := &flakySessions{SessionRepository: h.store.SessionRepository()}
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultNodes()

	eng := New(slog.Default(), &flakyStore{Persistence: h.store, sessions: sessions}, reg,
		protocol.Services{Outbound: h.outbound}, WithClock(h.clock), WithPublisher(h.publisher))

	flow := h.saveFlow(t, greetingFlow(0))

	started, err := eng.Start(ctx, StartRequest{FlowID: flow.ID, ChatID: "chat-1", CustomerID: "customer-1"})
	require.NoError(t, err)

	require.NoError(t, eng.HandleInbound(ctx, inbound("pizza")))
	h.clock.Advance(DefaultDebounceWindow)

	sessions.failing.Store(true)

	_, err = eng.ProcessDue(ctx)
	require.ErrorIs(t, err, errStorageDown)

	interrupted := h.session(t, started.ID)
	assert.Equal(t, []string{"pizza"}, interrupted.PendingInput)
	assert.Equal(t, models.WaitInput, interrupted.Waiting)
	assert.True(t, interrupted.IsDue(h.clock.Now()))

	sessions.failing.Store(false)

	processed, err := eng.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	ended := h.session(t, started.ID)
	assert.Equal(t, "pizza", ended.Variables["answer"])
	assert.Empty(t, ended.PendingInput)
	assert.Equal(t, []string{"Welcome!", "You said pizza"}, h.texts())
}

func TestEngine_ConditionRouting(t *testing.T) {
	testCases := []struct {
		plan string
		want string
	}{
		{plan: "gold", want: "vip"},
		{plan: "silver", want: "regular"},
	}

	for _, tc := range testCases {
		t.Run(tc.plan, func(t *testing.T) {
			h := newHarness(t, nil)
			flow := h.saveFlow(t, testutil.CreateTestFlow(
				[]*models.Node{
					testutil.StartNode("start"),
					testutil.CreateTestNode("check", models.NodeTypeCondition, &models.ConditionData{
						Conditions: []models.Condition{{Variable: "{{plan}}", Operator: models.OperatorEqual, Value: "gold"}},
					}),
					testutil.TextNode("vip", "vip"),
					testutil.TextNode("regular", "regular"),
				},
				[]*models.Connection{
					testutil.Edge("start", models.HandleDefault, "check"),
					testutil.Edge("check", models.ConditionHandle(0), "vip"),
					testutil.Edge("check", models.HandleElse, "regular"),
				},
				testutil.WithVariables(models.Variable{ID: "v1", Name: "plan", Value: tc.plan}),
			))

			session, err := h.engine.Start(context.Background(), StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
			require.NoError(t, err)

			assert.Equal(t, []string{tc.want}, h.texts())
			assert.Equal(t, models.SessionStatusInactive, session.Status)
			assert.Equal(t, tc.plan, session.Variables["plan"])
		})
	}
}

func TestEngine_TextNode_SplitsParagraphs(t *testing.T) {
	h := newHarness(t, nil)
	flow := h.saveFlow(t, testutil.CreateTestFlow(
		[]*models.Node{
			testutil.StartNode("start"),
			testutil.CreateTestNode("intro", models.NodeTypeText, &models.TextData{
				Text:            "one\n\ntwo\n\nthree",
				SplitParagraphs: true,
			}),
		},
		[]*models.Connection{testutil.Edge("start", models.HandleDefault, "intro")},
	))

	session, err := h.engine.Start(context.Background(), StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "three"}, h.texts())

	bot := 0
	for _, entry := range session.MessageHistory {
		if entry.Role == models.RoleBot {
			bot++
		}
	}

	assert.Equal(t, 3, bot)
}

func TestEngine_NodeFailure(t *testing.T) {
	nodes := func() []*models.Node {
		return []*models.Node{
			testutil.StartNode("start"),
			testutil.CreateTestNode("call", models.NodeTypeRequest, &models.RequestData{Method: "GET"}),
			testutil.TextNode("sorry", "sorry"),
		}
	}

	t.Run("follows the error handle", func(t *testing.T) {
		h := newHarness(t, nil)
		flow := h.saveFlow(t, testutil.CreateTestFlow(nodes(), []*models.Connection{
			testutil.Edge("start", models.HandleDefault, "call"),
			testutil.Edge("call", models.HandleError, "sorry"),
		}))

		session, err := h.engine.Start(context.Background(), StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
		require.NoError(t, err)

		assert.Equal(t, []string{"sorry"}, h.texts())
		assert.Equal(t, models.SessionStatusInactive, session.Status)
		assert.Empty(t, session.Error)
		assert.Contains(t, h.publisher.Types(), events.NodeFailedEvent)

		failed := false
		for _, entry := range session.MessageHistory {
			failed = failed || (entry.Role == models.RoleError && entry.NodeID == "call")
		}

		assert.True(t, failed, "the failure is kept in history")
	})

	t.Run("ends the session without an error handle", func(t *testing.T) {
		h := newHarness(t, nil)
		flow := h.saveFlow(t, testutil.CreateTestFlow(nodes(), []*models.Connection{
			testutil.Edge("start", models.HandleDefault, "call"),
			testutil.Edge("call", models.HandleDefault, "sorry"),
		}))

		session, err := h.engine.Start(context.Background(), StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
		require.NoError(t, err)

		assert.Empty(t, h.outbound.Sent())
		assert.Equal(t, models.SessionStatusInactive, session.Status)
		assert.NotEmpty(t, session.Error)
		assert.Equal(t, "call", session.CurrentNodeID)

		errorEntries := 0
		for _, entry := range session.MessageHistory {
			if entry.Role == models.RoleError {
				errorEntries++
			}
		}

		assert.Equal(t, 1, errorEntries)
	})
}

func TestEngine_JumpTo(t *testing.T) {
	t.Run("continues at the target", func(t *testing.T) {
		h := newHarness(t, nil)
		flow := h.saveFlow(t, testutil.CreateTestFlow(
			[]*models.Node{
				testutil.StartNode("start"),
				testutil.CreateTestNode("jump", models.NodeTypeJumpTo, &models.JumpToData{TargetNodeID: "bye"}),
				testutil.TextNode("skipped", "skipped"),
				testutil.TextNode("bye", "bye"),
			},
			[]*models.Connection{testutil.Edge("start", models.HandleDefault, "jump")},
		))

		session, err := h.engine.Start(context.Background(), StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
		require.NoError(t, err)

		assert.Equal(t, []string{"bye"}, h.texts())
		assert.Equal(t, models.SessionStatusInactive, session.Status)
	})

	t.Run("a loop without waiting nodes hits the step limit", func(t *testing.T) {
		h := newHarness(t, nil, WithMaxSteps(10))
		flow := h.saveFlow(t, testutil.CreateTestFlow(
			[]*models.Node{
				testutil.StartNode("start"),
				testutil.CreateTestNode("jump", models.NodeTypeJumpTo, &models.JumpToData{TargetNodeID: "start"}),
			},
			[]*models.Connection{testutil.Edge("start", models.HandleDefault, "jump")},
		))

		session, err := h.engine.Start(context.Background(), StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
		require.NoError(t, err)

		assert.Equal(t, models.SessionStatusInactive, session.Status)
		assert.Contains(t, session.Error, ErrStepLimit.Error())
	})
}

func TestEngine_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects an unpublished flow", func(t *testing.T) {
		h := newHarness(t, nil)
		flow := h.saveFlow(t, greetingFlow(0))
		flow.IsPublished = false
		h.saveFlow(t, flow)

		_, err := h.engine.Start(ctx, StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
		require.ErrorIs(t, err, ErrFlowNotPublished)
	})

	t.Run("rejects a chat with an active session", func(t *testing.T) {
		h := newHarness(t, nil)
		flow := h.saveFlow(t, greetingFlow(0))

		_, err := h.engine.Start(ctx, StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
		require.NoError(t, err)

		_, err = h.engine.Start(ctx, StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
		require.ErrorIs(t, err, ErrSessionActive)
	})

	t.Run("requires a chat", func(t *testing.T) {
		h := newHarness(t, nil)

		_, err := h.engine.Start(ctx, StartRequest{FlowID: "flow"})
		require.ErrorIs(t, err, ErrMissingChat)
	})

	t.Run("unknown flow", func(t *testing.T) {
		h := newHarness(t, nil)

		_, err := h.engine.Start(ctx, StartRequest{FlowID: "missing", ChatID: "chat-1"})
		require.ErrorIs(t, err, persistence.ErrFlowNotFound)
	})
}

func TestEngine_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("ends a waiting session", func(t *testing.T) {
		h := newHarness(t, nil)
		flow := h.saveFlow(t, greetingFlow(60))

		started, err := h.engine.Start(ctx, StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
		require.NoError(t, err)

		require.NoError(t, h.engine.Cancel(ctx, started.ID))

		cancelled := h.session(t, started.ID)
		assert.Equal(t, models.SessionStatusInactive, cancelled.Status)
		assert.Contains(t, h.publisher.Types(), events.SessionCancelledEvent)

		h.clock.Advance(time.Hour)

		processed, err := h.engine.ProcessDue(ctx)
		require.NoError(t, err)
		assert.Zero(t, processed, "a cancelled session never resumes")
		assert.Equal(t, []string{"Welcome!"}, h.texts())

		require.NoError(t, h.engine.Cancel(ctx, started.ID), "cancelling twice is a no-op")
	})

	t.Run("stops a running session before its next side effect", func(t *testing.T) {
		h := newHarness(t, nil)
		h.outbound.ExpectedCalls = nil
		h.outbound.On("Send", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				msg := args.Get(1).(models.OutboundMessage)
				_ = h.store.SessionRepository().RequestCancel(ctx, msg.SessionID)
			}).
			Return(nil)

		flow := h.saveFlow(t, testutil.CreateTestFlow(
			[]*models.Node{
				testutil.StartNode("start"),
				testutil.CreateTestNode("intro", models.NodeTypeText, &models.TextData{Text: "one\n\ntwo", SplitParagraphs: true}),
			},
			[]*models.Connection{testutil.Edge("start", models.HandleDefault, "intro")},
		))

		session, err := h.engine.Start(ctx, StartRequest{FlowID: flow.ID, ChatID: "chat-1"})
		require.NoError(t, err)

		assert.Equal(t, []string{"one"}, h.texts())
		assert.Equal(t, models.SessionStatusInactive, session.Status)
		assert.Contains(t, h.publisher.Types(), events.SessionCancelledEvent)
	})

	t.Run("unknown session", func(t *testing.T) {
		h := newHarness(t, nil)

		err := h.engine.Cancel(ctx, "missing")
		require.ErrorIs(t, err, persistence.ErrSessionNotFound)
	})
}

func TestEngine_SweepInactivity(t *testing.T) {
	ctx := context.Background()

	lastActivity := testutil.Epoch.Add(-20 * time.Minute)
	chat := &models.Chat{
		ID:                   "chat-1",
		OrganizationID:       "org-1",
		CustomerID:           "customer-1",
		Channel:              "whatsapp",
		Status:               "open",
		StartTime:            testutil.Epoch.Add(-time.Hour),
		LastCustomerActivity: &lastActivity,
	}

	customers := &mocks.MockCustomerService{}
	customers.On("ListOpenChats", mock.Anything, "org-1").Return([]*models.Chat{chat}, nil)
	customers.On("GetCustomer", mock.Anything, "customer-1").
		Return(&models.Customer{ID: "customer-1", Name: "Ana"}, nil).Maybe()
	customers.On("GetChat", mock.Anything, "chat-1").Return(chat, nil).Maybe()

	h := newHarness(t, customers)
	flow := h.saveFlow(t, testutil.CreateTestFlow(
		[]*models.Node{testutil.StartNode("start"), testutil.TextNode("ping", "Still there, {{customer.name}}?")},
		[]*models.Connection{testutil.Edge("start", models.HandleDefault, "ping")},
	))
	h.saveTrigger(t, &models.Trigger{
		FlowID: flow.ID,
		Type:   models.TriggerTypeInactivity,
		Conditions: models.TriggerConditions{
			Operator: models.OperatorAnd,
			Rules:    []models.TriggerRule{models.NewInactivityRule("quiet", models.InactivityCustomer, 10)},
		},
	})

	started, err := h.engine.SweepInactivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Equal(t, []string{"Still there, Ana?"}, h.texts())

	h.clock.Advance(time.Minute)

	started, err = h.engine.SweepInactivity(ctx)
	require.NoError(t, err)
	assert.Zero(t, started, "fires once per period of silence")

	replied := h.clock.Now()
	chat.LastCustomerActivity = &replied

	h.clock.Advance(5 * time.Minute)

	started, err = h.engine.SweepInactivity(ctx)
	require.NoError(t, err)
	assert.Zero(t, started, "not quiet long enough")

	h.clock.Advance(6 * time.Minute)

	started, err = h.engine.SweepInactivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Len(t, h.outbound.Sent(), 2)
}

func TestEngine_SweepInactivity_SkipsActiveSession(t *testing.T) {
	ctx := context.Background()

	lastActivity := testutil.Epoch.Add(-time.Hour)
	chat := &models.Chat{ID: "chat-1", OrganizationID: "org-1", Channel: "whatsapp", LastCustomerActivity: &lastActivity}

	customers := &mocks.MockCustomerService{}
	customers.On("ListOpenChats", mock.Anything, "org-1").Return([]*models.Chat{chat}, nil)
	customers.On("GetChat", mock.Anything, "chat-1").Return(chat, nil).Maybe()

	h := newHarness(t, customers)
	waiting := h.saveFlow(t, greetingFlow(0))

	_, err := h.engine.Start(ctx, StartRequest{FlowID: waiting.ID, ChatID: "chat-1"})
	require.NoError(t, err)

	other := h.saveFlow(t, testutil.CreateTestFlow(
		[]*models.Node{testutil.StartNode("start"), testutil.TextNode("ping", "ping")},
		[]*models.Connection{testutil.Edge("start", models.HandleDefault, "ping")},
	))
	h.saveTrigger(t, &models.Trigger{
		FlowID: other.ID,
		Type:   models.TriggerTypeInactivity,
		Conditions: models.TriggerConditions{
			Rules: []models.TriggerRule{models.NewInactivityRule("quiet", models.InactivityCustomer, 10)},
		},
	})

	started, err := h.engine.SweepInactivity(ctx)
	require.NoError(t, err)
	assert.Zero(t, started)
	assert.Equal(t, []string{"Welcome!"}, h.texts())
}

func TestEngine_SweepInactivity_RequiresCustomerService(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.SweepInactivity(context.Background())
	require.ErrorIs(t, err, protocol.ErrServiceUnavailable)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(ErrMissingChat))
	assert.True(t, IsPermanent(ErrMissingOrganization))
	assert.True(t, IsPermanent(fmt.Errorf("chat c: %w", ErrOrganizationMismatch)))
	assert.True(t, IsPermanent(fmt.Errorf("flow f: %w", ErrFlowNotPublished)))
	assert.True(t, IsPermanent(persistence.NewFlowError("GetByID", "f", persistence.ErrFlowNotFound)))
	assert.False(t, IsPermanent(errors.New("connection reset")))
}
