package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_RunsFlowForInboundMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persistence := file.NewPersistence(t.TempDir())

	flow := testutil.CreateTestFlow(
		[]*models.Node{testutil.StartNode("start"), testutil.TextNode("hello", "Hello!")},
		[]*models.Connection{testutil.Edge("start", models.HandleDefault, "hello")},
	)
	require.NoError(t, persistence.FlowRepository().Save(ctx, flow))
	require.NoError(t, persistence.TriggerRepository().Save(ctx, &models.Trigger{
		ID:             "trigger-1",
		FlowID:         flow.ID,
		OrganizationID: "org-1",
		Type:           models.TriggerTypeFirstContact,
		IsActive:       true,
		Conditions: models.TriggerConditions{
			Operator: models.OperatorAnd,
			Rules:    []models.TriggerRule{models.NewChannelRule("r1", "whatsapp")},
		},
	}))

	bus, err := cmd.NewEventBus(slog.Default(), "gochannel", "", "chatflow-worker-test")
	require.NoError(t, err)

	defer func() { _ = bus.Close() }()

	sent := make(chan *events.MessageSent, 1)

	err = bus.Subscribe(ctx, events.OutboundTopic, func(_ context.Context, event events.Event) error {
		if msg, ok := event.(*events.MessageSent); ok {
			select {
			case sent <- msg:
			default:
			}
		}

		return nil
	})
	require.NoError(t, err)

	clock := clockwork.NewRealClock()
	eng := engine.New(slog.Default(), persistence, cmd.NewRegistry(slog.Default()),
		protocol.Services{Outbound: eventbus.NewOutbound(bus, clock)},
		engine.WithClock(clock), engine.WithPublisher(bus))

	scheduler := engine.NewScheduler(slog.Default(), eng, engine.WithInactivitySpec(""))
	worker := NewWorker("worker-test", slog.Default(), eng, bus, scheduler)

	done := make(chan error, 1)

	go func() { done <- worker.Start(ctx) }()

	// The subscription is registered by Start; retry until it is in place.
	require.Eventually(t, func() bool {
		err := bus.Publish(ctx, events.NewInboundReceived(models.InboundEvent{
			ID:             "msg-1",
			OrganizationID: "org-1",
			ChatID:         "chat-1",
			CustomerID:     "customer-1",
			Channel:        "whatsapp",
			Text:           "hi",
			FirstContact:   true,
		}, time.Now().UTC()))
		if err != nil {
			return false
		}

		select {
		case msg := <-sent:
			assert.Equal(t, "chat-1", msg.Message.ChatID)
			assert.Equal(t, "hello", msg.Message.NodeID)

			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_HandleInbound_DropsPermanentFailures(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	eng := engine.New(slog.Default(), persistence, cmd.NewRegistry(slog.Default()), protocol.Services{})
	worker := NewWorker("worker-test", slog.Default(), eng, nil, nil)

	err := worker.handleInbound(context.Background(), &events.InboundReceived{Message: models.InboundEvent{}})
	require.NoError(t, err)

	err = worker.handleInbound(context.Background(), &events.InboundReceived{Message: models.InboundEvent{ChatID: "chat-1"}})
	require.NoError(t, err)

	err = worker.handleInbound(context.Background(), &events.SessionEnded{})
	require.NoError(t, err)
}

type failingSubscriber struct{ err error }

func (s failingSubscriber) Subscribe(context.Context, string, eventbus.EventHandler) error {
	return s.err
}

func TestWorker_Start_ReturnsSubscribeError(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	eng := engine.New(slog.Default(), persistence, cmd.NewRegistry(slog.Default()), protocol.Services{})
	scheduler := engine.NewScheduler(slog.Default(), eng, engine.WithInactivitySpec(""))

	subscribeErr := errors.New("broker unreachable")
	worker := NewWorker("worker-test", slog.Default(), eng, failingSubscriber{err: subscribeErr}, scheduler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.ErrorIs(t, worker.Start(ctx), subscribeErr)
}
