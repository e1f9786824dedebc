package main

import (
	"context"
	"log/slog"

	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
)

// Worker consumes inbound chat messages and fires the session timers.
type Worker struct {
	id        string
	logger    *slog.Logger
	engine    *engine.Engine
	eventBus  eventbus.EventSubscriber
	scheduler *engine.Scheduler
}

func NewWorker(
	id string,
	logger *slog.Logger,
	eng *engine.Engine,
	eventBus eventbus.EventSubscriber,
	scheduler *engine.Scheduler,
) *Worker {
	return &Worker{
		id:        id,
		logger:    logger.With("module", "chatflow-worker", "worker_id", id),
		engine:    eng,
		eventBus:  eventBus,
		scheduler: scheduler,
	}
}

// Start subscribes to inbound messages and starts the scheduler. It blocks
// until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	err := w.eventBus.Subscribe(ctx, events.InboundTopic, w.handleInbound)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	err = w.scheduler.Start(ctx)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	<-ctx.Done()

	w.logger.InfoContext(ctx, "Shutting down worker...")
	w.scheduler.Stop()

	return nil
}

func (w *Worker) handleInbound(ctx context.Context, event events.Event) error {
	inbound, ok := event.(*events.InboundReceived)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for InboundReceived", "event_type", event.GetType())

		return nil
	}

	logger := w.logger.With(
		"chat_id", inbound.Message.ChatID,
		"message_id", inbound.Message.ID,
		"channel", inbound.Message.Channel,
	)
	logger.DebugContext(ctx, "Processing inbound message")

	err := w.engine.HandleInbound(ctx, inbound.Message)
	if err != nil {
		if engine.IsPermanent(err) {
			logger.WarnContext(ctx, "Dropping inbound message", "error", err)

			return nil
		}

		logger.ErrorContext(ctx, "Failed to handle inbound message", "error", err)

		return err
	}

	return nil
}
