// Package eventbus publishes and consumes events over watermill.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/chatflow/pkg/events"
)

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
}

// EventHandler processes one event. Returning an error nacks the message so
// the transport can redeliver it.
type EventHandler func(ctx context.Context, event events.Event) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Publish sends event to the topic of its type. The event type travels in
// the message metadata so subscribers can decode it.
func (eb *WatermillEventBus) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.SetContext(ctx)

	topic := events.TopicFor(event.GetType())

	err = eb.publisher.Publish(topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event.GetType(), topic, err)
	}

	return nil
}

// Subscribe consumes topic in a background goroutine until ctx is done.
// Messages of unknown type are acked and dropped, undecodable or failed ones
// are nacked.
func (eb *WatermillEventBus) Subscribe(ctx context.Context, topic string, handler EventHandler) error {
	messages, err := eb.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			eb.handle(ctx, topic, msg, handler)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) handle(ctx context.Context, topic string, msg *message.Message, handler EventHandler) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	event, err := events.Decode(eventType, msg.Payload)
	if err != nil {
		eb.logger.WarnContext(ctx, "dropping undecodable message",
			"topic", topic, "message_id", msg.UUID, "event_type", eventType, "error", err)
		msg.Ack()

		return
	}

	err = handler(ctx, event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "event handler failed",
			"topic", topic, "message_id", msg.UUID, "event_type", eventType, "error", err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
