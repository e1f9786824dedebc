package eventbus

import (
	"context"

	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/jonboulle/clockwork"
)

// Outbound hands customer messages to the host through the bus.
type Outbound struct {
	publisher EventPublisher
	clock     clockwork.Clock
}

func NewOutbound(publisher EventPublisher, clock clockwork.Clock) *Outbound {
	return &Outbound{publisher: publisher, clock: clock}
}

func (o *Outbound) Send(ctx context.Context, msg models.OutboundMessage) error {
	return o.publisher.Publish(ctx, events.NewMessageSent(msg, o.clock.Now()))
}
