// Package engine runs flow sessions: it starts them from triggers, advances
// them node by node, parks them on input and delay nodes and resumes them
// when a reply arrives or a timer fires.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/session"
	"github.com/dukex/chatflow/pkg/trigger"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultDebounceWindow is how long an input node waits for the
	// customer to stop typing before it evaluates the buffered messages.
	DefaultDebounceWindow = 3 * time.Second

	// DefaultMaxSteps bounds the nodes run in one engine pass, so a
	// jump_to loop without waiting nodes cannot spin forever.
	DefaultMaxSteps = 500

	// inputSeparator joins messages coalesced by the debounce window.
	inputSeparator = "\n"
)

var (
	ErrSessionActive    = errors.New("chat already has an active session")
	ErrFlowNotPublished = errors.New("flow is not published")
	ErrStepLimit        = errors.New("step limit reached")
	ErrMissingChat      = errors.New("event has no chat id")
	// ErrMissingOrganization rejects inbound events that would otherwise be
	// matched against every organization's triggers.
	ErrMissingOrganization  = errors.New("event has no organization id")
	ErrOrganizationMismatch = errors.New("event organization differs from the chat's session")
)

// IsPermanent reports whether err will fail again on redelivery of the
// same message.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMissingChat) ||
		errors.Is(err, ErrMissingOrganization) ||
		errors.Is(err, ErrOrganizationMismatch) ||
		errors.Is(err, ErrSessionActive) ||
		errors.Is(err, ErrFlowNotPublished) ||
		persistence.IsFlowNotFound(err)
}

// Engine is safe for concurrent use. Work on one chat is serialized by the
// session guard; different chats run in parallel.
type Engine struct {
	logger    *slog.Logger
	flows     *FlowCache
	triggers  persistence.TriggerRepository
	sessions  persistence.SessionRepository
	registry  *registry.Registry
	matcher   *trigger.Matcher
	guard     *session.Guard
	services  protocol.Services
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	clock     clockwork.Clock
	debounce  time.Duration
	maxSteps  int
}

type Option func(*Engine)

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithDebounceWindow sets the debounce window. Zero evaluates every message
// as soon as it arrives.
func WithDebounceWindow(window time.Duration) Option {
	return func(e *Engine) { e.debounce = window }
}

func WithGuard(guard *session.Guard) Option {
	return func(e *Engine) { e.guard = guard }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithMaxSteps(steps int) Option {
	return func(e *Engine) { e.maxSteps = steps }
}

func WithFlowCache(cache *FlowCache) Option {
	return func(e *Engine) { e.flows = cache }
}

func New(logger *slog.Logger, store persistence.Persistence, reg *registry.Registry, services protocol.Services, opts ...Option) *Engine {
	e := &Engine{
		logger:   logger.With("module", "engine"),
		triggers: store.TriggerRepository(),
		sessions: store.SessionRepository(),
		registry: reg,
		matcher:  trigger.NewMatcher(logger),
		services: services,
		tracer:   otelhelper.NoopTracer(),
		clock:    clockwork.NewRealClock(),
		debounce: DefaultDebounceWindow,
		maxSteps: DefaultMaxSteps,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.flows == nil {
		e.flows = NewFlowCache(store.FlowRepository(), DefaultFlowCacheTTL)
	}

	if e.guard == nil {
		e.guard = session.NewGuard(session.WithLogger(logger))
	}

	return e
}

// Flows exposes the flow cache so writers can invalidate entries.
func (e *Engine) Flows() *FlowCache {
	return e.flows
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, event)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
