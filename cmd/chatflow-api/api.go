// Package main provides the Chatflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/session"
	"github.com/dukex/chatflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/jonboulle/clockwork"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	guard       *session.Guard
	validate    *validator.Validate
}

// NewAPI wires the HTTP surface. eventBus may be nil; inbound messages are
// then refused. guard must be shared with the workers for cancels to
// serialize with running sessions.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	guard *session.Guard,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		guard:       guard,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	var (
		publisher eventbus.EventPublisher
		outbound  protocol.Outbound
	)

	opts := []engine.Option{engine.WithGuard(a.guard)}

	if a.eventBus != nil {
		publisher = a.eventBus
		outbound = eventbus.NewOutbound(a.eventBus, clockwork.NewRealClock())
		opts = append(opts, engine.WithPublisher(a.eventBus))
	}

	// The API engine only cancels sessions; flows run on the workers.
	eng := engine.New(a.logger, a.persistence, a.registry, protocol.Services{Outbound: outbound}, opts...)

	handlers := web.NewAPIHandlers(web.Services{
		Flows:      services.NewFlow(a.persistence, eng.Flows()),
		Publishing: services.NewPublishing(a.persistence, a.registry, eng.Flows()),
		Nodes:      services.NewNode(a.persistence, a.registry),
		Triggers:   services.NewTrigger(a.persistence),
		Sessions:   services.NewSession(a.persistence, eng),
	}, publisher, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Chatflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
