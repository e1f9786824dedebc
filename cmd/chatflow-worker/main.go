package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/llm/openai"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/openai/openai-go/option"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "chatflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Run chat flow sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file:// or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for per-chat locks across workers (memory when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "openai-api-key",
				Usage:   "API key for openai nodes (disabled when empty)",
				Sources: cli.EnvVars("OPENAI_API_KEY"),
			},
			&cli.DurationFlag{
				Name:    "debounce-window",
				Usage:   "How long input nodes wait for more messages before evaluating",
				Value:   engine.DefaultDebounceWindow,
				Sources: cli.EnvVars("DEBOUNCE_WINDOW"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("chatflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Chatflow Worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registry := cmd.NewRegistry(logger)

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(logger, command.String("event-bus"), command.String("kafka-brokers"), "chatflow-worker")
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			guard, err := cmd.NewGuard(logger, command.String("redis-url"))
			if err != nil {
				return err
			}

			clock := clockwork.NewRealClock()

			services := protocol.Services{
				Outbound: eventbus.NewOutbound(eventBus, clock),
			}

			if key := command.String("openai-api-key"); key != "" {
				services.LLM = openai.NewClient(logger, option.WithAPIKey(key))
			}

			opts := []engine.Option{
				engine.WithClock(clock),
				engine.WithGuard(guard),
				engine.WithPublisher(eventBus),
				engine.WithDebounceWindow(command.Duration("debounce-window")),
			}

			if command.Bool("tracing") {
				tracer, shutdown, err := otelhelper.NewTracer(ctx, "chatflow-worker")
				if err != nil {
					return err
				}

				defer func() {
					err := shutdown(context.Background())
					if err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()

				opts = append(opts, engine.WithTracer(tracer))
			}

			eng := engine.New(logger, persistence, registry, services, opts...)

			// Open chats come from the host CRM, which this binary has no
			// client for; hosts embedding the engine run the sweep.
			scheduler := engine.NewScheduler(logger, eng, engine.WithInactivitySpec(""))

			worker := NewWorker(workerID, logger, eng, eventBus, scheduler)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)

				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
