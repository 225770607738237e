package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "chatflow-api",
		Usage:                 "Manage flows and run conversation sessions over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (file://path, postgres://..., redis://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers, used with --event-bus=kafka",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "bridge-url",
				Usage:   "Base URL of the capability gateway used by integration nodes",
				Sources: cli.EnvVars("BRIDGE_URL"),
			},
			&cli.DurationFlag{
				Name:    "abandon-after",
				Usage:   "Idle time after which an active session is abandoned",
				Value:   24 * time.Hour,
				Sources: cli.EnvVars("ABANDON_AFTER"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron spec for the idle session sweep",
				Value:   "@every 5m",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "audit-events",
				Usage:   "Consume lifecycle events from the bus and write them to the log",
				Value:   true,
				Sources: cli.EnvVars("AUDIT_EVENTS"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces with the OTLP HTTP exporter",
				Sources: cli.EnvVars("OTEL_ENABLED"),
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

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing Chatflow API")

			var tracer trace.Tracer

			if command.Bool("otel") {
				var err error

				tracer, err = otelhelper.NewTracer(ctx, "chatflow-api")
				if err != nil {
					return err
				}
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if command.Bool("audit-events") {
				err = NewAuditLog(logger).Register(eventBus)
				if err != nil {
					return err
				}

				err = eventBus.Subscribe(ctx)
				if err != nil {
					return err
				}
			}

			capabilities, err := cmd.NewBridge(command.String("bridge-url"), logger)
			if err != nil {
				return err
			}

			api := NewAPI(
				logger,
				persistence,
				cmd.NewLocker(persistence),
				capabilities,
				eventBus,
				tracer,
			)

			sweeper := NewSweeper(api.Sessions(), command.Duration("abandon-after"), logger)

			err = sweeper.Start(ctx, command.String("sweep-schedule"))
			if err != nil {
				return err
			}

			defer sweeper.Stop()

			return api.Start(ctx, command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Chatflow API stopped", "error", err)
		os.Exit(1)
	}
}
