// Package main provides the chatflow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/chatflow/pkg/bridge"
	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

// flowCacheTTL bounds how long a published flow stays cached between invalidations.
const flowCacheTTL = 10 * time.Minute

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	locker      persistence.Locker
	bridge      bridge.Bridge
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	validate    *validator.Validate

	flows    *services.Flow
	sessions *services.Sessions
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	locker persistence.Locker,
	bridge bridge.Bridge,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	a := &API{
		logger:      logger,
		persistence: persistence,
		locker:      locker,
		bridge:      bridge,
		eventBus:    eventBus,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}

	flowSource := engine.NewCachedFlowSource(engine.FlowSourceFunc(persistence.FlowRepository().FlowByID), flowCacheTTL)

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if tracer != nil {
		engineOpts = append(engineOpts, engine.WithTracer(tracer))
	}

	a.flows = services.NewFlow(persistence,
		services.WithFlowPublisher(eventBus),
		services.WithFlowCache(flowSource),
		services.WithFlowLogger(logger),
	)
	a.sessions = services.NewSessions(
		engine.NewEngine(flowSource, bridge, engineOpts...),
		flowSource,
		persistence.SessionRepository(),
		services.WithLocker(locker),
		services.WithSessionsPublisher(eventBus),
		services.WithSessionsLogger(logger),
	)

	return a
}

// Sessions exposes the session service to the idle sweeper.
func (a *API) Sessions() *services.Sessions {
	return a.sessions
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.flows, a.sessions, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: handlers.Ready,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Chatflow API")
	})

	handlers.Register(app)

	return app
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "Chatflow API listening", "port", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "Shutting down Chatflow API")

		return app.Shutdown()
	}
}
