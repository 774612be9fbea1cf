// Package main provides the reqflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/talentops/reqflow/pkg/audit"
	"github.com/talentops/reqflow/pkg/eventbus"
	"github.com/talentops/reqflow/pkg/flow"
	"github.com/talentops/reqflow/pkg/persistence"
	"github.com/talentops/reqflow/pkg/services"
	"github.com/talentops/reqflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	resolver    flow.ApproverResolver
	notifier    flow.NotificationPort
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	resolver flow.ApproverResolver,
	notifier flow.NotificationPort,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		resolver:    resolver,
		notifier:    notifier,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	recorder := audit.NewRecorder(a.persistence.AuditRepository(), a.eventBus, a.logger)

	registry := flow.NewRegistry(a.persistence.FlowRepository(), recorder, a.logger)
	executor := flow.NewExecutor(
		a.persistence.FlowRepository(),
		a.persistence.ExecutionRepository(),
		nil,
		a.resolver,
		a.notifier,
		recorder,
		a.logger,
	)

	flowService := services.NewFlowService(a.persistence, registry, a.validate)
	executionService := services.NewExecutionService(a.persistence, registry, executor, a.validate)

	handlers := web.NewAPIHandlers(flowService, executionService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Reqflow API")
	})

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Post("/", handlers.CreateFlow)
	f.Get("/active", handlers.GetActiveFlow)
	f.Get("/:id", handlers.GetFlow)
	f.Delete("/:id", handlers.DeleteFlow)
	f.Post("/:id/activate", handlers.ActivateFlow)
	f.Post("/:id/dry-run", handlers.DryRunFlow)
	f.Get("/:id/audit", handlers.GetFlowAudit)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutionsBySubject)
	e.Post("/", handlers.StartExecution)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/steps", handlers.GetExecutionSteps)

	app.Post("/steps/:id/decision", handlers.DecideStep)
	app.Get("/approvals/pending", handlers.GetPendingApprovals)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
