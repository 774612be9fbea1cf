package main

import (
	"context"
	"os"

	"github.com/talentops/reqflow/pkg/cmd"
	"github.com/talentops/reqflow/pkg/config"
	"github.com/talentops/reqflow/pkg/flow"
	"github.com/talentops/reqflow/pkg/log"
	"github.com/talentops/reqflow/pkg/notify"
	"github.com/talentops/reqflow/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9094

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "reqflow-api",
		Usage:                 "Create and manage requisition approval flows",
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
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "approvers-config",
				Usage:    "Path to the approver assignments YAML file",
				Required: true,
				Sources:  cli.EnvVars("APPROVERS_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the notification queue (empty disables notifications)",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password for the notification queue",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "notification-queue",
				Usage:   "Redis list the notification messages are pushed onto",
				Value:   notify.DefaultQueue,
				Sources: cli.EnvVars("NOTIFICATION_QUEUE"),
			},
			&cli.BoolFlag{
				Name:    "enable-tracing",
				Usage:   "Export OTLP traces for execution operations",
				Sources: cli.EnvVars("ENABLE_TRACING"),
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

			logger.InfoContext(ctx, "Initializing Reqflow API")

			if command.Bool("enable-tracing") {
				tracerProvider, err := otelhelper.NewTracerProvider(ctx, "reqflow-api")
				if err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)
				} else {
					defer func() {
						if err := tracerProvider.Shutdown(ctx); err != nil {
							logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
						}
					}()
				}
			}

			resolver, err := config.LoadApproverConfig(command.String("approvers-config"))
			if err != nil {
				return err
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var notifier flow.NotificationPort = flow.NopNotifier{}

			if addr := command.String("redis-addr"); addr != "" {
				redisNotifier, err := notify.NewRedisNotifier(
					ctx, logger, addr,
					command.String("redis-password"), 0,
					command.String("notification-queue"),
				)
				if err != nil {
					return err
				}

				defer func() {
					if err := redisNotifier.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close notifier", "error", err)
					}
				}()

				notifier = redisNotifier
			}

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				resolver,
				notifier,
			)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
