package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/talentops/reqflow/pkg/cmd"
	"github.com/talentops/reqflow/pkg/flow"
	"github.com/talentops/reqflow/pkg/log"
	"github.com/talentops/reqflow/pkg/notify"
	cli "github.com/urfave/cli/v3"
)

const defaultRetentionDays = 180

func main() {
	_ = log.WithModule("reminder")

	command := &cli.Command{
		Name:                  "reqflow-reminder",
		Usage:                 "Remind approvers about pending steps and purge old executions",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Run the reminder scan on a schedule",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "database-url",
						Usage:    "Database connection URL for persistence",
						Required: true,
						Sources:  cli.EnvVars("DATABASE_URL"),
					},
					&cli.StringFlag{
						Name:    "schedule",
						Usage:   "Cron expression for the scan schedule",
						Value:   "@every 1h",
						Sources: cli.EnvVars("REMINDER_SCHEDULE"),
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
						Usage:   "Redis list the reminder messages are pushed onto",
						Value:   notify.DefaultQueue,
						Sources: cli.EnvVars("NOTIFICATION_QUEUE"),
					},
					&cli.StringFlag{
						Name:    "message-template",
						Usage:   "Template for the reminder message body",
						Value:   DefaultMessageTemplate,
						Sources: cli.EnvVars("REMINDER_MESSAGE_TEMPLATE"),
					},
					&cli.StringFlag{
						Name:    "log-level",
						Usage:   "Log level (debug, info, warn, error)",
						Value:   "info",
						Sources: cli.EnvVars("LOG_LEVEL"),
					},
				},
				Action: runReminder,
			},
			{
				Name:  "purge",
				Usage: "Delete terminal executions older than the retention window",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "database-url",
						Usage:    "Database connection URL for persistence",
						Required: true,
						Sources:  cli.EnvVars("DATABASE_URL"),
					},
					&cli.IntFlag{
						Name:    "retention-days",
						Usage:   "Keep terminal executions newer than this many days",
						Value:   defaultRetentionDays,
						Sources: cli.EnvVars("RETENTION_DAYS"),
					},
					&cli.StringFlag{
						Name:    "log-level",
						Usage:   "Log level (debug, info, warn, error)",
						Value:   "info",
						Sources: cli.EnvVars("LOG_LEVEL"),
					},
				},
				Action: runPurge,
			},
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func runReminder(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("reminder")

	logger.InfoContext(ctx, "Initializing Reqflow reminder", "schedule", command.String("schedule"))

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
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

	reminder := NewReminder(persistence, notifier, logger)
	if tmpl := command.String("message-template"); tmpl != "" {
		reminder.messageTemplate = tmpl
	}

	scheduler := cron.New()

	_, err := scheduler.AddFunc(command.String("schedule"), func() {
		result, err := reminder.Scan(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Reminder scan failed", "error", err)

			return
		}

		logger.InfoContext(ctx, "Reminder scan finished",
			"scanned", result.Scanned,
			"reminded", result.Reminded,
			"timed_out", result.TimedOut)
	})
	if err != nil {
		return err
	}

	scheduler.Start()
	defer scheduler.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.InfoContext(ctx, "Shutting down reminder")

	return nil
}

func runPurge(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("purge")

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	cutoff := time.Now().AddDate(0, 0, -command.Int("retention-days"))

	purged, err := persistence.ExecutionRepository().PurgeTerminalExecutions(ctx, cutoff)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Purged terminal executions", "purged", purged, "cutoff", cutoff)

	return nil
}
