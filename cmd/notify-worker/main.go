package main

import (
	"os"
	"time"

	"payrecord/internal/amqp"
	"payrecord/internal/cli"
	"payrecord/internal/log"
	"payrecord/internal/metrics"
	"payrecord/internal/resilience"
	"payrecord/internal/services"
	"payrecord/internal/telegram"
	"payrecord/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentNotify)

	logger.Info("Starting notify-worker")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for notify-worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	location, err := time.LoadLocation(cfg.CalendarTimezone)
	if err != nil {
		logger.Error("Invalid timezone", "error", err, "timezone", cfg.CalendarTimezone)
		os.Exit(1)
	}

	reminders := services.NewReminderService(repo,
		telegram.NewClient(nil, cfg.TelegramAPIURL, nil, resilience.DefaultConfig()),
		services.ReminderConfig{
			FallbackToken:  cfg.TelegramBotToken,
			LookaheadDays:  cfg.ReminderLookaheadDays,
			CurrencySymbol: cfg.CurrencySymbol,
			Location:       location,
		}, metrics.New())

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	w := worker.NewReminderWorker(reminders, nil, 1, nil)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if err := client.ConsumeReminders(ctx, w.HandleReminder); err != nil && ctx.Err() == nil {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Notify-worker shutdown complete")
}
