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
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting reminder-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	location, err := time.LoadLocation(cfg.CalendarTimezone)
	if err != nil {
		logger.Error("Invalid timezone", "error", err, "timezone", cfg.CalendarTimezone)
		os.Exit(1)
	}

	m := metrics.New()
	reminders := services.NewReminderService(repo,
		telegram.NewClient(nil, cfg.TelegramAPIURL, nil, resilience.DefaultConfig()),
		services.ReminderConfig{
			FallbackToken:  cfg.TelegramBotToken,
			LookaheadDays:  cfg.ReminderLookaheadDays,
			CurrencySymbol: cfg.CurrencySymbol,
			Location:       location,
		}, m)

	// A nil *amqp.Client must not reach the Publisher interface.
	var publisher worker.Publisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, sending reminders inline", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized, reminders will be queued", "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, sending reminders inline")
	}

	w := worker.NewReminderWorker(reminders, publisher, cfg.NotifyConcurrency, m)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Reminder scheduler configured",
		"interval", cfg.ReminderInterval,
		"lookahead_days", cfg.ReminderLookaheadDays,
		"concurrency", cfg.NotifyConcurrency)

	if err := w.Run(ctx, cfg.ReminderInterval); err != nil && ctx.Err() == nil {
		logger.Error("Reminder worker stopped", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Reminder-worker shutdown complete")
}
