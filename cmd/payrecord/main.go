package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"payrecord/internal/auth"
	"payrecord/internal/cache"
	"payrecord/internal/cli"
	apphttp "payrecord/internal/http"
	"payrecord/internal/log"
	"payrecord/internal/metrics"
	"payrecord/internal/resilience"
	"payrecord/internal/services"
	"payrecord/internal/telegram"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	location, err := time.LoadLocation(cfg.CalendarTimezone)
	if err != nil {
		logger.Error("Invalid calendar timezone", "error", err, "timezone", cfg.CalendarTimezone)
		os.Exit(1)
	}

	m := metrics.New()
	activity := services.NewActivityLog(repo)
	merchants := services.NewMerchantService(repo, activity, m)
	icons, err := services.NewIconService(cfg.UploadDir, cfg.IconSize, cfg.MaxUploadBytes, m)
	if err != nil {
		logger.Error("Failed to prepare upload directory", "error", err, "dir", cfg.UploadDir)
		os.Exit(1)
	}

	authenticator := auth.NewPasswordAuthenticator(repo)
	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	sender := telegram.NewClient(nil, cfg.TelegramAPIURL, nil, resilience.DefaultConfig())

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	caches.Register(services.IconCacheName, merchants.IconCache())

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Bills:      services.NewBillService(repo, merchants, activity),
		Reconciler: services.NewReconciler(repo, activity, m),
		Merchants:  merchants,
		Icons:      icons,
		Users:      services.NewUserService(repo, authenticator, tokens, activity),
		Activity:   activity,
		Reminders: services.NewReminderService(repo, sender, services.ReminderConfig{
			FallbackToken:  cfg.TelegramBotToken,
			LookaheadDays:  cfg.ReminderLookaheadDays,
			CurrencySymbol: cfg.CurrencySymbol,
			Location:       location,
		}, m),
		Calendar: repo,
		Tokens:   tokens,
		DB:       repo,
		Caches:   caches,
		Metrics:  m,
		Logger:   logger,
	}, apphttp.Options{
		RateLimitPerMinute:      cfg.RateLimitPerMinute,
		LoginRateLimitPerMinute: cfg.LoginRateLimitPerMinute,
		TrustedProxies:          cfg.TrustedProxies,
		CalendarName:            cfg.CalendarName,
		CalendarTimezone:        cfg.CalendarTimezone,
		Location:                location,
	})
	if err != nil {
		logger.Error("Failed to build server", "error", err)
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting payrecord server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		caches.StartCleanup(5 * time.Minute)
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
