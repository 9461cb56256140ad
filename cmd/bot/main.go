package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/apetersen/remindbot/internal/ai"
	"github.com/apetersen/remindbot/internal/bot"
	"github.com/apetersen/remindbot/internal/config"
	"github.com/apetersen/remindbot/internal/database"
	"github.com/apetersen/remindbot/internal/metrics"
	"github.com/apetersen/remindbot/internal/notify"
	"github.com/apetersen/remindbot/internal/scheduler"
	"github.com/apetersen/remindbot/internal/store"
	"github.com/apetersen/remindbot/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("invalid timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}
	clock := scheduler.NewLocationClock(loc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reminder store: Postgres when configured, in-memory otherwise.
	var reminderStore store.ReminderStore
	if cfg.DatabaseURI != "" {
		db, err := database.New(ctx, cfg.DatabaseURI)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("connected to database")
		reminderStore = store.NewPostgresStore(db)
	} else {
		logger.Warn("DATABASE_URI not set, reminders will not survive restarts")
		reminderStore = store.NewMemoryStore()
	}

	// AI client is optional: without it, extraction-based commands apologize
	// and deliveries use the templated message.
	var aiClient *ai.Client
	if cfg.AIAPIKey != "" {
		aiClient = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		logger.Info("ai client initialized", zap.String("model", cfg.AIModel))
	} else {
		logger.Warn("AI_API_KEY not set, natural language extraction disabled")
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create notifier", zap.Error(err))
	}
	logger.Info("notifier ready", zap.String("channel", cfg.NotifyChannel))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	var extractor bot.Extractor
	var renderer scheduler.Renderer
	if aiClient != nil {
		extractor = aiClient
		renderer = aiClient
	}

	router := bot.NewRouter(reminderStore, extractor, notifier, logger, m)
	router.SetNow(clock.Now)

	sched := scheduler.New(reminderStore, notifier, logger, m, scheduler.Options{
		Interval:       cfg.CheckInterval,
		Clock:          clock,
		Renderer:       renderer,
		CleanupExpired: cfg.CleanupExpired,
	})
	go sched.Start(ctx)

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	server := webhook.NewServer(cfg.ListenAddr, router, metricsHandler, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if err := server.Start(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, error) {
	switch cfg.NotifyChannel {
	case "twilio":
		return notify.NewTwilioNotifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom), nil
	case "telegram":
		return notify.NewTelegramNotifier(cfg.TelegramToken)
	default:
		return notify.NewLogNotifier(logger), nil
	}
}
