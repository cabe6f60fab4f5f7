package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"agendei/internal/backend"
	"agendei/internal/bot"
	"agendei/internal/config"
	"agendei/internal/database"
	"agendei/internal/events"
	"agendei/internal/logging"
	"agendei/internal/metrics"
	"agendei/internal/repository"
	"agendei/internal/service"
	"agendei/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(&logger, "journal"))
	if err != nil {
		logger.Error().Err(err).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, sessions := initSessions(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	eventBus := events.NewEventBus()
	eventLogger := logging.Component(&logger, "events")
	eventBus.Subscribe(events.EventAppointmentFailed, func(ev *events.Event) error {
		var payload events.AppointmentEventPayload
		if err := ev.Decode(&payload); err != nil {
			return err
		}
		eventLogger.Warn().Str("session_id", payload.SessionID).Str("client_id", payload.ClientID).Str("error", payload.Error).Msg("appointment failed")
		return nil
	})

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.APIExtra, cfg.Backend.Timeout(), logging.Component(&logger, "backend"))
	if redisClient != nil && cfg.Backend.CacheTTL() > 0 {
		client.UseRedisCache(redisClient, cfg.Backend.CacheTTL())
	}

	journal := worker.NewJournalWorker(db, redisClient, worker.DefaultRetryPolicy, 0, logging.Component(&logger, "journal-worker"))
	journalDone := make(chan struct{})
	go func() {
		defer close(journalDone)
		journal.Start(ctx)
	}()
	// Let the worker flush before the database closes.
	defer func() {
		stop()
		<-journalDone
	}()

	appointments := service.NewAppointmentService(client, journal, eventBus, logging.Component(&logger, "appointments"))
	flows := service.NewFlowService(sessions, client, appointments, eventBus, cfg.Booking, logging.Component(&logger, "flow"))

	botMetrics := bot.NewMetrics(prometheus.DefaultRegisterer)
	startMetrics(ctx, cfg, &logger)

	return startBot(ctx, cfg, flows, sessions, botMetrics, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateTelegram(); err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}
	return nil
}

func initSessions(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, *repository.FailoverSessionRepository) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	ttl := cfg.Booking.SessionTTL()
	primaryRepo := repository.NewRedisSessionRepository(redisClient, ttl)
	fallbackRepo := repository.NewMemorySessionRepository(ttl)
	return redisClient, repository.NewFailoverSessionRepository(primaryRepo, fallbackRepo, logging.Component(logger, "sessions"))
}

func startBot(
	ctx context.Context,
	cfg *config.Config,
	flows *service.FlowService,
	limiter bot.RateLimiter,
	botMetrics *bot.Metrics,
	logger *zerolog.Logger,
) error {
	wrapper, err := bot.Connect(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Error().Err(err).Msg("telegram connect")
		return err
	}

	tgService := service.NewTelegramService(wrapper)
	telegramBot := bot.NewBot(tgService, flows, limiter, cfg.Telegram, botMetrics, logging.Component(logger, "bot"))

	logger.Info().Msg("Bot started")
	telegramBot.Start(ctx)
	telegramBot.Stop()

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}
