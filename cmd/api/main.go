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

	"agendei/internal/api"
	"agendei/internal/backend"
	"agendei/internal/config"
	"agendei/internal/database"
	"agendei/internal/events"
	"agendei/internal/logging"
	"agendei/internal/metrics"
	"agendei/internal/repository"
	"agendei/internal/service"
	"agendei/internal/worker"

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
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	eventBus := events.NewEventBus()
	subscribeEventLog(eventBus, &logger)

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.APIExtra, cfg.Backend.Timeout(), logging.Component(&logger, "backend"))
	if redisClient != nil && cfg.Backend.CacheTTL() > 0 {
		client.UseRedisCache(redisClient, cfg.Backend.CacheTTL())
	}

	sessions := initSessions(redisClient, cfg, &logger)
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

	httpServer := api.NewHTTPServer(cfg.API, flows, healthChecks(redisClient, db), logging.Component(&logger, "http"))

	backupService := database.NewBackupService(db, cfg.Database.Backup, logging.Component(&logger, "backup"))
	go backupService.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
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

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("create database directory")
		return nil, err
	}
	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "journal"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		// The failover repository keeps probing; sessions live in memory meanwhile.
		logger.Warn().Err(err).Msg("redis unavailable, sessions start in memory")
		return redisClient
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initSessions(redisClient *redis.Client, cfg *config.Config, logger *zerolog.Logger) *repository.FailoverSessionRepository {
	ttl := cfg.Booking.SessionTTL()
	primary := repository.NewRedisSessionRepository(redisClient, ttl)
	fallback := repository.NewMemorySessionRepository(ttl)
	return repository.NewFailoverSessionRepository(primary, fallback, logging.Component(logger, "sessions"))
}

func healthChecks(redisClient *redis.Client, db *database.DB) []api.HealthCheck {
	checks := []api.HealthCheck{{Name: "journal", Check: db.Ping}}
	if redisClient != nil {
		checks = append(checks, api.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return repository.Ping(ctx, redisClient) },
		})
	}
	return checks
}

// subscribeEventLog writes every flow event to the log.
func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	l := logging.Component(logger, "events")
	bus.Subscribe(events.AllEvents, func(ev *events.Event) error {
		l.Info().
			Int64("event_id", ev.ID).
			Str("event", ev.Type).
			RawJSON("payload", ev.Payload).
			Msg("booking event")
		return nil
	})
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
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
