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
	"syscall"
	"time"

	"roadassist/internal/api"
	"roadassist/internal/config"
	"roadassist/internal/database"
	"roadassist/internal/domain"
	"roadassist/internal/events"
	"roadassist/internal/logging"
	"roadassist/internal/metrics"
	"roadassist/internal/models"
	"roadassist/internal/repository"
	"roadassist/internal/service"
	"roadassist/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	db, err := database.NewDB(cfg.Database.Path, &logger, database.WithBusyTimeout(cfg.Database.BusyTimeoutMs))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if err := seedUsers(db, cfg.Seed.UsersFile, &logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	stream := initActivityStream(cfg, redisClient, &logger)

	bus := events.NewEventBus()
	activity := worker.NewActivityWorker(db, stream, worker.RetryPolicyFromConfig(cfg.Activity), cfg.Activity.QueueSize, &logger)
	activity.Subscribe(bus)
	worker.SubscribeTransitionMetrics(bus)
	activity.Start(ctx)
	defer func() {
		stop()
		activity.Stop()
	}()

	httpServer := api.NewHTTPServer(cfg.API, cfg.App, api.Services{
		Requests: service.NewRequestService(db, bus, cfg.Dispatch, &logger),
		Dispatch: service.NewDispatchService(db, cfg.Dispatch, &logger),
		Users:    service.NewUserService(db, bus, &logger),
		Activity: stream,
		Health:   db,
	}, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, db, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	startMetrics(ctx, cfg, &logger)
	go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
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

// seedUsers upserts the accounts listed in the users file. Identity is owned
// by the upstream gateway; the file mirrors the ids and roles it issues.
func seedUsers(db *database.DB, path string, logger *zerolog.Logger) error {
	if path == "" {
		path = os.Getenv("USERS_PATH")
	}
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("users_path", path).Msg("users file not found, skipping seed")
			return nil
		}
		logger.Error().Err(err).Str("users_path", path).Msg("read users")
		return err
	}

	var usersConfig struct {
		Users []models.User `yaml:"users"`
	}
	if err := yaml.Unmarshal(data, &usersConfig); err != nil {
		logger.Error().Err(err).Str("users_path", path).Msg("parse users")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := range usersConfig.Users {
		if err := db.CreateOrUpdateUser(ctx, &usersConfig.Users[i]); err != nil {
			return fmt.Errorf("seed user %s: %w", usersConfig.Users[i].Email, err)
		}
	}
	logger.Info().Int("count", len(usersConfig.Users)).Msg("users seeded")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, activity feed starts degraded")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

// initActivityStream picks the live activity feed. Redis is preferred with an
// in-process ring as fallback while it is unreachable.
func initActivityStream(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.ActivityStream {
	memory := repository.NewMemoryActivityStream(int(cfg.Activity.StreamMaxLength))
	if client == nil {
		return memory
	}
	primary := repository.NewRedisActivityStream(client, cfg.Activity.StreamKey, cfg.Activity.StreamMaxLength)
	return repository.NewFailoverActivityStream(primary, memory, logger)
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

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(ctx); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Bool("grpc", grpcServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

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
