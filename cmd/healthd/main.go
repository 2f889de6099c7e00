// Package main provides the companion service entry point.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/uplinkd/uplink/internal/config"
	"github.com/uplinkd/uplink/internal/server"
	"github.com/uplinkd/uplink/internal/settings"
)

const redisPingTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		//nolint:sloglint // No context available before logger setup
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := setupLogger(cfg)

	logger.Info("starting healthd",
		slog.String("address", cfg.Server.Address()),
		slog.String("settings_backend", string(cfg.Settings.Backend)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, redisClient, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build settings store", slog.String("error", err.Error()))
		os.Exit(1) //nolint:gocritic // Intentional exit after cleanup
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []server.ServerOption{
		server.WithServerLogger(logger),
		server.WithMetricsRegistry(registry),
	}
	if redisClient != nil {
		opts = append(opts, server.WithRedisPublisher(redisClient, cfg.Push.Channel))
	}

	srv := server.New(cfg.Server, provider, opts...)

	go gracefulShutdown(ctx, cancel, srv, cfg.Server.ShutdownTimeout, logger)

	if serverErr := srv.Start(ctx); serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
		logger.Error("server error", slog.String("error", serverErr.Error()))
		cancel()
		os.Exit(1)
	}
}

// buildStore constructs the settings store for the configured backend.
// The http backend is meaningless on the server side and falls back to an
// in-memory store. The returned Redis client, when non-nil, doubles as the
// push channel publisher.
func buildStore(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (settings.Provider, *redis.Client, func(), error) {
	var closers []func()
	cleanup := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}

	var redisClient *redis.Client
	needRedis := cfg.Push.Transport == config.PushRedis || cfg.Settings.Backend == config.SettingsRedis
	if needRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		closers = append(closers, func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				logger.Error("failed to close Redis", slog.String("error", closeErr.Error()))
			}
		})

		pingCtx, pingCancel := context.WithTimeout(ctx, redisPingTimeout)
		pingErr := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if pingErr != nil {
			cleanup()
			return nil, nil, nil, pingErr
		}
		logger.InfoContext(ctx, "connected to Redis", slog.String("addr", cfg.Redis.Addr))
	}

	switch cfg.Settings.Backend {
	case config.SettingsRedis:
		provider := settings.NewRedisProvider(settings.RedisProviderConfig{
			Client:    redisClient,
			KeyPrefix: cfg.Settings.KeyPrefix,
		})
		return provider, redisClient, cleanup, nil

	case config.SettingsMongo:
		clientOpts := options.Client().
			ApplyURI(cfg.MongoDB.URI).
			SetMaxPoolSize(cfg.MongoDB.MaxPoolSize)

		client, err := mongo.Connect(clientOpts)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, func() {
			if disconnectErr := client.Disconnect(context.Background()); disconnectErr != nil {
				logger.Error("failed to disconnect from MongoDB", slog.String("error", disconnectErr.Error()))
			}
		})

		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.MongoDB.Timeout)
		pingErr := client.Ping(pingCtx, nil)
		pingCancel()
		if pingErr != nil {
			cleanup()
			return nil, nil, nil, pingErr
		}
		logger.InfoContext(ctx, "connected to MongoDB", slog.String("database", cfg.MongoDB.Database))

		collection := client.Database(cfg.MongoDB.Database).Collection(cfg.Settings.Collection)
		provider := settings.NewMongoProvider(collection, settings.WithMongoLogger(logger))
		return provider, redisClient, cleanup, nil

	default:
		if cfg.Settings.Backend == config.SettingsHTTP {
			logger.Warn("http settings backend is client-only, using in-memory store")
		}
		return settings.NewMemoryProvider(), redisClient, cleanup, nil
	}
}

// setupLogger creates and configures the structured logger based on configuration.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	level := parseLogLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.IsDevelopment(),
	}

	switch cfg.Log.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default: // "json" or any other value defaults to JSON
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// gracefulShutdown handles graceful shutdown on OS signals.
func gracefulShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	srv *server.Server,
	shutdownTimeout time.Duration,
	logger *slog.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("context cancelled, initiating shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "server shutdown error", slog.String("error", err.Error()))
	}

	cancel()

	logger.InfoContext(shutdownCtx, "healthd shutdown complete")
}
