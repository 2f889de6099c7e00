// Package main provides the monitor daemon entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/uplinkd/uplink/internal/config"
	"github.com/uplinkd/uplink/internal/metrics"
	"github.com/uplinkd/uplink/internal/monitor"
	"github.com/uplinkd/uplink/internal/probe"
	"github.com/uplinkd/uplink/internal/push"
	"github.com/uplinkd/uplink/internal/settings"
)

const (
	redisPingTimeout       = 5 * time.Second
	metricsShutdownTimeout = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		//nolint:sloglint // No context available before logger setup
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := setupLogger(cfg)

	logger.Info("starting uplink monitor",
		slog.String("probe_target", cfg.Probe.BaseURL+cfg.Probe.Path),
		slog.String("push_transport", string(cfg.Push.Transport)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanup, provider, source, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build dependencies", slog.String("error", err.Error()))
		os.Exit(1) //nolint:gocritic // Intentional exit after cleanup
	}
	defer cleanup()

	probeOpts := []probe.Option{
		probe.WithTimeout(cfg.Probe.Timeout),
		probe.WithRetryTimeout(cfg.Probe.RetryTimeout),
		probe.WithLogger(logger),
	}
	if cfg.Probe.RetryOnTransportError {
		probeOpts = append(probeOpts, probe.WithDiagnosticsHint(func() bool { return true }))
	}

	prober, err := probe.New(cfg.Probe.BaseURL, cfg.Probe.Path, probeOpts...)
	if err != nil {
		logger.Error("failed to build prober", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	monitorMetrics := metrics.NewMonitorMetrics(registry)
	metricsServer := startMetricsServer(cfg.Metrics.Addr, registry, logger)

	settingsService := settings.NewService(provider, settings.WithLogger(logger))

	mon := monitor.New(prober, source, settingsService,
		monitor.WithLogger(logger),
		monitor.WithMetrics(monitorMetrics),
		monitor.WithMissedThreshold(cfg.Monitor.MissedThreshold),
		monitor.WithProbeInterval(cfg.Monitor.ProbeInterval),
	)

	startErr := mon.Start(ctx, monitor.Callbacks{
		OnDisconnected: func() {
			logger.Warn("service unreachable, disconnect screen requested")
		},
		OnReconnected: func() {
			logger.Info("service reachable again, disconnect screen dismissed")
		},
	})
	if startErr != nil {
		logger.Error("failed to start monitor", slog.String("error", startErr.Error()))
		os.Exit(1)
	}

	waitForShutdown(ctx, logger)

	mon.Stop()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		_ = metricsServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	logger.Info("uplink monitor stopped")
}

// buildDependencies constructs the settings provider and push source for the
// configured backends. The returned cleanup closes any opened clients.
func buildDependencies(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (func(), settings.Provider, push.Source, error) {
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
			return nil, nil, nil, fmt.Errorf("failed to connect to Redis: %w", pingErr)
		}
	}

	provider, providerClosers, err := buildProvider(ctx, cfg, redisClient, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	closers = append(closers, providerClosers...)

	source := buildPushSource(cfg, redisClient, logger)

	return cleanup, provider, source, nil
}

// buildProvider constructs the settings provider for the configured backend.
func buildProvider(
	ctx context.Context,
	cfg *config.Config,
	redisClient *redis.Client,
	logger *slog.Logger,
) (settings.Provider, []func(), error) {
	switch cfg.Settings.Backend {
	case config.SettingsHTTP:
		provider, err := settings.NewHTTPProvider(cfg.Settings.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		return provider, nil, nil

	case config.SettingsRedis:
		return settings.NewRedisProvider(settings.RedisProviderConfig{
			Client:    redisClient,
			KeyPrefix: cfg.Settings.KeyPrefix,
		}), nil, nil

	case config.SettingsMongo:
		client, err := connectMongoDB(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if disconnectErr := client.Disconnect(context.Background()); disconnectErr != nil {
				logger.Error("failed to disconnect from MongoDB", slog.String("error", disconnectErr.Error()))
			}
		}
		collection := client.Database(cfg.MongoDB.Database).Collection(cfg.Settings.Collection)
		provider := settings.NewMongoProvider(collection, settings.WithMongoLogger(logger))
		return provider, []func(){closer}, nil

	default:
		return settings.NewMemoryProvider(), nil, nil
	}
}

// buildPushSource constructs the push source for the configured transport.
func buildPushSource(cfg *config.Config, redisClient *redis.Client, logger *slog.Logger) push.Source {
	switch cfg.Push.Transport {
	case config.PushWebSocket:
		return push.NewWebSocketSource(cfg.Push.URL,
			push.WithWebSocketLogger(logger),
			push.WithReconnectBackoff(cfg.Push.ReconnectInitial, cfg.Push.ReconnectMax),
		)
	case config.PushRedis:
		return push.NewRedisSource(redisClient,
			push.WithRedisLogger(logger),
			push.WithChannel(cfg.Push.Channel),
		)
	default:
		return push.NewNopSource()
	}
}

// connectMongoDB establishes a connection to MongoDB.
func connectMongoDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mongo.Client, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.MongoDB.URI).
		SetMaxPoolSize(cfg.MongoDB.MaxPoolSize)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, err
	}

	// Ping to verify connection
	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.MongoDB.Timeout)
	defer pingCancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return nil, pingErr
	}

	logger.InfoContext(ctx, "connected to MongoDB",
		slog.String("database", cfg.MongoDB.Database),
	)

	return client, nil
}

// startMetricsServer exposes the registry on addr, when configured.
func startMetricsServer(addr string, registry *prometheus.Registry, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()

	logger.Info("metrics server listening", slog.String("address", addr))
	return server
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

// waitForShutdown blocks until an OS signal arrives or the context ends.
func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}
}
