package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sitesync/internal/api"
	"sitesync/internal/config"
	"sitesync/internal/events"
	"sitesync/internal/logging"
	"sitesync/internal/metrics"
	"sitesync/internal/queue"
	"sitesync/internal/remote"
	"sitesync/internal/store"
	"sitesync/internal/syncer"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, cleanup, err := initStore(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer cleanup()

	metrics.Register()

	eventBus := events.NewEventBus()
	subscribeQueueEvents(eventBus, &logger)

	q := queue.Init(ctx, kv, eventBus, &logger)

	client := remote.NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.RequestTimeout, &logger)
	retryPolicy := syncer.RetryPolicy{
		InitialDelay:  cfg.Sync.BackoffInitial,
		MaxDelay:      cfg.Sync.BackoffMax,
		BackoffFactor: cfg.Sync.BackoffFactor,
	}
	manager := syncer.NewManager(q, client, eventBus, retryPolicy, &logger)

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, q, manager, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().
		Str("backend", cfg.Storage.Backend).
		Int("pending", q.Size()).
		Msg("Агент запущен...")

	runDrainLoop(ctx, cfg.Sync.Interval, manager, &logger)

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "agent-main").Logger()

	return cfg, logger, closer, nil
}

// initStore builds the snapshot store for the configured backend and wraps
// it in a failover store so the queue survives backend outages in memory.
func initStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (store.KeyValueStore, func(), error) {
	cleanup := func() {}

	var primary store.KeyValueStore
	switch cfg.Storage.Backend {
	case "memory":
		return store.NewMemoryStore(), cleanup, nil
	case "redis":
		redisClient := store.NewRedisClient(
			cfg.Storage.Redis.Address,
			cfg.Storage.Redis.Password,
			cfg.Storage.Redis.DB,
			cfg.Storage.Redis.PoolSize,
		)
		if err := store.Ping(ctx, redisClient); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable")
		}
		primary = store.NewRedisStore(redisClient, cfg.Storage.Key)
		cleanup = func() { _ = redisClient.Close() }
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
			return nil, cleanup, err
		}
		sqliteStore, err := store.NewSQLiteStore(cfg.Storage.Path, cfg.Storage.Key, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
			return nil, cleanup, err
		}
		primary = sqliteStore
		cleanup = func() { _ = sqliteStore.Close() }
	}

	return store.NewFailoverStore(primary, store.NewMemoryStore(), logger), cleanup, nil
}

func runDrainLoop(ctx context.Context, interval time.Duration, manager *syncer.Manager, logger *zerolog.Logger) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := manager.SyncQueue(ctx)
			if result.SyncedCount > 0 || result.FailedCount > 0 {
				logger.Info().
					Int("synced", result.SyncedCount).
					Int("failed", result.FailedCount).
					Int("server_wins", result.ServerWinsCount).
					Msg("drain pass finished")
			}
		}
	}
}

func subscribeQueueEvents(bus *events.EventBus, logger *zerolog.Logger) {
	if bus == nil {
		return
	}

	exhaustedHandler := func(ev *events.Event) error {
		var payload events.UpdateEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Warn().
			Str("update_id", payload.UpdateID).
			Str("component_id", payload.ComponentID).
			Str("milestone", payload.MilestoneName).
			Str("error", payload.Error).
			Msg("update moved to failed list")
		return nil
	}

	syncHandler := func(ev *events.Event) error {
		var payload events.SyncEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Info().
			Int("synced", payload.SyncedCount).
			Int("failed", payload.FailedCount).
			Int("server_wins", payload.ServerWinsCount).
			Str("status", payload.Status).
			Msg("sync completed")
		return nil
	}

	bus.Subscribe(events.EventUpdateExhausted, exhaustedHandler)
	bus.Subscribe(events.EventSyncCompleted, syncHandler)
}
