package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"plugind/internal/api"
	"plugind/internal/config"
	"plugind/internal/notify"
	"plugind/internal/state"
	"plugind/pkg/logger"
	"plugind/pkg/plugin"
)

// main is the entry point of the plugin host daemon.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("plugind exited with error: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("PLUGIND_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "plugind.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("flushing logs failed: %v", err)
		}
	}()

	store, err := createStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if store != nil {
			_ = store.Close()
		}
	}()

	overrides, err := config.LoadOverrides(cfg.Plugins.OverridesFile)
	if err != nil {
		return err
	}

	opts := []plugin.Option{
		plugin.WithStore(store),
		plugin.WithLogger(logger.Named("plugin-manager")),
	}
	for name, override := range overrides.Plugins {
		if override.MountPrefix != "" {
			opts = append(opts, plugin.WithMountPrefix(name, override.MountPrefix))
		}
	}

	manager := plugin.NewManager(opts...)

	// Every lifecycle decision lands in the audit trail.
	audit := logger.Audit()
	manager.Events().SubscribeAll(0, plugin.HandlerFunc(func(event plugin.Event) error {
		audit.Info("plugin lifecycle event",
			"event", event.Name,
			"plugin", event.PluginName,
			"event_id", event.ID,
			"occurred_at", event.OccurredAt,
		)
		return nil
	}))

	if cfg.Events.Driver == "rabbitmq" {
		publisher, err := notify.NewAMQPPublisher(notify.AMQPConfig{
			URL:        cfg.Events.RabbitMQ.URL,
			Queue:      cfg.Events.RabbitMQ.Queue,
			Durable:    cfg.Events.RabbitMQ.Durable,
			AutoDelete: cfg.Events.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
		manager.Events().SubscribeAll(0, publisher)
	} else if cfg.Events.Driver != "none" {
		return fmt.Errorf("unknown events driver: %s", cfg.Events.Driver)
	}

	source := &plugin.DirectorySource{
		Dir:    cfg.Plugins.Dir,
		Loader: &plugin.GoPluginLoader{},
		Log:    logger.Named("plugin-discovery"),
	}

	if err := os.MkdirAll(cfg.Plugins.Dir, 0o755); err != nil {
		return err
	}

	found, err := manager.Discover(ctx, source)
	if err != nil {
		return err
	}
	logger.L().Info("plugin discovery finished", "dir", cfg.Plugins.Dir, "registered", found)

	for name, override := range overrides.Plugins {
		if len(override.Config) == 0 {
			continue
		}
		if err := manager.Initialize(name, override.Config); err != nil {
			logger.L().Warn("could not apply config override", "plugin", name, "error", err)
		}
	}

	restored, err := manager.LoadPersistedState(ctx)
	if err != nil {
		return err
	}
	logger.L().Info("persisted plugin state restored", "enabled", restored)

	// First run: no persisted decisions yet, so apply the configured
	// default set once. After that the store is authoritative.
	if restored == 0 {
		for _, name := range cfg.Plugins.DefaultEnabled {
			if err := manager.Enable(ctx, name); err != nil {
				logger.L().Warn("could not enable default plugin", "plugin", name, "error", err)
			}
		}
	}

	if cfg.Plugins.Watch {
		watcher := plugin.NewWatcher(manager, source, cfg.Plugins.Dir)
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("plugin directory watcher stopped", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, manager)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// createStore builds the configured state backend.
func createStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return state.NewMemoryStore(), nil
	case "mysql":
		return state.NewMySQLStore(ctx, state.MySQLConfig{
			DSN:             cfg.Storage.MySQL.DSN,
			MaxOpenConns:    cfg.Storage.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.MySQL.ConnMaxLifetimeSeconds) * time.Second,
		})
	case "redis":
		return state.NewRedisStore(ctx, state.RedisConfig{
			Address:  cfg.Storage.Redis.Address,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
	default:
		return nil, state.ErrUnsupportedDriver
	}
}
