// Package cli provides common CLI initialization utilities shared by
// cmd/teambudget and cmd/budget-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"teambudget/internal/amqp"
	"teambudget/internal/backend"
	"teambudget/internal/cache"
	"teambudget/internal/config"
	"teambudget/internal/email"
	"teambudget/internal/log"
	"teambudget/internal/services"
	"teambudget/internal/worker"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration, installs the default logger
// for component and validates the configuration. Exits on validation failure.
func LoadAndValidateConfig(component string) (*config.Config, *log.Logger) {
	cfg := config.Load()
	logger := log.Setup(cfg.LogLevel, cfg.LogFormat, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed",
			"error_type", log.ErrorTypeConfiguration,
			log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitBackend opens the configured store, seeding default categories and
// budgets into an empty one. Exits on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	bcfg.SeedDefaults = true

	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend",
			"backend", bcfg.Type.String(),
			"error_type", log.ErrorTypeDatabase,
			log.FieldError, err)
		os.Exit(1)
	}
	return result
}

// InitAMQP connects to the broker when one is configured. A nil client means
// change events and notification fan-out are disabled.
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if !cfg.AMQPEnabled() {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil
	}
	client, err := amqp.NewClient(amqp.Config{
		URL:               cfg.AMQPURL,
		Exchange:          cfg.AMQPExchange,
		ChangeQueue:       cfg.AMQPChangeQueue,
		NotificationQueue: cfg.AMQPNotificationQueue,
	})
	if err != nil {
		logger.Warn("Failed to connect to AMQP, continuing without broker",
			"error_type", log.ErrorTypeNetwork,
			log.FieldError, err)
		return nil
	}
	logger.Info("AMQP client initialized",
		"exchange", cfg.AMQPExchange,
		"change_queue", cfg.AMQPChangeQueue,
		"notification_queue", cfg.AMQPNotificationQueue)
	return client
}

// ChangePublisher returns client as a services.ChangePublisher, or a nil
// interface when there is no client.
func ChangePublisher(client *amqp.Client) services.ChangePublisher {
	if client == nil {
		return nil
	}
	return client
}

// NotificationPublisher returns client as a services.NotificationPublisher,
// or a nil interface when there is no client.
func NotificationPublisher(client *amqp.Client) services.NotificationPublisher {
	if client == nil {
		return nil
	}
	return client
}

// NewEmailSender builds the e-mail provider client from configuration.
func NewEmailSender(cfg *config.Config) *email.Client {
	return email.NewClient(
		email.WithEndpoint(cfg.EmailAPIURL),
		email.WithTimeout(cfg.EmailTimeout),
	)
}

// NewCycleWorker wires the recomputation cycle: alert dispatcher, seen
// tracker, optional notification publisher. When the seen tracker expires
// entries, the returned cache manager sweeps them; callers must Stop it.
func NewCycleWorker(logger *log.Logger, cfg *config.Config, store services.Store, publisher services.NotificationPublisher) (*worker.CycleWorker, *cache.Manager) {
	dispatcher := services.NewAlertDispatcher(store, NewEmailSender(cfg), cfg.AppLink)
	seen := services.NewSeenTracker(cfg.SeenCacheSize, cfg.SeenCacheTTL)

	opts := []services.CycleOption{services.WithSeenTracker(seen)}
	if publisher != nil {
		opts = append(opts, services.WithPublisher(publisher))
	}
	cycle := services.NewCycle(store, dispatcher, opts...)

	manager := cache.NewManager()
	if cfg.SeenCacheTTL > 0 {
		if cleaner, ok := seen.Cleaner(); ok {
			manager.Register(cleaner)
			manager.StartCleanup(cfg.SeenCacheTTL)
			logger.Info("Seen notification expiry enabled", "ttl", cfg.SeenCacheTTL)
		}
	}

	return worker.NewCycleWorker(cycle, worker.Config{
		Interval: cfg.CycleInterval,
		Location: cfg.Location(),
	}), manager
}

// Readiness returns the store's ping, if it has one.
func Readiness(store services.Store) func(ctx context.Context) error {
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping
	}
	return nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached", log.FieldOperation, log.OpShutdown)
		} else {
			logger.Info("Shutdown complete", log.FieldOperation, log.OpShutdown)
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
