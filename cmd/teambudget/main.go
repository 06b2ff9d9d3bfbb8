package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"teambudget/internal/cli"
	apphttp "teambudget/internal/http"
	"teambudget/internal/log"
	"teambudget/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)

	result := cli.InitBackend(context.Background(), logger, cfg)
	store := result.Store

	amqpClient := cli.InitAMQP(logger, cfg)
	publisher := cli.ChangePublisher(amqpClient)

	// Without a broker the recomputation cycle runs in-process, fed directly
	// by the ledger's change events.
	var embedded interface {
		Start(context.Context) error
		Stop(context.Context) error
	}
	var stopCleanup func()
	if publisher == nil {
		w, manager := cli.NewCycleWorker(logger, cfg, store, nil)
		embedded, publisher, stopCleanup = w, w, manager.Stop
		logger.Info("Running recomputation cycle in-process")
	}

	ledger := services.NewLedgerService(store, publisher)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:    ledger,
		Processor: services.NewRecurringProcessor(store),
		Location:  cfg.Location(),
		Ready:     cli.Readiness(store),
		Logger:    logger.WithComponent(log.ComponentHTTP),

		TrustedProxies: cfg.TrustedProxies,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if embedded != nil {
			if err := embedded.Stop(shutdownCtx); err != nil {
				logger.Error("Cycle worker shutdown error", log.FieldError, err)
			}
			stopCleanup()
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Store close error", log.FieldError, err)
			}
		}
	})

	if embedded != nil {
		if err := embedded.Start(ctx); err != nil {
			logger.Error("Failed to start cycle worker", log.FieldError, err)
			os.Exit(1)
		}
	}

	logger.Info("Starting teambudget server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", amqpClient != nil,
		"seeded", result.Seeded)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
