package main

import (
	"context"
	"errors"
	"os"
	"time"

	"teambudget/internal/cli"
	"teambudget/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)

	logger.Info("Starting budget-worker",
		"backend", cfg.DataBackend,
		"interval", cfg.CycleInterval,
		"timezone", cfg.Timezone)

	result := cli.InitBackend(context.Background(), logger, cfg)

	amqpClient := cli.InitAMQP(logger, cfg)
	cycleWorker, cacheManager := cli.NewCycleWorker(logger, cfg, result.Store, cli.NotificationPublisher(amqpClient))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := cycleWorker.Stop(shutdownCtx); err != nil {
			logger.Error("Cycle worker shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
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

	if err := cycleWorker.Start(ctx); err != nil {
		logger.Error("Failed to start cycle worker", log.FieldError, err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			// ConsumeChanges reconnects on its own and only returns on cancellation
			if err := amqpClient.ConsumeChanges(ctx, cycleWorker.HandleChange); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Change consumption stopped", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("No broker configured, relying on the periodic cycle")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
