package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/attaboy/walletcore/internal/app"
	"github.com/attaboy/walletcore/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.StoreDriver != "postgres" {
		return fmt.Errorf("worker needs STORE_DRIVER=postgres, got %q", cfg.StoreDriver)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	rt, err := app.Open(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	svcs, err := app.NewServices(app.ServiceDeps{
		Store:    rt.Store,
		Cache:    rt.Cache,
		Gateway:  app.NewGateway(cfg, rt.Cache, logger),
		Logger:   logger,
		Currency: cfg.DefaultCurrency,
		Location: loc,
		Requests: app.PaymentRequestConfig(cfg),
	})
	if err != nil {
		return err
	}

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	poller := infra.NewOutboxPoller(rt.Outbox, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)
	sweeper := app.NewSweeper(svcs, cfg.ReconcileInterval, cfg.StreakSweepInterval, logger)

	logger.Info("worker starting",
		"kafka_enabled", cfg.KafkaEnabled,
		"reconcile_interval", cfg.ReconcileInterval,
		"streak_sweep_interval", cfg.StreakSweepInterval,
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()
	wg.Wait()

	logger.Info("worker stopped")
	return nil
}
