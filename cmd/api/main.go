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

	"github.com/joho/godotenv"

	"github.com/attaboy/walletcore/internal/app"
	"github.com/attaboy/walletcore/internal/auth"
	"github.com/attaboy/walletcore/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
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
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	playerExpiry, err := auth.ParseExpiry("JWT_PLAYER_EXPIRY", cfg.JWTPlayerExpiry)
	if err != nil {
		return err
	}
	adminExpiry, err := auth.ParseExpiry("JWT_ADMIN_EXPIRY", cfg.JWTAdminExpiry)
	if err != nil {
		return err
	}
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, playerExpiry, adminExpiry)

	rt, err := app.Open(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	hub := infra.NewWSHub(logger)
	defer hub.Shutdown(context.Background())

	svcs, err := app.NewServices(app.ServiceDeps{
		Store:    rt.Store,
		Cache:    rt.Cache,
		Hub:      hub,
		Gateway:  app.NewGateway(cfg, rt.Cache, logger),
		Logger:   logger,
		Currency: cfg.DefaultCurrency,
		Location: loc,
		Requests: app.PaymentRequestConfig(cfg),
	})
	if err != nil {
		return err
	}

	router := app.NewRouter(app.RouterDeps{
		Services:    svcs,
		JWTMgr:      jwtMgr,
		Hub:         hub,
		Logger:      logger,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Health:      rt.HealthChecks(),
		GameSecret:  cfg.GameCallbackSecret,
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr, "store", cfg.StoreDriver, "currency", cfg.DefaultCurrency)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
