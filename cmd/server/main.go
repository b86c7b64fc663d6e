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

	"github.com/mycho0012/tradingview-loagreen/internal/app"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := defaultConfigPath
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	log := bootstrap.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if bootstrap.Worker != nil {
		if err := bootstrap.Worker.Connect(ctx); err != nil {
			log.Warn("ticker stream start failed", slog.Any("error", err))
		}
	}

	srv := &http.Server{
		Addr:              bootstrap.Config.Server.Addr,
		Handler:           bootstrap.Server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("🚀 Webhook server listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown incomplete", slog.Any("error", err))
	}

	if bootstrap.Worker != nil {
		bootstrap.Worker.Disconnect()
	}
	log.Info("✨ Shutdown complete")
}
