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

	"p2p-lending-engine/internal/app"
	"p2p-lending-engine/internal/config"
	"p2p-lending-engine/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, true)
	if err != nil {
		logger.Error("failed to initialize app", err)
		os.Exit(1)
	}
	defer a.Close()

	e := a.Echo()
	addr := ":" + cfg.AppPort
	go func() {
		logger.Info("listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", err)
	}
	logger.Info("server exiting")
}
