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

	"github.com/runboard/runboard/internal/app"
	"github.com/runboard/runboard/internal/config"
	"github.com/runboard/runboard/internal/logger"
	"github.com/runboard/runboard/internal/routes"
)

func main() {
	cfg := config.Load()

	logger.Init(os.Stdout, cfg.IsDevelopment(), cfg.SentryDSN)
	defer logger.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		panic(err)
	}
	defer func() {
		closeErr := app.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	err = os.MkdirAll(cfg.DataDir, 0o755)
	if err != nil {
		slog.Error("failed to create data dir", "error", err, "dir", cfg.DataDir)
		panic(err)
	}

	go func() {
		watchErr := app.Dataset.Watch(ctx)
		if watchErr != nil {
			slog.Warn("dataset watcher stopped, cache reloads only after syncs", "error", watchErr)
		}
	}()
	go app.SyncLimiter.RunCleanup(ctx, 5*time.Minute)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.SetupRoutes(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr := server.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			slog.Error("server shutdown failed", "error", shutdownErr)
		}
	}()

	slog.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv, "url", "http://localhost:"+cfg.Port)

	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		panic(err)
	}
	slog.Info("server stopped")
}
