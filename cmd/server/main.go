package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandroruanova/sfumato/internal/api"
	"github.com/alejandroruanova/sfumato/internal/app"
	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/autorun"
	"github.com/alejandroruanova/sfumato/internal/infrastructure/queue"
	"github.com/alejandroruanova/sfumato/internal/pkg/config"
	"github.com/alejandroruanova/sfumato/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger := logger.Initialize(cfg.Environment, cfg.LogLevel)
	cfg.LogConfig(appLogger)

	a, err := app.New(cfg, logger.NewServiceLogger("server"))
	if err != nil {
		appLogger.Error("failed to initialize application", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.Close()

	var scheduler *autorun.Scheduler
	if cfg.QueueEnabled {
		client, err := queue.NewAsynqClient(cfg.Queue(), logger.NewServiceLogger("queue"))
		if err != nil {
			appLogger.Error("failed to create queue client", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		scheduler = autorun.NewScheduler(client)
	}

	srv := api.New(api.Options{
		Sessions:  a.Sessions,
		Driver:    autorun.NewDriver(a.Sessions, logger.NewServiceLogger("autorun")),
		Scheduler: scheduler,
		Images:    a.Images,
		Health:    a.Health,
		Logger:    logger.NewServiceLogger("api"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.Sessions.Run(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// An inline autorun makes up to two model calls per cycle
		WriteTimeout: time.Duration(2*domain.MaxIterations+2)*cfg.GatewayTimeout() + 30*time.Second,
	}

	go func() {
		appLogger.Info("http server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("http server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http server shutdown failed", slog.Any("error", err))
	}
}
