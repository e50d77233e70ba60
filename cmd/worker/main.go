package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandroruanova/sfumato/internal/app"
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

	if !cfg.QueueEnabled {
		appLogger.Error("worker requires QUEUE_ENABLED=true")
		os.Exit(1)
	}

	a, err := app.New(cfg, logger.NewServiceLogger("worker"))
	if err != nil {
		appLogger.Error("failed to initialize application", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.Close()

	server, err := queue.NewAsynqServer(cfg.Queue(), logger.NewServiceLogger("queue"))
	if err != nil {
		appLogger.Error("failed to create queue server", slog.Any("error", err))
		os.Exit(1)
	}

	driver := autorun.NewDriver(a.Sessions, logger.NewServiceLogger("autorun"))
	server.HandleFunc(queue.TaskTypeAutorun, driver.HandleTask)

	if err := server.Start(); err != nil {
		appLogger.Error("failed to start worker", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	server.Shutdown()
	appLogger.Info("worker stopped")
}
