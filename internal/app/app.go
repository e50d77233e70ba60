// Package app wires configuration into the gateway, stores and session
// manager shared by the server and worker binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandroruanova/sfumato/internal/api"
	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	"github.com/alejandroruanova/sfumato/internal/core/services/manager"
	"github.com/alejandroruanova/sfumato/internal/infrastructure/cache"
	"github.com/alejandroruanova/sfumato/internal/infrastructure/database"
	"github.com/alejandroruanova/sfumato/internal/infrastructure/database/repositories"
	"github.com/alejandroruanova/sfumato/internal/infrastructure/llm"
	"github.com/alejandroruanova/sfumato/internal/infrastructure/storage"
	"github.com/alejandroruanova/sfumato/internal/pkg/config"
)

// App holds the long-lived dependencies of a process
type App struct {
	Config   *config.Config
	Gateway  gateway.Gateway
	Sessions *manager.Manager
	Images   *storage.LocalStorage
	Health   map[string]api.HealthChecker

	closers []func() error
	logger  *slog.Logger
}

// New builds the application from cfg. Close releases what it opened.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Health: make(map[string]api.HealthChecker), logger: logger}

	images, err := storage.NewLocalStorage(&storage.LocalStorageConfig{BasePath: cfg.StorageBasePath}, logger.With(slog.String("component", "storage")))
	if err != nil {
		return nil, fmt.Errorf("image storage: %w", err)
	}
	a.Images = images

	gw, err := buildGateway(cfg, images, logger)
	if err != nil {
		return nil, err
	}
	a.Gateway = gateway.WithTimeout(gw, cfg.GatewayTimeout(), logger.With(slog.String("component", "gateway")))

	store, err := a.buildStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	defaults, err := domain.NewGenerationConfig(cfg.DefaultImageModel, cfg.DefaultAspectRatio, cfg.DefaultMaxIterations)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("default generation config: %w", err)
	}

	a.Sessions = manager.New(a.Gateway, manager.Options{
		Store:         store,
		TTL:           cfg.SessionTTL(),
		DefaultConfig: defaults,
		Logger:        logger.With(slog.String("component", "sessions")),
		ReadThrough:   cfg.QueueEnabled,
		InFlightLease: 2*cfg.GatewayTimeout() + 30*time.Second,
	})
	return a, nil
}

func buildGateway(cfg *config.Config, images *storage.LocalStorage, logger *slog.Logger) (gateway.Gateway, error) {
	if cfg.GatewayMode == config.GatewayModeScripted {
		logger.Warn("Using scripted model gateway")
		return gateway.NewScripted(), nil
	}

	chat, err := llm.NewChatClient(llm.Settings{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIPromptModel,
	}, cfg.OpenAIJudgeModel, images, logger.With(slog.String("component", "llm")))
	if err != nil {
		return nil, err
	}

	save := func(ctx context.Context, model domain.ImageModel, prompt string, encoded string) (domain.ImageRef, error) {
		meta, err := images.SaveBase64(ctx, model, prompt, encoded)
		if err != nil {
			return "", err
		}
		return meta.Ref, nil
	}

	registry := gateway.NewRegistry()
	providers := []struct {
		model    domain.ImageModel
		settings llm.Settings
		sendSize bool
		aliases  []string
	}{
		{domain.ImageModelOpenAI, llm.Settings{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIImageModel}, true, []string{"a", "dall-e-3"}},
		{domain.ImageModelGrok, llm.Settings{APIKey: cfg.GrokAPIKey, BaseURL: cfg.GrokBaseURL, Model: cfg.GrokImageModel}, false, []string{"b"}},
		{domain.ImageModelNanoBanana, llm.Settings{APIKey: cfg.GeminiAPIKey, BaseURL: cfg.GeminiBaseURL, Model: cfg.GeminiImageModel}, false, []string{"c", "nano_banana"}},
	}
	for _, p := range providers {
		if p.settings.APIKey == "" {
			logger.Info("Image provider not configured", slog.String("image_model", string(p.model)))
			continue
		}
		client, err := llm.NewImageClient(p.settings, llm.ImageOptions{
			Model:    p.model,
			SendSize: p.sendSize,
			Save:     save,
			Logger:   logger.With(slog.String("component", "llm"), slog.String("image_model", string(p.model))),
		})
		if err != nil {
			return nil, err
		}
		registry.Register(p.model, client, p.aliases...)
	}

	return gateway.Compose(chat, registry, chat), nil
}

func (a *App) buildStore(cfg *config.Config) (manager.SnapshotStore, error) {
	switch cfg.SnapshotStore {
	case config.SnapshotStoreRedis:
		rc, err := cache.NewRedisCache(cfg.Cache(), cfg.SessionTTL(), a.logger.With(slog.String("component", "cache")))
		if err != nil {
			return nil, fmt.Errorf("redis snapshot store: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		a.Health["redis"] = rc
		return rc, nil
	case config.SnapshotStorePostgres:
		db, err := database.NewPostgresDB(cfg.Database(), a.logger.With(slog.String("component", "database")))
		if err != nil {
			return nil, fmt.Errorf("postgres snapshot store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("postgres migration: %w", err)
		}
		a.Health["postgres"] = db
		return repositories.NewSnapshotRepository(db.DB, cfg.SessionTTL(), a.logger.With(slog.String("component", "repository"))), nil
	default:
		return nil, nil
	}
}

// Close releases connections in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close dependency", slog.Any("error", err))
		}
	}
	a.closers = nil
}
