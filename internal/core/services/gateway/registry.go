package gateway

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

// Registry routes image generation to the generator registered for the
// configured image model. It implements ImageGenerator itself.
type Registry struct {
	mu         sync.RWMutex
	generators map[domain.ImageModel]ImageGenerator
	aliases    map[string]domain.ImageModel
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[domain.ImageModel]ImageGenerator),
		aliases:    make(map[string]domain.ImageModel),
	}
}

// Register adds a generator for a model with optional aliases
func (r *Registry) Register(model domain.ImageModel, gen ImageGenerator, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generators[model] = gen
	for _, alias := range aliases {
		r.aliases[strings.ToLower(alias)] = model
	}
}

// Get retrieves a generator by model name or alias
func (r *Registry) Get(identifier string) (ImageGenerator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model := domain.ImageModel(identifier)
	if aliased, ok := r.aliases[strings.ToLower(identifier)]; ok {
		model = aliased
	}

	gen, ok := r.generators[model]
	if !ok {
		return nil, fmt.Errorf("image generator '%s' not found. Available: %v", identifier, r.modelsLocked())
	}
	return gen, nil
}

// Models lists registered models in a stable order
func (r *Registry) Models() []domain.ImageModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modelsLocked()
}

func (r *Registry) modelsLocked() []domain.ImageModel {
	models := make([]domain.ImageModel, 0, len(r.generators))
	for m := range r.generators {
		models = append(models, m)
	}
	slices.Sort(models)
	return models
}

// GenerateImage dispatches on cfg.ImageModel
func (r *Registry) GenerateImage(ctx context.Context, prompt domain.Prompt, cfg domain.GenerationConfig) (domain.ImageRef, error) {
	gen, err := r.Get(string(cfg.ImageModel))
	if err != nil {
		return "", apperrors.ModelUnavailable(err, "no generator for image model").
			WithDetails("image_model", string(cfg.ImageModel))
	}
	return gen.GenerateImage(ctx, prompt, cfg)
}
