package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

// ImageModel identifies the image generation provider
type ImageModel string

const (
	ImageModelOpenAI     ImageModel = "openai"     // A
	ImageModelGrok       ImageModel = "grok"       // B
	ImageModelNanoBanana ImageModel = "nanobanana" // C
)

// AspectRatio is the requested frame of the generated image
type AspectRatio string

const (
	AspectSquare    AspectRatio = "square"
	AspectLandscape AspectRatio = "landscape"
	AspectPortrait  AspectRatio = "portrait"
)

// Iteration budget bounds
const (
	MinIterations = 1
	MaxIterations = 5
)

// ImageModels returns all supported image models in display order
func ImageModels() []ImageModel {
	return []ImageModel{ImageModelOpenAI, ImageModelGrok, ImageModelNanoBanana}
}

// ParseImageModel accepts model identifiers and their common aliases
func ParseImageModel(s string) (ImageModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "a", "dall-e-3", "dalle":
		return ImageModelOpenAI, nil
	case "grok", "b":
		return ImageModelGrok, nil
	case "nanobanana", "nano_banana", "nano-banana", "c":
		return ImageModelNanoBanana, nil
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown image model %q", s))
	}
}

// ParseAspectRatio accepts names and ratio notation (1:1, 16:9, 9:16)
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "square", "1:1":
		return AspectSquare, nil
	case "landscape", "16:9":
		return AspectLandscape, nil
	case "portrait", "9:16":
		return AspectPortrait, nil
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown aspect ratio %q", s))
	}
}

// Ratio returns the W:H notation
func (a AspectRatio) Ratio() string {
	switch a {
	case AspectLandscape:
		return "16:9"
	case AspectPortrait:
		return "9:16"
	default:
		return "1:1"
	}
}

// GenerationConfig is fixed before the first image is generated
type GenerationConfig struct {
	ImageModel    ImageModel  `json:"image_model"`
	AspectRatio   AspectRatio `json:"aspect_ratio"`
	MaxIterations int         `json:"max_iterations"`
}

// DefaultGenerationConfig mirrors the initial form values
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		ImageModel:    ImageModelOpenAI,
		AspectRatio:   AspectSquare,
		MaxIterations: 3,
	}
}

// Validate checks enum membership and the iteration budget range
func (c GenerationConfig) Validate() error {
	switch c.ImageModel {
	case ImageModelOpenAI, ImageModelGrok, ImageModelNanoBanana:
	default:
		return apperrors.InvalidInput(fmt.Sprintf("unknown image model %q", c.ImageModel))
	}
	switch c.AspectRatio {
	case AspectSquare, AspectLandscape, AspectPortrait:
	default:
		return apperrors.InvalidInput(fmt.Sprintf("unknown aspect ratio %q", c.AspectRatio))
	}
	if c.MaxIterations < MinIterations || c.MaxIterations > MaxIterations {
		return apperrors.InvalidInput(
			fmt.Sprintf("max_iterations must be in [%d,%d], got %d", MinIterations, MaxIterations, c.MaxIterations)).
			WithDetails("max_iterations", c.MaxIterations)
	}
	return nil
}

// NewGenerationConfig parses loosely-typed inputs into a validated config
func NewGenerationConfig(model, aspect string, maxIterations int) (GenerationConfig, error) {
	m, err := ParseImageModel(model)
	if err != nil {
		return GenerationConfig{}, err
	}
	a, err := ParseAspectRatio(aspect)
	if err != nil {
		return GenerationConfig{}, err
	}
	cfg := GenerationConfig{ImageModel: m, AspectRatio: a, MaxIterations: maxIterations}
	if err := cfg.Validate(); err != nil {
		return GenerationConfig{}, err
	}
	return cfg, nil
}
