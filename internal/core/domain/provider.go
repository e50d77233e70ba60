package domain

import "fmt"

// ProviderCapabilities describes what an image model accepts
type ProviderCapabilities struct {
	Model          ImageModel             `json:"model"`
	ProviderName   string                 `json:"provider_name"`
	DisplayName    string                 `json:"display_name"`
	SupportedSizes []string               `json:"supported_sizes"`
	DefaultSize    string                 `json:"default_size"`
	AspectSizes    map[AspectRatio]string `json:"aspect_sizes"`
	DefaultParams  map[string]any         `json:"default_params,omitempty"`
	FileExtension  string                 `json:"file_extension"`
}

var capabilities = map[ImageModel]ProviderCapabilities{
	ImageModelOpenAI: {
		Model:          ImageModelOpenAI,
		ProviderName:   "openai",
		DisplayName:    "OpenAI (DALL-E 3)",
		SupportedSizes: []string{"1024x1024", "1792x1024", "1024x1792"},
		DefaultSize:    "1024x1024",
		AspectSizes: map[AspectRatio]string{
			AspectSquare:    "1024x1024",
			AspectLandscape: "1792x1024",
			AspectPortrait:  "1024x1792",
		},
		DefaultParams: map[string]any{"quality": "standard", "style": "vivid"},
		FileExtension: "png",
	},
	ImageModelGrok: {
		Model:          ImageModelGrok,
		ProviderName:   "xai",
		DisplayName:    "Grok",
		SupportedSizes: []string{"1024x768"},
		DefaultSize:    "1024x768",
		AspectSizes: map[AspectRatio]string{
			AspectSquare:    "1024x768",
			AspectLandscape: "1024x768",
			AspectPortrait:  "1024x768",
		},
		FileExtension: "jpg",
	},
	ImageModelNanoBanana: {
		Model:          ImageModelNanoBanana,
		ProviderName:   "google",
		DisplayName:    "Nano Banana",
		SupportedSizes: []string{"1024x1024", "1344x768", "768x1344"},
		DefaultSize:    "1024x1024",
		AspectSizes: map[AspectRatio]string{
			AspectSquare:    "1024x1024",
			AspectLandscape: "1344x768",
			AspectPortrait:  "768x1344",
		},
		FileExtension: "png",
	},
}

// CapabilitiesFor returns the capability table of a model
func CapabilitiesFor(model ImageModel) (ProviderCapabilities, error) {
	c, ok := capabilities[model]
	if !ok {
		return ProviderCapabilities{}, fmt.Errorf("no capabilities registered for image model %q", model)
	}
	return c, nil
}

// AllCapabilities lists capabilities in ImageModels order
func AllCapabilities() []ProviderCapabilities {
	out := make([]ProviderCapabilities, 0, len(capabilities))
	for _, m := range ImageModels() {
		out = append(out, capabilities[m])
	}
	return out
}

// SizeFor maps an aspect ratio to a concrete size, falling back to the default
func (c ProviderCapabilities) SizeFor(aspect AspectRatio) string {
	if size, ok := c.AspectSizes[aspect]; ok {
		return size
	}
	return c.DefaultSize
}
