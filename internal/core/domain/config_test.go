package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

func TestParseImageModel(t *testing.T) {
	tests := []struct {
		in      string
		want    ImageModel
		wantErr bool
	}{
		{"openai", ImageModelOpenAI, false},
		{"A", ImageModelOpenAI, false},
		{" grok ", ImageModelGrok, false},
		{"nano_banana", ImageModelNanoBanana, false},
		{"c", ImageModelNanoBanana, false},
		{"midjourney", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseImageModel(tt.in)
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAspectRatio(t *testing.T) {
	for in, want := range map[string]AspectRatio{
		"1:1":       AspectSquare,
		"16:9":      AspectLandscape,
		"9:16":      AspectPortrait,
		"Landscape": AspectLandscape,
	} {
		got, err := ParseAspectRatio(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseAspectRatio("4:3")
	assert.Error(t, err)
}

func TestAspectRatio_Ratio(t *testing.T) {
	assert.Equal(t, "1:1", AspectSquare.Ratio())
	assert.Equal(t, "16:9", AspectLandscape.Ratio())
	assert.Equal(t, "9:16", AspectPortrait.Ratio())
}

func TestGenerationConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultGenerationConfig().Validate())

	for _, n := range []int{0, 6, -1} {
		cfg := DefaultGenerationConfig()
		cfg.MaxIterations = n
		err := cfg.Validate()
		require.Error(t, err)
		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, appErr.Code)
		assert.Equal(t, n, appErr.Details["max_iterations"])
	}

	for _, n := range []int{MinIterations, MaxIterations} {
		cfg := DefaultGenerationConfig()
		cfg.MaxIterations = n
		assert.NoError(t, cfg.Validate())
	}

	bad := DefaultGenerationConfig()
	bad.ImageModel = "other"
	assert.Error(t, bad.Validate())
}

func TestNewGenerationConfig(t *testing.T) {
	cfg, err := NewGenerationConfig("b", "9:16", 5)
	require.NoError(t, err)
	assert.Equal(t, GenerationConfig{ImageModel: ImageModelGrok, AspectRatio: AspectPortrait, MaxIterations: 5}, cfg)

	_, err = NewGenerationConfig("openai", "square", 9)
	assert.Error(t, err)
}

func TestCapabilitiesFor(t *testing.T) {
	c, err := CapabilitiesFor(ImageModelOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "1792x1024", c.SizeFor(AspectLandscape))
	assert.Equal(t, "png", c.FileExtension)

	grok, err := CapabilitiesFor(ImageModelGrok)
	require.NoError(t, err)
	assert.Equal(t, "1024x768", grok.SizeFor(AspectPortrait))
	assert.Equal(t, "1024x768", grok.SizeFor("unknown"))

	_, err = CapabilitiesFor("unknown")
	assert.Error(t, err)

	all := AllCapabilities()
	require.Len(t, all, 3)
	assert.Equal(t, ImageModelNanoBanana, all[2].Model)
}
