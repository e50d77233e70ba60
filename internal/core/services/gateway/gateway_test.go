package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
	"github.com/alejandroruanova/sfumato/internal/pkg/logger"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.ErrorCode
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, apperrors.ErrCodeTimeout},
		{"wrapped deadline", errors.Join(errors.New("http"), context.DeadlineExceeded), apperrors.ErrCodeTimeout},
		{"cancelled", context.Canceled, apperrors.ErrCodeCancelled},
		{"rejected passes through", apperrors.GenerationRejected(nil, "policy"), apperrors.ErrCodeGenerationRejected},
		{"plain error", errors.New("connection refused"), apperrors.ErrCodeModelUnavailable},
		{"foreign app error", apperrors.Internal("boom"), apperrors.ErrCodeModelUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.KindOf(Classify(OpJudge, tt.err)))
		})
	}
}

func TestBounded_TimesOutHungCall(t *testing.T) {
	scripted := NewScripted()
	release := scripted.Block()
	defer release()

	gw := WithTimeout(scripted, 20*time.Millisecond, logger.Discard())

	start := time.Now()
	_, err := gw.GenerateImage(context.Background(), domain.Prompt{Text: "p", Version: 1}, domain.DefaultGenerationConfig())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTimeout, apperrors.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestBounded_RejectsBlankIdea(t *testing.T) {
	scripted := NewScripted()
	gw := WithTimeout(scripted, time.Second, logger.Discard())

	_, err := gw.SynthesizePrompt(context.Background(), "  ")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
	assert.Equal(t, 0, scripted.Calls(OpSynthesizePrompt))
}

func TestBounded_InvalidVerdict(t *testing.T) {
	score := 140
	scripted := NewScripted().QueueVerdicts(domain.JudgeVerdict{Approved: true, Score: &score})
	gw := WithTimeout(scripted, time.Second, logger.Discard())

	_, err := gw.Judge(context.Background(), "img", domain.Prompt{Text: "p", Version: 1}, "fb")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeModelUnavailable))
}

func TestBounded_ClassifiesInnerErrors(t *testing.T) {
	scripted := NewScripted().QueueError(OpJudge, errors.New("503 from upstream"))
	gw := WithTimeout(scripted, time.Second, logger.Discard())

	_, err := gw.Judge(context.Background(), "img", domain.Prompt{Text: "p", Version: 1}, "fb")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeModelUnavailable))
	assert.True(t, apperrors.Retriable(apperrors.KindOf(err)))

	// Queue drained, next call succeeds with the default verdict
	v, err := gw.Judge(context.Background(), "img", domain.Prompt{Text: "p", Version: 1}, "fb")
	require.NoError(t, err)
	assert.False(t, v.Approved)
	assert.Equal(t, ScriptedClause, v.RefinementClause)
}

func TestScripted_SynthesizePrompt(t *testing.T) {
	s := NewScripted()
	p, err := s.SynthesizePrompt(context.Background(), "a red bicycle")
	require.NoError(t, err)
	assert.Equal(t, "A highly detailed, cinematic shot of a red bicycle, soft volumetric lighting, 8k resolution, masterpiece.", p.Text)
	assert.Equal(t, 1, p.Version)
}

func TestScripted_GenerateImageUsesCapabilities(t *testing.T) {
	s := NewScripted()
	cfg := domain.GenerationConfig{ImageModel: domain.ImageModelOpenAI, AspectRatio: domain.AspectLandscape, MaxIterations: 2}

	first, err := s.GenerateImage(context.Background(), domain.Prompt{Text: "p", Version: 1}, cfg)
	require.NoError(t, err)
	second, err := s.GenerateImage(context.Background(), domain.Prompt{Text: "p", Version: 1}, cfg)
	require.NoError(t, err)

	assert.Contains(t, string(first), "1792x1024")
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, s.Calls(OpGenerateImage))
}

func TestRegistry_RoutesByModel(t *testing.T) {
	grok := NewScripted()
	openai := NewScripted()

	r := NewRegistry()
	r.Register(domain.ImageModelOpenAI, openai, "a", "dall-e-3")
	r.Register(domain.ImageModelGrok, grok, "b")

	cfg := domain.DefaultGenerationConfig()
	cfg.ImageModel = domain.ImageModelGrok
	_, err := r.GenerateImage(context.Background(), domain.Prompt{Text: "p", Version: 1}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, grok.Calls(OpGenerateImage))
	assert.Equal(t, 0, openai.Calls(OpGenerateImage))

	gen, err := r.Get("DALL-E-3")
	require.NoError(t, err)
	assert.Same(t, openai, gen)

	assert.Equal(t, []domain.ImageModel{domain.ImageModelGrok, domain.ImageModelOpenAI}, r.Models())

	cfg.ImageModel = domain.ImageModelNanoBanana
	_, err = r.GenerateImage(context.Background(), domain.Prompt{Text: "p", Version: 1}, cfg)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeModelUnavailable))
}

func TestCompose(t *testing.T) {
	s := NewScripted()
	r := NewRegistry()
	r.Register(domain.ImageModelOpenAI, s)

	judge := NewScripted().QueueVerdicts(domain.JudgeVerdict{Approved: true, Notes: "matches"})

	gw := Compose(s, r, judge)
	ctx := context.Background()

	prompt, err := gw.SynthesizePrompt(ctx, "a lighthouse")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Calls(OpSynthesizePrompt))

	ref, err := gw.GenerateImage(ctx, prompt, domain.DefaultGenerationConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Calls(OpGenerateImage))

	verdict, err := gw.Judge(ctx, ref, prompt, "brighter")
	require.NoError(t, err)
	assert.True(t, verdict.Approved)
	assert.Equal(t, "matches", verdict.Notes)
	assert.Equal(t, 1, judge.Calls(OpJudge))
	assert.Equal(t, 0, s.Calls(OpJudge))
}
