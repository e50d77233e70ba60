// Package gateway defines the model capabilities the refinement core depends on
// and the wrappers that make every call bounded in time and typed in failure.
package gateway

import (
	"context"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
)

// Operation names one gateway capability, used in logs and error details
type Operation string

const (
	OpSynthesizePrompt Operation = "synthesize_prompt"
	OpGenerateImage    Operation = "generate_image"
	OpJudge            Operation = "judge"
)

// PromptSynthesizer turns an idea into a model-facing prompt
type PromptSynthesizer interface {
	SynthesizePrompt(ctx context.Context, idea domain.Idea) (domain.Prompt, error)
}

// ImageGenerator renders a prompt into an image
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt domain.Prompt, cfg domain.GenerationConfig) (domain.ImageRef, error)
}

// Judge evaluates an image against the prompt that produced it and the user's critique
type Judge interface {
	Judge(ctx context.Context, image domain.ImageRef, prompt domain.Prompt, feedback domain.Feedback) (domain.JudgeVerdict, error)
}

// Gateway bundles the three capabilities. Implementations keep no state
// between calls, so any call may be retried by the caller.
type Gateway interface {
	PromptSynthesizer
	ImageGenerator
	Judge
}

type composite struct {
	PromptSynthesizer
	ImageGenerator
	judge Judge
}

// Compose builds a Gateway from independent capability implementations
func Compose(synth PromptSynthesizer, images ImageGenerator, judge Judge) Gateway {
	return composite{PromptSynthesizer: synth, ImageGenerator: images, judge: judge}
}

func (c composite) Judge(ctx context.Context, image domain.ImageRef, prompt domain.Prompt, feedback domain.Feedback) (domain.JudgeVerdict, error) {
	return c.judge.Judge(ctx, image, prompt, feedback)
}
