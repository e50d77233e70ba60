package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
	"github.com/alejandroruanova/sfumato/internal/pkg/textutil"
)

// DefaultTimeout bounds a single gateway call when none is configured
const DefaultTimeout = 2 * time.Minute

// Bounded wraps a Gateway so that every call resolves within a deadline to a
// result or a classified error, even if the inner implementation ignores ctx.
type Bounded struct {
	inner   Gateway
	timeout time.Duration
	logger  *slog.Logger
}

// WithTimeout returns the bounded wrapper around gw
func WithTimeout(gw Gateway, timeout time.Duration, logger *slog.Logger) *Bounded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bounded{inner: gw, timeout: timeout, logger: logger}
}

// SynthesizePrompt rejects blank ideas before calling the model
func (b *Bounded) SynthesizePrompt(ctx context.Context, idea domain.Idea) (domain.Prompt, error) {
	if textutil.IsBlank(string(idea)) {
		return domain.Prompt{}, apperrors.InvalidInput("idea must not be blank")
	}
	return call(ctx, b, OpSynthesizePrompt, func(ctx context.Context) (domain.Prompt, error) {
		return b.inner.SynthesizePrompt(ctx, idea)
	})
}

// GenerateImage renders the prompt with the configured model
func (b *Bounded) GenerateImage(ctx context.Context, prompt domain.Prompt, cfg domain.GenerationConfig) (domain.ImageRef, error) {
	ref, err := call(ctx, b, OpGenerateImage, func(ctx context.Context) (domain.ImageRef, error) {
		return b.inner.GenerateImage(ctx, prompt, cfg)
	})
	if err == nil && ref == "" {
		return "", apperrors.ModelUnavailable(nil, "image generation returned no image")
	}
	return ref, err
}

// Judge evaluates the image and validates the verdict
func (b *Bounded) Judge(ctx context.Context, image domain.ImageRef, prompt domain.Prompt, feedback domain.Feedback) (domain.JudgeVerdict, error) {
	verdict, err := call(ctx, b, OpJudge, func(ctx context.Context) (domain.JudgeVerdict, error) {
		return b.inner.Judge(ctx, image, prompt, feedback)
	})
	if err != nil {
		return domain.JudgeVerdict{}, err
	}
	if err := verdict.Validate(); err != nil {
		return domain.JudgeVerdict{}, apperrors.ModelUnavailable(err, "judge returned an invalid verdict")
	}
	return verdict, nil
}

func call[T any](ctx context.Context, b *Bounded, op Operation, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			err := Classify(op, r.err)
			b.logger.Warn("Gateway call failed",
				slog.String("operation", string(op)),
				slog.Duration("duration", time.Since(start)),
				slog.String("error_code", string(apperrors.KindOf(err))),
				slog.Any("error", err))
			return zero, err
		}
		b.logger.Debug("Gateway call completed",
			slog.String("operation", string(op)),
			slog.Duration("duration", time.Since(start)))
		return r.value, nil
	case <-ctx.Done():
		err := Classify(op, ctx.Err())
		b.logger.Warn("Gateway call abandoned",
			slog.String("operation", string(op)),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err))
		return zero, err
	}
}
