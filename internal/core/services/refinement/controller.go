// Package refinement drives one judge-then-regenerate cycle over the latest
// artifact of a session.
package refinement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
	"github.com/alejandroruanova/sfumato/internal/pkg/textutil"
)

// Input is everything one cycle needs. The controller holds no session state.
type Input struct {
	Latest         domain.Artifact
	Feedback       domain.Feedback
	IterationCount int
	Config         domain.GenerationConfig
}

// Outcome reports where a cycle ended. Produced is set only when a new image
// was generated; its Sequence is left zero for the session to assign.
type Outcome struct {
	State          State
	Verdict        *domain.JudgeVerdict
	Produced       *domain.Artifact
	IterationCount int
	Trace          []State
}

// Controller runs refinement cycles against the judge and image capabilities
type Controller struct {
	judge  gateway.Judge
	images gateway.ImageGenerator
	logger *slog.Logger
	now    func() time.Time
}

// NewController creates a refinement loop controller
func NewController(judge gateway.Judge, images gateway.ImageGenerator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		judge:  judge,
		images: images,
		logger: logger,
		now:    time.Now,
	}
}

// RunCycle performs exactly one cycle: a judge call and, unless the image is
// approved or the budget is spent, one regeneration. On error the returned
// outcome is in StateFailed and carries no produced artifact.
func (c *Controller) RunCycle(ctx context.Context, in Input) (*Outcome, error) {
	m := newMachine()
	out := &Outcome{IterationCount: in.IterationCount}

	fail := func(err error) (*Outcome, error) {
		if terr := m.fail(); terr != nil {
			c.logger.Error("Refinement state machine rejected failure",
				slog.String("state", string(m.current)),
				slog.Any("error", terr))
		}
		out.State = StateFailed
		out.Trace = m.trace
		out.Produced = nil
		c.logger.Warn("Refinement cycle failed",
			slog.Int("iteration", in.IterationCount),
			slog.String("error_code", string(apperrors.KindOf(err))),
			slog.Any("error", err))
		return out, err
	}

	if textutil.IsBlank(string(in.Feedback)) {
		return fail(apperrors.MissingFeedback())
	}
	if in.Latest.Sequence < 1 || in.Latest.ImageRef == "" {
		return fail(apperrors.Internal("refinement needs a generated artifact"))
	}
	if in.Config.MaxIterations < domain.MinIterations || in.IterationCount < 0 {
		return fail(apperrors.Internal(fmt.Sprintf(
			"invalid iteration budget %d/%d", in.IterationCount, in.Config.MaxIterations)))
	}

	if err := m.transition(StateNotStarted, StateEvaluating); err != nil {
		return fail(apperrors.InternalWrap(err, "refinement state machine"))
	}

	c.logger.Info("Refinement cycle started",
		slog.Int("sequence", in.Latest.Sequence),
		slog.Int("iteration", in.IterationCount),
		slog.Int("max_iterations", in.Config.MaxIterations),
		slog.String("feedback", textutil.Truncate(string(in.Feedback), 80)))

	verdict, err := c.judge.Judge(ctx, in.Latest.ImageRef, in.Latest.Prompt, in.Feedback)
	if err != nil {
		return fail(gateway.Classify(gateway.OpJudge, err))
	}
	if err := verdict.Validate(); err != nil {
		return fail(apperrors.ModelUnavailable(err, "judge returned an invalid verdict"))
	}
	out.Verdict = &verdict

	var next State
	switch {
	case verdict.Approved:
		next = StateCompleted
	case in.IterationCount >= in.Config.MaxIterations:
		next = StateExhausted
	default:
		next = StateRegenerating
	}
	if err := m.transition(StateEvaluating, next); err != nil {
		return fail(apperrors.InternalWrap(err, "refinement state machine"))
	}

	if next == StateRegenerating {
		produced, err := c.regenerate(ctx, in, verdict)
		if err != nil {
			return fail(err)
		}
		out.Produced = produced
		out.IterationCount = in.IterationCount + 1

		after := StateAwaitingFeedback
		if out.IterationCount >= in.Config.MaxIterations {
			after = StateExhausted
		}
		if err := m.transition(StateRegenerating, after); err != nil {
			return fail(apperrors.InternalWrap(err, "refinement state machine"))
		}
	}

	out.State = m.current
	out.Trace = m.trace

	c.logger.Info("Refinement cycle finished",
		slog.String("state", string(out.State)),
		slog.Bool("approved", verdict.Approved),
		slog.Int("iteration", out.IterationCount),
		slog.Bool("produced", out.Produced != nil))

	return out, nil
}

func (c *Controller) regenerate(ctx context.Context, in Input, verdict domain.JudgeVerdict) (*domain.Artifact, error) {
	prompt, diff := in.Latest.Prompt.Refine(verdict.RefinementClause, in.Feedback)

	ref, err := c.images.GenerateImage(ctx, prompt, in.Config)
	if err != nil {
		return nil, gateway.Classify(gateway.OpGenerateImage, err)
	}
	if ref == "" {
		return nil, apperrors.ModelUnavailable(nil, "image generation returned no image")
	}

	return &domain.Artifact{
		Prompt:       prompt,
		ImageRef:     ref,
		Tag:          domain.RefinementTag(in.IterationCount + 1),
		PromptDiff:   diff,
		UserFeedback: in.Feedback,
		Verdict:      &verdict,
		CreatedAt:    c.now().UTC(),
	}, nil
}
