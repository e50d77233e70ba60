package session

import (
	"context"
	"log/slog"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	"github.com/alejandroruanova/sfumato/internal/core/services/history"
	"github.com/alejandroruanova/sfumato/internal/core/services/refinement"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

// Configure replaces the generation config. Only accepted while Idle; the
// config is locked once the session leaves Idle.
func (s *Session) Configure(cfg domain.GenerationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(CmdConfigure, domain.PhaseIdle); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.config = cfg
	s.touch()
	s.logger.Info("Session configured",
		slog.String("image_model", string(cfg.ImageModel)),
		slog.String("aspect_ratio", string(cfg.AspectRatio)),
		slog.Int("max_iterations", cfg.MaxIterations))
	return nil
}

// SubmitIdea synthesizes the base prompt from the idea. Idle → PromptReady.
func (s *Session) SubmitIdea(ctx context.Context, text string) error {
	s.mu.Lock()
	if err := s.checkReady(CmdSubmitIdea, domain.PhaseIdle); err != nil {
		s.mu.Unlock()
		return err
	}
	idea, err := domain.NewIdea(text)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	f := s.launch(ctx, CmdSubmitIdea, domain.PhaseAwaitingBasePrompt)
	s.mu.Unlock()
	s.announce(ctx)

	prompt, err := s.gw.SynthesizePrompt(f.ctx, idea)
	err = gateway.Classify(gateway.OpSynthesizePrompt, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.land(f) {
		return apperrors.Cancelled(CmdSubmitIdea)
	}
	if err != nil {
		return s.failed(f, err)
	}

	s.idea = idea
	s.prompt = prompt
	s.phase = domain.PhasePromptReady
	s.lastError = nil
	s.touch()

	s.logger.Info("Base prompt synthesized",
		slog.Int("prompt_version", prompt.Version),
		slog.Int("prompt_length", len(prompt.Text)))
	return nil
}

// EditPrompt replaces the base prompt with user text before the draft is generated
func (s *Session) EditPrompt(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(CmdEditPrompt, domain.PhasePromptReady); err != nil {
		return err
	}
	edited, err := s.prompt.Edit(text)
	if err != nil {
		return err
	}

	s.prompt = edited
	s.touch()
	s.logger.Info("Prompt edited", slog.Int("prompt_version", edited.Version))
	return nil
}

// GenerateDraft renders the current prompt and appends the Draft artifact.
// PromptReady → DraftReady.
func (s *Session) GenerateDraft(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkReady(CmdGenerateDraft, domain.PhasePromptReady); err != nil {
		s.mu.Unlock()
		return err
	}
	prompt, cfg := s.prompt, s.config
	f := s.launch(ctx, CmdGenerateDraft, domain.PhasePromptReady)
	s.mu.Unlock()
	s.announce(ctx)

	ref, err := s.gw.GenerateImage(f.ctx, prompt, cfg)
	err = gateway.Classify(gateway.OpGenerateImage, err)
	if err == nil && ref == "" {
		err = apperrors.ModelUnavailable(nil, "image generation returned no image")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.land(f) {
		return apperrors.Cancelled(CmdGenerateDraft)
	}
	if err != nil {
		return s.failed(f, err)
	}

	artifact := domain.Artifact{
		Sequence:  s.history.NextSequence(),
		Prompt:    prompt,
		ImageRef:  ref,
		Tag:       domain.DraftTag(),
		CreatedAt: s.now(),
	}
	if err := s.history.Append(artifact); err != nil {
		return s.failed(f, err)
	}

	s.phase = domain.PhaseDraftReady
	s.lastError = nil
	s.touch()

	s.logger.Info("Draft generated",
		slog.Int("sequence", artifact.Sequence),
		slog.String("image_ref", string(ref)))
	return nil
}

// SubmitFeedbackAndLoop runs one refinement cycle seeded by the feedback.
// DraftReady|Refined → Looping while in flight → Refined. On failure the
// phase returns to its pre-call value and history is untouched.
func (s *Session) SubmitFeedbackAndLoop(ctx context.Context, text string) (*refinement.Outcome, error) {
	s.mu.Lock()
	if err := s.checkReady(CmdSubmitFeedback, domain.PhaseDraftReady, domain.PhaseRefined); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	feedback, err := domain.NewFeedback(text)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	latest, ok := s.history.Latest()
	if !ok {
		s.mu.Unlock()
		return nil, apperrors.Internal("no artifact to refine")
	}

	s.feedback = feedback
	in := refinement.Input{
		Latest:         latest,
		Feedback:       feedback,
		IterationCount: s.iterations,
		Config:         s.config,
	}
	f := s.launch(ctx, CmdSubmitFeedback, domain.PhaseLooping)
	s.mu.Unlock()
	s.announce(ctx)

	out, err := s.controller.RunCycle(f.ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.land(f) {
		return nil, apperrors.Cancelled(CmdSubmitFeedback)
	}
	// Feedback is consumed by the cycle whatever its result
	s.feedback = ""

	if err != nil {
		return out, s.failed(f, err)
	}

	if out.Produced != nil {
		produced := *out.Produced
		produced.Sequence = s.history.NextSequence()
		if err := s.history.Append(produced); err != nil {
			return nil, s.failed(f, err)
		}
		out.Produced = &produced
	}

	s.iterations = out.IterationCount
	s.loopState = out.State
	s.lastVerdict = out.Verdict
	s.phase = domain.PhaseRefined
	s.lastError = nil
	s.final = nil
	if out.State.IsFinal() {
		latest, _ := s.history.Latest()
		s.final = &FinalResult{
			Tag:      domain.FinalTag(),
			Approved: out.State == refinement.StateCompleted,
			Artifact: latest,
		}
	}
	s.touch()

	s.logger.Info("Refinement cycle applied",
		slog.String("loop_state", string(out.State)),
		slog.Int("iteration", s.iterations),
		slog.Int("history_len", s.history.Len()))
	return out, nil
}

// Reset discards all state and returns to Idle with the initial config. It is
// accepted in every phase; an in-flight call is cancelled and its eventual
// result dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	cancelled := s.pending
	s.epoch++
	s.pending = ""
	s.remote = false

	s.config = s.initialConfig
	s.phase = domain.PhaseIdle
	s.idea = ""
	s.prompt = domain.Prompt{}
	s.history = history.New()
	s.feedback = ""
	s.iterations = 0
	s.loopState = ""
	s.lastVerdict = nil
	s.final = nil
	s.lastError = nil
	s.touch()

	s.logger.Info("Session reset",
		slog.Uint64("epoch", s.epoch),
		slog.String("cancelled", cancelled))
}
