package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	"github.com/alejandroruanova/sfumato/internal/core/services/history"
	"github.com/alejandroruanova/sfumato/internal/core/services/refinement"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

// ErrorInfo is the caller-visible form of the last failure
type ErrorInfo struct {
	Code      apperrors.ErrorCode `json:"code"`
	Message   string              `json:"message"`
	Retriable bool                `json:"retriable"`
}

// Snapshot is a read-only, self-contained view of a session. It is also the
// persisted form: Restore(Snapshot()) reproduces the history order and the
// iteration count exactly.
type Snapshot struct {
	SessionID       uuid.UUID               `json:"session_id"`
	Phase           domain.Phase            `json:"phase"`
	Status          domain.Status           `json:"status"`
	Pending         string                  `json:"pending,omitempty"`
	Revision        uint64                  `json:"revision"`
	Config          domain.GenerationConfig `json:"config"`
	InitialConfig   domain.GenerationConfig `json:"initial_config"`
	ConfigLocked    bool                    `json:"config_locked"`
	Idea            domain.Idea             `json:"idea,omitempty"`
	Prompt          *domain.Prompt          `json:"prompt,omitempty"`
	History         []domain.Artifact       `json:"history"`
	CurrentFeedback *domain.Feedback        `json:"current_feedback,omitempty"`
	IterationCount  int                     `json:"iteration_count"`
	LoopState       refinement.State        `json:"loop_state,omitempty"`
	LastVerdict     *domain.JudgeVerdict    `json:"last_verdict,omitempty"`
	Final           *FinalResult            `json:"final,omitempty"`
	FinalPrompt     string                  `json:"final_prompt,omitempty"`
	LastError       *ErrorInfo              `json:"last_error,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// Snapshot returns the current state. It never blocks on in-flight work.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:      s.id,
		Phase:          s.phase,
		Status:         domain.StatusOf(s.phase, s.pending != "", s.lastError != nil),
		Pending:        s.pending,
		Revision:       s.revision,
		Config:         s.config,
		InitialConfig:  s.initialConfig,
		ConfigLocked:   s.phase != domain.PhaseIdle || s.pending != "",
		Idea:           s.idea,
		History:        s.history.Slice(),
		IterationCount: s.iterations,
		LoopState:      s.loopState,
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
	}
	if !s.prompt.IsZero() {
		p := s.prompt
		snap.Prompt = &p
	}
	if s.feedback != "" {
		fb := s.feedback
		snap.CurrentFeedback = &fb
	}
	if s.lastVerdict != nil {
		v := *s.lastVerdict
		snap.LastVerdict = &v
	}
	if s.final != nil {
		f := *s.final
		snap.Final = &f
	}
	if s.lastError != nil {
		snap.LastError = &ErrorInfo{
			Code:      s.lastError.Code,
			Message:   s.lastError.Message,
			Retriable: apperrors.Retriable(s.lastError.Code),
		}
	}

	if latest, ok := s.history.Latest(); ok {
		snap.FinalPrompt = latest.Prompt.Text
	} else {
		snap.FinalPrompt = s.prompt.Text
	}
	return snap
}

// Restore rebuilds a session from a snapshot. A snapshot taken mid-flight
// restores to the phase the in-flight command started from, unless
// opts.HeldElsewhere marks the command as still running in another process.
func Restore(gw gateway.Gateway, snap Snapshot, opts Options) (*Session, error) {
	if err := snap.Config.Validate(); err != nil {
		return nil, err
	}
	initial := snap.InitialConfig
	if initial == (domain.GenerationConfig{}) {
		initial = snap.Config
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	if !domain.IsValidPhase(snap.Phase) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown phase %q", snap.Phase))
	}
	if snap.LoopState != "" && !refinement.IsValidState(snap.LoopState) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown loop state %q", snap.LoopState))
	}
	if snap.IterationCount < 0 || snap.IterationCount > snap.Config.MaxIterations {
		return nil, apperrors.InvalidInput(fmt.Sprintf(
			"iteration_count %d outside budget %d", snap.IterationCount, snap.Config.MaxIterations))
	}

	h, err := history.FromArtifacts(snap.History)
	if err != nil {
		return nil, err
	}

	phase := snap.Phase
	switch phase {
	case domain.PhaseAwaitingBasePrompt:
		phase = domain.PhaseIdle
	case domain.PhaseLooping:
		phase = domain.PhaseDraftReady
		if snap.IterationCount > 0 || snap.LoopState != "" {
			phase = domain.PhaseRefined
		}
	}

	if err := checkConsistency(snap, phase, h); err != nil {
		return nil, err
	}

	held := opts.HeldElsewhere && snap.Pending != ""
	if held {
		phase = snap.Phase
	}

	if opts.ID == uuid.Nil {
		opts.ID = snap.SessionID
	}
	s := newSession(gw, opts)
	s.initialConfig = initial
	s.config = snap.Config
	s.phase = phase
	s.idea = snap.Idea
	if snap.Prompt != nil {
		s.prompt = *snap.Prompt
	}
	s.history = h
	if held {
		s.pending = snap.Pending
		s.remote = true
		if snap.CurrentFeedback != nil {
			s.feedback = *snap.CurrentFeedback
		}
	}
	s.revision = snap.Revision
	s.iterations = snap.IterationCount
	s.loopState = snap.LoopState
	s.lastVerdict = snap.LastVerdict
	s.final = snap.Final
	if snap.LastError != nil {
		s.lastError = apperrors.New(snap.LastError.Code, snap.LastError.Message, 0)
	}
	s.createdAt = snap.CreatedAt
	s.updatedAt = snap.UpdatedAt
	if s.createdAt.IsZero() {
		s.createdAt = s.now()
	}
	if s.updatedAt.IsZero() {
		s.updatedAt = s.createdAt
	}

	s.logger.Info("Session restored",
		slog.String("phase", string(s.phase)),
		slog.Int("history_len", h.Len()),
		slog.Int("iteration", s.iterations))
	return s, nil
}

// checkConsistency rejects snapshots whose phase, history and counters
// disagree. phase is the resting phase the snapshot restores to.
func checkConsistency(snap Snapshot, phase domain.Phase, h *history.History) error {
	n := h.Len()
	switch phase {
	case domain.PhaseIdle:
		if n > 0 {
			return apperrors.InvalidInput(fmt.Sprintf("idle snapshot has %d artifacts", n))
		}
	case domain.PhasePromptReady:
		if snap.Prompt == nil {
			return apperrors.InvalidInput("prompt_ready snapshot has no prompt")
		}
		if n > 0 {
			return apperrors.InvalidInput(fmt.Sprintf("prompt_ready snapshot has %d artifacts", n))
		}
	case domain.PhaseDraftReady:
		if n != 1 {
			return apperrors.InvalidInput(fmt.Sprintf("draft_ready snapshot has %d artifacts, want 1", n))
		}
	case domain.PhaseRefined:
		if n == 0 {
			return apperrors.InvalidInput("refined snapshot has no history")
		}
	}

	// History is Draft followed by Refinement(1..k) and k is the iteration count
	refinements := 0
	for a := range h.All() {
		want := domain.DraftTag()
		if a.Sequence > 1 {
			want = domain.RefinementTag(a.Sequence - 1)
		}
		if a.Tag != want {
			return apperrors.InvalidInput(fmt.Sprintf("artifact %d tagged %s, want %s", a.Sequence, a.Tag, want))
		}
		if a.Tag.Kind == domain.TagRefinement {
			refinements++
		}
	}
	if snap.IterationCount != refinements {
		return apperrors.InvalidInput(fmt.Sprintf(
			"iteration_count %d does not match %d refinement artifacts", snap.IterationCount, refinements))
	}

	if snap.Final != nil {
		fa := snap.Final.Artifact
		if fa.Sequence < 1 || fa.Sequence > n {
			return apperrors.InvalidInput(fmt.Sprintf("final artifact %d not in history", fa.Sequence))
		}
		entry := snap.History[fa.Sequence-1]
		if fa.ImageRef != entry.ImageRef || fa.Tag != entry.Tag || fa.Prompt.Text != entry.Prompt.Text || fa.Prompt.Version != entry.Prompt.Version {
			return apperrors.InvalidInput(fmt.Sprintf("final artifact %d differs from history", fa.Sequence))
		}
	}
	return nil
}
