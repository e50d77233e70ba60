// Package session implements the Project Session aggregate: one user's idea,
// configuration, artifact history and refinement loop behind a validated
// command surface.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	"github.com/alejandroruanova/sfumato/internal/core/services/history"
	"github.com/alejandroruanova/sfumato/internal/core/services/refinement"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

// Command names used in errors and logs
const (
	CmdConfigure      = "configure"
	CmdSubmitIdea     = "submit_idea"
	CmdEditPrompt     = "edit_prompt"
	CmdGenerateDraft  = "generate_draft"
	CmdSubmitFeedback = "submit_feedback_and_loop"
	CmdReset          = "reset"
)

// FinalResult is the artifact a finished loop settled on
type FinalResult struct {
	Tag      domain.Tag      `json:"tag"`
	Approved bool            `json:"approved"`
	Artifact domain.Artifact `json:"artifact"`
}

// Options configures a new session
type Options struct {
	ID     uuid.UUID
	Config domain.GenerationConfig
	Logger *slog.Logger
	Clock  func() time.Time
	// OnLaunch receives the in-flight snapshot each time a gateway-backed
	// command starts, so other processes sharing a store can see it.
	OnLaunch func(ctx context.Context, snap Snapshot)
	// HeldElsewhere restores an in-flight snapshot as still running in
	// another process: commands are rejected with SESSION_BUSY.
	HeldElsewhere bool
}

// Session is safe for concurrent use. At most one gateway-backed command is
// in flight; other mutating commands are rejected with SESSION_BUSY until it
// resolves. Reset is always accepted and discards the in-flight result.
type Session struct {
	mu         sync.Mutex
	id         uuid.UUID
	controller *refinement.Controller
	gw         gateway.Gateway
	logger     *slog.Logger
	now        func() time.Time

	initialConfig domain.GenerationConfig
	config        domain.GenerationConfig
	phase         domain.Phase
	idea          domain.Idea
	prompt        domain.Prompt
	history       *history.History
	feedback      domain.Feedback
	iterations    int
	loopState     refinement.State
	lastVerdict   *domain.JudgeVerdict
	final         *FinalResult
	lastError     *apperrors.AppError

	pending  string
	remote   bool
	epoch    uint64
	revision uint64
	cancel   context.CancelFunc
	onLaunch func(context.Context, Snapshot)

	createdAt time.Time
	updatedAt time.Time
}

// New creates an idle session. A zero Config selects the default config.
func New(gw gateway.Gateway, opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == (domain.GenerationConfig{}) {
		cfg = domain.DefaultGenerationConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := newSession(gw, opts)
	s.initialConfig = cfg
	s.config = cfg
	s.createdAt = s.now()
	s.updatedAt = s.createdAt

	s.logger.Info("Session created",
		slog.String("image_model", string(cfg.ImageModel)),
		slog.String("aspect_ratio", string(cfg.AspectRatio)),
		slog.Int("max_iterations", cfg.MaxIterations))
	return s, nil
}

func newSession(gw gateway.Gateway, opts Options) *Session {
	id := opts.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("session_id", id.String()))
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Session{
		id:         id,
		controller: refinement.NewController(gw, gw, logger),
		gw:         gw,
		logger:     logger,
		now:        clock,
		phase:      domain.PhaseIdle,
		history:    history.New(),
		onLaunch:   opts.OnLaunch,
	}
}

// ID returns the session identifier
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Phase returns the current phase
func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Busy reports whether a gateway-backed command is in flight
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != ""
}

// InFlight reports whether this process has a gateway call outstanding
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != "" && !s.remote
}

// HeldElsewhere reports whether another process owns the in-flight command
func (s *Session) HeldElsewhere() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// Revision increases with every state change
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Refresh replaces the state with a newer copy of the same session, such as
// one restored from a shared store. It is a no-op while a call of this
// process is outstanding or when from is not newer. Identity, epoch and the
// launch hook are kept.
func (s *Session) Refresh(from *Session) bool {
	if from == nil || from == s || from.id != s.id {
		return false
	}
	from.mu.Lock()
	defer from.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != "" && !s.remote {
		return false
	}
	// An abandoned remote marker is released even without a newer revision
	if from.revision <= s.revision && !(s.remote && !from.remote) {
		return false
	}

	s.initialConfig = from.initialConfig
	s.config = from.config
	s.phase = from.phase
	s.idea = from.idea
	s.prompt = from.prompt
	s.history = from.history
	s.feedback = from.feedback
	s.iterations = from.iterations
	s.loopState = from.loopState
	s.lastVerdict = from.lastVerdict
	s.final = from.final
	s.lastError = from.lastError
	s.pending = from.pending
	s.remote = from.remote
	s.revision = from.revision
	s.createdAt = from.createdAt
	s.updatedAt = from.updatedAt
	return true
}

// UpdatedAt returns the time of the last state change
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// checkReady validates the common preconditions of a mutating command. Caller holds mu.
func (s *Session) checkReady(command string, allowed ...domain.Phase) error {
	if s.pending != "" {
		return apperrors.SessionBusy(command).WithDetails("pending", s.pending)
	}
	for _, p := range allowed {
		if s.phase == p {
			return nil
		}
	}
	return apperrors.InvalidPhase(command, string(s.phase))
}

// flight is the bookkeeping of one in-flight gateway call
type flight struct {
	command string
	epoch   uint64
	before  domain.Phase
	ctx     context.Context
}

// launch marks a command in flight and moves to its transitional phase. Caller holds mu.
func (s *Session) launch(ctx context.Context, command string, transitional domain.Phase) flight {
	callCtx, cancel := context.WithCancel(ctx)
	f := flight{command: command, epoch: s.epoch, before: s.phase, ctx: callCtx}
	s.pending = command
	s.cancel = cancel
	s.phase = transitional
	s.touch()

	s.logger.Debug("Command in flight",
		slog.String("command", command),
		slog.String("phase", string(transitional)))
	return f
}

// announce hands the in-flight snapshot to the launch hook. Caller must not hold mu.
func (s *Session) announce(ctx context.Context) {
	if s.onLaunch == nil {
		return
	}
	s.onLaunch(ctx, s.Snapshot())
}

// land re-acquires the session after a gateway call. It returns false if the
// session was reset meanwhile, in which case the caller must drop the result.
// Caller holds mu.
func (s *Session) land(f flight) bool {
	if f.epoch != s.epoch {
		s.logger.Info("Discarding stale result after reset",
			slog.String("command", f.command),
			slog.Uint64("epoch", f.epoch),
			slog.Uint64("current_epoch", s.epoch))
		return false
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.pending = ""
	return true
}

// failed restores the pre-call phase and records the error. Caller holds mu.
func (s *Session) failed(f flight, err error) error {
	appErr, ok := apperrors.GetAppError(err)
	if !ok {
		code := apperrors.KindOf(err)
		appErr = apperrors.Wrap(err, code, err.Error(), apperrors.StatusFor(err))
	}
	s.phase = f.before
	s.lastError = appErr
	s.touch()

	s.logger.Warn("Command failed",
		slog.String("command", f.command),
		slog.String("phase", string(s.phase)),
		slog.String("error_code", string(appErr.Code)),
		slog.Bool("retriable", apperrors.Retriable(appErr.Code)),
		slog.Any("error", err))
	return appErr
}

func (s *Session) touch() {
	s.updatedAt = s.now()
	s.revision++
}
