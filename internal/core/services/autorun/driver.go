// Package autorun drives a session through repeated refinement cycles with
// the same feedback until the loop finishes, either inline or as a queued task.
package autorun

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/refinement"
	"github.com/alejandroruanova/sfumato/internal/core/services/session"
)

// SessionRunner runs a command against a session and persists the result
type SessionRunner interface {
	Do(ctx context.Context, id uuid.UUID, fn func(*session.Session) error) (*session.Session, error)
}

// Result summarizes an autorun
type Result struct {
	SessionID      uuid.UUID        `json:"session_id"`
	Cycles         int              `json:"cycles"`
	State          refinement.State `json:"state"`
	IterationCount int              `json:"iteration_count"`
	HistoryLen     int              `json:"history_len"`
}

// Driver issues SubmitFeedbackAndLoop until the controller reports a final state
type Driver struct {
	sessions SessionRunner
	logger   *slog.Logger
}

// NewDriver creates an autorun driver
func NewDriver(sessions SessionRunner, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{sessions: sessions, logger: logger}
}

// Run submits feedback cycle after cycle. It stops on Completed or Exhausted,
// on the first error, or when ctx ends. Each cycle is a separate session
// command, so a reset between cycles stops the run.
func (d *Driver) Run(ctx context.Context, id uuid.UUID, feedback string) (*Result, error) {
	res := &Result{SessionID: id}
	logger := d.logger.With(slog.String("session_id", id.String()))

	// Every non-approved cycle spends one budget unit, so the final cycle
	// comes no later than MaxIterations+1.
	for res.Cycles <= domain.MaxIterations {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var out *refinement.Outcome
		s, err := d.sessions.Do(ctx, id, func(s *session.Session) error {
			var err error
			out, err = s.SubmitFeedbackAndLoop(ctx, feedback)
			return err
		})
		if err != nil {
			logger.Warn("Autorun stopped on error",
				slog.Int("cycles", res.Cycles),
				slog.Any("error", err))
			return res, err
		}

		res.Cycles++
		snap := s.Snapshot()
		res.State = out.State
		res.IterationCount = snap.IterationCount
		res.HistoryLen = len(snap.History)

		logger.Debug("Autorun cycle finished",
			slog.Int("cycle", res.Cycles),
			slog.String("state", string(out.State)),
			slog.Int("iteration", res.IterationCount))

		if out.State.IsFinal() {
			break
		}
	}

	logger.Info("Autorun finished",
		slog.Int("cycles", res.Cycles),
		slog.String("state", string(res.State)),
		slog.Int("iteration", res.IterationCount))
	return res, nil
}
