package autorun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/alejandroruanova/sfumato/internal/infrastructure/queue"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
	"github.com/alejandroruanova/sfumato/internal/pkg/textutil"
)

// TaskTimeout bounds one queued autorun
const TaskTimeout = 30 * time.Minute

// Payload is the JSON body of a session:autorun task
type Payload struct {
	SessionID uuid.UUID `json:"session_id"`
	Feedback  string    `json:"feedback"`
}

// NewTask builds an autorun task. Feedback is validated up front so a bad
// request fails at enqueue time rather than in the worker.
func NewTask(p Payload) (*asynq.Task, error) {
	if p.SessionID == uuid.Nil {
		return nil, apperrors.InvalidInput("session_id is required")
	}
	if textutil.IsBlank(p.Feedback) {
		return nil, apperrors.MissingFeedback()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode autorun payload: %w", err)
	}
	return asynq.NewTask(queue.TaskTypeAutorun, b,
		asynq.Queue(queue.QueueDefault),
		asynq.Timeout(TaskTimeout)), nil
}

// Enqueuer is the subset of the queue client the scheduler needs
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues autoruns for a background worker
type Scheduler struct {
	enqueuer Enqueuer
}

// NewScheduler creates a scheduler
func NewScheduler(enqueuer Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer}
}

// Schedule enqueues an autorun and returns the task ID. The session ID
// doubles as the task ID, so a second autorun for a session is rejected
// while one is queued.
func (s *Scheduler) Schedule(ctx context.Context, id uuid.UUID, feedback string) (string, error) {
	task, err := NewTask(Payload{SessionID: id, Feedback: feedback})
	if err != nil {
		return "", err
	}
	info, err := s.enqueuer.EnqueueContext(ctx, task, asynq.TaskID("autorun:"+id.String()))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", apperrors.SessionBusy("autorun")
		}
		return "", apperrors.InternalWrap(err, "failed to enqueue autorun")
	}
	return info.ID, nil
}

// HandleTask is the asynq handler for session:autorun. Errors that retrying
// cannot fix are marked SkipRetry.
func (d *Driver) HandleTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("invalid autorun payload: %v: %w", err, asynq.SkipRetry)
	}

	res, err := d.Run(ctx, p.SessionID, p.Feedback)
	if err != nil {
		code := apperrors.KindOf(err)
		if !apperrors.Retriable(code) {
			return fmt.Errorf("autorun %s failed with %s: %v: %w", p.SessionID, code, err, asynq.SkipRetry)
		}
		return fmt.Errorf("autorun %s failed: %w", p.SessionID, err)
	}

	d.logger.Info("Autorun task completed",
		slog.String("session_id", p.SessionID.String()),
		slog.Int("cycles", res.Cycles),
		slog.String("state", string(res.State)))
	return nil
}
