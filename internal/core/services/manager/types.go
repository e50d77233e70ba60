package manager

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alejandroruanova/sfumato/internal/core/services/session"
)

// SnapshotStore persists session snapshots between process restarts.
// Load returns a NOT_FOUND AppError when no snapshot exists.
type SnapshotStore interface {
	Save(ctx context.Context, snap session.Snapshot) error
	Load(ctx context.Context, id uuid.UUID) (*session.Snapshot, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Summary is the listing view of a session
type Summary struct {
	SessionID      uuid.UUID `json:"session_id"`
	Phase          string    `json:"phase"`
	Status         string    `json:"status"`
	Idea           string    `json:"idea,omitempty"`
	HistoryLen     int       `json:"history_len"`
	IterationCount int       `json:"iteration_count"`
	MaxIterations  int       `json:"max_iterations"`
	UpdatedAt      time.Time `json:"updated_at"`
}
