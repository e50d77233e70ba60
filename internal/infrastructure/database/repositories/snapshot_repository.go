package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/refinement"
	"github.com/alejandroruanova/sfumato/internal/core/services/session"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

// SnapshotRepository stores session snapshots relationally: one row per
// session plus one row per history artifact.
type SnapshotRepository struct {
	db     *gorm.DB
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewSnapshotRepository creates a new repository instance. ttl <= 0 means
// records never expire.
func NewSnapshotRepository(db *gorm.DB, ttl time.Duration, logger *slog.Logger) *SnapshotRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &SnapshotRepository{
		db:     db,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Save upserts the session row and replaces its artifacts in one transaction
func (r *SnapshotRepository) Save(ctx context.Context, snap session.Snapshot) error {
	rec := ToRecord(snap, r.expiry(snap))
	artifacts := rec.Artifacts
	rec.Artifacts = nil

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).
			Create(&rec).Error; err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		if err := tx.Where("session_id = ?", rec.ID).
			Delete(&domain.ArtifactRecord{}).Error; err != nil {
			return fmt.Errorf("clear artifacts: %w", err)
		}

		if len(artifacts) > 0 {
			if err := tx.CreateInBatches(artifacts, 100).Error; err != nil {
				return fmt.Errorf("insert artifacts: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to save snapshot",
			slog.String("session_id", snap.SessionID.String()),
			slog.Int("artifact_count", len(artifacts)),
			slog.Any("error", err))
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	r.logger.Debug("snapshot saved",
		slog.String("session_id", snap.SessionID.String()),
		slog.Int("artifact_count", len(artifacts)))
	return nil
}

// Load reads a snapshot with its artifacts in sequence order. Missing and
// expired records are NOT_FOUND.
func (r *SnapshotRepository) Load(ctx context.Context, id uuid.UUID) (*session.Snapshot, error) {
	var rec domain.SessionRecord
	err := r.db.WithContext(ctx).
		Preload("Artifacts", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		First(&rec, "id = ?", id).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if rec.IsExpired(r.now()) {
		return nil, notFound(id)
	}

	snap, err := FromRecord(rec)
	if err != nil {
		return nil, apperrors.InternalWrap(err, "stored snapshot is corrupt").
			WithDetails("session_id", id.String())
	}
	return snap, nil
}

// Delete removes a session and, through the foreign key, its artifacts
func (r *SnapshotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&domain.SessionRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete snapshot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}

// PurgeExpired deletes every session whose expiry has passed
func (r *SnapshotRepository) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", r.now()).
		Delete(&domain.SessionRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge expired snapshots: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		r.logger.Info("expired snapshots purged", slog.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (r *SnapshotRepository) expiry(snap session.Snapshot) *time.Time {
	if r.ttl <= 0 {
		return nil
	}
	base := snap.UpdatedAt
	if base.IsZero() {
		base = r.now()
	}
	exp := base.Add(r.ttl)
	return &exp
}

func notFound(id uuid.UUID) error {
	return apperrors.NotFound("session snapshot").WithDetails("session_id", id.String())
}

// ToRecord flattens a snapshot into its relational form
func ToRecord(snap session.Snapshot, expiresAt *time.Time) domain.SessionRecord {
	rec := domain.SessionRecord{
		ID:                   snap.SessionID,
		Phase:                string(snap.Phase),
		Pending:              snap.Pending,
		Revision:             snap.Revision,
		ImageModel:           string(snap.Config.ImageModel),
		AspectRatio:          string(snap.Config.AspectRatio),
		MaxIterations:        snap.Config.MaxIterations,
		InitialImageModel:    string(snap.InitialConfig.ImageModel),
		InitialAspectRatio:   string(snap.InitialConfig.AspectRatio),
		InitialMaxIterations: snap.InitialConfig.MaxIterations,
		Idea:                 string(snap.Idea),
		IterationCount:       snap.IterationCount,
		LoopState:            string(snap.LoopState),
		CreatedAt:            snap.CreatedAt,
		UpdatedAt:            snap.UpdatedAt,
		ExpiresAt:            expiresAt,
	}
	if snap.Prompt != nil {
		rec.PromptText = snap.Prompt.Text
		rec.PromptVersion = snap.Prompt.Version
		rec.PromptOrigin = string(snap.Prompt.Origin)
	}
	if snap.CurrentFeedback != nil {
		fb := string(*snap.CurrentFeedback)
		rec.CurrentFeedback = &fb
	}
	if snap.Final != nil {
		seq := snap.Final.Artifact.Sequence
		rec.FinalSequence = &seq
		rec.FinalTag = snap.Final.Tag.String()
		rec.FinalApproved = snap.Final.Approved
	}
	if v := snap.LastVerdict; v != nil {
		approved := v.Approved
		rec.LastApproved = &approved
		rec.LastClause = v.RefinementClause
		rec.LastScore = v.Score
		rec.LastNotes = v.Notes
	}
	if snap.LastError != nil {
		rec.LastErrorCode = string(snap.LastError.Code)
		rec.LastErrorMessage = snap.LastError.Message
	}

	rec.Artifacts = make([]domain.ArtifactRecord, 0, len(snap.History))
	for _, a := range snap.History {
		ar := domain.ArtifactRecord{
			SessionID:     snap.SessionID,
			Sequence:      a.Sequence,
			PromptText:    a.Prompt.Text,
			PromptVersion: a.Prompt.Version,
			PromptOrigin:  string(a.Prompt.Origin),
			ImageRef:      string(a.ImageRef),
			Tag:           a.Tag.String(),
			PromptDiff:    a.PromptDiff,
			UserFeedback:  string(a.UserFeedback),
			CreatedAt:     a.CreatedAt,
		}
		if v := a.Verdict; v != nil {
			approved := v.Approved
			ar.Approved = &approved
			ar.RefinementClause = v.RefinementClause
			ar.Score = v.Score
			ar.Notes = v.Notes
		}
		rec.Artifacts = append(rec.Artifacts, ar)
	}
	return rec
}

// FromRecord rebuilds a snapshot from its relational form, including the
// in-flight marker of a command that was running when it was saved.
func FromRecord(rec domain.SessionRecord) (*session.Snapshot, error) {
	snap := &session.Snapshot{
		SessionID: rec.ID,
		Phase:     domain.Phase(rec.Phase),
		Pending:   rec.Pending,
		Revision:  rec.Revision,
		Config: domain.GenerationConfig{
			ImageModel:    domain.ImageModel(rec.ImageModel),
			AspectRatio:   domain.AspectRatio(rec.AspectRatio),
			MaxIterations: rec.MaxIterations,
		},
		InitialConfig: domain.GenerationConfig{
			ImageModel:    domain.ImageModel(rec.InitialImageModel),
			AspectRatio:   domain.AspectRatio(rec.InitialAspectRatio),
			MaxIterations: rec.InitialMaxIterations,
		},
		ConfigLocked:   domain.Phase(rec.Phase) != domain.PhaseIdle || rec.Pending != "",
		Idea:           domain.Idea(rec.Idea),
		IterationCount: rec.IterationCount,
		LoopState:      refinement.State(rec.LoopState),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if rec.PromptText != "" {
		snap.Prompt = &domain.Prompt{
			Text:    rec.PromptText,
			Version: rec.PromptVersion,
			Origin:  domain.PromptOrigin(rec.PromptOrigin),
		}
	}
	if rec.CurrentFeedback != nil {
		fb := domain.Feedback(*rec.CurrentFeedback)
		snap.CurrentFeedback = &fb
	}
	if rec.LastApproved != nil {
		snap.LastVerdict = &domain.JudgeVerdict{
			Approved:         *rec.LastApproved,
			RefinementClause: rec.LastClause,
			Score:            rec.LastScore,
			Notes:            rec.LastNotes,
		}
	}
	if rec.LastErrorCode != "" {
		code := apperrors.ErrorCode(rec.LastErrorCode)
		snap.LastError = &session.ErrorInfo{
			Code:      code,
			Message:   rec.LastErrorMessage,
			Retriable: apperrors.Retriable(code),
		}
	}
	snap.Status = domain.StatusOf(snap.Phase, rec.Pending != "", snap.LastError != nil)

	snap.History = make([]domain.Artifact, 0, len(rec.Artifacts))
	for _, ar := range rec.Artifacts {
		tag, err := domain.ParseTag(ar.Tag)
		if err != nil {
			return nil, fmt.Errorf("artifact %d: %w", ar.Sequence, err)
		}
		a := domain.Artifact{
			Sequence: ar.Sequence,
			Prompt: domain.Prompt{
				Text:    ar.PromptText,
				Version: ar.PromptVersion,
				Origin:  domain.PromptOrigin(ar.PromptOrigin),
			},
			ImageRef:     domain.ImageRef(ar.ImageRef),
			Tag:          tag,
			PromptDiff:   ar.PromptDiff,
			UserFeedback: domain.Feedback(ar.UserFeedback),
			CreatedAt:    ar.CreatedAt,
		}
		if ar.Approved != nil {
			a.Verdict = &domain.JudgeVerdict{
				Approved:         *ar.Approved,
				RefinementClause: ar.RefinementClause,
				Score:            ar.Score,
				Notes:            ar.Notes,
			}
		}
		snap.History = append(snap.History, a)
	}

	if n := len(snap.History); n > 0 {
		snap.FinalPrompt = snap.History[n-1].Prompt.Text
	} else if snap.Prompt != nil {
		snap.FinalPrompt = snap.Prompt.Text
	}

	if rec.FinalSequence != nil {
		seq := *rec.FinalSequence
		if seq < 1 || seq > len(snap.History) {
			return nil, fmt.Errorf("final artifact %d not in history", seq)
		}
		tag, err := domain.ParseTag(rec.FinalTag)
		if err != nil {
			return nil, fmt.Errorf("final tag: %w", err)
		}
		snap.Final = &session.FinalResult{
			Tag:      tag,
			Approved: rec.FinalApproved,
			Artifact: snap.History[seq-1],
		}
	}
	return snap, nil
}
