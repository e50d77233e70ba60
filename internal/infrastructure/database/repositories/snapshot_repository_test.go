package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	"github.com/alejandroruanova/sfumato/internal/core/services/session"
	"github.com/alejandroruanova/sfumato/internal/infrastructure/database"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
	"github.com/alejandroruanova/sfumato/internal/pkg/logger"
)

// finishedSession runs a session through draft and one rejected plus one
// approved refinement.
func finishedSession(t *testing.T) (*session.Session, *gateway.Scripted) {
	t.Helper()
	ctx := context.Background()
	gw := gateway.NewScripted()
	s, err := session.New(gw, session.Options{Config: domain.DefaultGenerationConfig(), Logger: logger.Discard()})
	require.NoError(t, err)

	cfg := domain.DefaultGenerationConfig()
	cfg.AspectRatio = domain.AspectLandscape
	require.NoError(t, s.Configure(cfg))
	require.NoError(t, s.SubmitIdea(ctx, "a red bicycle"))
	require.NoError(t, s.GenerateDraft(ctx))

	score := 35
	gw.QueueVerdicts(
		domain.JudgeVerdict{Approved: false, RefinementClause: "paint frame blue", Score: &score},
		domain.JudgeVerdict{Approved: true},
	)
	_, err = s.SubmitFeedbackAndLoop(ctx, "make it blue")
	require.NoError(t, err)
	_, err = s.SubmitFeedbackAndLoop(ctx, "looks right now")
	require.NoError(t, err)
	return s, gw
}

func TestRecordConversion(t *testing.T) {
	s, gw := finishedSession(t)
	snap := s.Snapshot()
	require.NotNil(t, snap.Final)

	expires := snap.UpdatedAt.Add(time.Hour)
	rec := ToRecord(snap, &expires)
	assert.Equal(t, snap.SessionID, rec.ID)
	assert.Equal(t, "refined", rec.Phase)
	assert.Equal(t, "landscape", rec.AspectRatio)
	assert.Equal(t, "square", rec.InitialAspectRatio)
	require.Len(t, rec.Artifacts, 2)
	assert.Equal(t, "draft", rec.Artifacts[0].Tag)
	assert.Equal(t, "refinement(1)", rec.Artifacts[1].Tag)
	require.NotNil(t, rec.Artifacts[1].Score)
	assert.Equal(t, 35, *rec.Artifacts[1].Score)
	require.NotNil(t, rec.FinalSequence)
	assert.Equal(t, 2, *rec.FinalSequence)
	assert.Equal(t, "final", rec.FinalTag)
	assert.True(t, rec.FinalApproved)

	got, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, snap.Phase, got.Phase)
	assert.Equal(t, snap.Config, got.Config)
	assert.Equal(t, snap.InitialConfig, got.InitialConfig)
	assert.Equal(t, snap.History, got.History)
	assert.Equal(t, snap.IterationCount, got.IterationCount)
	assert.Equal(t, snap.LoopState, got.LoopState)
	assert.Equal(t, snap.LastVerdict, got.LastVerdict)
	assert.Equal(t, snap.Final, got.Final)
	assert.Equal(t, snap.FinalPrompt, got.FinalPrompt)
	assert.Equal(t, snap.Revision, got.Revision)
	assert.Empty(t, got.Pending)

	restored, err := session.Restore(gw, *got, session.Options{Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, restored.ID())
	assert.Equal(t, domain.PhaseRefined, restored.Phase())
}

func TestFromRecord_RejectsCorruptRows(t *testing.T) {
	s, _ := finishedSession(t)
	rec := ToRecord(s.Snapshot(), nil)

	bad := rec
	bad.Artifacts = append([]domain.ArtifactRecord(nil), rec.Artifacts...)
	bad.Artifacts[0].Tag = "sketch"
	_, err := FromRecord(bad)
	assert.Error(t, err)

	seq := 7
	bad = rec
	bad.FinalSequence = &seq
	_, err = FromRecord(bad)
	assert.Error(t, err)
}

func TestFromRecord_KeepsInFlightMarker(t *testing.T) {
	s, _ := finishedSession(t)
	snap := s.Snapshot()
	snap.Phase = domain.PhaseLooping
	snap.Pending = session.CmdSubmitFeedback

	got, err := FromRecord(ToRecord(snap, nil))
	require.NoError(t, err)
	assert.Equal(t, session.CmdSubmitFeedback, got.Pending)
	assert.Equal(t, domain.PhaseLooping, got.Phase)
	assert.True(t, got.ConfigLocked)
	assert.Equal(t, domain.StatusOf(domain.PhaseLooping, true, false), got.Status)
}

func TestFromRecord_FreshSession(t *testing.T) {
	rec := domain.SessionRecord{
		ID:            uuid.New(),
		Phase:         "idle",
		ImageModel:    "openai",
		AspectRatio:   "square",
		MaxIterations: 3,
	}
	snap, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Nil(t, snap.Prompt)
	assert.Nil(t, snap.Final)
	assert.Nil(t, snap.LastError)
	assert.Empty(t, snap.History)
	assert.False(t, snap.ConfigLocked)
	assert.Equal(t, domain.StatusDraft, snap.Status)
}

// setupTestDB starts a PostgreSQL testcontainer and migrates the snapshot tables
func setupTestDB(t *testing.T) *gorm.DB {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := database.Open(connStr, false)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func TestSnapshotRepository_Postgres(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewSnapshotRepository(db, time.Hour, logger.Discard())

	s, _ := finishedSession(t)
	snap := s.Snapshot()

	require.NoError(t, repo.Save(ctx, snap))
	// Saving again replaces the artifacts instead of duplicating them
	require.NoError(t, repo.Save(ctx, snap))

	var count int64
	require.NoError(t, db.Model(&domain.ArtifactRecord{}).Where("session_id = ?", snap.SessionID).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	got, err := repo.Load(ctx, snap.SessionID)
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, 1, got.History[0].Sequence)
	assert.Equal(t, 2, got.History[1].Sequence)
	assert.Equal(t, snap.History[1].Prompt, got.History[1].Prompt)
	assert.Equal(t, snap.IterationCount, got.IterationCount)
	require.NotNil(t, got.Final)
	assert.Equal(t, 2, got.Final.Artifact.Sequence)

	require.NoError(t, repo.Delete(ctx, snap.SessionID))
	_, err = repo.Load(ctx, snap.SessionID)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	assert.True(t, apperrors.Is(repo.Delete(ctx, snap.SessionID), apperrors.ErrCodeNotFound))

	require.NoError(t, db.Model(&domain.ArtifactRecord{}).Where("session_id = ?", snap.SessionID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSnapshotRepository_Expiry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewSnapshotRepository(db, time.Minute, logger.Discard())

	s, _ := finishedSession(t)
	snap := s.Snapshot()
	require.NoError(t, repo.Save(ctx, snap))

	repo.now = func() time.Time { return snap.UpdatedAt.Add(2 * time.Minute) }
	_, err := repo.Load(ctx, snap.SessionID)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))

	purged, err := repo.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
