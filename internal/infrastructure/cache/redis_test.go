package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/session"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

func TestSnapshotKey(t *testing.T) {
	id := uuid.MustParse("6f1c2a4e-8b1d-4c55-9d7e-0a3b2c1d4e5f")
	assert.Equal(t, "sfumato:session:6f1c2a4e-8b1d-4c55-9d7e-0a3b2c1d4e5f", SnapshotKey(id))
}

func TestDecodeSnapshot(t *testing.T) {
	id := uuid.New()
	snap := session.Snapshot{
		SessionID: id,
		Phase:     domain.PhaseIdle,
		Config:    domain.DefaultGenerationConfig(),
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	got, err := decodeSnapshot(id, data)
	require.NoError(t, err)
	assert.Equal(t, id, got.SessionID)
	assert.Equal(t, snap.Config, got.Config)

	_, err = decodeSnapshot(uuid.New(), data)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInternal))

	_, err = decodeSnapshot(id, []byte("{not json"))
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInternal))
}

func TestNotFound(t *testing.T) {
	err := notFound(uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestNewSnapshotStore_ClampsTTL(t *testing.T) {
	store := NewSnapshotStore(nil, -time.Minute, nil)
	assert.Equal(t, time.Duration(0), store.ttl)
	assert.NoError(t, store.Close())
}
