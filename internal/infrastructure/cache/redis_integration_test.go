package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	"github.com/alejandroruanova/sfumato/internal/core/services/session"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
	"github.com/alejandroruanova/sfumato/internal/pkg/logger"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%d", host, port.Int())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisCache_SnapshotLifecycle(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	store := NewSnapshotStore(client, time.Hour, logger.Discard())

	gw := gateway.NewScripted()
	s, err := session.New(gw, session.Options{Logger: logger.Discard()})
	require.NoError(t, err)
	require.NoError(t, s.SubmitIdea(ctx, "a red bicycle"))
	require.NoError(t, s.GenerateDraft(ctx))
	_, err = s.SubmitFeedbackAndLoop(ctx, "make it blue")
	require.NoError(t, err)

	snap := s.Snapshot()
	require.NoError(t, store.Save(ctx, snap))

	ttl, err := store.TTL(ctx, s.ID())
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)

	loaded, err := store.Load(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, snap.IterationCount, loaded.IterationCount)
	require.Len(t, loaded.History, 2)
	assert.Equal(t, 1, loaded.History[0].Sequence)
	assert.Equal(t, domain.RefinementTag(1), loaded.History[1].Tag)

	restored, err := session.Restore(gw, *loaded, session.Options{Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseRefined, restored.Phase())

	assert.Equal(t, "up", store.Health(ctx)["status"])

	require.NoError(t, store.Delete(ctx, s.ID()))
	_, err = store.Load(ctx, s.ID())
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	assert.True(t, apperrors.Is(store.Delete(ctx, uuid.New()), apperrors.ErrCodeNotFound))
}
