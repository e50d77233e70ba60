// Package cache persists session snapshots in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alejandroruanova/sfumato/internal/core/services/session"
	"github.com/alejandroruanova/sfumato/internal/pkg/config"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

const keyPrefix = "sfumato:session:"

// SnapshotKey is the Redis key holding one session snapshot
func SnapshotKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}

// RedisCache stores session snapshots as JSON values with a sliding TTL
type RedisCache struct {
	client redis.Cmdable
	closer func() error
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg *config.CacheConfig, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("redis connection established",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.Int("db", cfg.DB),
	)

	store := NewSnapshotStore(client, ttl, logger)
	store.closer = client.Close
	return store, nil
}

// NewSnapshotStore wraps an existing client. ttl <= 0 keeps snapshots forever.
func NewSnapshotStore(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Close closes the Redis connection if this store owns it
func (r *RedisCache) Close() error {
	if r.closer == nil {
		return nil
	}
	r.logger.Info("closing redis connection")
	return r.closer()
}

// Save writes the snapshot and refreshes its TTL
func (r *RedisCache) Save(ctx context.Context, snap session.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, SnapshotKey(snap.SessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	r.logger.Debug("snapshot saved",
		slog.String("session_id", snap.SessionID.String()),
		slog.Int("bytes", len(data)))
	return nil
}

// Load reads a snapshot; a missing key is NOT_FOUND
func (r *RedisCache) Load(ctx context.Context, id uuid.UUID) (*session.Snapshot, error) {
	data, err := r.client.Get(ctx, SnapshotKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decodeSnapshot(id, data)
}

// Delete removes a snapshot; a missing key is NOT_FOUND
func (r *RedisCache) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.client.Del(ctx, SnapshotKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// TTL returns the remaining lifetime of a stored snapshot
func (r *RedisCache) TTL(ctx context.Context, id uuid.UUID) (time.Duration, error) {
	return r.client.TTL(ctx, SnapshotKey(id)).Result()
}

// Ping checks if Redis is alive
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Health returns health status of Redis
func (r *RedisCache) Health(ctx context.Context) map[string]interface{} {
	if err := r.Ping(ctx); err != nil {
		return map[string]interface{}{
			"status": "down",
			"error":  err.Error(),
		}
	}
	health := map[string]interface{}{"status": "up"}
	if c, ok := r.client.(*redis.Client); ok {
		stats := c.PoolStats()
		health["hits"] = stats.Hits
		health["misses"] = stats.Misses
		health["timeouts"] = stats.Timeouts
		health["total_conns"] = stats.TotalConns
		health["idle_conns"] = stats.IdleConns
	}
	return health
}

func decodeSnapshot(id uuid.UUID, data []byte) (*session.Snapshot, error) {
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, apperrors.InternalWrap(err, "stored snapshot is corrupt").
			WithDetails("session_id", id.String())
	}
	if snap.SessionID != id {
		return nil, apperrors.Internal("stored snapshot belongs to another session").
			WithDetails("session_id", id.String())
	}
	return &snap, nil
}

func notFound(id uuid.UUID) error {
	return apperrors.NotFound("session snapshot").WithDetails("session_id", id.String())
}
