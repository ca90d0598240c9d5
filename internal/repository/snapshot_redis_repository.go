package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/attendance-sheet/internal/models"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
)

// RedisSnapshotRepository keeps the snapshot as a JSON string without expiry.
type RedisSnapshotRepository struct {
	client *redis.Client
	key    string
}

// NewRedisSnapshotRepository constructs the repository.
func NewRedisSnapshotRepository(client *redis.Client, keyPrefix, sessionID string) *RedisSnapshotRepository {
	return &RedisSnapshotRepository{client: client, key: keyPrefix + sessionID}
}

// Driver names the backend.
func (r *RedisSnapshotRepository) Driver() string { return DriverRedis }

// Key returns the Redis key holding the snapshot.
func (r *RedisSnapshotRepository) Key() string { return r.key }

// Load retrieves and decodes the snapshot.
func (r *RedisSnapshotRepository) Load(ctx context.Context) (models.SessionState, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.SessionState{}, appErrors.ErrSnapshotNotFound
		}
		return models.SessionState{}, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return decodeSnapshot(raw)
}

// Store overwrites the snapshot.
func (r *RedisSnapshotRepository) Store(ctx context.Context, state models.SessionState) error {
	payload, err := encodeSnapshot(state)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (r *RedisSnapshotRepository) Close() error {
	return r.client.Close()
}
