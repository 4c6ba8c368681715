package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipcast/api/internal/model"
)

// RedisStatusStore keeps status records as Redis hashes
type RedisStatusStore struct {
	client redis.UniversalClient
}

// NewRedisStatusStore creates a Redis-backed status store
func NewRedisStatusStore(client redis.UniversalClient) *RedisStatusStore {
	return &RedisStatusStore{client: client}
}

// Set writes the record in one MULTI/EXEC so readers never observe a merged
// hash holding fields from an earlier attempt.
func (s *RedisStatusStore) Set(ctx context.Context, rec *model.StatusRecord, ttl time.Duration) error {
	if rec == nil || rec.JobID == "" {
		return errors.New("status record requires a job id")
	}
	if ttl <= 0 {
		return fmt.Errorf("status ttl must be positive, got %s", ttl)
	}

	key := StatusKey(rec.JobID)
	fields := rec.Fields()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set status %s: %w", rec.JobID, err)
	}
	return nil
}

func (s *RedisStatusStore) Get(ctx context.Context, jobID string) (*model.StatusRecord, error) {
	if jobID == "" {
		return nil, ErrNotFound
	}

	fields, err := s.client.HGetAll(ctx, StatusKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get status %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	return model.StatusRecordFromFields(fields), nil
}

func (s *RedisStatusStore) Delete(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, StatusKey(jobID)).Err(); err != nil {
		return fmt.Errorf("redis delete status %s: %w", jobID, err)
	}
	return nil
}

func (s *RedisStatusStore) RefreshTTL(ctx context.Context, jobID string, ttl time.Duration) error {
	ok, err := s.client.Expire(ctx, StatusKey(jobID), ttl).Result()
	if err != nil {
		return fmt.Errorf("redis expire status %s: %w", jobID, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// ShortenTTL relies on EXPIRE ... LT, available since Redis 7.0
func (s *RedisStatusStore) ShortenTTL(ctx context.Context, jobID string, ttl time.Duration) error {
	if err := s.client.ExpireLT(ctx, StatusKey(jobID), ttl).Err(); err != nil {
		return fmt.Errorf("redis shorten status ttl %s: %w", jobID, err)
	}
	return nil
}
