package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"PaperQuant/internal/domain/models"
	domrepo "PaperQuant/internal/domain/repository"
)

// RedisKV is the part of a go-redis client the state store needs.
type RedisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisStateStore keeps the latest live snapshot under one key.
type RedisStateStore struct {
	cli RedisKV
	key string
}

func NewRedisStateStore(cli RedisKV, prefix string) *RedisStateStore {
	return &RedisStateStore{cli: cli, key: prefix + ":state"}
}

func (s *RedisStateStore) SaveState(ctx context.Context, snap models.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.cli.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState returns false when no snapshot has been saved.
func (s *RedisStateStore) LoadState(ctx context.Context) (models.Snapshot, bool, error) {
	var snap models.Snapshot
	b, err := s.cli.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("load state: %w", err)
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, false, fmt.Errorf("decode state: %w", err)
	}
	return snap, true, nil
}

func (s *RedisStateStore) Close() error {
	return s.cli.Close()
}

var _ domrepo.StateStore = (*RedisStateStore)(nil)
