package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"promptjudge/internal/common/cache"
	"promptjudge/internal/evaluation/model"
	appErr "promptjudge/pkg/errors"
)

const progressKeyPrefix = "evaluation:progress:"

// RedisStore shares progress across service instances.
type RedisStore struct {
	cache  cache.Cache
	expiry expiry
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(cacheClient cache.Cache, cfg Config) (*RedisStore, error) {
	if cacheClient == nil {
		return nil, fmt.Errorf("cache is required")
	}
	return &RedisStore{cache: cacheClient, expiry: newExpiry(cfg), now: time.Now}, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, stage model.Stage, errMsg *string) error {
	if id == "" {
		return appErr.ValidationError("submissionId", "required")
	}
	state := newState(stage, errMsg, s.now())
	payload, err := json.Marshal(state)
	if err != nil {
		return appErr.Wrapf(err, appErr.ProgressStoreError, "encode progress failed")
	}
	if err := s.cache.Set(ctx, progressKey(id), payload, s.expiry.ttl(state)); err != nil {
		return appErr.Wrapf(err, appErr.ProgressStoreError, "write progress failed")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.ProgressState, error) {
	value, err := s.cache.Get(ctx, progressKey(id))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ProgressStoreError, "read progress failed")
	}
	if value == "" {
		return nil, nil
	}
	var state model.ProgressState
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		return nil, appErr.Wrapf(err, appErr.ProgressStoreError, "decode progress failed")
	}
	return &state, nil
}

func (s *RedisStore) Clear(ctx context.Context, id string) error {
	if err := s.cache.Del(ctx, progressKey(id)); err != nil {
		return appErr.Wrapf(err, appErr.ProgressStoreError, "clear progress failed")
	}
	return nil
}

func progressKey(id string) string {
	return progressKeyPrefix + id
}
