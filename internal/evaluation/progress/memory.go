package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/collection"

	"promptjudge/internal/evaluation/model"
)

// MemoryStore keeps progress in process memory with per-entry expiry.
type MemoryStore struct {
	cache  *collection.Cache
	expiry expiry
	now    func() time.Time
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(cfg Config) (*MemoryStore, error) {
	e := newExpiry(cfg)
	cache, err := collection.NewCache(e.active, collection.WithName("evaluation-progress"))
	if err != nil {
		return nil, fmt.Errorf("create progress cache failed: %w", err)
	}
	return &MemoryStore{cache: cache, expiry: e, now: time.Now}, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, stage model.Stage, errMsg *string) error {
	if id == "" {
		return fmt.Errorf("progress id is required")
	}
	state := newState(stage, errMsg, s.now())
	s.cache.SetWithExpire(id, state, s.expiry.ttl(state))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.ProgressState, error) {
	value, ok := s.cache.Get(id)
	if !ok {
		return nil, nil
	}
	state, ok := value.(*model.ProgressState)
	if !ok {
		return nil, fmt.Errorf("unexpected progress value %T", value)
	}
	return copyState(state), nil
}

func (s *MemoryStore) Clear(_ context.Context, id string) error {
	s.cache.Del(id)
	return nil
}
