package progress

import (
	"context"
	"time"

	"promptjudge/internal/evaluation/model"
)

const (
	defaultActiveTTL = time.Hour
	defaultRetention = 5 * time.Minute
)

// Store publishes submission progress from the pipeline to pollers.
// Entries expire on their own: a running entry after ActiveTTL,
// a finished or failed entry after Retention.
type Store interface {
	// Update replaces the entry for id, stamping the current time.
	Update(ctx context.Context, id string, stage model.Stage, errMsg *string) error
	// Get returns the entry for id, or nil when absent or expired.
	Get(ctx context.Context, id string) (*model.ProgressState, error)
	// Clear removes the entry for id.
	Clear(ctx context.Context, id string) error
}

// Config selects and tunes the progress backend.
type Config struct {
	Backend   string        `yaml:"backend"`
	ActiveTTL time.Duration `yaml:"activeTTL"`
	Retention time.Duration `yaml:"retention"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type expiry struct {
	active    time.Duration
	retention time.Duration
}

func newExpiry(cfg Config) expiry {
	e := expiry{active: cfg.ActiveTTL, retention: cfg.Retention}
	if e.active <= 0 {
		e.active = defaultActiveTTL
	}
	if e.retention <= 0 {
		e.retention = defaultRetention
	}
	return e
}

func (e expiry) ttl(state *model.ProgressState) time.Duration {
	if state.Terminal() {
		return e.retention
	}
	return e.active
}

func newState(stage model.Stage, errMsg *string, now time.Time) *model.ProgressState {
	var msg *string
	if errMsg != nil {
		copied := *errMsg
		msg = &copied
	}
	return &model.ProgressState{Stage: stage, ErrorMessage: msg, UpdatedAt: now.UTC()}
}

func copyState(state *model.ProgressState) *model.ProgressState {
	if state == nil {
		return nil
	}
	return newState(state.Stage, state.ErrorMessage, state.UpdatedAt)
}
