package progress

import (
	"fmt"

	"promptjudge/internal/common/cache"
)

// New builds the configured backend. The redis backend requires cacheClient.
func New(cfg Config, cacheClient cache.Cache) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg)
	case BackendRedis:
		return NewRedisStore(cacheClient, cfg)
	default:
		return nil, fmt.Errorf("unknown progress backend %q", cfg.Backend)
	}
}
