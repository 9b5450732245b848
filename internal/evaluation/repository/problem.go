package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"promptjudge/internal/common/cache"
	"promptjudge/internal/common/db"
	"promptjudge/internal/evaluation/model"
)

const (
	defaultProblemCacheTTL      = 10 * time.Minute
	defaultProblemCacheEmptyTTL = time.Minute
	problemCacheKeyPrefix       = "evaluation:problem:"
)

var ErrProblemNotFound = errors.New("problem not found")

// ProblemRepository looks up challenge definitions.
type ProblemRepository interface {
	GetByID(ctx context.Context, problemID int64) (*model.Problem, error)
}

// MySQLProblemRepository reads problems from MySQL with an optional read-through cache.
type MySQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewProblemRepository creates a problem repository. cacheClient may be nil.
func NewProblemRepository(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &MySQLProblemRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, problemID int64) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, errors.New("problemID is required")
	}
	if r.cache == nil {
		return r.getByIDFromDB(ctx, problemID)
	}
	problem, err := cache.GetWithCached[*model.Problem](
		ctx,
		r.cache,
		problemCacheKeyPrefix+strconv.FormatInt(problemID, 10),
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(p *model.Problem) bool { return p == nil },
		marshalJSON[*model.Problem],
		unmarshalJSON[*model.Problem],
		func(ctx context.Context) (*model.Problem, error) {
			problem, err := r.getByIDFromDB(ctx, problemID)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return problem, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (r *MySQLProblemRepository) getByIDFromDB(ctx context.Context, problemID int64) (*model.Problem, error) {
	query := "SELECT id, name, category, difficulty, description FROM problems WHERE id = ? LIMIT 1"
	problem := &model.Problem{}
	if err := r.db.QueryRow(ctx, query, problemID).Scan(
		&problem.ID,
		&problem.Name,
		&problem.Category,
		&problem.Difficulty,
		&problem.Description,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	return problem, nil
}

func marshalJSON[T any](v T) string {
	payload, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalJSON[T any](s string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
