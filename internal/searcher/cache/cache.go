// Package cache memoises search results in Redis. Keys embed the generation
// of the merged index that produced a result, so a shard reload makes every
// older entry unreachable without a flush.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the key-value backend of the cache. *redis.Client implements it.
type Store interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache degrades to a pass-through while its store is failing: after
// repeated store errors the breaker opens and lookups miss without a round
// trip.
type QueryCache struct {
	store   Store
	breaker *resilience.CircuitBreaker
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache over store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	logger := slog.Default().With("component", "query-cache")
	return &QueryCache{
		store: store,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			OnStateChange: func(_ string, from, to resilience.State) {
				logger.Warn("cache store circuit changed", "from", from.String(), "to", to.String())
			},
		}),
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var (
		data string
		ok   bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, ok, err = c.store.Lookup(ctx, key)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if !ok {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for plan at generation, computing
// and storing it on a miss. Concurrent misses for one key compute once.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	plan *parser.QueryPlan,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := Key(generation, plan, limit)
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		// A result from a newer index must not be filed under an old key.
		if result.Generation == generation {
			c.Set(ctx, key, result)
		}
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate deletes every cached result regardless of generation.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

// Breaker reports the state of the circuit guarding the store.
func (c *QueryCache) Breaker() resilience.State {
	return c.breaker.State()
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Key is the cache key of plan evaluated against index generation with limit.
func Key(generation uint64, plan *parser.QueryPlan, limit int) string {
	raw := fmt.Sprintf("%s:limit=%d", plan.Normalized(), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%sg%d:%x", keyPrefix, generation, hash[:16])
}
