package probability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/RateWatcher/internal/cache"
)

// CachedEstimator memoizes results for a short TTL. Cache failures fall
// through to the wrapped estimator.
type CachedEstimator struct {
	next   Estimator
	cache  cache.BytesCache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedEstimator(next Estimator, c cache.BytesCache, ttl time.Duration, logger zerolog.Logger) *CachedEstimator {
	return &CachedEstimator{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.With().Str("component", "probability_cache").Logger(),
	}
}

// cacheKey buckets At by the TTL so an entry never answers for a later history cutoff.
func (c *CachedEstimator) cacheKey(q Query) string {
	at := q.At
	if c.ttl > 0 {
		at = at.Truncate(c.ttl)
	}
	return fmt.Sprintf("prob:%s:%d:%.4f:%.4f:%d", q.Side, q.Window, q.Deviation, q.Tolerance, at.Unix())
}

func (c *CachedEstimator) Estimate(ctx context.Context, q Query) (Result, error) {
	if q.At.IsZero() {
		q.At = time.Now()
	}
	key := c.cacheKey(q)

	b, ok, err := c.cache.GetBytes(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	if ok {
		var r Result
		if err := json.Unmarshal(b, &r); err == nil {
			return r, nil
		}
	}

	r, err := c.next.Estimate(ctx, q)
	if err != nil {
		return Result{}, err
	}

	if b, err := json.Marshal(r); err == nil {
		if err := c.cache.SetBytes(ctx, key, b, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return r, nil
}
