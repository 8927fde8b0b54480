// internal/scorecache/distributed.go
package scorecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/common/metrics"
	"compat-optimizer/internal/models"

	"github.com/redis/go-redis/v9"
)

// Options scope a cache lookup to a group and scoring algorithm.
type Options struct {
	GroupContext string
	AlgorithmID  string
}

// Distributed is the shared, durable score cache backed by redis. Both the
// quick and exact paths read from and write to it, giving cross-request
// reuse. Read failures are reported as misses so that cache unavailability
// never surfaces to callers.
type Distributed struct {
	redis     *redis.Client
	approxTTL time.Duration
	exactTTL  time.Duration
	logger    logger.Logger
}

// New creates a distributed score cache. TTLs separate approximate writes
// (shorter) from exact writes so an exact calculation eventually supersedes
// a cached approximation.
func New(rdb *redis.Client, approxTTL, exactTTL time.Duration, log logger.Logger) *Distributed {
	return &Distributed{
		redis:     rdb,
		approxTTL: approxTTL,
		exactTTL:  exactTTL,
		logger:    log.WithFields(map[string]interface{}{"component": "score-cache"}),
	}
}

// Key normalizes the participant pair so (A,B) and (B,A) share one entry.
func Key(participantA, participantB string, opts Options) string {
	lo, hi := participantA, participantB
	if hi < lo {
		lo, hi = hi, lo
	}
	algo := opts.AlgorithmID
	if algo == "" {
		algo = "default"
	}
	group := opts.GroupContext
	if group == "" {
		group = "none"
	}
	return fmt.Sprintf("score:%s:%s:%s:%s", algo, group, lo, hi)
}

// Get returns the cached score for a pair, or found=false on miss. A redis
// error is logged and reported as a miss.
func (c *Distributed) Get(ctx context.Context, participantA, participantB string, opts Options) (*models.CompatibilityScore, bool, error) {
	key := Key(participantA, participantB, opts)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		metrics.CacheLookups.WithLabelValues("distributed", "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("distributed", "error").Inc()
		c.logger.Warn("score cache read failed, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		return nil, false, nil
	}

	var score models.CompatibilityScore
	if err := json.Unmarshal([]byte(val), &score); err != nil {
		metrics.CacheLookups.WithLabelValues("distributed", "error").Inc()
		c.logger.Warn("score cache entry malformed, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		return nil, false, nil
	}

	metrics.CacheLookups.WithLabelValues("distributed", "hit").Inc()
	return &score, true, nil
}

// Set stores a score under the normalized pair key. Approximations get the
// shorter TTL so repeated previews converge until an exact result lands.
func (c *Distributed) Set(ctx context.Context, score *models.CompatibilityScore) error {
	key := Key(score.ParticipantA, score.ParticipantB, Options{
		GroupContext: score.GroupContext,
		AlgorithmID:  score.AlgorithmID,
	})

	ttl := c.exactTTL
	if score.IsApproximation {
		ttl = c.approxTTL
	}

	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}

	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("score cache write: %w", err)
	}
	return nil
}

// SetWithTTL stores a score with an explicit TTL, used by the detailed loader
// which pins exact results for one hour.
func (c *Distributed) SetWithTTL(ctx context.Context, score *models.CompatibilityScore, ttl time.Duration) error {
	key := Key(score.ParticipantA, score.ParticipantB, Options{
		GroupContext: score.GroupContext,
		AlgorithmID:  score.AlgorithmID,
	})

	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}

	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("score cache write: %w", err)
	}
	return nil
}

// Invalidate removes the cached entry for a pair.
func (c *Distributed) Invalidate(ctx context.Context, participantA, participantB string, opts Options) error {
	return c.redis.Del(ctx, Key(participantA, participantB, opts)).Err()
}
