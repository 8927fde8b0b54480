// internal/scorecache/distributed_test.go
package scorecache

import (
	"context"
	"testing"
	"time"

	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*Distributed, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := New(rdb, 30*time.Minute, 60*time.Minute, logger.NewTestLogger(t))
	return cache, mr
}

func exactScore(a, b string) *models.CompatibilityScore {
	return &models.CompatibilityScore{
		ParticipantA: a,
		ParticipantB: b,
		OverallScore: 72,
		Confidence:   models.ExactConfidence,
		Category:     models.CategoryFor(72),
		Dimensions:   map[string]float64{"personality": 80, "travel": 65},
		CalculatedAt: time.Now().UTC(),
	}
}

func TestKey_PairOrderNormalized(t *testing.T) {
	opts := Options{GroupContext: "g1", AlgorithmID: "alg-2"}
	assert.Equal(t, Key("u1", "u2", opts), Key("u2", "u1", opts))
	assert.NotEqual(t, Key("u1", "u2", opts), Key("u1", "u3", opts))
}

func TestKey_GroupAndAlgorithmScopeEntries(t *testing.T) {
	base := Key("u1", "u2", Options{})
	grouped := Key("u1", "u2", Options{GroupContext: "trip-9"})
	algo := Key("u1", "u2", Options{AlgorithmID: "v2"})

	assert.NotEqual(t, base, grouped)
	assert.NotEqual(t, base, algo)
	assert.NotEqual(t, grouped, algo)
}

func TestDistributed_SetGet_RoundTrip(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()

	score := exactScore("u1", "u2")
	require.NoError(t, cache.Set(ctx, score))

	got, found, err := cache.Get(ctx, "u1", "u2", Options{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, score.OverallScore, got.OverallScore)
	assert.Equal(t, score.Dimensions, got.Dimensions)

	// Reversed pair order hits the same entry.
	_, found, err = cache.Get(ctx, "u2", "u1", Options{})
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDistributed_Get_Miss(t *testing.T) {
	cache, _ := setupCache(t)

	got, found, err := cache.Get(context.Background(), "u1", "u2", Options{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestDistributed_ApproximationGetsShorterTTL(t *testing.T) {
	cache, mr := setupCache(t)
	ctx := context.Background()

	approx := exactScore("u1", "u2")
	approx.IsApproximation = true
	approx.Confidence = models.ApproximationConfidence
	require.NoError(t, cache.Set(ctx, approx))

	exact := exactScore("u3", "u4")
	require.NoError(t, cache.Set(ctx, exact))

	approxTTL := mr.TTL(Key("u1", "u2", Options{}))
	exactTTL := mr.TTL(Key("u3", "u4", Options{}))

	assert.Equal(t, 30*time.Minute, approxTTL)
	assert.Equal(t, 60*time.Minute, exactTTL)
}

func TestDistributed_EntryExpires(t *testing.T) {
	cache, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, exactScore("u1", "u2")))

	mr.FastForward(61 * time.Minute)

	_, found, err := cache.Get(ctx, "u1", "u2", Options{})
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestDistributed_RedisDownIsReportedAsMiss(t *testing.T) {
	cache, mr := setupCache(t)
	mr.Close()

	got, found, err := cache.Get(context.Background(), "u1", "u2", Options{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestDistributed_MalformedEntryIsReportedAsMiss(t *testing.T) {
	cache, mr := setupCache(t)

	require.NoError(t, mr.Set(Key("u1", "u2", Options{}), "not-json"))

	got, found, err := cache.Get(context.Background(), "u1", "u2", Options{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestDistributed_Invalidate(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, exactScore("u1", "u2")))
	require.NoError(t, cache.Invalidate(ctx, "u1", "u2", Options{}))

	_, found, _ := cache.Get(ctx, "u1", "u2", Options{})
	assert.False(t, found)
}
