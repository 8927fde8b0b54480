// internal/optimizer/coordinator_test.go
package optimizer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"compat-optimizer/internal/approx"
	"compat-optimizer/internal/assets"
	"compat-optimizer/internal/batch"
	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/loader"
	"compat-optimizer/internal/models"
	"compat-optimizer/internal/scorecache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	quickCalls  int32
	detailCalls int32
	detailErr   error
	panicOnLoad bool
}

func (f *fakeLoader) LoadQuickScore(ctx context.Context, participantA, participantB string, opts loader.Options) *models.QuickScore {
	atomic.AddInt32(&f.quickCalls, 1)
	return &models.QuickScore{
		ParticipantA:    participantA,
		ParticipantB:    participantB,
		OverallScore:    70,
		Confidence:      models.ApproximationConfidence,
		Category:        models.CategoryGood,
		IsApproximation: true,
	}
}

func (f *fakeLoader) LoadDetailedScore(ctx context.Context, participantA, participantB string, opts loader.Options) (*models.CompatibilityScore, error) {
	atomic.AddInt32(&f.detailCalls, 1)
	if f.panicOnLoad {
		panic("calculator blew up")
	}
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return &models.CompatibilityScore{
		ParticipantA: participantA,
		ParticipantB: participantB,
		OverallScore: 82,
		Confidence:   models.ExactConfidence,
		Category:     models.CategoryExcellent,
	}, nil
}

type fakeBatch struct {
	calls   int32
	lastIDs []string
	lastMax int
	err     error
}

func (f *fakeBatch) Process(ctx context.Context, participantIDs []string, maxPairs int, opts loader.Options) (*batch.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	f.lastIDs = participantIDs
	f.lastMax = maxPairs
	if f.err != nil {
		return nil, f.err
	}
	return &batch.Result{ProcessedPairs: maxPairs}, nil
}

type fakeQueue struct {
	calls     int32
	lastMax   int
	err       error
	completed int64
	failed    int64
}

func (f *fakeQueue) Enqueue(ctx context.Context, participantIDs []string, maxPairs int, opts loader.Options) (*models.Job, error) {
	atomic.AddInt32(&f.calls, 1)
	f.lastMax = maxPairs
	if f.err != nil {
		return nil, f.err
	}
	return &models.Job{JobID: "job-1", Status: models.JobQueued, QueuePosition: 1}, nil
}

func (f *fakeQueue) Stats() (int64, int64, int) {
	return f.completed, f.failed, 0
}

type coordinatorDeps struct {
	cache  *scorecache.Distributed
	loader *fakeLoader
	batch  *fakeBatch
	queue  *fakeQueue
}

func newTestCoordinator(t *testing.T, profileName string) (*Coordinator, *coordinatorDeps) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := scorecache.New(rdb, 30*time.Minute, time.Hour, logger.NewTestLogger(t))

	assetMgr := assets.NewManager("", 5*time.Second, logger.NewTestLogger(t))
	engine := approx.New(assetMgr, logger.NewTestLogger(t))

	deps := &coordinatorDeps{
		cache:  cache,
		loader: &fakeLoader{},
		batch:  &fakeBatch{},
		queue:  &fakeQueue{},
	}

	c, err := NewCoordinator(cache, deps.loader, engine, deps.batch, deps.queue, nil, profileName, logger.NewTestLogger(t))
	require.NoError(t, err)
	return c, deps
}

func bulkIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "p" + string(rune('a'+i%26)) + string(rune('0'+i/26%10)) + string(rune('0'+i/260))
	}
	return ids
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		req     models.OptimizationRequest
		profile string
		want    Strategy
	}{
		{"pair default goes cache first", models.OptimizationRequest{ParticipantA: "a", ParticipantB: "b"}, "balanced", StrategyCacheHit},
		{"quick preview still cache first", models.OptimizationRequest{ParticipantA: "a", ParticipantB: "b", QuickPreview: true}, "balanced", StrategyCacheHit},
		{"cache disabled quick preview approximates", models.OptimizationRequest{ParticipantA: "a", ParticipantB: "b", DisableCache: true, QuickPreview: true}, "balanced", StrategyApproximation},
		{"approximation off falls through", models.OptimizationRequest{ParticipantA: "a", ParticipantB: "b", DisableCache: true, QuickPreview: true}, "conservative", StrategyDirect},
		{"explanation defers to lazy", models.OptimizationRequest{ParticipantA: "a", ParticipantB: "b", DisableCache: true, IncludeExplanation: true}, "balanced", StrategyLazyLoad},
		{"immediate explanation stays direct", models.OptimizationRequest{ParticipantA: "a", ParticipantB: "b", DisableCache: true, IncludeExplanation: true, Immediate: true}, "balanced", StrategyDirect},
		{"cache disabled plain pair is direct", models.OptimizationRequest{ParticipantA: "a", ParticipantB: "b", DisableCache: true}, "balanced", StrategyDirect},
		{"eleven ids is bulk", models.OptimizationRequest{ParticipantIDs: bulkIDs(11)}, "balanced", StrategyBatch},
		{"ten ids is not bulk", models.OptimizationRequest{ParticipantIDs: bulkIDs(10), ParticipantA: "a", ParticipantB: "b"}, "balanced", StrategyCacheHit},
		{"over cap with background goes async", models.OptimizationRequest{ParticipantIDs: bulkIDs(150)}, "balanced", StrategyBackgroundJob},
		{"conservative clamps instead of deferring", models.OptimizationRequest{ParticipantIDs: bulkIDs(150)}, "conservative", StrategyBatch},
		{"aggressive defers very large lists", models.OptimizationRequest{ParticipantIDs: bulkIDs(250)}, "aggressive", StrategyBackgroundJob},
		{"aggressive keeps mid lists sync", models.OptimizationRequest{ParticipantIDs: bulkIDs(150)}, "aggressive", StrategyBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(&tt.req, Profiles[tt.profile]))
		})
	}
}

func TestOptimize_CacheHit(t *testing.T) {
	c, deps := newTestCoordinator(t, "balanced")
	ctx := context.Background()

	require.NoError(t, deps.cache.Set(ctx, &models.CompatibilityScore{
		ParticipantA: "u1",
		ParticipantB: "u2",
		OverallScore: 88,
		Confidence:   models.ExactConfidence,
		Category:     models.CategoryExcellent,
	}))

	result := c.Optimize(ctx, &models.OptimizationRequest{ParticipantA: "u1", ParticipantB: "u2"})

	require.True(t, result.Success)
	assert.Equal(t, string(StrategyCacheHit), result.Optimization.Strategy)
	assert.Equal(t, "distributed-cache", result.Optimization.Approach)
	score := result.Data.(*models.CompatibilityScore)
	assert.Equal(t, 88.0, score.OverallScore)
	assert.Zero(t, atomic.LoadInt32(&deps.loader.detailCalls))
}

func TestOptimize_CacheMissQuickPreview(t *testing.T) {
	c, deps := newTestCoordinator(t, "balanced")

	result := c.Optimize(context.Background(), &models.OptimizationRequest{
		ParticipantA: "u1",
		ParticipantB: "u2",
		QuickPreview: true,
	})

	require.True(t, result.Success)
	assert.Equal(t, "quick-loader", result.Optimization.Approach)
	assert.Equal(t, int32(1), atomic.LoadInt32(&deps.loader.quickCalls))
}

func TestOptimize_CacheMissApproximationWrittenBack(t *testing.T) {
	c, deps := newTestCoordinator(t, "balanced")
	ctx := context.Background()

	first := c.Optimize(ctx, &models.OptimizationRequest{ParticipantA: "u1", ParticipantB: "u2"})

	require.True(t, first.Success)
	assert.Equal(t, "approximation-engine", first.Optimization.Approach)
	score := first.Data.(*models.CompatibilityScore)
	assert.True(t, score.IsApproximation)
	assert.Equal(t, models.ApproximationConfidence, score.Confidence)

	// Second identical request is served straight from the distributed cache.
	second := c.Optimize(ctx, &models.OptimizationRequest{ParticipantA: "u1", ParticipantB: "u2"})
	require.True(t, second.Success)
	assert.Equal(t, "distributed-cache", second.Optimization.Approach)
	cached := second.Data.(*models.CompatibilityScore)
	assert.Equal(t, score.OverallScore, cached.OverallScore)
	assert.True(t, cached.IsApproximation)
	assert.Zero(t, atomic.LoadInt32(&deps.loader.detailCalls))
}

func TestOptimize_CacheMissConservativeGoesDirect(t *testing.T) {
	c, deps := newTestCoordinator(t, "conservative")

	result := c.Optimize(context.Background(), &models.OptimizationRequest{ParticipantA: "u1", ParticipantB: "u2"})

	require.True(t, result.Success)
	assert.Equal(t, "direct-calculation", result.Optimization.Approach)
	assert.Equal(t, int32(1), atomic.LoadInt32(&deps.loader.detailCalls))
}

func TestOptimize_BatchClampsToProfile(t *testing.T) {
	c, deps := newTestCoordinator(t, "conservative")

	result := c.Optimize(context.Background(), &models.OptimizationRequest{ParticipantIDs: bulkIDs(150)})

	require.True(t, result.Success)
	assert.Equal(t, string(StrategyBatch), result.Optimization.Strategy)
	assert.Equal(t, 50, deps.batch.lastMax)
	assert.Len(t, deps.batch.lastIDs, 150)
}

func TestOptimize_BackgroundJob(t *testing.T) {
	c, deps := newTestCoordinator(t, "aggressive")

	result := c.Optimize(context.Background(), &models.OptimizationRequest{ParticipantIDs: bulkIDs(250)})

	require.True(t, result.Success)
	assert.Equal(t, string(StrategyBackgroundJob), result.Optimization.Strategy)
	job := result.Data.(*models.Job)
	assert.Equal(t, "job-1", job.JobID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&deps.queue.calls))
	assert.Equal(t, int64(1), c.Metrics().BackgroundJobs)
}

func TestOptimize_LazyLoadComputesDetailDetached(t *testing.T) {
	c, deps := newTestCoordinator(t, "balanced")

	result := c.Optimize(context.Background(), &models.OptimizationRequest{
		ParticipantA:       "u1",
		ParticipantB:       "u2",
		DisableCache:       true,
		IncludeExplanation: true,
	})
	c.Wait()

	require.True(t, result.Success)
	assert.Equal(t, string(StrategyLazyLoad), result.Optimization.Strategy)
	_, isQuick := result.Data.(*models.QuickScore)
	assert.True(t, isQuick, "lazy path answers with the quick summary")
	assert.Equal(t, int32(1), atomic.LoadInt32(&deps.loader.detailCalls))
}

func TestOptimize_HandlerErrorBecomesResult(t *testing.T) {
	c, deps := newTestCoordinator(t, "balanced")
	deps.batch.err = errors.New("profiles unavailable")

	result := c.Optimize(context.Background(), &models.OptimizationRequest{ParticipantIDs: bulkIDs(20)})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "profiles unavailable")
	assert.Greater(t, result.Optimization.ProcessingTime, time.Duration(0))
}

func TestOptimize_PanicBecomesResult(t *testing.T) {
	c, deps := newTestCoordinator(t, "balanced")
	deps.loader.panicOnLoad = true

	result := c.Optimize(context.Background(), &models.OptimizationRequest{
		ParticipantA: "u1",
		ParticipantB: "u2",
		DisableCache: true,
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "panic")
}

func TestOptimize_RejectsEmptyRequest(t *testing.T) {
	c, _ := newTestCoordinator(t, "balanced")

	result := c.Optimize(context.Background(), &models.OptimizationRequest{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "participant")
}

func TestSetProfile(t *testing.T) {
	c, _ := newTestCoordinator(t, "balanced")

	require.NoError(t, c.SetProfile("aggressive"))
	assert.Equal(t, "aggressive", c.GetProfile().Name)
	assert.Equal(t, 200, c.GetProfile().MaxBatchSize)

	err := c.SetProfile("yolo")
	assert.Error(t, err)
	assert.Equal(t, "aggressive", c.GetProfile().Name, "failed switch keeps the active profile")
}

func TestMetrics_RunningAggregates(t *testing.T) {
	c, deps := newTestCoordinator(t, "balanced")
	ctx := context.Background()

	require.NoError(t, deps.cache.Set(ctx, &models.CompatibilityScore{
		ParticipantA: "u1", ParticipantB: "u2",
		OverallScore: 80, Confidence: models.ExactConfidence, Category: models.CategoryExcellent,
	}))

	c.Optimize(ctx, &models.OptimizationRequest{ParticipantA: "u1", ParticipantB: "u2"})
	c.Optimize(ctx, &models.OptimizationRequest{ParticipantA: "u3", ParticipantB: "u4", DisableCache: true})

	stats := c.Metrics()
	assert.Equal(t, int64(2), stats.TotalOptimizations)
	assert.Equal(t, 0.5, stats.CacheHitRate)
	assert.Greater(t, stats.AverageResponseTime, time.Duration(0))
}

func TestHealthScore_Bounds(t *testing.T) {
	c, _ := newTestCoordinator(t, "balanced")

	fresh := c.HealthScore()
	assert.GreaterOrEqual(t, fresh, 0)
	assert.LessOrEqual(t, fresh, 100)
	assert.Equal(t, 100, fresh, "untouched layer is healthy")
}

func TestHealthScore_DegradesWithJobFailures(t *testing.T) {
	c, deps := newTestCoordinator(t, "balanced")
	deps.queue.completed = 1
	deps.queue.failed = 3

	assert.Less(t, c.HealthScore(), 100)
}

func TestTuningSuggestions(t *testing.T) {
	c, deps := newTestCoordinator(t, "balanced")
	ctx := context.Background()

	assert.Equal(t, []string{"no tuning needed"}, c.TuningSuggestions())

	// Ten uncached direct requests drive the hit rate to zero.
	for i := 0; i < 10; i++ {
		c.Optimize(ctx, &models.OptimizationRequest{ParticipantA: "u1", ParticipantB: "u2", DisableCache: true})
	}
	suggestions := c.TuningSuggestions()
	require.NotEmpty(t, suggestions)
	assert.Contains(t, suggestions[0], "cache hit rate")

	deps.queue.failed = 2
	assert.Contains(t, c.TuningSuggestions(), "background jobs have failed; inspect job queue logs")
}

func TestWarmCache_PopulatesDistributed(t *testing.T) {
	c, deps := newTestCoordinator(t, "balanced")
	ctx := context.Background()

	scheduled := c.WarmCache(ctx, []loader.Pair{
		{ParticipantA: "u1", ParticipantB: "u2"},
		{ParticipantA: "u3", ParticipantB: "u4"},
	})
	c.Wait()

	assert.Equal(t, 2, scheduled)
	for _, pair := range [][2]string{{"u1", "u2"}, {"u3", "u4"}} {
		score, found, _ := deps.cache.Get(ctx, pair[0], pair[1], scorecache.Options{})
		require.True(t, found)
		assert.True(t, score.IsApproximation)
	}
}

func TestWarmCache_EmptyIsNoop(t *testing.T) {
	c, _ := newTestCoordinator(t, "balanced")

	assert.Equal(t, 0, c.WarmCache(context.Background(), nil))
}
