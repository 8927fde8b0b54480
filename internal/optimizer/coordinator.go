// internal/optimizer/coordinator.go
package optimizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"compat-optimizer/internal/approx"
	"compat-optimizer/internal/batch"
	commonerrors "compat-optimizer/internal/common/errors"
	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/common/metrics"
	"compat-optimizer/internal/common/observability"
	"compat-optimizer/internal/loader"
	"compat-optimizer/internal/models"
	"compat-optimizer/internal/scorecache"
)

// responseTimeBudget is the latency target health scoring measures against.
const responseTimeBudget = 500 * time.Millisecond

// ScoreLoader is the quick/detailed loading contract the coordinator
// delegates single-pair work to.
type ScoreLoader interface {
	LoadQuickScore(ctx context.Context, participantA, participantB string, opts loader.Options) *models.QuickScore
	LoadDetailedScore(ctx context.Context, participantA, participantB string, opts loader.Options) (*models.CompatibilityScore, error)
}

// BatchProcessor handles synchronous bulk computation.
type BatchProcessor interface {
	Process(ctx context.Context, participantIDs []string, maxPairs int, opts loader.Options) (*batch.Result, error)
}

// JobQueue handles deferred bulk computation.
type JobQueue interface {
	Enqueue(ctx context.Context, participantIDs []string, maxPairs int, opts loader.Options) (*models.Job, error)
	Stats() (completed, failed int64, queued int)
}

// Approximator produces fast low-confidence estimates.
type Approximator interface {
	Approximate(ctx context.Context, participantA, participantB string, opts approx.Options) (*models.CompatibilityScore, error)
}

// ScoreCache is the distributed cache the cache-hit path reads and the
// approximation paths write back to.
type ScoreCache interface {
	Get(ctx context.Context, participantA, participantB string, opts scorecache.Options) (*models.CompatibilityScore, bool, error)
	Set(ctx context.Context, score *models.CompatibilityScore) error
}

// Coordinator is the single inbound surface of the optimization layer. It
// classifies each request onto one execution strategy and guarantees the
// caller always receives an OptimizationResult: handler failures become
// Success=false results, never errors or panics.
type Coordinator struct {
	cache        ScoreCache
	loader       ScoreLoader
	approximator Approximator
	batch        BatchProcessor
	queue        JobQueue
	obs          *observability.Observability
	logger       logger.Logger

	mu        sync.Mutex
	profile   Profile
	stats     models.OptimizationMetrics
	cacheHits int64
	successes int64

	bg sync.WaitGroup
}

func NewCoordinator(
	cache ScoreCache,
	scoreLoader ScoreLoader,
	approximator Approximator,
	batchProcessor BatchProcessor,
	queue JobQueue,
	obs *observability.Observability,
	profileName string,
	log logger.Logger,
) (*Coordinator, error) {
	profile, ok := Profiles[profileName]
	if !ok {
		return nil, commonerrors.NewUnknownProfileError(profileName)
	}
	return &Coordinator{
		cache:        cache,
		loader:       scoreLoader,
		approximator: approximator,
		batch:        batchProcessor,
		queue:        queue,
		obs:          obs,
		profile:      profile,
		stats:        models.OptimizationMetrics{ApproximationAccuracy: 0.85},
		logger:       log.WithFields(map[string]interface{}{"component": "optimization-coordinator"}),
	}, nil
}

// Optimize routes a request through the selected strategy. This is the
// boundary: whatever goes wrong inside a handler, the caller gets a result.
func (c *Coordinator) Optimize(ctx context.Context, req *models.OptimizationRequest) *models.OptimizationResult {
	started := time.Now()

	if err := validate(req); err != nil {
		return c.finish(started, StrategyDirect, "rejected", nil, err)
	}

	profile := c.GetProfile()
	strategy := classify(req, profile)

	var (
		data     interface{}
		approach string
		err      error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("optimization handler panic: %v", r)
				c.logger.Error("handler panic recovered", map[string]interface{}{
					"strategy": string(strategy),
					"panic":    fmt.Sprintf("%v", r),
				})
			}
		}()

		switch strategy {
		case StrategyCacheHit:
			data, approach, err = c.handleCacheHit(ctx, req, profile)
		case StrategyApproximation:
			data, approach, err = c.handleApproximation(ctx, req)
		case StrategyBatch:
			data, approach, err = c.handleBatch(ctx, req, profile)
		case StrategyBackgroundJob:
			data, approach, err = c.handleBackgroundJob(ctx, req, profile)
		case StrategyLazyLoad:
			data, approach, err = c.handleLazyLoad(ctx, req)
		default:
			data, approach, err = c.handleDirect(ctx, req)
		}
	}()

	return c.finish(started, strategy, approach, data, err)
}

func validate(req *models.OptimizationRequest) error {
	hasPair := req.ParticipantA != "" && req.ParticipantB != ""
	hasList := len(req.ParticipantIDs) >= 2
	if !hasPair && !hasList {
		return commonerrors.NewMissingParticipantsError()
	}
	return nil
}

func (c *Coordinator) loaderOpts(req *models.OptimizationRequest) loader.Options {
	return loader.Options{
		GroupContext:       req.GroupContext,
		AlgorithmID:        req.AlgorithmID,
		ForceRefresh:       req.DisableCache,
		IncludeExplanation: req.IncludeExplanation,
	}
}

// handleCacheHit serves a single pair cache-first with a fallback chain that
// never errors: distributed hit, quick preview, approximation, direct.
func (c *Coordinator) handleCacheHit(ctx context.Context, req *models.OptimizationRequest, profile Profile) (interface{}, string, error) {
	cached, found, _ := c.cache.Get(ctx, req.ParticipantA, req.ParticipantB, scorecache.Options{
		GroupContext: req.GroupContext,
		AlgorithmID:  req.AlgorithmID,
	})
	if found {
		c.mu.Lock()
		c.cacheHits++
		c.mu.Unlock()
		return cached, "distributed-cache", nil
	}

	if req.QuickPreview {
		return c.loader.LoadQuickScore(ctx, req.ParticipantA, req.ParticipantB, c.loaderOpts(req)), "quick-loader", nil
	}

	if profile.EnableApproximation {
		score, err := c.approximator.Approximate(ctx, req.ParticipantA, req.ParticipantB, approx.Options{
			GroupContext: req.GroupContext,
			AlgorithmID:  req.AlgorithmID,
		})
		if err == nil {
			c.writeBack(ctx, score)
			return score, "approximation-engine", nil
		}
		c.logger.Warn("approximation fallback failed, going direct", map[string]interface{}{
			"participantA": req.ParticipantA,
			"participantB": req.ParticipantB,
			"error":        err,
		})
	}

	return c.handleDirect(ctx, req)
}

func (c *Coordinator) handleApproximation(ctx context.Context, req *models.OptimizationRequest) (interface{}, string, error) {
	score, err := c.approximator.Approximate(ctx, req.ParticipantA, req.ParticipantB, approx.Options{
		GroupContext: req.GroupContext,
		AlgorithmID:  req.AlgorithmID,
	})
	if err != nil {
		return nil, "approximation-engine", err
	}
	c.writeBack(ctx, score)
	return score, "approximation-engine", nil
}

func (c *Coordinator) handleBatch(ctx context.Context, req *models.OptimizationRequest, profile Profile) (interface{}, string, error) {
	result, err := c.batch.Process(ctx, req.ParticipantIDs, profile.MaxBatchSize, c.loaderOpts(req))
	if err != nil {
		return nil, "sync-batch", err
	}
	return result, "sync-batch", nil
}

func (c *Coordinator) handleBackgroundJob(ctx context.Context, req *models.OptimizationRequest, profile Profile) (interface{}, string, error) {
	job, err := c.queue.Enqueue(ctx, req.ParticipantIDs, profile.MaxBatchSize, c.loaderOpts(req))
	if err != nil {
		return nil, "background-queue", err
	}

	c.mu.Lock()
	c.stats.BackgroundJobs++
	c.mu.Unlock()
	return job, "background-queue", nil
}

// handleLazyLoad answers immediately with a quick score and computes the full
// detail (with explanation) detached. The caller polls the cache or re-asks.
func (c *Coordinator) handleLazyLoad(ctx context.Context, req *models.OptimizationRequest) (interface{}, string, error) {
	quick := c.loader.LoadQuickScore(ctx, req.ParticipantA, req.ParticipantB, c.loaderOpts(req))

	opts := c.loaderOpts(req)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.loader.LoadDetailedScore(bgCtx, req.ParticipantA, req.ParticipantB, opts); err != nil {
			c.logger.Warn("lazy detail computation failed", map[string]interface{}{
				"participantA": req.ParticipantA,
				"participantB": req.ParticipantB,
				"error":        err,
			})
		}
	}()

	return quick, "lazy-detail", nil
}

func (c *Coordinator) handleDirect(ctx context.Context, req *models.OptimizationRequest) (interface{}, string, error) {
	score, err := c.loader.LoadDetailedScore(ctx, req.ParticipantA, req.ParticipantB, c.loaderOpts(req))
	if err != nil {
		return nil, "direct-calculation", err
	}
	return score, "direct-calculation", nil
}

// writeBack shares an approximation through the distributed cache so repeated
// previews converge across processes. Failure is logged, never surfaced.
func (c *Coordinator) writeBack(ctx context.Context, score *models.CompatibilityScore) {
	if err := c.cache.Set(ctx, score); err != nil {
		c.logger.Warn("approximation write-back failed", map[string]interface{}{
			"participantA": score.ParticipantA,
			"participantB": score.ParticipantB,
			"error":        err,
		})
	}
}

// finish folds the outcome into the result contract and the running metrics.
func (c *Coordinator) finish(started time.Time, strategy Strategy, approach string, data interface{}, err error) *models.OptimizationResult {
	elapsed := time.Since(started)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.OptimizationsTotal.WithLabelValues(string(strategy), outcome).Inc()
	metrics.OptimizationDuration.WithLabelValues(string(strategy)).Observe(elapsed.Seconds())
	if c.obs != nil {
		c.obs.RecordOptimization(context.Background(), string(strategy), outcome)
		c.obs.RecordOptimizationDuration(context.Background(), elapsed, string(strategy))
	}

	c.mu.Lock()
	c.stats.TotalOptimizations++
	if err == nil {
		c.successes++
		n := time.Duration(c.successes)
		c.stats.AverageResponseTime = ((c.stats.AverageResponseTime * (n - 1)) + elapsed) / n
	}
	if c.stats.TotalOptimizations > 0 {
		c.stats.CacheHitRate = float64(c.cacheHits) / float64(c.stats.TotalOptimizations)
	}
	c.mu.Unlock()

	result := &models.OptimizationResult{
		Success: err == nil,
		Data:    data,
		Optimization: models.OptimizationInfo{
			Approach:       approach,
			Strategy:       string(strategy),
			ProcessingTime: elapsed,
		},
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// SetProfile switches the operating mode. Unknown names are rejected and the
// current profile stays active.
func (c *Coordinator) SetProfile(name string) error {
	profile, ok := Profiles[name]
	if !ok {
		return commonerrors.NewUnknownProfileError(name)
	}

	c.mu.Lock()
	previous := c.profile.Name
	c.profile = profile
	c.mu.Unlock()

	c.logger.Info("strategy profile switched", map[string]interface{}{
		"from": previous,
		"to":   name,
	})
	return nil
}

// GetProfile returns the active profile.
func (c *Coordinator) GetProfile() Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// Metrics returns a snapshot of the running aggregates.
func (c *Coordinator) Metrics() models.OptimizationMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// HealthScore grades the layer 0-100: 40% cache effectiveness, 40% latency
// budget compliance, 20% background job success rate.
func (c *Coordinator) HealthScore() int {
	snapshot := c.Metrics()

	cacheScore := snapshot.CacheHitRate
	if snapshot.TotalOptimizations == 0 {
		cacheScore = 1 // nothing served yet, nothing wrong yet
	}

	latencyScore := 1.0
	if snapshot.AverageResponseTime > responseTimeBudget {
		latencyScore = float64(responseTimeBudget) / float64(snapshot.AverageResponseTime)
	}

	jobScore := 1.0
	if c.queue != nil {
		completed, failed, _ := c.queue.Stats()
		if completed+failed > 0 {
			jobScore = float64(completed) / float64(completed+failed)
		}
	}

	score := int((cacheScore*0.4 + latencyScore*0.4 + jobScore*0.2) * 100)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// TuningSuggestions returns free-text advisories derived from the running
// aggregates. Advisory only, never auto-applied.
func (c *Coordinator) TuningSuggestions() []string {
	snapshot := c.Metrics()
	profile := c.GetProfile()

	var suggestions []string
	if snapshot.TotalOptimizations >= 10 && snapshot.CacheHitRate < 0.5 {
		suggestions = append(suggestions, "cache hit rate below 50%; warm hot pairs via the admin warm endpoint")
	}
	if snapshot.AverageResponseTime > responseTimeBudget {
		suggestions = append(suggestions, "average response time exceeds budget; consider the aggressive profile")
	}
	if profile.Name == "conservative" && snapshot.BackgroundJobs == 0 && snapshot.TotalOptimizations >= 50 {
		suggestions = append(suggestions, "sustained volume on the conservative profile; balanced would enable approximations and background jobs")
	}
	if c.queue != nil {
		if _, failed, _ := c.queue.Stats(); failed > 0 {
			suggestions = append(suggestions, "background jobs have failed; inspect job queue logs")
		}
	}

	if len(suggestions) == 0 {
		suggestions = append(suggestions, "no tuning needed")
	}
	return suggestions
}

// WarmCache precomputes approximations for hot pairs into the distributed
// cache, detached from the caller. Returns how many pairs were scheduled.
func (c *Coordinator) WarmCache(ctx context.Context, pairs []loader.Pair) int {
	if len(pairs) == 0 {
		return 0
	}

	scheduled := len(pairs)
	c.bg.Add(1)
	go func(warm []loader.Pair) {
		defer c.bg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		warmed := 0
		for _, p := range warm {
			score, err := c.approximator.Approximate(bgCtx, p.ParticipantA, p.ParticipantB, approx.Options{})
			if err != nil {
				continue
			}
			c.writeBack(bgCtx, score)
			warmed++
		}
		c.logger.Info("cache warm finished", map[string]interface{}{
			"scheduled": scheduled,
			"warmed":    warmed,
		})
	}(pairs)

	return scheduled
}

// Wait blocks until detached work (lazy details, cache warms) finishes. Used
// by shutdown and tests.
func (c *Coordinator) Wait() {
	c.bg.Wait()
}
