// internal/loader/loader.go
package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"compat-optimizer/internal/approx"
	"compat-optimizer/internal/calculator"
	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/common/metrics"
	"compat-optimizer/internal/models"
	"compat-optimizer/internal/scorecache"

	"golang.org/x/sync/singleflight"
)

// detailedTTL pins exact results written by the detailed path.
const detailedTTL = time.Hour

// topDimensions is how many sub-scores a quick summary carries.
const topDimensions = 2

// ExactCalculator is the authoritative computation contract.
type ExactCalculator interface {
	Calculate(ctx context.Context, input *calculator.Input) (*models.CompatibilityScore, error)
}

// Approximator is the cheap estimate contract.
type Approximator interface {
	Approximate(ctx context.Context, participantA, participantB string, opts approx.Options) (*models.CompatibilityScore, error)
}

// ScoreCache is the distributed score cache contract.
type ScoreCache interface {
	Get(ctx context.Context, participantA, participantB string, opts scorecache.Options) (*models.CompatibilityScore, bool, error)
	Set(ctx context.Context, score *models.CompatibilityScore) error
	SetWithTTL(ctx context.Context, score *models.CompatibilityScore, ttl time.Duration) error
}

// Options scope a single load.
type Options struct {
	GroupContext       string
	AlgorithmID        string
	ForceRefresh       bool
	IncludeExplanation bool
}

// Pair is one participant pair in a batch.
type Pair struct {
	ParticipantA string `json:"participantA"`
	ParticipantB string `json:"participantB"`
}

// PairResult is the per-pair outcome of a batch load. Failures are entries,
// never batch aborts.
type PairResult struct {
	Success bool                       `json:"success"`
	Score   *models.CompatibilityScore `json:"score,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// ProgressiveOptions control a viewport load.
type ProgressiveOptions struct {
	Options
	ViewportSize int
	Prefetch     bool
}

// ProgressiveResult carries the detailed viewport plus how many quick scores
// were scheduled for prefetch.
type ProgressiveResult struct {
	Viewport   map[string]*PairResult `json:"viewport"`
	Prefetched int                    `json:"prefetched"`
}

type quickEntry struct {
	score     models.QuickScore
	writtenAt time.Time
}

// Loader provides cheap, low-latency quick scores for list rendering and
// full detailed scores without forcing callers to block on them.
type Loader struct {
	cache        ScoreCache
	calculator   ExactCalculator
	approximator Approximator
	logger       logger.Logger

	quickTTL          time.Duration
	chunkSize         int
	prefetchLookahead int

	mu    sync.RWMutex
	quick map[string]quickEntry

	flight singleflight.Group

	bg  sync.WaitGroup
	now func() time.Time
}

type Config struct {
	QuickTTL          time.Duration
	ChunkSize         int
	PrefetchLookahead int
}

func New(cache ScoreCache, calc ExactCalculator, approximator Approximator, cfg Config, log logger.Logger) *Loader {
	if cfg.QuickTTL == 0 {
		cfg.QuickTTL = 5 * time.Minute
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 5
	}
	if cfg.PrefetchLookahead == 0 {
		cfg.PrefetchLookahead = 3
	}
	return &Loader{
		cache:             cache,
		calculator:        calc,
		approximator:      approximator,
		logger:            log.WithFields(map[string]interface{}{"component": "score-loader"}),
		quickTTL:          cfg.QuickTTL,
		chunkSize:         cfg.ChunkSize,
		prefetchLookahead: cfg.PrefetchLookahead,
		quick:             make(map[string]quickEntry),
		now:               time.Now,
	}
}

func quickKey(participantA, participantB, groupContext string) string {
	return fmt.Sprintf("quick_%s_%s_%s", participantA, participantB, groupContext)
}

func pairKey(participantA, participantB, groupContext string) string {
	lo, hi := participantA, participantB
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%s_%s_%s", lo, hi, groupContext)
}

// LoadQuickScore returns a cheap score summary. It never returns an error:
// on any internal failure the caller gets the deterministic fallback object
// so the rendering contract always holds.
func (l *Loader) LoadQuickScore(ctx context.Context, participantA, participantB string, opts Options) *models.QuickScore {
	started := l.now()
	key := quickKey(participantA, participantB, opts.GroupContext)

	l.mu.RLock()
	entry, ok := l.quick[key]
	l.mu.RUnlock()
	if ok && l.now().Sub(entry.writtenAt) < l.quickTTL {
		metrics.CacheLookups.WithLabelValues("quick", "hit").Inc()
		cached := entry.score
		cached.FromCache = true
		cached.LoadTime = 0
		return &cached
	}
	metrics.CacheLookups.WithLabelValues("quick", "miss").Inc()

	// Full exact score already shared? Derive the summary from it.
	if full, found, _ := l.cache.Get(ctx, participantA, participantB, scorecache.Options{
		GroupContext: opts.GroupContext,
		AlgorithmID:  opts.AlgorithmID,
	}); found {
		quick := ExtractQuickScore(full, topDimensions)
		quick.LoadTime = l.now().Sub(started)
		l.storeQuick(key, quick)
		return quick
	}

	approxScore, err := l.approximator.Approximate(ctx, participantA, participantB, approx.Options{
		GroupContext: opts.GroupContext,
		AlgorithmID:  opts.AlgorithmID,
	})
	if err != nil {
		l.logger.Warn("quick score fell back to zero-state", map[string]interface{}{
			"participantA": participantA,
			"participantB": participantB,
			"error":        err,
		})
		return models.FallbackQuickScore(participantA, participantB, opts.GroupContext)
	}

	// Share the approximation so other instances answering quick previews
	// for this pair converge on the same value.
	if err := l.cache.Set(ctx, approxScore); err != nil {
		l.logger.Warn("approximation write-back failed", map[string]interface{}{
			"participantA": participantA,
			"participantB": participantB,
			"error":        err,
		})
	}

	quick := ExtractQuickScore(approxScore, topDimensions)
	quick.LoadTime = l.now().Sub(started)
	l.storeQuick(key, quick)
	return quick
}

func (l *Loader) storeQuick(key string, quick *models.QuickScore) {
	l.mu.Lock()
	l.quick[key] = quickEntry{score: *quick, writtenAt: l.now()}
	l.mu.Unlock()
}

// LoadDetailedScore returns the full authoritative score. Concurrent loads
// for the same pair key share one in-flight computation. Calculator errors
// propagate: detailed scores are requested when correctness matters.
func (l *Loader) LoadDetailedScore(ctx context.Context, participantA, participantB string, opts Options) (*models.CompatibilityScore, error) {
	key := pairKey(participantA, participantB, opts.GroupContext)

	v, err, _ := l.flight.Do(key, func() (interface{}, error) {
		if !opts.ForceRefresh {
			if cached, found, _ := l.cache.Get(ctx, participantA, participantB, scorecache.Options{
				GroupContext: opts.GroupContext,
				AlgorithmID:  opts.AlgorithmID,
			}); found && !cached.IsApproximation {
				return cached, nil
			}
		}

		score, err := l.calculator.Calculate(ctx, &calculator.Input{
			ParticipantA:       participantA,
			ParticipantB:       participantB,
			GroupContext:       opts.GroupContext,
			AlgorithmID:        opts.AlgorithmID,
			IncludeExplanation: opts.IncludeExplanation,
		})
		if err != nil {
			return nil, err
		}

		if err := l.cache.SetWithTTL(ctx, score, detailedTTL); err != nil {
			l.logger.Warn("detailed score write-back failed", map[string]interface{}{
				"participantA": participantA,
				"participantB": participantB,
				"error":        err,
			})
		}
		l.InvalidateQuick(participantA, participantB, opts.GroupContext)
		return score, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.CompatibilityScore), nil
}

// LoadBatchScores processes pairs in sequential chunks, each chunk's pairs
// concurrently. Chunk n+1 does not begin until chunk n has settled, bounding
// peak concurrency to the chunk size. Per-pair failures become failure
// entries alongside successes.
func (l *Loader) LoadBatchScores(ctx context.Context, pairs []Pair, opts Options) map[string]*PairResult {
	results := make(map[string]*PairResult, len(pairs))
	var resultsMu sync.Mutex

	for start := 0; start < len(pairs); start += l.chunkSize {
		end := start + l.chunkSize
		if end > len(pairs) {
			end = len(pairs)
		}

		var wg sync.WaitGroup
		for _, pair := range pairs[start:end] {
			wg.Add(1)
			go func(p Pair) {
				defer wg.Done()
				key := pairKey(p.ParticipantA, p.ParticipantB, opts.GroupContext)

				score, err := l.LoadDetailedScore(ctx, p.ParticipantA, p.ParticipantB, opts)
				resultsMu.Lock()
				defer resultsMu.Unlock()
				if err != nil {
					results[key] = &PairResult{Success: false, Error: err.Error()}
					return
				}
				results[key] = &PairResult{Success: true, Score: score}
			}(pair)
		}
		wg.Wait()
	}

	return results
}

// LoadProgressiveScores loads the viewport window with full detail and, when
// prefetching is enabled, schedules a detached quick-score prefetch of the
// next window (never detailed) so scrolling feels instant without paying
// full computation cost ahead of need.
func (l *Loader) LoadProgressiveScores(ctx context.Context, pairs []Pair, opts ProgressiveOptions) *ProgressiveResult {
	viewport := opts.ViewportSize
	if viewport <= 0 || viewport > len(pairs) {
		viewport = len(pairs)
	}

	out := &ProgressiveResult{
		Viewport: l.LoadBatchScores(ctx, pairs[:viewport], opts.Options),
	}

	if opts.Prefetch && viewport < len(pairs) {
		next := pairs[viewport:]
		if len(next) > l.prefetchLookahead {
			next = next[:l.prefetchLookahead]
		}
		out.Prefetched = len(next)

		l.bg.Add(1)
		go func(prefetch []Pair) {
			defer l.bg.Done()
			// Detached: the viewport response never waits on this.
			bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			for _, p := range prefetch {
				l.LoadQuickScore(bgCtx, p.ParticipantA, p.ParticipantB, opts.Options)
			}
		}(next)
	}

	return out
}

// ExtractQuickScore derives the list-rendering summary from a full score:
// identifiers, overall score, confidence, derived category and the topN
// dimensions ranked by sub-score descending.
func ExtractQuickScore(full *models.CompatibilityScore, topN int) *models.QuickScore {
	quick := &models.QuickScore{
		ParticipantA:    full.ParticipantA,
		ParticipantB:    full.ParticipantB,
		GroupContext:    full.GroupContext,
		OverallScore:    full.OverallScore,
		Confidence:      full.Confidence,
		Category:        models.CategoryFor(full.OverallScore),
		IsApproximation: full.IsApproximation,
	}

	if len(full.Dimensions) == 0 || topN <= 0 {
		return quick
	}

	type dim struct {
		name  string
		value float64
	}
	ranked := make([]dim, 0, len(full.Dimensions))
	for name, value := range full.Dimensions {
		ranked = append(ranked, dim{name, value})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].value != ranked[j].value {
			return ranked[i].value > ranked[j].value
		}
		return ranked[i].name < ranked[j].name
	})

	if topN > len(ranked) {
		topN = len(ranked)
	}
	quick.TopDimensions = make(map[string]float64, topN)
	for _, d := range ranked[:topN] {
		quick.TopDimensions[d.name] = d.value
	}
	return quick
}

// Wait blocks until detached prefetch tasks finish. Used by shutdown and
// tests.
func (l *Loader) Wait() {
	l.bg.Wait()
}

// InvalidateQuick drops the process-local quick entry for a pair, used when
// an exact calculation supersedes an approximation. Quick entries are keyed
// in caller order, so both orderings are dropped.
func (l *Loader) InvalidateQuick(participantA, participantB, groupContext string) {
	l.mu.Lock()
	delete(l.quick, quickKey(participantA, participantB, groupContext))
	delete(l.quick, quickKey(participantB, participantA, groupContext))
	l.mu.Unlock()
}
