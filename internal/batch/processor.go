// internal/batch/processor.go
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/loader"
	"compat-optimizer/internal/models"

	"golang.org/x/sync/errgroup"
)

// DetailedLoader is the per-pair computation the processor fans out over.
type DetailedLoader interface {
	LoadDetailedScore(ctx context.Context, participantA, participantB string, opts loader.Options) (*models.CompatibilityScore, error)
}

// Result summarizes a synchronous batch run. Truncated reports that the
// request exceeded the pair cap and only the first ProcessedPairs were
// computed.
type Result struct {
	Scores         map[string]*loader.PairResult `json:"scores"`
	RequestedPairs int                           `json:"requestedPairs"`
	ProcessedPairs int                           `json:"processedPairs"`
	FailedPairs    int                           `json:"failedPairs"`
	Truncated      bool                          `json:"truncated"`
	Duration       time.Duration                 `json:"durationMs"`
}

// Processor computes all unique pairs of a participant list synchronously
// with bounded concurrency. A single pair failing never aborts the batch;
// it becomes a failure entry in the result.
type Processor struct {
	loader      DetailedLoader
	concurrency int
	logger      logger.Logger
}

func New(detailedLoader DetailedLoader, concurrency int, log logger.Logger) *Processor {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Processor{
		loader:      detailedLoader,
		concurrency: concurrency,
		logger:      log.WithFields(map[string]interface{}{"component": "batch-processor"}),
	}
}

// Process expands participantIDs into unique unordered pairs, caps the list
// at maxPairs (0 means no cap), and computes each pair. Dup ids are collapsed
// before pairing.
func (p *Processor) Process(ctx context.Context, participantIDs []string, maxPairs int, opts loader.Options) (*Result, error) {
	if len(participantIDs) < 2 {
		return nil, fmt.Errorf("batch requires at least 2 participants, got %d", len(participantIDs))
	}

	pairs := UniquePairs(participantIDs)
	requested := len(pairs)

	truncated := false
	if maxPairs > 0 && len(pairs) > maxPairs {
		pairs = pairs[:maxPairs]
		truncated = true
		p.logger.Warn("batch truncated to pair cap", map[string]interface{}{
			"requestedPairs": requested,
			"cap":            maxPairs,
		})
	}

	started := time.Now()
	scores := make(map[string]*loader.PairResult, len(pairs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			key := pairResultKey(pair, opts.GroupContext)
			score, err := p.loader.LoadDetailedScore(gctx, pair.ParticipantA, pair.ParticipantB, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				scores[key] = &loader.PairResult{Success: false, Error: err.Error()}
				return nil
			}
			scores[key] = &loader.PairResult{Success: true, Score: score}
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range scores {
		if !r.Success {
			failed++
		}
	}

	res := &Result{
		Scores:         scores,
		RequestedPairs: requested,
		ProcessedPairs: len(pairs),
		FailedPairs:    failed,
		Truncated:      truncated,
		Duration:       time.Since(started),
	}

	p.logger.Info("batch processed", map[string]interface{}{
		"processedPairs": res.ProcessedPairs,
		"failedPairs":    res.FailedPairs,
		"truncated":      res.Truncated,
		"durationMs":     res.Duration.Milliseconds(),
	})
	return res, nil
}

// EstimatePairs returns how many unique pairs n participants produce.
func EstimatePairs(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// UniquePairs expands a participant list into every unordered pair,
// collapsing duplicate ids first. Order follows the input list.
func UniquePairs(participantIDs []string) []loader.Pair {
	seen := make(map[string]struct{}, len(participantIDs))
	ids := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	pairs := make([]loader.Pair, 0, EstimatePairs(len(ids)))
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			pairs = append(pairs, loader.Pair{ParticipantA: ids[i], ParticipantB: ids[j]})
		}
	}
	return pairs
}

func pairResultKey(pair loader.Pair, groupContext string) string {
	lo, hi := pair.ParticipantA, pair.ParticipantB
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%s_%s_%s", lo, hi, groupContext)
}
