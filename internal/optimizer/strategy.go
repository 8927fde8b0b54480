// internal/optimizer/strategy.go
package optimizer

import "compat-optimizer/internal/models"

// Strategy identifies which execution path handles an optimization request.
type Strategy string

const (
	StrategyCacheHit      Strategy = "cache_hit"
	StrategyApproximation Strategy = "approximation"
	StrategyBatch         Strategy = "batch"
	StrategyBackgroundJob Strategy = "background_job"
	StrategyLazyLoad      Strategy = "lazy_load"
	StrategyDirect        Strategy = "direct"
)

// Profile tunes strategy selection. Switching profiles is an explicit
// administrative action, never automatic.
type Profile struct {
	Name                string `json:"name"`
	MaxBatchSize        int    `json:"maxBatchSize"`
	EnableApproximation bool   `json:"enableApproximation"`
	EnableBackground    bool   `json:"enableBackground"`
	AggressivePrefetch  bool   `json:"aggressivePrefetch"`
}

// Profiles are the three supported operating modes.
var Profiles = map[string]Profile{
	"aggressive": {
		Name:                "aggressive",
		MaxBatchSize:        200,
		EnableApproximation: true,
		EnableBackground:    true,
		AggressivePrefetch:  true,
	},
	"balanced": {
		Name:                "balanced",
		MaxBatchSize:        100,
		EnableApproximation: true,
		EnableBackground:    true,
		AggressivePrefetch:  false,
	},
	"conservative": {
		Name:                "conservative",
		MaxBatchSize:        50,
		EnableApproximation: false,
		EnableBackground:    false,
		AggressivePrefetch:  false,
	},
}

// DefaultProfile is the startup operating mode.
const DefaultProfile = "balanced"

// classify picks the execution strategy for a request under a profile.
// First match wins:
//
//	bulk list larger than the batch cap, background enabled -> background job
//	bulk list                                               -> batch
//	cache not explicitly disabled                           -> cache hit
//	quick preview wanted, approximation enabled             -> approximation
//	explanation wanted and caller not blocking on it        -> lazy load
//	otherwise                                               -> direct
func classify(req *models.OptimizationRequest, profile Profile) Strategy {
	if req.IsBulk() {
		if len(req.ParticipantIDs) > profile.MaxBatchSize && profile.EnableBackground {
			return StrategyBackgroundJob
		}
		return StrategyBatch
	}

	if !req.DisableCache {
		return StrategyCacheHit
	}

	if req.QuickPreview && profile.EnableApproximation {
		return StrategyApproximation
	}

	if req.IncludeExplanation && !req.Immediate {
		return StrategyLazyLoad
	}

	return StrategyDirect
}
