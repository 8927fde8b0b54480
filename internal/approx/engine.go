// internal/approx/engine.go
package approx

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"compat-optimizer/internal/assets"
	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/models"
)

// Options scope an approximation.
type Options struct {
	GroupContext string
	AlgorithmID  string
}

// Engine produces fast, lower-confidence score estimates from the archetype
// reference data without invoking the authoritative calculator. Results
// always carry IsApproximation=true and the fixed approximation confidence.
type Engine struct {
	assets *assets.Manager
	logger logger.Logger
}

func New(assetMgr *assets.Manager, log logger.Logger) *Engine {
	return &Engine{
		assets: assetMgr,
		logger: log.WithFields(map[string]interface{}{"component": "approximation-engine"}),
	}
}

type archetypeData struct {
	Archetypes []string                      `json:"archetypes"`
	Affinity   map[string]map[string]float64 `json:"affinity"`
}

// Approximate estimates compatibility from the archetype affinity matrix.
// Participants are assigned archetypes deterministically from their
// identifiers, so repeated calls for the same pair agree.
func (e *Engine) Approximate(ctx context.Context, participantA, participantB string, opts Options) (*models.CompatibilityScore, error) {
	if participantA == "" || participantB == "" {
		return nil, fmt.Errorf("approximation requires both participant ids")
	}

	res := e.assets.Get(ctx, assets.KeyPersonalityArchetypes, assets.GetOptions{})
	if !res.Success {
		return nil, fmt.Errorf("archetype asset unavailable: %s", res.Error)
	}

	var data archetypeData
	if err := json.Unmarshal(res.Data, &data); err != nil {
		return nil, fmt.Errorf("parse archetype asset: %w", err)
	}
	if len(data.Archetypes) == 0 {
		return nil, fmt.Errorf("archetype asset has no archetypes")
	}

	archA := assignArchetype(participantA, data.Archetypes)
	archB := assignArchetype(participantB, data.Archetypes)

	score := 50.0
	if row, ok := data.Affinity[archA]; ok {
		if v, ok := row[archB]; ok {
			score = v
		}
	}

	return &models.CompatibilityScore{
		ParticipantA:    participantA,
		ParticipantB:    participantB,
		GroupContext:    opts.GroupContext,
		AlgorithmID:     opts.AlgorithmID,
		OverallScore:    score,
		Confidence:      models.ApproximationConfidence,
		Category:        models.CategoryFor(score),
		IsApproximation: true,
		CalculatedAt:    time.Now().UTC(),
	}, nil
}

// assignArchetype hashes the participant id onto the archetype list. Stable
// across processes; a real profile-based assignment supersedes this when the
// exact path runs.
func assignArchetype(participantID string, archetypes []string) string {
	h := fnv.New32a()
	h.Write([]byte(participantID))
	return archetypes[int(h.Sum32())%len(archetypes)]
}
