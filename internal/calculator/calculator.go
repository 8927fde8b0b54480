// internal/calculator/calculator.go
package calculator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"compat-optimizer/internal/assets"
	commonerrors "compat-optimizer/internal/common/errors"
	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/models"

	"github.com/redis/go-redis/v9"
)

// Default dimension weights, overridable by the algorithm-config asset.
var defaultDimensionWeights = map[string]float64{
	"personality":  0.35,
	"travel":       0.30,
	"demographics": 0.20,
	"interests":    0.15,
}

// Calculator is the authoritative compatibility computation. It loads both
// participant profiles (redis read-through over postgres), scores each
// dimension against the reference datasets, and combines them with the
// algorithm's dimension weights. Unlike the quick paths, its errors
// propagate to the caller.
type Calculator struct {
	db         *sql.DB
	redis      *redis.Client
	assets     *assets.Manager
	profileTTL time.Duration
	logger     logger.Logger
}

func New(db *sql.DB, rdb *redis.Client, assetMgr *assets.Manager, profileTTL time.Duration, log logger.Logger) *Calculator {
	return &Calculator{
		db:         db,
		redis:      rdb,
		assets:     assetMgr,
		profileTTL: profileTTL,
		logger:     log.WithFields(map[string]interface{}{"component": "exact-calculator"}),
	}
}

// Calculate produces a full compatibility score with dimension breakdown.
func (c *Calculator) Calculate(ctx context.Context, input *Input) (*models.CompatibilityScore, error) {
	if input.ParticipantA == "" || input.ParticipantB == "" {
		return nil, commonerrors.NewMissingParticipantsError()
	}

	profileA, err := c.getProfile(ctx, input.ParticipantA)
	if err != nil {
		return nil, err
	}
	profileB, err := c.getProfile(ctx, input.ParticipantB)
	if err != nil {
		return nil, err
	}

	weights := c.dimensionWeights(ctx, input.AlgorithmID)

	dimensions := map[string]float64{
		"personality":  c.personalityScore(ctx, profileA, profileB),
		"travel":       c.travelScore(ctx, profileA, profileB),
		"demographics": c.demographicScore(ctx, profileA, profileB),
		"interests":    c.interestScore(profileA, profileB),
	}

	var overall float64
	for dim, score := range dimensions {
		overall += score * weights[dim]
	}
	overall = math.Round(overall*10) / 10

	result := &models.CompatibilityScore{
		ParticipantA:    input.ParticipantA,
		ParticipantB:    input.ParticipantB,
		GroupContext:    input.GroupContext,
		AlgorithmID:     input.AlgorithmID,
		OverallScore:    overall,
		Confidence:      models.ExactConfidence,
		Category:        models.CategoryFor(overall),
		Dimensions:      dimensions,
		IsApproximation: false,
		CalculatedAt:    time.Now().UTC(),
	}

	if input.IncludeExplanation {
		result.Explanation = buildExplanation(result)
	}

	c.logger.Info("compatibility score calculated", map[string]interface{}{
		"participantA": input.ParticipantA,
		"participantB": input.ParticipantB,
		"score":        overall,
		"category":     result.Category,
	})

	return result, nil
}

// getProfile loads a participant profile through the redis cache, falling
// back to postgres on miss.
func (c *Calculator) getProfile(ctx context.Context, participantID string) (*ParticipantProfile, error) {
	cacheKey := "participant:profile:" + participantID
	if val, err := c.redis.Get(ctx, cacheKey).Result(); err == nil {
		var profile ParticipantProfile
		if err := json.Unmarshal([]byte(val), &profile); err == nil {
			return &profile, nil
		}
	}

	row := c.db.QueryRowContext(ctx, `
		SELECT traits, travel_style, interests, birth_year
		FROM participants WHERE id = $1`, participantID)

	profile := ParticipantProfile{ID: participantID}
	var traits, interests []byte
	err := row.Scan(&traits, &profile.TravelStyle, &interests, &profile.BirthYear)
	if err == sql.ErrNoRows {
		return nil, commonerrors.NewProfileNotFoundError(participantID)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", participantID, err)
	}

	if err := json.Unmarshal(traits, &profile.Traits); err != nil {
		profile.Traits = map[string]float64{}
	}
	if err := json.Unmarshal(interests, &profile.Interests); err != nil {
		profile.Interests = []string{}
	}

	data, _ := json.Marshal(profile)
	c.redis.Set(ctx, cacheKey, data, c.profileTTL)

	return &profile, nil
}

// dimensionWeights resolves the weight set for an algorithm from the
// algorithm-config asset, defaulting when the asset or algorithm is missing.
func (c *Calculator) dimensionWeights(ctx context.Context, algorithmID string) map[string]float64 {
	if algorithmID == "" {
		algorithmID = "default"
	}

	res := c.assets.Get(ctx, assets.KeyAlgorithmConfig, assets.GetOptions{})
	if !res.Success {
		return defaultDimensionWeights
	}

	var cfg algorithmConfig
	if err := json.Unmarshal(res.Data, &cfg); err != nil {
		return defaultDimensionWeights
	}

	algo, ok := cfg.Algorithms[algorithmID]
	if !ok || len(algo.Dimensions) == 0 {
		return defaultDimensionWeights
	}
	return algo.Dimensions
}

// personalityScore measures weighted trait closeness: 100 when trait vectors
// match exactly, shrinking with the weighted mean absolute difference.
func (c *Calculator) personalityScore(ctx context.Context, a, b *ParticipantProfile) float64 {
	if len(a.Traits) == 0 || len(b.Traits) == 0 {
		return 50
	}

	weights := map[string]float64{}
	if res := c.assets.Get(ctx, assets.KeyScoringWeights, assets.GetOptions{}); res.Success {
		var tw traitWeights
		if err := json.Unmarshal(res.Data, &tw); err == nil {
			weights = tw.TraitWeights
		}
	}

	var weightedDiff, totalWeight float64
	for trait, av := range a.Traits {
		bv, ok := b.Traits[trait]
		if !ok {
			continue
		}
		w := weights[trait]
		if w == 0 {
			w = 0.2
		}
		weightedDiff += math.Abs(av-bv) * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 50
	}

	return math.Round((1-weightedDiff/totalWeight)*100*10) / 10
}

// travelScore looks up the style pair in the travel-preference matrix.
func (c *Calculator) travelScore(ctx context.Context, a, b *ParticipantProfile) float64 {
	if a.TravelStyle == "" || b.TravelStyle == "" {
		return 50
	}

	res := c.assets.Get(ctx, assets.KeyTravelPreferences, assets.GetOptions{})
	if !res.Success {
		return 50
	}

	var matrix travelMatrix
	if err := json.Unmarshal(res.Data, &matrix); err != nil {
		return 50
	}

	if row, ok := matrix.Compatibility[a.TravelStyle]; ok {
		if score, ok := row[b.TravelStyle]; ok {
			return score
		}
	}
	return 50
}

// demographicScore maps the age gap through the demographic curves asset.
func (c *Calculator) demographicScore(ctx context.Context, a, b *ParticipantProfile) float64 {
	if a.BirthYear == 0 || b.BirthYear == 0 {
		return 50
	}

	gap := a.BirthYear - b.BirthYear
	if gap < 0 {
		gap = -gap
	}

	res := c.assets.Get(ctx, assets.KeyDemographicCurves, assets.GetOptions{})
	if !res.Success {
		return 50
	}

	var curves demographicCurves
	if err := json.Unmarshal(res.Data, &curves); err != nil || len(curves.AgeGapPenalty) == 0 {
		return 50
	}

	sort.Slice(curves.AgeGapPenalty, func(i, j int) bool {
		return curves.AgeGapPenalty[i].MaxGap < curves.AgeGapPenalty[j].MaxGap
	})
	for _, band := range curves.AgeGapPenalty {
		if gap <= band.MaxGap {
			return band.Score
		}
	}
	return curves.AgeGapPenalty[len(curves.AgeGapPenalty)-1].Score
}

// interestScore is the shared-interest overlap ratio.
func (c *Calculator) interestScore(a, b *ParticipantProfile) float64 {
	if len(a.Interests) == 0 || len(b.Interests) == 0 {
		return 50
	}

	set := make(map[string]struct{}, len(a.Interests))
	for _, i := range a.Interests {
		set[i] = struct{}{}
	}
	shared := 0
	for _, i := range b.Interests {
		if _, ok := set[i]; ok {
			shared++
		}
	}

	union := len(a.Interests) + len(b.Interests) - shared
	if union == 0 {
		return 50
	}
	return math.Round(float64(shared) / float64(union) * 100)
}

// buildExplanation renders a short natural-language summary of the result.
func buildExplanation(score *models.CompatibilityScore) string {
	type dim struct {
		name  string
		value float64
	}
	ranked := make([]dim, 0, len(score.Dimensions))
	for name, value := range score.Dimensions {
		ranked = append(ranked, dim{name, value})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].value > ranked[j].value })

	if len(ranked) == 0 {
		return fmt.Sprintf("Overall compatibility is %s (%.0f/100).", score.Category, score.OverallScore)
	}

	strongest := ranked[0]
	weakest := ranked[len(ranked)-1]
	return fmt.Sprintf(
		"Overall compatibility is %s (%.0f/100). Strongest alignment is %s (%.0f), weakest is %s (%.0f).",
		score.Category, score.OverallScore,
		strongest.name, strongest.value,
		weakest.name, weakest.value,
	)
}
