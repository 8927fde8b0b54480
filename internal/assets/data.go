// internal/assets/data.go
package assets

import (
	"encoding/json"
	"time"
)

// Registry keys for the embedded reference datasets.
const (
	KeyPersonalityArchetypes = "personality-archetypes"
	KeyAlgorithmConfig       = "compatibility-algorithm-config"
	KeyScoringWeights        = "scoring-weights"
	KeyTravelPreferences     = "travel-preference-matrix"
	KeyDemographicCurves     = "demographic-curves"
	KeyModelWeights          = "model-weights"
)

// seedModified pins LastModified for the embedded copies so ETags stay stable
// across restarts until an explicit update bumps a version.
var seedModified = time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

const personalityArchetypesJSON = `{
  "archetypes": ["explorer", "planner", "socializer", "relaxer", "adventurer"],
  "affinity": {
    "explorer":   {"explorer": 74, "planner": 58, "socializer": 70, "relaxer": 52, "adventurer": 86},
    "planner":    {"explorer": 58, "planner": 80, "socializer": 64, "relaxer": 72, "adventurer": 46},
    "socializer": {"explorer": 70, "planner": 64, "socializer": 82, "relaxer": 66, "adventurer": 68},
    "relaxer":    {"explorer": 52, "planner": 72, "socializer": 66, "relaxer": 78, "adventurer": 40},
    "adventurer": {"explorer": 86, "planner": 46, "socializer": 68, "relaxer": 40, "adventurer": 76}
  }
}`

const algorithmConfigJSON = `{
  "algorithms": {
    "default": {
      "dimensions": {
        "personality": 0.35,
        "travel": 0.30,
        "demographics": 0.20,
        "interests": 0.15
      }
    },
    "personality-first": {
      "dimensions": {
        "personality": 0.55,
        "travel": 0.20,
        "demographics": 0.10,
        "interests": 0.15
      }
    }
  }
}`

const scoringWeightsJSON = `{
  "traitWeights": {
    "openness": 0.24,
    "conscientiousness": 0.20,
    "extraversion": 0.18,
    "agreeableness": 0.22,
    "neuroticism": 0.16
  }
}`

const travelPreferencesJSON = `{
  "styles": ["budget", "comfort", "luxury"],
  "compatibility": {
    "budget":  {"budget": 90, "comfort": 60, "luxury": 25},
    "comfort": {"budget": 60, "comfort": 85, "luxury": 65},
    "luxury":  {"budget": 25, "comfort": 65, "luxury": 92}
  }
}`

const demographicCurvesJSON = `{
  "ageGapPenalty": [
    {"maxGap": 3, "score": 95},
    {"maxGap": 7, "score": 82},
    {"maxGap": 12, "score": 65},
    {"maxGap": 20, "score": 45},
    {"maxGap": 120, "score": 30}
  ]
}`

const modelWeightsJSON = `{
  "model": "pairwise-affinity-v3",
  "bias": 4.2,
  "features": {
    "sharedInterests": 1.35,
    "archetypeAffinity": 2.10,
    "travelStyleMatch": 1.80,
    "ageGapScore": 0.95
  }
}`

func defaultAssets() []*Asset {
	return []*Asset{
		{
			Key:          KeyPersonalityArchetypes,
			Version:      "v1.4",
			Payload:      json.RawMessage(personalityArchetypesJSON),
			CacheType:    PersonalityData,
			LastModified: seedModified,
		},
		{
			Key:          KeyAlgorithmConfig,
			Version:      "v2.1",
			Payload:      json.RawMessage(algorithmConfigJSON),
			CacheType:    AlgorithmConfig,
			LastModified: seedModified,
		},
		{
			Key:          KeyScoringWeights,
			Version:      "v1.7",
			Payload:      json.RawMessage(scoringWeightsJSON),
			CacheType:    ScoringWeights,
			LastModified: seedModified,
		},
		{
			Key:          KeyTravelPreferences,
			Version:      "v1.2",
			Payload:      json.RawMessage(travelPreferencesJSON),
			CacheType:    StaticData,
			LastModified: seedModified,
		},
		{
			Key:          KeyDemographicCurves,
			Version:      "v1.0",
			Payload:      json.RawMessage(demographicCurvesJSON),
			CacheType:    StaticData,
			LastModified: seedModified,
		},
		{
			Key:          KeyModelWeights,
			Version:      "v3.0",
			Payload:      json.RawMessage(modelWeightsJSON),
			CacheType:    ScoringWeights,
			LastModified: seedModified,
		},
	}
}
