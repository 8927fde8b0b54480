// internal/calculator/models.go
package calculator

// Input identifies the pair to score and how to score it.
type Input struct {
	ParticipantA       string `json:"participantA"`
	ParticipantB       string `json:"participantB"`
	GroupContext       string `json:"groupContext,omitempty"`
	AlgorithmID        string `json:"algorithmId,omitempty"`
	IncludeExplanation bool   `json:"includeExplanation,omitempty"`
}

// ParticipantProfile is the scoring-relevant slice of a participant record.
type ParticipantProfile struct {
	ID          string             `json:"id"`
	Traits      map[string]float64 `json:"traits"` // 0..1 per trait
	TravelStyle string             `json:"travelStyle"`
	Interests   []string           `json:"interests"`
	BirthYear   int                `json:"birthYear"`
}

// algorithmConfig mirrors the compatibility-algorithm-config asset payload.
type algorithmConfig struct {
	Algorithms map[string]struct {
		Dimensions map[string]float64 `json:"dimensions"`
	} `json:"algorithms"`
}

// traitWeights mirrors the scoring-weights asset payload.
type traitWeights struct {
	TraitWeights map[string]float64 `json:"traitWeights"`
}

// travelMatrix mirrors the travel-preference-matrix asset payload.
type travelMatrix struct {
	Compatibility map[string]map[string]float64 `json:"compatibility"`
}

// demographicCurves mirrors the demographic-curves asset payload.
type demographicCurves struct {
	AgeGapPenalty []struct {
		MaxGap int     `json:"maxGap"`
		Score  float64 `json:"score"`
	} `json:"ageGapPenalty"`
}
