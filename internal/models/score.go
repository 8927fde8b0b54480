// internal/models/score.go
package models

import "time"

// ScoreCategory classifies an overall score into a renderable bucket.
type ScoreCategory string

const (
	CategoryExcellent    ScoreCategory = "excellent"
	CategoryGood         ScoreCategory = "good"
	CategoryFair         ScoreCategory = "fair"
	CategoryPoor         ScoreCategory = "poor"
	CategoryIncompatible ScoreCategory = "incompatible"
	CategoryUnknown      ScoreCategory = "unknown"
)

// CategoryFor derives the category from an overall score. Thresholds:
// excellent >= 80, good >= 65, fair >= 50, poor >= 30, incompatible < 30.
func CategoryFor(overallScore float64) ScoreCategory {
	switch {
	case overallScore >= 80:
		return CategoryExcellent
	case overallScore >= 65:
		return CategoryGood
	case overallScore >= 50:
		return CategoryFair
	case overallScore >= 30:
		return CategoryPoor
	default:
		return CategoryIncompatible
	}
}

// Confidence levels for the two score producers. An approximation must never
// claim exact-level confidence.
const (
	ExactConfidence         = 0.95
	ApproximationConfidence = 0.6
)

// CompatibilityScore is the central value object of the optimization layer.
type CompatibilityScore struct {
	ParticipantA    string             `json:"participantA"`
	ParticipantB    string             `json:"participantB"`
	GroupContext    string             `json:"groupContext,omitempty"`
	AlgorithmID     string             `json:"algorithmId,omitempty"`
	OverallScore    float64            `json:"overallScore"`
	Confidence      float64            `json:"confidence"`
	Category        ScoreCategory      `json:"category"`
	Dimensions      map[string]float64 `json:"dimensions,omitempty"`
	IsApproximation bool               `json:"isApproximation"`
	Explanation     string             `json:"explanation,omitempty"`
	CalculatedAt    time.Time          `json:"calculatedAt"`
}

// QuickScore is a lightweight summary suitable for list/preview rendering.
type QuickScore struct {
	ParticipantA    string             `json:"participantA"`
	ParticipantB    string             `json:"participantB"`
	GroupContext    string             `json:"groupContext,omitempty"`
	OverallScore    float64            `json:"overallScore"`
	Confidence      float64            `json:"confidence"`
	Category        ScoreCategory      `json:"category"`
	TopDimensions   map[string]float64 `json:"topDimensions,omitempty"`
	IsApproximation bool               `json:"isApproximation"`
	FromCache       bool               `json:"fromCache"`
	IsFallback      bool               `json:"isFallback,omitempty"`
	LoadTime        time.Duration      `json:"loadTimeMs"`
}

// FallbackQuickScore returns the deterministic zero-state the quick path
// serves when every source fails. The UI contract always gets something
// renderable.
func FallbackQuickScore(participantA, participantB, groupContext string) *QuickScore {
	return &QuickScore{
		ParticipantA: participantA,
		ParticipantB: participantB,
		GroupContext: groupContext,
		OverallScore: 0,
		Confidence:   0,
		Category:     CategoryUnknown,
		IsFallback:   true,
	}
}
