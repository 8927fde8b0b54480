// internal/approx/engine_test.go
package approx

import (
	"context"
	"testing"
	"time"

	"compat-optimizer/internal/assets"
	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	assetMgr := assets.NewManager("", 5*time.Second, logger.NewTestLogger(t))
	return New(assetMgr, logger.NewTestLogger(t))
}

func TestApproximate_ConfidenceCeiling(t *testing.T) {
	engine := newTestEngine(t)

	score, err := engine.Approximate(context.Background(), "u1", "u2", Options{})

	require.NoError(t, err)
	assert.True(t, score.IsApproximation)
	assert.Equal(t, models.ApproximationConfidence, score.Confidence)
	assert.Less(t, score.Confidence, 1.0)
	assert.Nil(t, score.Dimensions)
}

func TestApproximate_Deterministic(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.Approximate(ctx, "u1", "u2", Options{})
	require.NoError(t, err)
	second, err := engine.Approximate(ctx, "u1", "u2", Options{})
	require.NoError(t, err)

	assert.Equal(t, first.OverallScore, second.OverallScore)
	assert.Equal(t, first.Category, second.Category)
}

func TestApproximate_ScoreInRange(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	pairs := [][2]string{
		{"u1", "u2"}, {"alice", "bob"}, {"x", "y"}, {"p-100", "p-200"},
	}
	for _, pair := range pairs {
		score, err := engine.Approximate(ctx, pair[0], pair[1], Options{})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score.OverallScore, 0.0)
		assert.LessOrEqual(t, score.OverallScore, 100.0)
		assert.Equal(t, models.CategoryFor(score.OverallScore), score.Category)
	}
}

func TestApproximate_MissingParticipants(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Approximate(context.Background(), "", "u2", Options{})
	assert.Error(t, err)
}

func TestApproximate_CarriesRequestScope(t *testing.T) {
	engine := newTestEngine(t)

	score, err := engine.Approximate(context.Background(), "u1", "u2", Options{
		GroupContext: "trip-7",
		AlgorithmID:  "personality-first",
	})

	require.NoError(t, err)
	assert.Equal(t, "trip-7", score.GroupContext)
	assert.Equal(t, "personality-first", score.AlgorithmID)
}

func TestAssignArchetype_Stable(t *testing.T) {
	archetypes := []string{"explorer", "planner", "socializer"}

	first := assignArchetype("u42", archetypes)
	second := assignArchetype("u42", archetypes)

	assert.Equal(t, first, second)
	assert.Contains(t, archetypes, first)
}
