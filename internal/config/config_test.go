package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBeliefResolutionStrategies(t *testing.T) {
	t.Run("unset", func(t *testing.T) {
		t.Setenv("BELIEF_RESOLUTION_STRATEGIES", "")
		assert.Nil(t, BeliefResolutionStrategies())
	})

	t.Run("pairs", func(t *testing.T) {
		t.Setenv("BELIEF_RESOLUTION_STRATEGIES", "preference=newer-wins, fact = manual-review")
		assert.Equal(t, map[string]string{
			"preference": "newer-wins",
			"fact":       "manual-review",
		}, BeliefResolutionStrategies())
	})

	t.Run("malformed pairs dropped", func(t *testing.T) {
		t.Setenv("BELIEF_RESOLUTION_STRATEGIES", "no-equals,=orphan,fact=,preference=merge")
		assert.Equal(t, map[string]string{"preference": "merge"}, BeliefResolutionStrategies())
	})
}

func TestBeliefAnalysisEnabled(t *testing.T) {
	t.Setenv("BELIEF_ANALYSIS_ENABLED", "")
	assert.True(t, BeliefAnalysisEnabled())

	t.Setenv("BELIEF_ANALYSIS_ENABLED", "false")
	assert.False(t, BeliefAnalysisEnabled())

	t.Setenv("BELIEF_ANALYSIS_ENABLED", "not-a-bool")
	assert.True(t, BeliefAnalysisEnabled())
}
