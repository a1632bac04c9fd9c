package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doxa-ai/doxa/internal/domain"
)

func TestLogitSigmoidRoundTrip(t *testing.T) {
	for _, p := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
		assert.InDelta(t, p, Sigmoid(Logit(p)), 1e-9)
	}
}

func TestApplyLogOddsDelta(t *testing.T) {
	assert.Greater(t, ApplyLogOddsDelta(0.5, AccessLogOdds), 0.5)
	assert.Less(t, ApplyLogOddsDelta(0.5, -AccessLogOdds), 0.5)

	// Repeated boosts approach but never reach the cap.
	p := 0.5
	for i := 0; i < 1000; i++ {
		p = ApplyLogOddsDelta(p, AccessLogOdds)
	}
	assert.LessOrEqual(t, p, DefaultMaxConfidence)

	// And never collapse below the floor.
	p = 0.5
	for i := 0; i < 1000; i++ {
		p = ApplyLogOddsDelta(p, -AccessLogOdds)
	}
	assert.GreaterOrEqual(t, p, DefaultMinConfidence)
}

func TestReinforcedConfidence(t *testing.T) {
	// Running average of 0.5 and 0.9 over two observations.
	assert.InDelta(t, 0.7, ReinforcedConfidence(0.5, 0.9, 2), 1e-9)

	// A weaker observation never lowers confidence.
	assert.Equal(t, 0.8, ReinforcedConfidence(0.8, 0.2, 2))

	// The cap holds.
	assert.Equal(t, domain.MaxBeliefConfidence, ReinforcedConfidence(0.99, 1.0, 1))

	// A zero count is treated as the first observation.
	assert.InDelta(t, 0.9, ReinforcedConfidence(0.5, 0.9, 0), 1e-9)
}
