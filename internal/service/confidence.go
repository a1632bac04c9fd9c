package service

import (
	"math"

	"github.com/doxa-ai/doxa/internal/domain"
)

const (
	// AccessLogOdds is the relevance nudge applied when a memory is read or
	// returned by a similarity query.
	AccessLogOdds = 0.1

	DefaultMaxConfidence = domain.MaxBeliefConfidence
	DefaultMinConfidence = 0.01
)

func Logit(p float64) float64 {
	p = clampConfidence(p)
	return math.Log(p / (1 - p))
}

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// ApplyLogOddsDelta shifts a confidence in log-odds space, which keeps
// repeated nudges well-behaved near 0 and 1.
func ApplyLogOddsDelta(confidence, logOddsDelta float64) float64 {
	return clampConfidence(Sigmoid(Logit(confidence) + logOddsDelta))
}

// ReinforcedConfidence folds a new observation into a belief's confidence as
// a running average over count observations. Reinforcement never lowers
// confidence and never exceeds the cap, so a belief stays revisable.
func ReinforcedConfidence(current, observed float64, count int) float64 {
	if count < 1 {
		count = 1
	}
	avg := current + (observed-current)/float64(count)
	if avg < current {
		avg = current
	}
	if avg > DefaultMaxConfidence {
		avg = DefaultMaxConfidence
	}
	return avg
}

func clampConfidence(p float64) float64 {
	if p < DefaultMinConfidence {
		return DefaultMinConfidence
	}
	if p > DefaultMaxConfidence {
		return DefaultMaxConfidence
	}
	return p
}
