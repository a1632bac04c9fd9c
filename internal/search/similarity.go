package search

import (
	"math"

	"github.com/doxa-ai/doxa/internal/domain"
)

// Cosine returns the cosine similarity of two vectors in [0,1] range for
// non-negative scores. Nil, empty, zero-magnitude, or dimension-mismatched
// inputs score 0 rather than erroring.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// StatementScore is the lexical similarity of two belief statements: 1.0 on
// equal normalized forms, trigram-set Jaccard otherwise. Every storage
// backend scores belief FindSimilar with this metric so thresholds mean the
// same thing everywhere.
func StatementScore(a, b string) float64 {
	na, nb := domain.NormalizeStatement(a), domain.NormalizeStatement(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return TrigramJaccard(Trigrams(na), Trigrams(nb))
}
