// Package search implements similarity retrieval over memory records. Three
// strategies cover the backend capability tiers: native vector k-NN, trigram
// scoring over a keyword prefilter, and plain lexical matching. A Selector
// probes the backend once and delegates every call to the strategy it chose.
package search

import (
	"context"

	"github.com/doxa-ai/doxa/internal/domain"
)

// candidateScanLimit bounds how many records an in-process strategy pulls
// from the backend before scoring.
const candidateScanLimit = 500

// Query is one similarity request. Limit is the per-query cap, MaxResults
// the strategy-level cap; the tighter of the two wins. Results scoring below
// Threshold are dropped.
type Query struct {
	Text       string
	Vector     []float32
	AgentID    string
	Limit      int
	MaxResults int
	Threshold  float64
}

// EffectiveLimit resolves the two caps. Limit == 0 legitimately selects
// nothing.
func (q Query) EffectiveLimit() int {
	limit := q.Limit
	if q.MaxResults > 0 && q.MaxResults < limit {
		limit = q.MaxResults
	}
	return limit
}

func (q Query) validate() error {
	if q.Limit < 0 {
		return domain.Errorf(domain.KindInvalidInput, "limit must be >= 0, got %d", q.Limit)
	}
	if q.Threshold < 0 || q.Threshold > 1 {
		return domain.Errorf(domain.KindInvalidInput, "threshold must be in [0,1], got %v", q.Threshold)
	}
	return nil
}

// Strategy is a backend-appropriate similarity algorithm. Search returns
// matches ordered by descending score.
type Strategy interface {
	Name() string
	SupportsVectorSearch() bool
	Initialize(ctx context.Context, p Prober) error
	ValidateSchema(ctx context.Context, p Prober) error
	Search(ctx context.Context, q Query) ([]domain.MemoryMatch, error)
}

// Prober reports what the backend can do.
type Prober interface {
	Capabilities(ctx context.Context) (domain.Capabilities, error)
}

// VectorSource is the native k-NN hook of a backend.
type VectorSource interface {
	SearchByVector(ctx context.Context, q domain.VectorQuery) ([]domain.MemoryMatch, error)
}

// KeywordSource prefilters records matching any keyword.
type KeywordSource interface {
	KeywordCandidates(ctx context.Context, agentID string, keywords []string, limit int) ([]domain.MemoryRecord, error)
}

// CandidateSource returns recent records for in-process scoring.
type CandidateSource interface {
	Candidates(ctx context.Context, agentID string, limit int) ([]domain.MemoryRecord, error)
}

// BackendSource is everything a selector needs from a memory store.
type BackendSource interface {
	VectorSource
	KeywordSource
	CandidateSource
}
