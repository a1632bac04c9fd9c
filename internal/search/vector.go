package search

import (
	"context"
	"errors"

	"github.com/doxa-ai/doxa/internal/domain"
)

// VectorStrategy delegates k-NN to the backend's native vector index. When a
// query arrives without a vector it falls back to the lexical path within the
// same call, never to another strategy.
type VectorStrategy struct {
	vectors  VectorSource
	fallback CandidateSource
}

func NewVectorStrategy(vectors VectorSource, fallback CandidateSource) *VectorStrategy {
	return &VectorStrategy{vectors: vectors, fallback: fallback}
}

func (s *VectorStrategy) Name() string               { return "vector" }
func (s *VectorStrategy) SupportsVectorSearch() bool { return true }

func (s *VectorStrategy) Initialize(ctx context.Context, p Prober) error {
	caps, err := p.Capabilities(ctx)
	if err != nil {
		return domain.WrapError(domain.KindBackendUnavailable, err, "capability probe failed")
	}
	if !caps.Vector {
		return domain.Errorf(domain.KindBackendUnavailable, "backend has no vector index")
	}
	return nil
}

func (s *VectorStrategy) ValidateSchema(ctx context.Context, p Prober) error {
	return s.Initialize(ctx, p)
}

func (s *VectorStrategy) Search(ctx context.Context, q Query) ([]domain.MemoryMatch, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	limit := q.EffectiveLimit()
	if limit == 0 {
		return []domain.MemoryMatch{}, nil
	}

	if len(q.Vector) == 0 {
		return s.lexicalPath(ctx, q, limit)
	}

	matches, err := s.vectors.SearchByVector(ctx, domain.VectorQuery{
		AgentID:   q.AgentID,
		Vector:    q.Vector,
		Threshold: q.Threshold,
		Limit:     limit,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnsupported) {
			return s.lexicalPath(ctx, q, limit)
		}
		return nil, domain.WrapError(domain.KindStorageFailure, err, "vector search failed")
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *VectorStrategy) lexicalPath(ctx context.Context, q Query, limit int) ([]domain.MemoryMatch, error) {
	recs, err := s.fallback.Candidates(ctx, q.AgentID, candidateScanLimit)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "candidate scan failed")
	}
	return lexicalRank(recs, q, limit), nil
}
