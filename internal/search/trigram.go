package search

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/domain"
)

// TrigramStrategy scores by trigram containment over a keyword-prefiltered
// candidate set. It is picked when the backend has a text index but no
// vector index; scoring itself runs in-process so every backend agrees on
// the metric.
type TrigramStrategy struct {
	keywords KeywordSource
	fallback CandidateSource
	logger   *zap.Logger
}

func NewTrigramStrategy(keywords KeywordSource, fallback CandidateSource, logger *zap.Logger) *TrigramStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrigramStrategy{keywords: keywords, fallback: fallback, logger: logger}
}

func (s *TrigramStrategy) Name() string               { return "trigram" }
func (s *TrigramStrategy) SupportsVectorSearch() bool { return false }

func (s *TrigramStrategy) Initialize(ctx context.Context, p Prober) error { return nil }

func (s *TrigramStrategy) ValidateSchema(ctx context.Context, p Prober) error {
	if _, err := p.Capabilities(ctx); err != nil {
		return domain.WrapError(domain.KindBackendUnavailable, err, "backend probe failed")
	}
	return nil
}

func (s *TrigramStrategy) Search(ctx context.Context, q Query) ([]domain.MemoryMatch, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	limit := q.EffectiveLimit()
	if limit == 0 {
		return []domain.MemoryMatch{}, nil
	}

	keywords := Keywords(q.Text)
	recs, err := s.candidateSet(ctx, q.AgentID, keywords)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "candidate scan failed")
	}

	queryTrigrams := Trigrams(strings.Join(keywords, " "))
	matches := make([]domain.MemoryMatch, 0, len(recs))
	for _, rec := range recs {
		score := TrigramScore(queryTrigrams, Trigrams(rec.Content))
		if score < q.Threshold {
			continue
		}
		matches = append(matches, domain.MemoryMatch{Memory: rec, Score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].Memory.CreatedAt.Equal(matches[j].Memory.CreatedAt) {
			return matches[i].Memory.CreatedAt.After(matches[j].Memory.CreatedAt)
		}
		return matches[i].Memory.ID < matches[j].Memory.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// candidateSet prefers the backend's text index and degrades to a recency
// scan when the prefilter finds nothing or keywords are all stop words.
func (s *TrigramStrategy) candidateSet(ctx context.Context, agentID string, keywords []string) ([]domain.MemoryRecord, error) {
	if len(keywords) > 0 {
		recs, err := s.keywords.KeywordCandidates(ctx, agentID, keywords, candidateScanLimit)
		if err == nil && len(recs) > 0 {
			return recs, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.logger.Warn("keyword prefilter failed, degrading to recency scan",
				zap.String("agent_id", agentID), zap.Error(err))
		}
	}
	return s.fallback.Candidates(ctx, agentID, candidateScanLimit)
}
