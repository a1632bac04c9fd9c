package search

import (
	"context"
	"sort"
	"strings"

	"github.com/doxa-ai/doxa/internal/domain"
)

// LexicalStrategy is the capability-free fallback: case-insensitive keyword
// containment with a recency tiebreak.
type LexicalStrategy struct {
	candidates CandidateSource
}

func NewLexicalStrategy(candidates CandidateSource) *LexicalStrategy {
	return &LexicalStrategy{candidates: candidates}
}

func (s *LexicalStrategy) Name() string               { return "lexical" }
func (s *LexicalStrategy) SupportsVectorSearch() bool { return false }

func (s *LexicalStrategy) Initialize(ctx context.Context, p Prober) error { return nil }

func (s *LexicalStrategy) ValidateSchema(ctx context.Context, p Prober) error {
	if _, err := p.Capabilities(ctx); err != nil {
		return domain.WrapError(domain.KindBackendUnavailable, err, "backend probe failed")
	}
	return nil
}

func (s *LexicalStrategy) Search(ctx context.Context, q Query) ([]domain.MemoryMatch, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	limit := q.EffectiveLimit()
	if limit == 0 {
		return []domain.MemoryMatch{}, nil
	}
	recs, err := s.candidates.Candidates(ctx, q.AgentID, candidateScanLimit)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "candidate scan failed")
	}
	return lexicalRank(recs, q, limit), nil
}

// lexicalRank scores records by the fraction of query keywords contained in
// the content, drops scores below the threshold, and orders by score then
// recency. Shared with the vector strategy's in-call fallback path.
func lexicalRank(recs []domain.MemoryRecord, q Query, limit int) []domain.MemoryMatch {
	keywords := Keywords(q.Text)
	matches := make([]domain.MemoryMatch, 0, len(recs))
	for _, rec := range recs {
		score := lexicalScore(keywords, q.Text, rec.Content)
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
	return matches
}

func lexicalScore(keywords []string, rawQuery, content string) float64 {
	lower := strings.ToLower(content)
	if len(keywords) == 0 {
		// Stop-word-only queries degrade to whole-phrase containment.
		if q := strings.ToLower(strings.TrimSpace(rawQuery)); q != "" && strings.Contains(lower, q) {
			return 1
		}
		return 0
	}
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}
