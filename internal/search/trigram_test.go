package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/doxa-ai/doxa/internal/domain"
)

type failingKeywordSource struct {
	err error
}

func (f *failingKeywordSource) KeywordCandidates(ctx context.Context, agentID string, keywords []string, limit int) ([]domain.MemoryRecord, error) {
	return nil, f.err
}

type staticCandidateSource struct {
	recs  []domain.MemoryRecord
	calls int
}

func (s *staticCandidateSource) Candidates(ctx context.Context, agentID string, limit int) ([]domain.MemoryRecord, error) {
	s.calls++
	return s.recs, nil
}

func TestTrigramDegradesWhenKeywordIndexFails(t *testing.T) {
	fallback := &staticCandidateSource{recs: []domain.MemoryRecord{
		{ID: "mem-1", AgentID: "agent-1", Content: "user prefers dark mode", CreatedAt: time.Now()},
		{ID: "mem-2", AgentID: "agent-1", Content: "deploy window is friday", CreatedAt: time.Now()},
	}}
	strategy := NewTrigramStrategy(&failingKeywordSource{err: errors.New("text index corrupt")}, fallback, nil)

	matches, err := strategy.Search(context.Background(), Query{
		Text:    "dark mode preference",
		AgentID: "agent-1",
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("Search = %v, want degraded success", err)
	}
	if fallback.calls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fallback.calls)
	}
	if len(matches) == 0 {
		t.Fatal("no matches from recency scan")
	}
	if matches[0].Memory.ID != "mem-1" {
		t.Errorf("top match = %s, want mem-1", matches[0].Memory.ID)
	}
}

func TestTrigramHonorsCancellationOverFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fallback := &staticCandidateSource{}
	strategy := NewTrigramStrategy(&failingKeywordSource{err: ctx.Err()}, fallback, nil)

	_, err := strategy.Search(ctx, Query{Text: "dark mode", AgentID: "agent-1", Limit: 10})
	if err == nil {
		t.Fatal("Search on canceled context succeeded, want error")
	}
	if fallback.calls != 0 {
		t.Errorf("fallback calls = %d, want 0 after cancellation", fallback.calls)
	}
}
