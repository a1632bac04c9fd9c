package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/embedding"
	"github.com/doxa-ai/doxa/internal/extract"
	"github.com/doxa-ai/doxa/internal/search"
	"github.com/doxa-ai/doxa/internal/store/inmem"
)

// fakeClock is a settable clock so tests control every timestamp.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// seqIDs mints readable sequential ids.
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%03d", s.n)
}

const testDimension = 8

type testEnv struct {
	provider  *inmem.Provider
	embedder  *embedding.MockProvider
	extractor *extract.MockProvider
	clock     *fakeClock
	ids       *seqIDs

	memories *MemoryService
	analyzer *BeliefAnalyzer
	graph    *GraphService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	provider := inmem.NewProvider()
	clock := newFakeClock()
	ids := &seqIDs{}
	embedder := embedding.NewMockProvider(testDimension)
	extractor := extract.NewMockProvider()

	selector, err := search.NewSelector(context.Background(), provider.Stores().Memories, provider, search.StrategyAuto, logger)
	require.NoError(t, err)

	memories := NewMemoryService(provider, embedder, selector, clock, ids, MemoryConfig{
		BatchSize:            10,
		MaxSimilarityResults: 50,
		SimilarityThreshold:  0.25,
		EmbeddingDimension:   testDimension,
	}, logger)
	graph := NewGraphService(provider, clock, ids, logger)
	analyzer := NewBeliefAnalyzer(provider, extractor, graph, clock, ids, AnalyzerConfig{}, logger)

	return &testEnv{
		provider:  provider,
		embedder:  embedder,
		extractor: extractor,
		clock:     clock,
		ids:       ids,
		memories:  memories,
		analyzer:  analyzer,
		graph:     graph,
	}
}

func (e *testEnv) storeMemory(t *testing.T, agentID, content string) *domain.MemoryRecord {
	t.Helper()
	rec, err := e.memories.EncodeAndStore(context.Background(), EncodeInput{
		AgentID: agentID,
		Content: content,
	})
	require.NoError(t, err)
	return rec
}

func (e *testEnv) storeBelief(t *testing.T, agentID, statement string, confidence float64) *domain.Belief {
	t.Helper()
	now := e.clock.Now()
	b := &domain.Belief{
		ID:                 e.ids.NewID(),
		AgentID:            agentID,
		Statement:          statement,
		Confidence:         confidence,
		Category:           "preference",
		ReinforcementCount: 1,
		Active:             true,
		CreatedAt:          now,
		LastUpdated:        now,
		Version:            1,
	}
	require.NoError(t, e.provider.Stores().Beliefs.Store(context.Background(), b))
	return b
}

func (e *testEnv) storeEdge(t *testing.T, agentID, src, dst string, rt domain.RelationType, strength float64) *domain.BeliefRelationship {
	t.Helper()
	rel, err := e.graph.Create(context.Background(), CreateEdgeInput{
		AgentID:        agentID,
		SourceBeliefID: src,
		TargetBeliefID: dst,
		Type:           string(rt),
		Strength:       strength,
	})
	require.NoError(t, err)
	return rel
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	got, ok := domain.KindOf(err)
	require.True(t, ok, "error %v carries no kind", err)
	require.Equal(t, kind, got)
}
