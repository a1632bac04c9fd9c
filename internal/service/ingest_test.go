package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/domain"
)

type stubCategorizer struct {
	label domain.CategoryLabel
	err   error
	calls int
}

func (s *stubCategorizer) Categorize(ctx context.Context, content string, metadata map[string]string) (domain.CategoryLabel, error) {
	s.calls++
	if s.err != nil {
		return domain.CategoryLabel{}, s.err
	}
	return s.label, nil
}

func newIngestEnv(t *testing.T) (*testEnv, *IngestionService, *stubCategorizer) {
	env := newTestEnv(t)
	cat := &stubCategorizer{label: domain.CategoryLabel{Primary: "preference", Confidence: 0.9}}
	svc := NewIngestionService(env.memories, env.analyzer, cat, env.clock, IngestConfig{MaxContentLength: 100}, zap.NewNop())
	return env, svc, cat
}

func TestIngestFullPipeline(t *testing.T) {
	env, svc, cat := newIngestEnv(t)
	ctx := context.Background()
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes coffee", 0.8),
	}

	result, err := svc.Ingest(ctx, domain.IngestionInput{
		AgentID: "agent-1",
		Content: "I like coffee",
		Source:  "chat",
		Tags:    []string{"beverages"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionSuccess, result.Status)
	assert.True(t, result.EncodedSuccessfully)
	assert.NotEmpty(t, result.MemoryID)
	assert.Equal(t, "preference", result.Category.Primary)
	assert.Equal(t, 1, cat.calls)
	require.NotNil(t, result.BeliefUpdate)
	assert.Len(t, result.BeliefUpdate.NewBeliefIDs, 1)

	rec, err := env.memories.Get(ctx, result.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, "chat", rec.Metadata.Source)
	assert.Equal(t, []string{"beverages"}, rec.Metadata.Tags)
}

func TestIngestValidation(t *testing.T) {
	_, svc, _ := newIngestEnv(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, domain.IngestionInput{AgentID: "", Content: "x"})
	requireKind(t, err, domain.KindInvalidInput)

	_, err = svc.Ingest(ctx, domain.IngestionInput{AgentID: "agent-1", Content: "  "})
	requireKind(t, err, domain.KindInvalidInput)

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}
	result, err := svc.Ingest(ctx, domain.IngestionInput{AgentID: "agent-1", Content: string(long)})
	requireKind(t, err, domain.KindInvalidInput)
	assert.Equal(t, domain.IngestionFailed, result.Status)

	bad := 1.5
	_, err = svc.Ingest(ctx, domain.IngestionInput{AgentID: "agent-1", Content: "x", Importance: &bad})
	requireKind(t, err, domain.KindInvalidInput)
}

func TestIngestContentAtBoundaryLength(t *testing.T) {
	_, svc, _ := newIngestEnv(t)
	exact := make([]byte, 100)
	for i := range exact {
		exact[i] = 'y'
	}
	result, err := svc.Ingest(context.Background(), domain.IngestionInput{
		AgentID: "agent-1",
		Content: string(exact),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionSuccess, result.Status)
}

func TestIngestCategorizerFailureDowngrades(t *testing.T) {
	_, svc, cat := newIngestEnv(t)
	cat.err = errors.New("categorizer offline")

	result, err := svc.Ingest(context.Background(), domain.IngestionInput{
		AgentID: "agent-1",
		Content: "still stored",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionSuccess, result.Status)
	assert.Equal(t, "general", result.Category.Primary)
	assert.Contains(t, result.Metadata, "categorization")
}

func TestIngestEmbeddingFailureDowngrades(t *testing.T) {
	env, svc, _ := newIngestEnv(t)
	env.embedder.FailWith(errors.New("embedding offline"))

	result, err := svc.Ingest(context.Background(), domain.IngestionInput{
		AgentID: "agent-1",
		Content: "stored without a vector",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionSuccess, result.Status)
	assert.Contains(t, result.Metadata, "embedding")
}

func TestIngestAnalyzerFailureIsPartial(t *testing.T) {
	env, svc, _ := newIngestEnv(t)
	env.extractor.ExtractError = errors.New("extraction offline")

	result, err := svc.Ingest(context.Background(), domain.IngestionInput{
		AgentID: "agent-1",
		Content: "the memory still lands",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionPartial, result.Status)
	assert.True(t, result.EncodedSuccessfully)
	assert.NotEmpty(t, result.MemoryID)
	assert.Contains(t, result.Metadata, "analysis")

	// The memory is durable despite the failed analysis.
	_, err = env.memories.Get(context.Background(), result.MemoryID)
	require.NoError(t, err)
}

func TestIngestCancellationAfterStorageSkipsAnalysis(t *testing.T) {
	env, svc, _ := newIngestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel during categorization, before the store; the memory still
	// lands and only the belief pass is skipped.
	svc.categorizer = categorizerFunc(func(c context.Context, content string, md map[string]string) (domain.CategoryLabel, error) {
		cancel()
		return domain.CategoryLabel{Primary: "general"}, nil
	})

	result, err := svc.Ingest(ctx, domain.IngestionInput{AgentID: "agent-1", Content: "race"})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionPartial, result.Status)
	assert.Contains(t, result.Metadata, "analysis")
	assert.NotEmpty(t, result.MemoryID)

	_, err = env.memories.Get(context.Background(), result.MemoryID)
	require.NoError(t, err)
}

type categorizerFunc func(ctx context.Context, content string, metadata map[string]string) (domain.CategoryLabel, error)

func (f categorizerFunc) Categorize(ctx context.Context, content string, metadata map[string]string) (domain.CategoryLabel, error) {
	return f(ctx, content, metadata)
}

func TestDryRunWritesNothing(t *testing.T) {
	env, svc, _ := newIngestEnv(t)
	ctx := context.Background()
	belief := env.storeBelief(t, "agent-1", "the user likes coffee", 0.5)
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes coffee", 0.9),
	}

	result, err := svc.Ingest(ctx, domain.IngestionInput{
		AgentID: "agent-1",
		Content: "coffee again",
		DryRun:  true,
	})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Empty(t, result.MemoryID)
	assert.Equal(t, domain.IngestionSuccess, result.Status)
	require.NotNil(t, result.BeliefUpdate)
	assert.Equal(t, []string{belief.ID}, result.BeliefUpdate.ReinforcedBeliefIDs)

	total, err := env.provider.Stores().Memories.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
	unchanged, err := env.analyzer.Belief(ctx, belief.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.ReinforcementCount)
}

func TestIngestSkipsAnalysisWhenDisabled(t *testing.T) {
	env, svc, _ := newIngestEnv(t)
	svc.cfg.DisableAnalysis = true
	ctx := context.Background()
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes coffee", 0.8),
	}

	result, err := svc.Ingest(ctx, domain.IngestionInput{AgentID: "agent-1", Content: "I like coffee"})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionSuccess, result.Status)
	assert.NotEmpty(t, result.MemoryID)
	assert.Nil(t, result.BeliefUpdate)
	assert.Contains(t, result.Metadata, "analysis")

	// The memory landed but no beliefs were formed.
	_, err = env.memories.Get(ctx, result.MemoryID)
	require.NoError(t, err)
	beliefs, err := env.analyzer.Beliefs(ctx, "agent-1", true)
	require.NoError(t, err)
	assert.Empty(t, beliefs)

	// Dry runs skip the preview for the same reason.
	dry, err := svc.Ingest(ctx, domain.IngestionInput{AgentID: "agent-1", Content: "I like coffee", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionSuccess, dry.Status)
	assert.Nil(t, dry.BeliefUpdate)
}

func TestIngestBatchContinuesPastFailures(t *testing.T) {
	_, svc, _ := newIngestEnv(t)

	results := svc.IngestBatch(context.Background(), []domain.IngestionInput{
		{AgentID: "agent-1", Content: "fine"},
		{AgentID: "", Content: "broken"},
		{AgentID: "agent-1", Content: "also fine"},
	})
	require.Len(t, results, 3)
	assert.Equal(t, domain.IngestionSuccess, results[0].Status)
	assert.Equal(t, domain.IngestionFailed, results[1].Status)
	assert.Contains(t, results[1].Metadata, "error")
	assert.Equal(t, domain.IngestionSuccess, results[2].Status)
}

func TestIngestReportsProcessingTime(t *testing.T) {
	env, svc, _ := newIngestEnv(t)
	advance := categorizerFunc(func(ctx context.Context, content string, md map[string]string) (domain.CategoryLabel, error) {
		env.clock.Advance(25 * time.Millisecond)
		return domain.CategoryLabel{Primary: "general"}, nil
	})
	svc.categorizer = advance

	result, err := svc.Ingest(context.Background(), domain.IngestionInput{
		AgentID: "agent-1",
		Content: "timed",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25), result.ProcessingTimeMs)
}
