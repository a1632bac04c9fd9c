package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doxa-ai/doxa/internal/domain"
)

func TestEncodeAndStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.memories.EncodeAndStore(ctx, EncodeInput{
		AgentID: "agent-1",
		Content: "the user prefers dark roast coffee",
		Metadata: domain.MemoryMetadata{
			Tags: []string{"Coffee", "coffee", " taste "},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, domain.DefaultRelevance, rec.RelevanceScore)
	assert.Len(t, rec.Embedding, testDimension)
	assert.Equal(t, []string{"coffee", "taste"}, rec.Metadata.Tags)
	assert.Equal(t, env.clock.Now(), rec.CreatedAt)

	stored, err := env.provider.Stores().Memories.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Content, stored.Content)
}

func TestEncodeAndStoreValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.memories.EncodeAndStore(ctx, EncodeInput{AgentID: "", Content: "x"})
	requireKind(t, err, domain.KindInvalidInput)

	_, err = env.memories.EncodeAndStore(ctx, EncodeInput{AgentID: "agent-1", Content: ""})
	requireKind(t, err, domain.KindInvalidInput)

	_, err = env.memories.EncodeAndStore(ctx, EncodeInput{
		AgentID:   "agent-1",
		Content:   "x",
		Embedding: make([]float32, testDimension+1),
	})
	requireKind(t, err, domain.KindInvalidInput)
}

func TestEncodeAndStoreEmbeddingFailureDowngrades(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.FailWith(errors.New("upstream down"))

	rec, err := env.memories.EncodeAndStore(context.Background(), EncodeInput{
		AgentID: "agent-1",
		Content: "still worth remembering",
	})
	require.NoError(t, err)
	assert.Nil(t, rec.Embedding)
}

func TestEncodeAndStoreImportanceSeedsRelevance(t *testing.T) {
	env := newTestEnv(t)

	rec, err := env.memories.EncodeAndStore(context.Background(), EncodeInput{
		AgentID:  "agent-1",
		Content:  "critical deployment credentials rotated",
		Metadata: domain.MemoryMetadata{Importance: 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.9, rec.RelevanceScore)
}

func TestEncodeAndStoreBatchChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inputs := make([]EncodeInput, 25)
	for i := range inputs {
		inputs[i] = EncodeInput{AgentID: "agent-1", Content: "observation"}
	}
	stored, err := env.memories.EncodeAndStoreBatch(ctx, inputs)
	require.NoError(t, err)
	assert.Len(t, stored, 25)

	total, err := env.provider.Stores().Memories.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
}

func TestEncodeAndStoreBatchFailureKeepsEarlierChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inputs := make([]EncodeInput, 15)
	for i := range inputs {
		inputs[i] = EncodeInput{AgentID: "agent-1", Content: "observation"}
	}
	inputs[12].Content = "" // invalid, lands in the second chunk

	stored, err := env.memories.EncodeAndStoreBatch(ctx, inputs)
	requireKind(t, err, domain.KindInvalidInput)
	assert.Len(t, stored, 10)

	total, countErr := env.provider.Stores().Memories.Count(ctx)
	require.NoError(t, countErr)
	assert.Equal(t, int64(10), total)
}

func TestGetRecordsAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.storeMemory(t, "agent-1", "the user works from Lisbon")

	env.clock.Advance(time.Hour)
	got, err := env.memories.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now(), got.LastAccessed)
	assert.Equal(t, int64(1), got.Metadata.AccessCount)
	assert.Greater(t, got.RelevanceScore, rec.RelevanceScore)
}

func TestGetNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.memories.Get(context.Background(), "missing")
	requireKind(t, err, domain.KindNotFound)
}

func TestUpdateReembedsOnContentChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.storeMemory(t, "agent-1", "the user drinks tea")
	before := env.embedder.CallCount()

	rec.Content = "the user drinks coffee"
	updated, err := env.memories.Update(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, env.embedder.CallCount(), before+1)
	assert.Equal(t, int64(2), updated.Version)

	stored, err := env.provider.Stores().Memories.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "the user drinks coffee", stored.Content)
}

func TestUpdateUnchangedContentSkipsEmbedding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.storeMemory(t, "agent-1", "the user drinks tea")
	before := env.embedder.CallCount()

	rec.Metadata.Importance = 0.7
	_, err := env.memories.Update(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, before, env.embedder.CallCount())
}

func TestRemoveIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.storeMemory(t, "agent-1", "transient note")

	removed, err := env.memories.Remove(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = env.memories.Remove(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveMany(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.storeMemory(t, "agent-1", "first")
	b := env.storeMemory(t, "agent-1", "second")

	removed, err := env.memories.RemoveMany(ctx, []string{a.ID, "missing", b.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, removed)
}

func TestForAgentNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	old := env.storeMemory(t, "agent-1", "older")
	env.clock.Advance(time.Minute)
	recent := env.storeMemory(t, "agent-1", "newer")
	env.storeMemory(t, "agent-2", "someone else's")

	recs, err := env.memories.ForAgent(ctx, "agent-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, recent.ID, recs[0].ID)
	assert.Equal(t, old.ID, recs[1].ID)

	_, err = env.memories.ForAgent(ctx, "agent-1", -1)
	requireKind(t, err, domain.KindInvalidInput)
}

func TestOlderThan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	old := env.storeMemory(t, "agent-1", "stale")
	env.clock.Advance(2 * time.Hour)
	env.storeMemory(t, "agent-1", "fresh")

	recs, err := env.memories.OlderThan(ctx, 3600, "agent-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, old.ID, recs[0].ID)
}

func TestSearchSimilarLexicalFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.storeMemory(t, "agent-1", "the user prefers dark roast coffee in the morning")
	env.storeMemory(t, "agent-1", "the user adopted a cat named Miso")
	env.storeMemory(t, "agent-2", "coffee is irrelevant, wrong agent")

	assert.Equal(t, "lexical", env.memories.StrategyName())

	matches, err := env.memories.SearchSimilar(ctx, "agent-1", "coffee preference", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Memory.Content, "coffee")
	assert.Equal(t, int64(1), matches[0].Memory.Metadata.AccessCount)

	_, err = env.memories.SearchSimilar(ctx, "agent-1", "coffee", -1)
	requireKind(t, err, domain.KindInvalidInput)
}

func TestSearchSimilarZeroLimit(t *testing.T) {
	env := newTestEnv(t)
	env.storeMemory(t, "agent-1", "anything at all")

	matches, err := env.memories.SearchSimilar(context.Background(), "agent-1", "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.storeMemory(t, "agent-1", "one")
	env.storeMemory(t, "agent-1", "two")
	env.storeMemory(t, "agent-2", "three")
	_, err := env.memories.SearchSimilar(ctx, "agent-1", "one", 5)
	require.NoError(t, err)
	env.clock.Advance(90 * time.Second)

	stats, err := env.memories.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.PerAgent["agent-1"])
	assert.Equal(t, int64(1), stats.PerAgent["agent-2"])
	assert.Equal(t, int64(3), stats.OperationCounts["stores"])
	assert.Equal(t, int64(1), stats.OperationCounts["searches"])
	assert.Equal(t, int64(90), stats.UptimeSeconds)
	assert.Equal(t, "lexical", stats.Strategy)
}

func TestReinitializeKeepsLexicalTier(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.memories.Reinitialize(context.Background()))
	assert.Equal(t, "lexical", env.memories.StrategyName())
}
