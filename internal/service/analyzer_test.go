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

func candidate(statement string, confidence float64) domain.BeliefCandidate {
	return domain.BeliefCandidate{
		Statement:  statement,
		Category:   "preference",
		Confidence: confidence,
	}
}

func TestAnalyzeCreatesNewBelief(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mem := env.storeMemory(t, "agent-1", "I really like dark roast coffee")
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes dark roast coffee", 0.8),
	}

	result, err := env.analyzer.Analyze(ctx, mem)
	require.NoError(t, err)
	require.Len(t, result.NewBeliefIDs, 1)
	assert.Empty(t, result.Errors)

	belief, err := env.analyzer.Belief(ctx, result.NewBeliefIDs[0])
	require.NoError(t, err)
	assert.True(t, belief.Active)
	assert.Equal(t, []string{mem.ID}, belief.EvidenceMemoryIDs)
	assert.Equal(t, 1, belief.ReinforcementCount)
	assert.Equal(t, 0.8, belief.Confidence)
	assert.Equal(t, "preference", belief.Category)
}

func TestAnalyzeFiltersCandidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mem := env.storeMemory(t, "agent-1", "mixed quality observations")
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes tea", 0.8),
		candidate("low confidence guess", 0.1),       // below the floor
		candidate("   ", 0.9),                        // empty after normalization
		candidate("The user likes tea.", 0.9),        // duplicate normalized form
	}

	result, err := env.analyzer.Analyze(ctx, mem)
	require.NoError(t, err)
	assert.Len(t, result.NewBeliefIDs, 1)
}

func TestAnalyzeReinforcesExistingBelief(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	belief := env.storeBelief(t, "agent-1", "the user likes coffee", 0.5)
	mem := env.storeMemory(t, "agent-1", "another coffee order this morning")
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes coffee", 0.9),
	}

	result, err := env.analyzer.Analyze(ctx, mem)
	require.NoError(t, err)
	assert.Empty(t, result.NewBeliefIDs)
	require.Equal(t, []string{belief.ID}, result.ReinforcedBeliefIDs)

	updated, err := env.analyzer.Belief(ctx, belief.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.ReinforcementCount)
	assert.InDelta(t, 0.7, updated.Confidence, 1e-9) // running average of 0.5 and 0.9
	assert.Equal(t, []string{mem.ID}, updated.EvidenceMemoryIDs)
	assert.GreaterOrEqual(t, updated.ReinforcementCount, len(updated.EvidenceMemoryIDs))
}

func TestAnalyzeCountsFoundingObservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes coffee", 0.8),
	}

	first := env.storeMemory(t, "agent-1", "ordered a coffee")
	created, err := env.analyzer.Analyze(ctx, first)
	require.NoError(t, err)
	require.Len(t, created.NewBeliefIDs, 1)

	belief, err := env.analyzer.Belief(ctx, created.NewBeliefIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, belief.ReinforcementCount)
	assert.Len(t, belief.EvidenceMemoryIDs, 1)

	second := env.storeMemory(t, "agent-1", "ordered coffee again")
	reinforced, err := env.analyzer.Analyze(ctx, second)
	require.NoError(t, err)
	require.Equal(t, created.NewBeliefIDs, reinforced.ReinforcedBeliefIDs)

	belief, err = env.analyzer.Belief(ctx, belief.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, belief.ReinforcementCount)
	assert.Len(t, belief.EvidenceMemoryIDs, 2)
	assert.GreaterOrEqual(t, belief.ReinforcementCount, len(belief.EvidenceMemoryIDs))
}

func TestAnalyzeReinforcementIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.storeBelief(t, "agent-1", "the user likes coffee", 0.5)
	mem := env.storeMemory(t, "agent-1", "coffee again")
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes coffee", 0.9),
	}

	first, err := env.analyzer.Analyze(ctx, mem)
	require.NoError(t, err)
	second, err := env.analyzer.Analyze(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, first.ReinforcedBeliefIDs, second.ReinforcedBeliefIDs)

	updated, err := env.analyzer.Belief(ctx, first.ReinforcedBeliefIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, updated.ReinforcementCount)
	assert.Len(t, updated.EvidenceMemoryIDs, 1)
}

func TestAnalyzeConfidenceNeverExceedsCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	belief := env.storeBelief(t, "agent-1", "the user likes coffee", 0.98)
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes coffee", 0.99),
	}

	for i := 0; i < 5; i++ {
		mem := env.storeMemory(t, "agent-1", "yet more coffee")
		_, err := env.analyzer.Analyze(ctx, mem)
		require.NoError(t, err)
	}
	updated, err := env.analyzer.Belief(ctx, belief.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, updated.Confidence, domain.MaxBeliefConfidence)
}

func TestAnalyzeNewerWinsResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	old := env.storeBelief(t, "agent-1", "the user likes coffee", 0.8)
	mem := env.storeMemory(t, "agent-1", "I can't stand coffee anymore")
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user hates coffee", 0.7),
	}
	env.extractor.ContradictsFn = func(a, b string) bool { return true }

	result, err := env.analyzer.Analyze(ctx, mem)
	require.NoError(t, err)
	require.Len(t, result.NewBeliefIDs, 1)
	assert.Equal(t, []string{old.ID}, result.DeprecatedBeliefIDs)
	require.Len(t, result.ConflictIDs, 1)

	deprecated, err := env.analyzer.Belief(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, deprecated.Active)

	conflicts, err := env.analyzer.Conflicts(ctx, "agent-1", false)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.True(t, conflicts[0].Resolved)
	assert.Equal(t, domain.ResolutionNewerWins, conflicts[0].ResolutionStrategy)
	assert.True(t, conflicts[0].AutoResolvable)
	assert.Equal(t, mem.ID, conflicts[0].NewEvidenceMemoryID)

	edges, err := env.graph.Outgoing(ctx, result.NewBeliefIDs[0])
	require.NoError(t, err)
	types := make(map[domain.RelationType]domain.BeliefRelationship)
	for _, e := range edges {
		types[e.Type] = e
	}
	require.Contains(t, types, domain.RelationContradicts)
	require.Contains(t, types, domain.RelationSupersedes)
	sup := types[domain.RelationSupersedes]
	assert.Equal(t, old.ID, sup.TargetBeliefID)
	require.NotNil(t, sup.EffectiveFrom)
	assert.NotEmpty(t, sup.DeprecationReason)

	isDep, err := env.graph.IsDeprecated(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, isDep)
}

func TestAnalyzeHigherConfidenceResolution(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.cfg.ResolutionByCategory = map[string]domain.ResolutionStrategy{
		"preference": domain.ResolutionHigherConfidence,
	}
	ctx := context.Background()
	env.extractor.ContradictsFn = func(a, b string) bool { return true }

	t.Run("new evidence wins", func(t *testing.T) {
		old := env.storeBelief(t, "agent-1", "the user likes winter", 0.4)
		mem := env.storeMemory(t, "agent-1", "winters are miserable here")
		env.extractor.ExtractResponse = []domain.BeliefCandidate{
			candidate("the user hates winter", 0.9),
		}

		result, err := env.analyzer.Analyze(ctx, mem)
		require.NoError(t, err)
		require.Len(t, result.NewBeliefIDs, 1)
		assert.Equal(t, []string{old.ID}, result.DeprecatedBeliefIDs)

		loser, err := env.analyzer.Belief(ctx, old.ID)
		require.NoError(t, err)
		assert.False(t, loser.Active)
		winner, err := env.analyzer.Belief(ctx, result.NewBeliefIDs[0])
		require.NoError(t, err)
		assert.True(t, winner.Active)
	})

	t.Run("existing belief wins", func(t *testing.T) {
		old := env.storeBelief(t, "agent-2", "the user likes summer", 0.95)
		mem := env.storeMemory(t, "agent-2", "summer is too hot, apparently")
		env.extractor.ExtractResponse = []domain.BeliefCandidate{
			candidate("the user hates summer", 0.5),
		}

		result, err := env.analyzer.Analyze(ctx, mem)
		require.NoError(t, err)
		require.Len(t, result.NewBeliefIDs, 1)
		assert.Empty(t, result.DeprecatedBeliefIDs)

		kept, err := env.analyzer.Belief(ctx, old.ID)
		require.NoError(t, err)
		assert.True(t, kept.Active)
		loser, err := env.analyzer.Belief(ctx, result.NewBeliefIDs[0])
		require.NoError(t, err)
		assert.False(t, loser.Active)
	})
}

func TestAnalyzeMergeResolution(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.cfg.ResolutionByCategory = map[string]domain.ResolutionStrategy{
		"preference": domain.ResolutionMerge,
	}
	ctx := context.Background()
	old := env.storeBelief(t, "agent-1", "the user likes coffee", 0.6)
	mem := env.storeMemory(t, "agent-1", "only decaf coffee these days")
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes decaf coffee", 0.8),
	}
	env.extractor.ContradictsFn = func(a, b string) bool { return true }
	env.extractor.MergeResponse = "the user likes decaf coffee"

	result, err := env.analyzer.Analyze(ctx, mem)
	require.NoError(t, err)
	assert.Empty(t, result.NewBeliefIDs)
	assert.Equal(t, []string{old.ID}, result.ReinforcedBeliefIDs)

	merged, err := env.analyzer.Belief(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, "the user likes decaf coffee", merged.Statement)
	assert.Equal(t, 0.8, merged.Confidence)
	assert.Contains(t, merged.EvidenceMemoryIDs, mem.ID)

	conflicts, err := env.analyzer.Conflicts(ctx, "agent-1", false)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, domain.ResolutionMerge, conflicts[0].ResolutionStrategy)
}

func TestAnalyzeMergeFailureFallsBackToManualReview(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.cfg.ResolutionByCategory = map[string]domain.ResolutionStrategy{
		"preference": domain.ResolutionMerge,
	}
	ctx := context.Background()
	old := env.storeBelief(t, "agent-1", "the user likes coffee", 0.6)
	mem := env.storeMemory(t, "agent-1", "no more coffee")
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user hates coffee", 0.8),
	}
	env.extractor.ContradictsFn = func(a, b string) bool { return true }
	env.extractor.MergeError = errors.New("cannot merge")

	result, err := env.analyzer.Analyze(ctx, mem)
	require.NoError(t, err)
	require.Len(t, result.NewBeliefIDs, 1)

	// Manual review keeps both sides active and the conflict open.
	kept, err := env.analyzer.Belief(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, kept.Active)
	fresh, err := env.analyzer.Belief(ctx, result.NewBeliefIDs[0])
	require.NoError(t, err)
	assert.True(t, fresh.Active)

	conflicts, err := env.analyzer.Conflicts(ctx, "agent-1", true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.False(t, conflicts[0].Resolved)
	assert.False(t, conflicts[0].AutoResolvable)
}

func TestAnalyzeExtractionFailure(t *testing.T) {
	env := newTestEnv(t)
	mem := env.storeMemory(t, "agent-1", "anything")
	env.extractor.ExtractError = errors.New("model unavailable")

	_, err := env.analyzer.Analyze(context.Background(), mem)
	requireKind(t, err, domain.KindBackendUnavailable)
}

func TestAnalyzeMultipleCandidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mem := env.storeMemory(t, "agent-1", "the user went hiking and slept in a tent")
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes hiking", 0.8),
		candidate("the user owns a tent", 0.8),
	}

	result, err := env.analyzer.Analyze(ctx, mem)
	require.NoError(t, err)
	assert.Len(t, result.NewBeliefIDs, 2)
	assert.Empty(t, result.Errors)
}

func TestAnalyzeContradictionCheckFailureIsReported(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.storeBelief(t, "agent-1", "the user likes coffee", 0.5)
	mem := env.storeMemory(t, "agent-1", "more coffee talk")
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes coffee", 0.9),
	}
	env.extractor.ContradictsError = errors.New("model timeout")

	result, err := env.analyzer.Analyze(ctx, mem)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Errors)
	assert.Empty(t, result.ReinforcedBeliefIDs)
}

func TestPreviewWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	belief := env.storeBelief(t, "agent-1", "the user likes coffee", 0.5)
	mem := &domain.MemoryRecord{AgentID: "agent-1", Content: "coffee again"}
	env.extractor.ExtractResponse = []domain.BeliefCandidate{
		candidate("the user likes coffee", 0.9),
		candidate("the user lives in Lisbon", 0.9),
	}

	result, err := env.analyzer.Preview(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, []string{belief.ID}, result.ReinforcedBeliefIDs)
	assert.Equal(t, []string{"the user lives in lisbon"}, result.NewBeliefIDs)

	unchanged, err := env.analyzer.Belief(ctx, belief.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.ReinforcementCount)
	beliefs, err := env.analyzer.Beliefs(ctx, "agent-1", true)
	require.NoError(t, err)
	assert.Len(t, beliefs, 1)
}

func TestConvergeDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	older := env.storeBelief(t, "agent-1", "The user likes coffee.", 0.5)
	env.clock.Advance(time.Minute)
	newer := env.storeBelief(t, "agent-1", "the user likes coffee", 0.8)
	newer.EvidenceMemoryIDs = []string{"mem-9"}
	require.NoError(t, env.provider.Stores().Beliefs.Update(ctx, newer))

	result := &domain.BeliefUpdateResult{AgentID: "agent-1"}
	require.NoError(t, env.analyzer.ConvergeDuplicates(ctx, "agent-1", result))
	assert.Equal(t, []string{newer.ID}, result.DeprecatedBeliefIDs)

	survivor, err := env.analyzer.Belief(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, survivor.Active)
	assert.Equal(t, 0.8, survivor.Confidence)
	assert.Contains(t, survivor.EvidenceMemoryIDs, "mem-9")
	assert.Equal(t, 2, survivor.ReinforcementCount)
	assert.GreaterOrEqual(t, survivor.ReinforcementCount, len(survivor.EvidenceMemoryIDs))

	dup, err := env.analyzer.Belief(ctx, newer.ID)
	require.NoError(t, err)
	assert.False(t, dup.Active)

	edges, err := env.graph.Outgoing(ctx, older.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, domain.RelationUpdates, edges[0].Type)
	assert.Equal(t, newer.ID, edges[0].TargetBeliefID)
}

func TestResolveConflictManually(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.storeBelief(t, "agent-1", "the office is in Berlin", 0.6)
	b := env.storeBelief(t, "agent-1", "the office is in Munich", 0.6)
	conflict := &domain.BeliefConflict{
		ID:           env.ids.NewID(),
		AgentID:      "agent-1",
		BeliefIDs:    []string{a.ID, b.ID},
		Description:  "office location disputed",
		ConflictType: domain.ConflictDirectContradiction,
		Severity:     domain.SeverityMedium,
		DetectedAt:   env.clock.Now(),
	}
	require.NoError(t, env.provider.Stores().Conflicts.Store(ctx, conflict))

	resolved, err := env.analyzer.ResolveConflict(ctx, conflict.ID, b.ID, domain.ResolutionManualReview)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, domain.ResolutionManualReview, resolved.ResolutionStrategy)

	loser, err := env.analyzer.Belief(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, loser.Active)
	winner, err := env.analyzer.Belief(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, winner.Active)

	// Resolving again is a no-op.
	again, err := env.analyzer.ResolveConflict(ctx, conflict.ID, a.ID, domain.ResolutionManualReview)
	require.NoError(t, err)
	assert.True(t, again.Resolved)
}

func TestResolveConflictValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.analyzer.ResolveConflict(ctx, "whatever", "", "not-a-strategy")
	requireKind(t, err, domain.KindInvalidInput)

	_, err = env.analyzer.ResolveConflict(ctx, "missing", "", domain.ResolutionNewerWins)
	requireKind(t, err, domain.KindNotFound)
}

func TestSearchBeliefs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.storeBelief(t, "agent-1", "the user likes coffee", 0.5)
	env.storeBelief(t, "agent-1", "the user dislikes mornings", 0.5)

	found, err := env.analyzer.SearchBeliefs(ctx, "agent-1", "coffee", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = env.analyzer.SearchBeliefs(ctx, "agent-1", "  ", 10)
	requireKind(t, err, domain.KindInvalidInput)
}
