package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doxa-ai/doxa/internal/domain"
)

func TestCreateEdgeValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.storeBelief(t, "agent-1", "belief a", 0.5)
	b := env.storeBelief(t, "agent-1", "belief b", 0.5)

	_, err := env.graph.Create(ctx, CreateEdgeInput{
		AgentID: "agent-1", SourceBeliefID: a.ID, TargetBeliefID: a.ID,
		Type: "SUPPORTS", Strength: 0.5,
	})
	requireKind(t, err, domain.KindInvalidEdge)

	_, err = env.graph.Create(ctx, CreateEdgeInput{
		AgentID: "agent-1", SourceBeliefID: a.ID, TargetBeliefID: b.ID,
		Type: "NOT_A_TYPE", Strength: 0.5,
	})
	requireKind(t, err, domain.KindInvalidEdge)

	_, err = env.graph.Create(ctx, CreateEdgeInput{
		AgentID: "agent-1", SourceBeliefID: a.ID, TargetBeliefID: "missing",
		Type: "SUPPORTS", Strength: 0.5,
	})
	requireKind(t, err, domain.KindInvalidEdge)

	_, err = env.graph.Create(ctx, CreateEdgeInput{
		AgentID: "agent-1", SourceBeliefID: a.ID, TargetBeliefID: b.ID,
		Type: "SUPPORTS", Strength: 1.5,
	})
	requireKind(t, err, domain.KindInvalidEdge)
}

func TestCreateEdgeRejectsCrossAgentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	a := env.storeBelief(t, "agent-1", "belief a", 0.5)
	b := env.storeBelief(t, "agent-2", "belief b", 0.5)

	_, err := env.graph.Create(context.Background(), CreateEdgeInput{
		AgentID: "agent-1", SourceBeliefID: a.ID, TargetBeliefID: b.ID,
		Type: "SUPPORTS", Strength: 0.5,
	})
	requireKind(t, err, domain.KindInvalidEdge)
}

func TestCreateEdgeReplacesActiveDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.storeBelief(t, "agent-1", "belief a", 0.5)
	b := env.storeBelief(t, "agent-1", "belief b", 0.5)

	first := env.storeEdge(t, "agent-1", a.ID, b.ID, domain.RelationSupports, 0.4)
	second := env.storeEdge(t, "agent-1", a.ID, b.ID, domain.RelationSupports, 0.9)

	old, err := env.graph.Edge(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)
	fresh, err := env.graph.Edge(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Active)

	// Reverse direction and other types are unaffected.
	env.storeEdge(t, "agent-1", b.ID, a.ID, domain.RelationSupports, 0.5)
	env.storeEdge(t, "agent-1", a.ID, b.ID, domain.RelationImplies, 0.5)
	edges, err := env.graph.Between(ctx, "agent-1", a.ID, b.ID)
	require.NoError(t, err)
	active := 0
	for _, e := range edges {
		if e.Active {
			active++
		}
	}
	assert.Equal(t, 3, active)
}

func TestUpdateEdge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.storeBelief(t, "agent-1", "belief a", 0.5)
	b := env.storeBelief(t, "agent-1", "belief b", 0.5)
	edge := env.storeEdge(t, "agent-1", a.ID, b.ID, domain.RelationSupports, 0.4)

	strength := 0.8
	updated, err := env.graph.Update(ctx, edge.ID, UpdateEdgeInput{
		Strength: &strength,
		Metadata: map[string]string{"note": "stronger now"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.8, updated.Strength)
	assert.Equal(t, "stronger now", updated.Metadata["note"])

	bad := 1.5
	_, err = env.graph.Update(ctx, edge.ID, UpdateEdgeInput{Strength: &bad})
	requireKind(t, err, domain.KindInvalidEdge)

	_, err = env.graph.Update(ctx, "missing", UpdateEdgeInput{})
	requireKind(t, err, domain.KindNotFound)
}

func TestDeactivateReactivateEdge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.storeBelief(t, "agent-1", "belief a", 0.5)
	b := env.storeBelief(t, "agent-1", "belief b", 0.5)
	edge := env.storeEdge(t, "agent-1", a.ID, b.ID, domain.RelationSupports, 0.4)

	ok, err := env.graph.Deactivate(ctx, edge.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.graph.Deactivate(ctx, edge.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.graph.Reactivate(ctx, edge.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Reactivation refuses when an equivalent active edge appeared meanwhile.
	_, err = env.graph.Deactivate(ctx, edge.ID)
	require.NoError(t, err)
	env.storeEdge(t, "agent-1", a.ID, b.ID, domain.RelationSupports, 0.6)
	_, err = env.graph.Reactivate(ctx, edge.ID)
	requireKind(t, err, domain.KindInvalidEdge)
}

func TestEdgeStateMachine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.storeBelief(t, "agent-1", "belief a", 0.5)
	b := env.storeBelief(t, "agent-1", "belief b", 0.5)

	from := env.clock.Now().Add(time.Hour)
	until := env.clock.Now().Add(2 * time.Hour)
	edge, err := env.graph.Create(ctx, CreateEdgeInput{
		AgentID: "agent-1", SourceBeliefID: a.ID, TargetBeliefID: b.ID,
		Type: "PRECEDES", Strength: 0.5,
		EffectiveFrom: &from, EffectiveUntil: &until,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.EdgePending, edge.StateAt(env.clock.Now()))
	assert.Equal(t, domain.EdgeEffective, edge.StateAt(from.Add(time.Minute)))
	assert.Equal(t, domain.EdgeExpired, edge.StateAt(until))
	edge.Active = false
	assert.Equal(t, domain.EdgeInactive, edge.StateAt(from.Add(time.Minute)))
}

func buildDiamond(t *testing.T, env *testEnv) (a, b, c, d *domain.Belief) {
	a = env.storeBelief(t, "agent-1", "belief a", 0.5)
	b = env.storeBelief(t, "agent-1", "belief b", 0.5)
	c = env.storeBelief(t, "agent-1", "belief c", 0.5)
	d = env.storeBelief(t, "agent-1", "belief d", 0.5)
	env.storeEdge(t, "agent-1", a.ID, b.ID, domain.RelationSupports, 0.9)
	env.storeEdge(t, "agent-1", a.ID, c.ID, domain.RelationSupports, 0.2)
	env.storeEdge(t, "agent-1", b.ID, d.ID, domain.RelationSupports, 0.9)
	env.storeEdge(t, "agent-1", c.ID, d.ID, domain.RelationSupports, 0.2)
	return a, b, c, d
}

func TestShortestPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b, _, d := buildDiamond(t, env)

	path, err := env.graph.ShortestPath(ctx, "agent-1", a.ID, d.ID)
	require.NoError(t, err)
	require.Equal(t, 2, path.Hops())
	// Both routes are two hops; the stronger one wins the tie.
	assert.Equal(t, b.ID, path.Edges[0].TargetBeliefID)
	assert.InDelta(t, 1.8, path.Strength, 1e-9)

	// Same source and target is an empty path.
	path, err = env.graph.ShortestPath(ctx, "agent-1", a.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, path.Hops())

	// Direction matters: no route back from d to a.
	path, err = env.graph.ShortestPath(ctx, "agent-1", d.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, path.Hops())

	_, err = env.graph.ShortestPath(ctx, "agent-1", a.ID, "missing")
	requireKind(t, err, domain.KindNotFound)
}

func TestShortestPathIgnoresIneffectiveEdges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.storeBelief(t, "agent-1", "belief a", 0.5)
	b := env.storeBelief(t, "agent-1", "belief b", 0.5)
	edge := env.storeEdge(t, "agent-1", a.ID, b.ID, domain.RelationSupports, 0.9)
	_, err := env.graph.Deactivate(ctx, edge.ID)
	require.NoError(t, err)

	path, err := env.graph.ShortestPath(ctx, "agent-1", a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, path.Hops())
}

func TestRelatedWithinDepth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b, c, d := buildDiamond(t, env)

	related, err := env.graph.RelatedWithinDepth(ctx, "agent-1", a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.RelatedBelief{
		{BeliefID: b.ID, Depth: 1},
		{BeliefID: c.ID, Depth: 1},
	}, related)

	related, err = env.graph.RelatedWithinDepth(ctx, "agent-1", a.ID, 2)
	require.NoError(t, err)
	require.Len(t, related, 3)
	assert.Equal(t, d.ID, related[2].BeliefID)
	assert.Equal(t, 2, related[2].Depth)

	// Traversal is direction-agnostic.
	related, err = env.graph.RelatedWithinDepth(ctx, "agent-1", d.ID, 1)
	require.NoError(t, err)
	assert.Len(t, related, 2)

	related, err = env.graph.RelatedWithinDepth(ctx, "agent-1", a.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, related)

	_, err = env.graph.RelatedWithinDepth(ctx, "agent-1", a.ID, -1)
	requireKind(t, err, domain.KindInvalidInput)
}

func TestClustersByStrength(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b, c, d := buildDiamond(t, env)
	lone := env.storeBelief(t, "agent-1", "isolated belief", 0.5)

	// At 0.5 only the strong edges a-b and b-d survive.
	clusters, err := env.graph.ClustersByStrength(ctx, "agent-1", 0.5)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, []string{a.ID, b.ID, d.ID}, clusters[0].BeliefIDs)

	// At 0 every edge counts and the diamond is one component; the isolated
	// belief never appears.
	clusters, err = env.graph.ClustersByStrength(ctx, "agent-1", 0)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, []string{a.ID, b.ID, c.ID, d.ID}, clusters[0].BeliefIDs)
	assert.NotContains(t, clusters[0].BeliefIDs, lone.ID)

	_, err = env.graph.ClustersByStrength(ctx, "agent-1", 1.5)
	requireKind(t, err, domain.KindInvalidInput)
}

func TestDeprecationChainAndDeprecatedBeliefs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v3 := env.storeBelief(t, "agent-1", "office is in Porto", 0.9)
	v2 := env.storeBelief(t, "agent-1", "office is in Lisbon", 0.7)
	v1 := env.storeBelief(t, "agent-1", "office is in Berlin", 0.5)
	env.storeEdge(t, "agent-1", v3.ID, v2.ID, domain.RelationSupersedes, 1)
	env.storeEdge(t, "agent-1", v2.ID, v1.ID, domain.RelationSupersedes, 1)

	chain, err := env.graph.DeprecationChain(ctx, "agent-1", v3.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{v3.ID, v2.ID, v1.ID}, chain)

	deprecated, err := env.graph.DeprecatedBeliefs(ctx, "agent-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{v1.ID, v2.ID}, deprecated)

	isDep, err := env.graph.IsDeprecated(ctx, v3.ID)
	require.NoError(t, err)
	assert.False(t, isDep)
	isDep, err = env.graph.IsDeprecated(ctx, v2.ID)
	require.NoError(t, err)
	assert.True(t, isDep)
}

func TestSnapshotAndFilteredSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b, _, _ := buildDiamond(t, env)

	snap, err := env.graph.Snapshot(ctx, "agent-1", false)
	require.NoError(t, err)
	assert.Len(t, snap.Beliefs, 4)
	assert.Len(t, snap.Relationships, 4)
	assert.Equal(t, env.clock.Now(), snap.GeneratedAt)

	filtered, err := env.graph.FilteredSnapshot(ctx, "agent-1", domain.SnapshotFilter{
		BeliefIDs: []string{a.ID, b.ID},
	})
	require.NoError(t, err)
	assert.Len(t, filtered.Beliefs, 2)
	require.Len(t, filtered.Relationships, 1)
	for _, r := range filtered.Relationships {
		assert.Equal(t, a.ID, r.SourceBeliefID)
		assert.Equal(t, b.ID, r.TargetBeliefID)
	}

	filtered, err = env.graph.FilteredSnapshot(ctx, "agent-1", domain.SnapshotFilter{
		Types: []domain.RelationType{domain.RelationContradicts},
	})
	require.NoError(t, err)
	assert.Empty(t, filtered.Relationships)
}

func TestExportFormats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b, _, _ := buildDiamond(t, env)

	raw, err := env.graph.Export(ctx, "agent-1", "json")
	require.NoError(t, err)
	var decoded domain.BeliefKnowledgeGraph
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded.Beliefs, 4)

	dot, err := env.graph.Export(ctx, "agent-1", "dot")
	require.NoError(t, err)
	text := string(dot)
	assert.True(t, strings.HasPrefix(text, "digraph beliefs {"))
	assert.Contains(t, text, a.ID)
	assert.Contains(t, text, b.ID)
	assert.Contains(t, text, "SUPPORTS")

	_, err = env.graph.Export(ctx, "agent-1", "graphml")
	requireKind(t, err, domain.KindUnsupportedFormat)
}

func TestImportRegeneratesIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buildDiamond(t, env)
	raw, err := env.graph.Export(ctx, "agent-1", "json")
	require.NoError(t, err)

	imported, err := env.graph.Import(ctx, "agent-2", raw)
	require.NoError(t, err)
	assert.Len(t, imported.Beliefs, 4)
	assert.Len(t, imported.Relationships, 4)

	var original domain.BeliefKnowledgeGraph
	require.NoError(t, json.Unmarshal(raw, &original))
	for id := range imported.Beliefs {
		_, clash := original.Beliefs[id]
		assert.False(t, clash, "imported belief kept its original id")
	}

	snap, err := env.graph.Snapshot(ctx, "agent-2", false)
	require.NoError(t, err)
	assert.Len(t, snap.Beliefs, 4)
}

func TestImportRejectsDanglingEdges(t *testing.T) {
	env := newTestEnv(t)
	doc := `{
		"agent_id": "x",
		"beliefs": {
			"b1": {"id": "b1", "agent_id": "x", "statement": "s", "confidence": 0.5, "active": true, "version": 1}
		},
		"relationships": {
			"r1": {"id": "r1", "agent_id": "x", "source_belief_id": "b1", "target_belief_id": "ghost", "type": "SUPPORTS", "strength": 0.5, "active": true}
		}
	}`

	_, err := env.graph.Import(context.Background(), "agent-1", []byte(doc))
	requireKind(t, err, domain.KindInvalidEdge)

	// The transaction rolled back: nothing landed.
	snap, snapErr := env.graph.Snapshot(context.Background(), "agent-1", true)
	require.NoError(t, snapErr)
	assert.Empty(t, snap.Beliefs)
}

func TestImportRejectsMalformedDocument(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.graph.Import(context.Background(), "agent-1", []byte("{not json"))
	requireKind(t, err, domain.KindInvalidInput)
}

func TestValidateFindsInconsistencies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.storeBelief(t, "agent-1", "belief a", 0.5)
	b := env.storeBelief(t, "agent-1", "belief b", 0.5)
	env.storeEdge(t, "agent-1", a.ID, b.ID, domain.RelationSupports, 0.5)

	issues, err := env.graph.Validate(ctx, "agent-1")
	require.NoError(t, err)
	assert.Empty(t, issues)

	// Write a rotten edge directly, bypassing the service.
	now := env.clock.Now()
	rotten := &domain.BeliefRelationship{
		ID: "rotten", AgentID: "agent-1",
		SourceBeliefID: a.ID, TargetBeliefID: "ghost",
		Type: domain.RelationSupports, Strength: 0.5,
		Active: true, CreatedAt: now, LastUpdated: now,
	}
	require.NoError(t, env.provider.Stores().Relationships.Store(ctx, rotten))

	issues, err = env.graph.Validate(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "rotten", issues[0].EdgeID)
	assert.Contains(t, issues[0].Problem, "ghost")
}

func TestByTypeRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.graph.ByType(context.Background(), "agent-1", "FRIENDS_WITH")
	requireKind(t, err, domain.KindInvalidInput)
}
