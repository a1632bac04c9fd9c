package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/store"
)

// GraphService owns the belief relationship graph: it is the only writer of
// edges, and it serves traversals over point-in-time snapshots so a query
// never sees a half-applied mutation.
type GraphService struct {
	provider domain.StoreProvider
	clock    domain.Clock
	ids      domain.IDGenerator
	logger   *zap.Logger
}

func NewGraphService(provider domain.StoreProvider, clock domain.Clock, ids domain.IDGenerator, logger *zap.Logger) *GraphService {
	return &GraphService{provider: provider, clock: clock, ids: ids, logger: logger}
}

// CreateEdgeInput is the caller-facing shape of a new relationship.
type CreateEdgeInput struct {
	AgentID           string            `json:"agent_id"`
	SourceBeliefID    string            `json:"source_belief_id"`
	TargetBeliefID    string            `json:"target_belief_id"`
	Type              string            `json:"type"`
	Strength          float64           `json:"strength"`
	Priority          int               `json:"priority"`
	EffectiveFrom     *time.Time        `json:"effective_from,omitempty"`
	EffectiveUntil    *time.Time        `json:"effective_until,omitempty"`
	DeprecationReason string            `json:"deprecation_reason,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Create stores a new edge after validating endpoints and active-edge
// uniqueness.
func (g *GraphService) Create(ctx context.Context, in CreateEdgeInput) (*domain.BeliefRelationship, error) {
	now := g.clock.Now()
	rel := &domain.BeliefRelationship{
		ID:                g.ids.NewID(),
		AgentID:           in.AgentID,
		SourceBeliefID:    in.SourceBeliefID,
		TargetBeliefID:    in.TargetBeliefID,
		Type:              domain.RelationType(in.Type),
		Strength:          in.Strength,
		Priority:          in.Priority,
		EffectiveFrom:     in.EffectiveFrom,
		EffectiveUntil:    in.EffectiveUntil,
		DeprecationReason: in.DeprecationReason,
		Metadata:          in.Metadata,
		Active:            true,
		CreatedAt:         now,
		LastUpdated:       now,
	}
	err := g.provider.InTx(ctx, func(st domain.Stores) error {
		return g.createIn(ctx, st, rel)
	})
	if err != nil {
		return nil, err
	}
	g.logger.Debug("edge created",
		zap.String("edge_id", rel.ID),
		zap.String("type", string(rel.Type)),
		zap.String("agent_id", rel.AgentID))
	return rel, nil
}

// createIn is the single write path for edges; the analyzer shares it so
// analysis edges honor the same invariants inside its transactions. A live
// duplicate is replaced last-writer-wins: the existing edge is deactivated
// before the new one lands.
func (g *GraphService) createIn(ctx context.Context, st domain.Stores, rel *domain.BeliefRelationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	if err := g.checkEndpoints(ctx, st, rel.AgentID, rel.SourceBeliefID, rel.TargetBeliefID); err != nil {
		return err
	}
	existing, err := st.Relationships.Between(ctx, rel.AgentID, rel.SourceBeliefID, rel.TargetBeliefID)
	if err != nil {
		return domain.WrapError(domain.KindStorageFailure, err, "edge lookup")
	}
	for _, e := range existing {
		if e.Active && e.Type == rel.Type && e.SourceBeliefID == rel.SourceBeliefID && e.TargetBeliefID == rel.TargetBeliefID {
			if _, err := st.Relationships.Deactivate(ctx, e.ID, g.clock.Now()); err != nil {
				return domain.WrapError(domain.KindStorageFailure, err, "replace edge %s", e.ID)
			}
		}
	}
	if err := st.Relationships.Store(ctx, rel); err != nil {
		return domain.WrapError(domain.KindStorageFailure, err, "store edge")
	}
	return nil
}

func (g *GraphService) checkEndpoints(ctx context.Context, st domain.Stores, agentID string, ids ...string) error {
	for _, id := range ids {
		b, err := st.Beliefs.Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Errorf(domain.KindInvalidEdge, "endpoint belief %s does not exist", id)
			}
			return domain.WrapError(domain.KindStorageFailure, err, "get belief %s", id)
		}
		if b.AgentID != agentID {
			return domain.Errorf(domain.KindInvalidEdge, "endpoint belief %s belongs to another agent", id)
		}
	}
	return nil
}

// UpdateEdgeInput carries the mutable edge fields; nil means "leave as is".
type UpdateEdgeInput struct {
	Strength *float64          `json:"strength,omitempty"`
	Priority *int              `json:"priority,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Update patches an edge's strength, priority, or metadata.
func (g *GraphService) Update(ctx context.Context, id string, in UpdateEdgeInput) (*domain.BeliefRelationship, error) {
	var updated *domain.BeliefRelationship
	err := g.provider.InTx(ctx, func(st domain.Stores) error {
		rel, err := st.Relationships.Get(ctx, id)
		if err != nil {
			return g.mapEdgeErr(err, id)
		}
		if in.Strength != nil {
			rel.Strength = *in.Strength
		}
		if in.Priority != nil {
			rel.Priority = *in.Priority
		}
		if in.Metadata != nil {
			rel.Metadata = in.Metadata
		}
		rel.LastUpdated = g.clock.Now()
		if err := rel.Validate(); err != nil {
			return err
		}
		if err := st.Relationships.Update(ctx, rel); err != nil {
			return g.mapEdgeErr(err, id)
		}
		updated = rel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Deactivate retires an edge; retiring an already-inactive edge is a benign
// false.
func (g *GraphService) Deactivate(ctx context.Context, id string) (bool, error) {
	ok, err := g.provider.Stores().Relationships.Deactivate(ctx, id, g.clock.Now())
	if err != nil {
		return false, g.mapEdgeErr(err, id)
	}
	return ok, nil
}

// Reactivate restores a retired edge, refusing when an equivalent active
// edge appeared in the meantime.
func (g *GraphService) Reactivate(ctx context.Context, id string) (bool, error) {
	ok, err := g.provider.Stores().Relationships.Reactivate(ctx, id, g.clock.Now())
	if err != nil {
		if errors.Is(err, store.ErrDuplicateActiveEdge) {
			return false, domain.WrapError(domain.KindInvalidEdge, err, "an equivalent active edge already exists")
		}
		return false, g.mapEdgeErr(err, id)
	}
	return ok, nil
}

// Delete removes an edge permanently.
func (g *GraphService) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := g.provider.Stores().Relationships.Delete(ctx, id)
	if err != nil {
		return false, g.mapEdgeErr(err, id)
	}
	return ok, nil
}

// Edge returns one relationship by id.
func (g *GraphService) Edge(ctx context.Context, id string) (*domain.BeliefRelationship, error) {
	rel, err := g.provider.Stores().Relationships.Get(ctx, id)
	if err != nil {
		return nil, g.mapEdgeErr(err, id)
	}
	return rel, nil
}

func (g *GraphService) Outgoing(ctx context.Context, beliefID string) ([]domain.BeliefRelationship, error) {
	out, err := g.provider.Stores().Relationships.Outgoing(ctx, beliefID)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "outgoing edges of %s", beliefID)
	}
	return out, nil
}

func (g *GraphService) Incoming(ctx context.Context, beliefID string) ([]domain.BeliefRelationship, error) {
	out, err := g.provider.Stores().Relationships.Incoming(ctx, beliefID)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "incoming edges of %s", beliefID)
	}
	return out, nil
}

func (g *GraphService) ByType(ctx context.Context, agentID, relType string) ([]domain.BeliefRelationship, error) {
	if !domain.ValidRelationType(relType) {
		return nil, domain.Errorf(domain.KindInvalidInput, "unknown relation type %q", relType)
	}
	out, err := g.provider.Stores().Relationships.ByType(ctx, agentID, domain.RelationType(relType))
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "edges of type %s", relType)
	}
	return out, nil
}

func (g *GraphService) Between(ctx context.Context, agentID, beliefA, beliefB string) ([]domain.BeliefRelationship, error) {
	out, err := g.provider.Stores().Relationships.Between(ctx, agentID, beliefA, beliefB)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "edges between %s and %s", beliefA, beliefB)
	}
	return out, nil
}

// Snapshot materializes an agent's full graph at now.
func (g *GraphService) Snapshot(ctx context.Context, agentID string, includeInactive bool) (*domain.BeliefKnowledgeGraph, error) {
	st := g.provider.Stores()
	graph := domain.NewBeliefKnowledgeGraph(agentID, g.clock.Now())

	beliefs, err := st.Beliefs.ForAgent(ctx, agentID, includeInactive)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "snapshot beliefs")
	}
	for _, b := range beliefs {
		graph.Beliefs[b.ID] = b
	}
	rels, err := st.Relationships.ForAgent(ctx, agentID, includeInactive)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "snapshot relationships")
	}
	for _, r := range rels {
		// Edges pointing at beliefs outside the view are kept only for the
		// inactive view; the active view stays closed over its beliefs.
		if _, okS := graph.Beliefs[r.SourceBeliefID]; !okS && !includeInactive {
			continue
		}
		if _, okT := graph.Beliefs[r.TargetBeliefID]; !okT && !includeInactive {
			continue
		}
		graph.Relationships[r.ID] = r
	}
	return graph, nil
}

// FilteredSnapshot narrows a snapshot to selected beliefs and edge types.
func (g *GraphService) FilteredSnapshot(ctx context.Context, agentID string, filter domain.SnapshotFilter) (*domain.BeliefKnowledgeGraph, error) {
	full, err := g.Snapshot(ctx, agentID, false)
	if err != nil {
		return nil, err
	}
	if len(filter.BeliefIDs) > 0 {
		keep := make(map[string]struct{}, len(filter.BeliefIDs))
		for _, id := range filter.BeliefIDs {
			keep[id] = struct{}{}
		}
		for id := range full.Beliefs {
			if _, ok := keep[id]; !ok {
				delete(full.Beliefs, id)
			}
		}
	}
	if filter.MaxBeliefs > 0 && len(full.Beliefs) > filter.MaxBeliefs {
		ids := make([]string, 0, len(full.Beliefs))
		for id := range full.Beliefs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids[filter.MaxBeliefs:] {
			delete(full.Beliefs, id)
		}
	}
	var types map[domain.RelationType]struct{}
	if len(filter.Types) > 0 {
		types = make(map[domain.RelationType]struct{}, len(filter.Types))
		for _, t := range filter.Types {
			types[t] = struct{}{}
		}
	}
	for id, r := range full.Relationships {
		_, okS := full.Beliefs[r.SourceBeliefID]
		_, okT := full.Beliefs[r.TargetBeliefID]
		if !okS || !okT {
			delete(full.Relationships, id)
			continue
		}
		if types != nil {
			if _, ok := types[r.Type]; !ok {
				delete(full.Relationships, id)
			}
		}
	}
	return full, nil
}

// ShortestPath finds the directed path from source to target with the fewest
// hops over currently-effective edges; among equal-length paths the one with
// the greatest cumulative strength wins. An empty path means source equals
// target or no route exists.
func (g *GraphService) ShortestPath(ctx context.Context, agentID, sourceID, targetID string) (*domain.GraphPath, error) {
	if sourceID == targetID {
		return &domain.GraphPath{}, nil
	}
	graph, err := g.Snapshot(ctx, agentID, false)
	if err != nil {
		return nil, err
	}
	if _, ok := graph.Beliefs[sourceID]; !ok {
		return nil, domain.Errorf(domain.KindNotFound, "belief %s: not found", sourceID)
	}
	if _, ok := graph.Beliefs[targetID]; !ok {
		return nil, domain.Errorf(domain.KindNotFound, "belief %s: not found", targetID)
	}

	now := graph.GeneratedAt
	adj := make(map[string][]domain.BeliefRelationship)
	for _, r := range graph.Relationships {
		if r.EffectiveAt(now) {
			adj[r.SourceBeliefID] = append(adj[r.SourceBeliefID], r)
		}
	}
	for _, edges := range adj {
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].Strength != edges[j].Strength {
				return edges[i].Strength > edges[j].Strength
			}
			return edges[i].ID < edges[j].ID
		})
	}

	type node struct {
		id       string
		path     []domain.BeliefRelationship
		strength float64
	}
	best := map[string]node{sourceID: {id: sourceID}}
	frontier := []node{{id: sourceID}}
	for len(frontier) > 0 {
		if _, done := best[targetID]; done && targetID != sourceID {
			break
		}
		level := make(map[string]node)
		for _, cur := range frontier {
			for _, e := range adj[cur.id] {
				if _, settled := best[e.TargetBeliefID]; settled {
					continue
				}
				cand := node{
					id:       e.TargetBeliefID,
					path:     append(append([]domain.BeliefRelationship{}, cur.path...), e),
					strength: cur.strength + e.Strength,
				}
				if prev, seen := level[cand.id]; !seen || cand.strength > prev.strength {
					level[cand.id] = cand
				}
			}
		}
		frontier = frontier[:0]
		levelIDs := make([]string, 0, len(level))
		for id := range level {
			levelIDs = append(levelIDs, id)
		}
		sort.Strings(levelIDs)
		for _, id := range levelIDs {
			best[id] = level[id]
			frontier = append(frontier, level[id])
		}
	}
	found, ok := best[targetID]
	if !ok {
		return &domain.GraphPath{}, nil
	}
	return &domain.GraphPath{Edges: found.path, Strength: found.strength}, nil
}

// RelatedWithinDepth walks out from a belief treating edges as undirected,
// returning every reachable belief with its minimal depth. Depth 0 yields
// nothing; the start belief is never included.
func (g *GraphService) RelatedWithinDepth(ctx context.Context, agentID, beliefID string, depth int) ([]domain.RelatedBelief, error) {
	if depth < 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "depth must be >= 0, got %d", depth)
	}
	graph, err := g.Snapshot(ctx, agentID, false)
	if err != nil {
		return nil, err
	}
	if _, ok := graph.Beliefs[beliefID]; !ok {
		return nil, domain.Errorf(domain.KindNotFound, "belief %s: not found", beliefID)
	}
	if depth == 0 {
		return nil, nil
	}

	now := graph.GeneratedAt
	adj := make(map[string][]string)
	for _, r := range graph.Relationships {
		if !r.EffectiveAt(now) {
			continue
		}
		adj[r.SourceBeliefID] = append(adj[r.SourceBeliefID], r.TargetBeliefID)
		adj[r.TargetBeliefID] = append(adj[r.TargetBeliefID], r.SourceBeliefID)
	}

	visited := map[string]int{beliefID: 0}
	frontier := []string{beliefID}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range adj[id] {
				if _, seen := visited[nb]; seen {
					continue
				}
				visited[nb] = d
				next = append(next, nb)
			}
		}
		frontier = next
	}

	out := make([]domain.RelatedBelief, 0, len(visited)-1)
	for id, d := range visited {
		if id == beliefID {
			continue
		}
		out = append(out, domain.RelatedBelief{BeliefID: id, Depth: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].BeliefID < out[j].BeliefID
	})
	return out, nil
}

// ClustersByStrength partitions the graph into connected components over
// currently-effective edges at or above minStrength. Singleton components
// are dropped; clusters come back largest first.
func (g *GraphService) ClustersByStrength(ctx context.Context, agentID string, minStrength float64) ([]domain.BeliefCluster, error) {
	if minStrength < 0 || minStrength > 1 {
		return nil, domain.Errorf(domain.KindInvalidInput, "min strength must be in [0,1], got %v", minStrength)
	}
	graph, err := g.Snapshot(ctx, agentID, false)
	if err != nil {
		return nil, err
	}

	now := graph.GeneratedAt
	adj := make(map[string][]string)
	for _, r := range graph.Relationships {
		if !r.EffectiveAt(now) || r.Strength < minStrength {
			continue
		}
		adj[r.SourceBeliefID] = append(adj[r.SourceBeliefID], r.TargetBeliefID)
		adj[r.TargetBeliefID] = append(adj[r.TargetBeliefID], r.SourceBeliefID)
	}

	visited := make(map[string]bool)
	var clusters []domain.BeliefCluster
	ids := make([]string, 0, len(graph.Beliefs))
	for id := range graph.Beliefs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, start := range ids {
		if visited[start] || len(adj[start]) == 0 {
			continue
		}
		var members []string
		stack := []string{start}
		visited[start] = true
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			members = append(members, id)
			for _, nb := range adj[id] {
				if !visited[nb] {
					visited[nb] = true
					stack = append(stack, nb)
				}
			}
		}
		if len(members) > 1 {
			sort.Strings(members)
			clusters = append(clusters, domain.BeliefCluster{BeliefIDs: members})
		}
	}
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Size() != clusters[j].Size() {
			return clusters[i].Size() > clusters[j].Size()
		}
		return clusters[i].BeliefIDs[0] < clusters[j].BeliefIDs[0]
	})
	return clusters, nil
}

// DeprecationChain walks the outgoing supersession edges from a belief,
// returning the lineage newest first. Cycles terminate the walk.
func (g *GraphService) DeprecationChain(ctx context.Context, agentID, beliefID string) ([]string, error) {
	graph, err := g.Snapshot(ctx, agentID, true)
	if err != nil {
		return nil, err
	}
	if _, ok := graph.Beliefs[beliefID]; !ok {
		return nil, domain.Errorf(domain.KindNotFound, "belief %s: not found", beliefID)
	}

	now := graph.GeneratedAt
	next := make(map[string]string)
	for _, r := range graph.Relationships {
		if !r.Type.Deprecating() || !r.EffectiveAt(now) {
			continue
		}
		if _, taken := next[r.SourceBeliefID]; !taken {
			next[r.SourceBeliefID] = r.TargetBeliefID
		}
	}

	chain := []string{beliefID}
	seen := map[string]bool{beliefID: true}
	for cur := beliefID; ; {
		target, ok := next[cur]
		if !ok || seen[target] {
			break
		}
		chain = append(chain, target)
		seen[target] = true
		cur = target
	}
	return chain, nil
}

// DeprecatedBeliefs lists the beliefs with at least one currently-effective
// incoming supersession edge.
func (g *GraphService) DeprecatedBeliefs(ctx context.Context, agentID string) ([]string, error) {
	graph, err := g.Snapshot(ctx, agentID, true)
	if err != nil {
		return nil, err
	}
	now := graph.GeneratedAt
	deprecated := make(map[string]struct{})
	for _, r := range graph.Relationships {
		if r.Type.Deprecating() && r.EffectiveAt(now) {
			deprecated[r.TargetBeliefID] = struct{}{}
		}
	}
	out := make([]string, 0, len(deprecated))
	for id := range deprecated {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// IsDeprecated reports whether a belief currently has an effective incoming
// supersession edge.
func (g *GraphService) IsDeprecated(ctx context.Context, beliefID string) (bool, error) {
	incoming, err := g.Incoming(ctx, beliefID)
	if err != nil {
		return false, err
	}
	now := g.clock.Now()
	for _, r := range incoming {
		if r.Type.Deprecating() && r.EffectiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// Export encodes a snapshot as JSON or Graphviz DOT.
func (g *GraphService) Export(ctx context.Context, agentID, format string) ([]byte, error) {
	if !domain.ValidExportFormat(format) {
		return nil, domain.Errorf(domain.KindUnsupportedFormat, "unsupported export format %q (valid: json, dot)", format)
	}
	graph, err := g.Snapshot(ctx, agentID, false)
	if err != nil {
		return nil, err
	}
	switch domain.GraphExportFormat(format) {
	case domain.ExportDOT:
		return renderDOT(graph), nil
	default:
		return json.MarshalIndent(graph, "", "  ")
	}
}

// Import loads an exported JSON snapshot into an agent's graph. Every id is
// regenerated so an import can never collide with live data, and the whole
// load is one transaction.
func (g *GraphService) Import(ctx context.Context, agentID string, data []byte) (*domain.BeliefKnowledgeGraph, error) {
	var in domain.BeliefKnowledgeGraph
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, domain.WrapError(domain.KindInvalidInput, err, "malformed graph document")
	}

	now := g.clock.Now()
	out := domain.NewBeliefKnowledgeGraph(agentID, now)
	idMap := make(map[string]string, len(in.Beliefs))

	err := g.provider.InTx(ctx, func(st domain.Stores) error {
		beliefIDs := make([]string, 0, len(in.Beliefs))
		for id := range in.Beliefs {
			beliefIDs = append(beliefIDs, id)
		}
		sort.Strings(beliefIDs)
		for _, oldID := range beliefIDs {
			b := in.Beliefs[oldID]
			b.ID = g.ids.NewID()
			b.AgentID = agentID
			b.CreatedAt = now
			b.LastUpdated = now
			if b.Version < 1 {
				b.Version = 1
			}
			if err := b.Validate(); err != nil {
				return err
			}
			if err := st.Beliefs.Store(ctx, &b); err != nil {
				return domain.WrapError(domain.KindStorageFailure, err, "import belief")
			}
			idMap[oldID] = b.ID
			out.Beliefs[b.ID] = b
		}

		relIDs := make([]string, 0, len(in.Relationships))
		for id := range in.Relationships {
			relIDs = append(relIDs, id)
		}
		sort.Strings(relIDs)
		for _, oldID := range relIDs {
			r := in.Relationships[oldID]
			src, okS := idMap[r.SourceBeliefID]
			dst, okT := idMap[r.TargetBeliefID]
			if !okS || !okT {
				return domain.Errorf(domain.KindInvalidEdge, "edge %s references a belief outside the document", oldID)
			}
			r.ID = g.ids.NewID()
			r.AgentID = agentID
			r.SourceBeliefID = src
			r.TargetBeliefID = dst
			r.CreatedAt = now
			r.LastUpdated = now
			if err := g.createIn(ctx, st, &r); err != nil {
				return err
			}
			out.Relationships[r.ID] = r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.logger.Info("graph imported",
		zap.String("agent_id", agentID),
		zap.Int("beliefs", len(out.Beliefs)),
		zap.Int("relationships", len(out.Relationships)))
	return out, nil
}

// ValidationIssue is one inconsistency found by Validate.
type ValidationIssue struct {
	EdgeID  string `json:"edge_id"`
	Problem string `json:"problem"`
}

// Validate sweeps an agent's graph for inconsistencies: edges with missing
// endpoints, self references, temporal inversions, and duplicate active
// edges.
func (g *GraphService) Validate(ctx context.Context, agentID string) ([]ValidationIssue, error) {
	graph, err := g.Snapshot(ctx, agentID, true)
	if err != nil {
		return nil, err
	}

	var issues []ValidationIssue
	type edgeKey struct {
		src, dst string
		typ      domain.RelationType
	}
	activeSeen := make(map[edgeKey]string)

	ids := make([]string, 0, len(graph.Relationships))
	for id := range graph.Relationships {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := graph.Relationships[id]
		if _, ok := graph.Beliefs[r.SourceBeliefID]; !ok {
			issues = append(issues, ValidationIssue{EdgeID: id, Problem: "source belief " + r.SourceBeliefID + " does not exist"})
		}
		if _, ok := graph.Beliefs[r.TargetBeliefID]; !ok {
			issues = append(issues, ValidationIssue{EdgeID: id, Problem: "target belief " + r.TargetBeliefID + " does not exist"})
		}
		if r.SourceBeliefID == r.TargetBeliefID {
			issues = append(issues, ValidationIssue{EdgeID: id, Problem: "self-referential edge"})
		}
		if r.EffectiveFrom != nil && r.EffectiveUntil != nil && r.EffectiveFrom.After(*r.EffectiveUntil) {
			issues = append(issues, ValidationIssue{EdgeID: id, Problem: "effective_from is after effective_until"})
		}
		if r.Active {
			key := edgeKey{src: r.SourceBeliefID, dst: r.TargetBeliefID, typ: r.Type}
			if prev, dup := activeSeen[key]; dup {
				issues = append(issues, ValidationIssue{EdgeID: id, Problem: "duplicate active edge (also " + prev + ")"})
			} else {
				activeSeen[key] = id
			}
		}
	}
	return issues, nil
}

func (g *GraphService) mapEdgeErr(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.WrapError(domain.KindNotFound, err, "edge %s: not found", id)
	}
	if errors.Is(err, store.ErrDuplicateActiveEdge) {
		return domain.WrapError(domain.KindInvalidEdge, err, "an equivalent active edge already exists")
	}
	return domain.WrapError(domain.KindStorageFailure, err, "edge %s", id)
}

// renderDOT emits a Graphviz digraph: beliefs as nodes labeled by statement,
// edges labeled by type and weighted by strength.
func renderDOT(graph *domain.BeliefKnowledgeGraph) []byte {
	var b strings.Builder
	b.WriteString("digraph beliefs {\n")
	fmt.Fprintf(&b, "  label=%q;\n", "agent "+graph.AgentID)
	b.WriteString("  node [shape=box];\n")

	ids := make([]string, 0, len(graph.Beliefs))
	for id := range graph.Beliefs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "  %q [label=%q];\n", id, graph.Beliefs[id].Statement)
	}

	relIDs := make([]string, 0, len(graph.Relationships))
	for id := range graph.Relationships {
		relIDs = append(relIDs, id)
	}
	sort.Strings(relIDs)
	for _, id := range relIDs {
		r := graph.Relationships[id]
		fmt.Fprintf(&b, "  %q -> %q [label=%q,weight=%d];\n",
			r.SourceBeliefID, r.TargetBeliefID, string(r.Type), int(r.Strength*100))
	}
	b.WriteString("}\n")
	return []byte(b.String())
}
