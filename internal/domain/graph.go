package domain

import "time"

// BeliefKnowledgeGraph is a materialized view of one agent's beliefs and
// relationships at a point in time. It is the wire format for snapshots and
// exports; entities themselves are never the wire format.
type BeliefKnowledgeGraph struct {
	AgentID       string                        `json:"agent_id"`
	Beliefs       map[string]Belief             `json:"beliefs"`
	Relationships map[string]BeliefRelationship `json:"relationships"`
	GeneratedAt   time.Time                     `json:"generated_at"`
}

// NewBeliefKnowledgeGraph returns an empty snapshot for agentID.
func NewBeliefKnowledgeGraph(agentID string, at time.Time) *BeliefKnowledgeGraph {
	return &BeliefKnowledgeGraph{
		AgentID:       agentID,
		Beliefs:       make(map[string]Belief),
		Relationships: make(map[string]BeliefRelationship),
		GeneratedAt:   at,
	}
}

// SnapshotFilter narrows a snapshot to selected beliefs and edge types.
// Zero values mean "no filter"; MaxBeliefs <= 0 means unbounded.
type SnapshotFilter struct {
	BeliefIDs  []string
	Types      []RelationType
	MaxBeliefs int
}

// GraphExportFormat is the closed set of export encodings.
type GraphExportFormat string

const (
	ExportJSON GraphExportFormat = "json"
	ExportDOT  GraphExportFormat = "dot"
)

func ValidExportFormat(f string) bool {
	switch GraphExportFormat(f) {
	case ExportJSON, ExportDOT:
		return true
	}
	return false
}

// GraphPath is an ordered walk through the graph; Edges[i] connects the
// i-th hop. An empty path means source == target or no route.
type GraphPath struct {
	Edges    []BeliefRelationship `json:"edges"`
	Strength float64              `json:"strength"`
}

// Hops returns the path length in edges.
func (p GraphPath) Hops() int { return len(p.Edges) }

// RelatedBelief is one result of a bounded-depth traversal.
type RelatedBelief struct {
	BeliefID string `json:"belief_id"`
	Depth    int    `json:"depth"`
}

// BeliefCluster is one connected component of the strength-filtered graph.
type BeliefCluster struct {
	BeliefIDs []string `json:"belief_ids"`
}

// Size returns the member count of the cluster.
func (c BeliefCluster) Size() int { return len(c.BeliefIDs) }
