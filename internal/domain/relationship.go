package domain

import (
	"sort"
	"strings"
	"time"
)

type RelationType string

const (
	// Supersession subset. A currently-effective edge of one of these types
	// deprecates its target belief.
	RelationSupersedes RelationType = "SUPERSEDES"
	RelationUpdates    RelationType = "UPDATES"
	RelationDeprecates RelationType = "DEPRECATES"
	RelationReplaces   RelationType = "REPLACES"

	// Epistemic support and tension.
	RelationSupports    RelationType = "SUPPORTS"
	RelationContradicts RelationType = "CONTRADICTS"
	RelationImplies     RelationType = "IMPLIES"
	RelationReinforces  RelationType = "REINFORCES"
	RelationWeakens     RelationType = "WEAKENS"

	// Structure and lineage.
	RelationRelatesTo   RelationType = "RELATES_TO"
	RelationSpecializes RelationType = "SPECIALIZES"
	RelationGeneralizes RelationType = "GENERALIZES"
	RelationExtends     RelationType = "EXTENDS"
	RelationDerivesFrom RelationType = "DERIVES_FROM"

	// Causal and dependency.
	RelationCauses    RelationType = "CAUSES"
	RelationCausedBy  RelationType = "CAUSED_BY"
	RelationEnables   RelationType = "ENABLES"
	RelationPrevents  RelationType = "PREVENTS"
	RelationDependsOn RelationType = "DEPENDS_ON"

	// Temporal and contextual.
	RelationPrecedes   RelationType = "PRECEDES"
	RelationFollows    RelationType = "FOLLOWS"
	RelationContextFor RelationType = "CONTEXT_FOR"

	// Evidential.
	RelationEvidencedBy         RelationType = "EVIDENCED_BY"
	RelationProvidesEvidenceFor RelationType = "PROVIDES_EVIDENCE_FOR"

	// Comparative.
	RelationConflictsWith RelationType = "CONFLICTS_WITH"
	RelationSimilarTo     RelationType = "SIMILAR_TO"
	RelationAnalogousTo   RelationType = "ANALOGOUS_TO"
	RelationContrastsWith RelationType = "CONTRASTS_WITH"

	RelationCustom RelationType = "CUSTOM"
)

var relationTypes = map[RelationType]struct{}{
	RelationSupersedes: {}, RelationUpdates: {}, RelationDeprecates: {}, RelationReplaces: {},
	RelationSupports: {}, RelationContradicts: {}, RelationImplies: {}, RelationReinforces: {},
	RelationWeakens: {}, RelationRelatesTo: {}, RelationSpecializes: {}, RelationGeneralizes: {},
	RelationExtends: {}, RelationDerivesFrom: {}, RelationCauses: {}, RelationCausedBy: {},
	RelationEnables: {}, RelationPrevents: {}, RelationDependsOn: {}, RelationPrecedes: {},
	RelationFollows: {}, RelationContextFor: {}, RelationEvidencedBy: {}, RelationProvidesEvidenceFor: {},
	RelationConflictsWith: {}, RelationSimilarTo: {}, RelationAnalogousTo: {}, RelationContrastsWith: {},
	RelationCustom: {},
}

// DeprecatingRelations marks the supersession subset.
var DeprecatingRelations = map[RelationType]bool{
	RelationSupersedes: true,
	RelationUpdates:    true,
	RelationDeprecates: true,
	RelationReplaces:   true,
}

func ValidRelationType(r string) bool {
	_, ok := relationTypes[RelationType(r)]
	return ok
}

// Deprecating reports whether a currently-effective edge of this type
// deprecates its target.
func (r RelationType) Deprecating() bool {
	return DeprecatingRelations[r]
}

// AllRelationTypes returns the closed enum in lexical order.
func AllRelationTypes() []RelationType {
	out := make([]RelationType, 0, len(relationTypes))
	for r := range relationTypes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EdgeState is the temporal lifecycle of a relationship. Deactivation moves
// an edge to Inactive from any temporal state.
type EdgeState string

const (
	EdgePending   EdgeState = "pending"
	EdgeEffective EdgeState = "effective"
	EdgeExpired   EdgeState = "expired"
	EdgeInactive  EdgeState = "inactive"
)

// BeliefRelationship is a directed, typed, temporally-bounded edge between
// two beliefs of the same agent.
type BeliefRelationship struct {
	ID                string            `json:"id"`
	AgentID           string            `json:"agent_id"`
	SourceBeliefID    string            `json:"source_belief_id"`
	TargetBeliefID    string            `json:"target_belief_id"`
	Type              RelationType      `json:"type"`
	Strength          float64           `json:"strength"`
	Priority          int               `json:"priority"`
	EffectiveFrom     *time.Time        `json:"effective_from,omitempty"`
	EffectiveUntil    *time.Time        `json:"effective_until,omitempty"`
	DeprecationReason string            `json:"deprecation_reason,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Active            bool              `json:"active"`
	CreatedAt         time.Time         `json:"created_at"`
	LastUpdated       time.Time         `json:"last_updated"`
}

// Validate checks the structural edge invariants. Endpoint existence is the
// graph service's concern; it needs the belief store.
func (r *BeliefRelationship) Validate() error {
	if strings.TrimSpace(r.AgentID) == "" {
		return Errorf(KindInvalidEdge, "agent id must not be empty")
	}
	if r.SourceBeliefID == "" || r.TargetBeliefID == "" {
		return Errorf(KindInvalidEdge, "both endpoint belief ids are required")
	}
	if r.SourceBeliefID == r.TargetBeliefID {
		return Errorf(KindInvalidEdge, "self-referential edge on belief %s", r.SourceBeliefID)
	}
	if !ValidRelationType(string(r.Type)) {
		return Errorf(KindInvalidEdge, "unknown relation type %q", r.Type)
	}
	if r.Strength < 0 || r.Strength > 1 {
		return Errorf(KindInvalidEdge, "strength must be in [0,1], got %v", r.Strength)
	}
	if r.EffectiveFrom != nil && r.EffectiveUntil != nil && r.EffectiveFrom.After(*r.EffectiveUntil) {
		return Errorf(KindInvalidEdge, "effective_from %s is after effective_until %s", r.EffectiveFrom, r.EffectiveUntil)
	}
	return nil
}

// EffectiveAt reports whether the edge is currently effective at t: active
// and inside its temporal bounds.
func (r *BeliefRelationship) EffectiveAt(t time.Time) bool {
	return r.StateAt(t) == EdgeEffective
}

// StateAt resolves the edge state machine at t.
func (r *BeliefRelationship) StateAt(t time.Time) EdgeState {
	if !r.Active {
		return EdgeInactive
	}
	if r.EffectiveFrom != nil && t.Before(*r.EffectiveFrom) {
		return EdgePending
	}
	if r.EffectiveUntil != nil && !t.Before(*r.EffectiveUntil) {
		return EdgeExpired
	}
	return EdgeEffective
}
