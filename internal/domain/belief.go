package domain

import (
	"strings"
	"time"
)

// MaxBeliefConfidence caps reinforcement so no belief becomes unrevisable.
const MaxBeliefConfidence = 0.99

// Belief is a normalized, deduplicated statement distilled from one or more
// memories. Beliefs are deactivated on supersession, never hard-deleted by
// the analyzer.
type Belief struct {
	ID                 string    `json:"id"`
	AgentID            string    `json:"agent_id"`
	Statement          string    `json:"statement"`
	Confidence         float64   `json:"confidence"`
	Category           string    `json:"category"`
	Tags               []string  `json:"tags,omitempty"`
	EvidenceMemoryIDs  []string  `json:"evidence_memory_ids"`
	ReinforcementCount int       `json:"reinforcement_count"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	LastUpdated        time.Time `json:"last_updated"`
	Version            int64     `json:"version"`
}

// Validate checks the persistent-belief invariants.
func (b *Belief) Validate() error {
	if strings.TrimSpace(b.AgentID) == "" {
		return Errorf(KindInvalidInput, "agent id must not be empty")
	}
	if strings.TrimSpace(b.Statement) == "" {
		return Errorf(KindInvalidInput, "statement must not be empty")
	}
	if b.Confidence < 0 || b.Confidence > 1 {
		return Errorf(KindInvalidInput, "confidence must be in [0,1], got %v", b.Confidence)
	}
	if b.ReinforcementCount < 0 {
		return Errorf(KindInvalidInput, "reinforcement count must be >= 0, got %d", b.ReinforcementCount)
	}
	if b.Version < 1 {
		return Errorf(KindInvalidInput, "version must be >= 1, got %d", b.Version)
	}
	return nil
}

// HasEvidence reports whether memoryID already contributed to this belief.
func (b *Belief) HasEvidence(memoryID string) bool {
	for _, id := range b.EvidenceMemoryIDs {
		if id == memoryID {
			return true
		}
	}
	return false
}

// AddEvidence appends memoryID to the evidence set. It returns false if the
// id was already present, which makes analyzer retries idempotent.
func (b *Belief) AddEvidence(memoryID string) bool {
	if memoryID == "" || b.HasEvidence(memoryID) {
		return false
	}
	b.EvidenceMemoryIDs = append(b.EvidenceMemoryIDs, memoryID)
	return true
}

// NormalizeStatement lowercases, collapses whitespace, and strips trailing
// sentence punctuation. Active-statement uniqueness per agent is enforced on
// this form.
func NormalizeStatement(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".!?;,: ")
}

// BeliefUpdateResult summarizes what the analyzer did with one memory.
type BeliefUpdateResult struct {
	AgentID             string   `json:"agent_id"`
	MemoryID            string   `json:"memory_id,omitempty"`
	NewBeliefIDs        []string `json:"new_belief_ids"`
	ReinforcedBeliefIDs []string `json:"reinforced_belief_ids"`
	DeprecatedBeliefIDs []string `json:"deprecated_belief_ids"`
	ConflictIDs         []string `json:"conflict_ids"`
	Errors              []string `json:"errors,omitempty"`
}

// Changed reports whether the analysis produced any belief-side effect.
func (r *BeliefUpdateResult) Changed() bool {
	return len(r.NewBeliefIDs)+len(r.ReinforcedBeliefIDs)+len(r.DeprecatedBeliefIDs)+len(r.ConflictIDs) > 0
}
