package domain

import (
	"strings"
	"time"
)

type ConflictType string

const (
	ConflictDirectContradiction ConflictType = "direct-contradiction"
	ConflictCategoryMismatch    ConflictType = "category-mismatch"
	ConflictTemporal            ConflictType = "temporal"
	ConflictOther               ConflictType = "other"
)

func ValidConflictType(t string) bool {
	switch ConflictType(t) {
	case ConflictDirectContradiction, ConflictCategoryMismatch, ConflictTemporal, ConflictOther:
		return true
	}
	return false
}

type ConflictSeverity string

const (
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

// SeverityFor grades a contradiction by the weaker of the two confidences:
// two strongly held beliefs in conflict matter more than a strong one
// against a guess.
func SeverityFor(confidenceA, confidenceB float64) ConflictSeverity {
	low := confidenceA
	if confidenceB < low {
		low = confidenceB
	}
	switch {
	case low >= 0.7:
		return SeverityHigh
	case low >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ResolutionStrategy decides what happens to the parties of a conflict.
type ResolutionStrategy string

const (
	ResolutionNewerWins        ResolutionStrategy = "newer-wins"
	ResolutionHigherConfidence ResolutionStrategy = "higher-confidence"
	ResolutionMerge            ResolutionStrategy = "merge"
	ResolutionManualReview     ResolutionStrategy = "manual-review"
)

func ValidResolutionStrategy(s string) bool {
	switch ResolutionStrategy(s) {
	case ResolutionNewerWins, ResolutionHigherConfidence, ResolutionMerge, ResolutionManualReview:
		return true
	}
	return false
}

// BeliefConflict records a detected tension between two or more beliefs.
type BeliefConflict struct {
	ID                  string             `json:"id"`
	AgentID             string             `json:"agent_id"`
	BeliefIDs           []string           `json:"belief_ids"`
	NewEvidenceMemoryID string             `json:"new_evidence_memory_id,omitempty"`
	Description         string             `json:"description"`
	ConflictType        ConflictType       `json:"conflict_type"`
	Severity            ConflictSeverity   `json:"severity"`
	DetectedAt          time.Time          `json:"detected_at"`
	Resolved            bool               `json:"resolved"`
	ResolvedAt          *time.Time         `json:"resolved_at,omitempty"`
	ResolutionStrategy  ResolutionStrategy `json:"resolution_strategy,omitempty"`
	AutoResolvable      bool               `json:"auto_resolvable"`
}

func (c *BeliefConflict) Validate() error {
	if strings.TrimSpace(c.AgentID) == "" {
		return Errorf(KindInvalidInput, "agent id must not be empty")
	}
	if len(c.BeliefIDs) < 2 {
		return Errorf(KindInvalidInput, "a conflict needs at least two beliefs, got %d", len(c.BeliefIDs))
	}
	if !ValidConflictType(string(c.ConflictType)) {
		return Errorf(KindInvalidInput, "unknown conflict type %q", c.ConflictType)
	}
	return nil
}

// Involves reports whether beliefID is a party to the conflict.
func (c *BeliefConflict) Involves(beliefID string) bool {
	for _, id := range c.BeliefIDs {
		if id == beliefID {
			return true
		}
	}
	return false
}
