package domain

import (
	"sort"
	"strings"
	"time"
)

// DefaultRelevance seeds relevanceScore when metadata carries no importance.
const DefaultRelevance = 0.5

// CategoryLabel is the categorizer's verdict for a piece of content.
type CategoryLabel struct {
	Primary    string   `json:"primary"`
	Secondary  string   `json:"secondary,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Confidence float64  `json:"confidence"`
}

// DefaultCategory is the label assigned when categorization fails or
// produces nothing usable.
func DefaultCategory() CategoryLabel {
	return CategoryLabel{Primary: "general", Confidence: 0}
}

// Matches reports whether the label's primary or secondary name equals category.
func (c CategoryLabel) Matches(category string) bool {
	return c.Primary == category || (c.Secondary != "" && c.Secondary == category)
}

// MemoryMetadata carries the typed metadata fields of a record plus a bounded
// free-form map. Extra values must stay small; structured data belongs in
// typed fields.
type MemoryMetadata struct {
	Source      string            `json:"source,omitempty"`
	Importance  float64           `json:"importance"`
	Confidence  float64           `json:"confidence"`
	Tags        []string          `json:"tags,omitempty"`
	AccessCount int64             `json:"access_count"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// MemoryRecord is one ingested observation, owned by exactly one agent.
type MemoryRecord struct {
	ID             string         `json:"id"`
	AgentID        string         `json:"agent_id"`
	Content        string         `json:"content"`
	Category       CategoryLabel  `json:"category"`
	Metadata       MemoryMetadata `json:"metadata"`
	Embedding      []float32      `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessed   time.Time      `json:"last_accessed"`
	RelevanceScore float64        `json:"relevance_score"`
	Version        int64          `json:"version"`
}

// Validate checks the persistent-record invariants. dimension > 0 additionally
// pins the embedding to the system-wide vector dimension.
func (m *MemoryRecord) Validate(dimension int) error {
	if strings.TrimSpace(m.AgentID) == "" {
		return Errorf(KindInvalidInput, "agent id must not be empty")
	}
	if strings.TrimSpace(m.Content) == "" {
		return Errorf(KindInvalidInput, "content must not be empty")
	}
	if m.Version < 1 {
		return Errorf(KindInvalidInput, "version must be >= 1, got %d", m.Version)
	}
	if m.Metadata.Importance < 0 || m.Metadata.Importance > 1 {
		return Errorf(KindInvalidInput, "importance must be in [0,1], got %v", m.Metadata.Importance)
	}
	if m.Metadata.Confidence < 0 || m.Metadata.Confidence > 1 {
		return Errorf(KindInvalidInput, "confidence must be in [0,1], got %v", m.Metadata.Confidence)
	}
	if dimension > 0 && m.Embedding != nil && len(m.Embedding) != dimension {
		return Errorf(KindInvalidInput, "embedding dimension %d does not match system dimension %d", len(m.Embedding), dimension)
	}
	return nil
}

// HasTag reports whether tag is present in the record's metadata tags.
func (m *MemoryRecord) HasTag(tag string) bool {
	for _, t := range m.Metadata.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Touch marks an access at t without going through the store.
func (m *MemoryRecord) Touch(t time.Time) {
	m.LastAccessed = t
	m.Metadata.AccessCount++
}

// DedupeTags trims, lowercases, dedupes, and sorts a tag list.
func DedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
