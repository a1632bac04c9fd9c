package domain

import "time"

type IngestionStatus string

const (
	IngestionSuccess IngestionStatus = "SUCCESS"
	IngestionPartial IngestionStatus = "PARTIAL_SUCCESS"
	IngestionFailed  IngestionStatus = "FAILED"
)

// IngestionInput is one observation handed to the pipeline.
type IngestionInput struct {
	AgentID    string            `json:"agent_id"`
	Content    string            `json:"content"`
	Source     string            `json:"source,omitempty"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	Importance *float64          `json:"importance,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	DryRun     bool              `json:"dry_run,omitempty"`
}

// IngestionResult reports what one pipeline run did. MemoryID is empty on
// dry runs; Metadata carries surfaced non-fatal failures (categorizer or
// embedding downgrades, analyzer partial failures).
type IngestionResult struct {
	MemoryID            string              `json:"memory_id,omitempty"`
	AgentID             string              `json:"agent_id"`
	Category            CategoryLabel       `json:"category"`
	EncodedSuccessfully bool                `json:"encoded_successfully"`
	DryRun              bool                `json:"dry_run"`
	BeliefUpdate        *BeliefUpdateResult `json:"belief_update,omitempty"`
	ProcessingTimeMs    int64               `json:"processing_time_ms"`
	Status              IngestionStatus     `json:"status"`
	Metadata            map[string]string   `json:"metadata,omitempty"`
}

// Note records a surfaced non-fatal failure on the result.
func (r *IngestionResult) Note(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}
