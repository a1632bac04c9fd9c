package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VectorQuery is a native k-NN request against stored memory embeddings.
type VectorQuery struct {
	AgentID   string
	Vector    []float32
	Threshold float64
	Limit     int
}

type MemoryMatch struct {
	Memory MemoryRecord `json:"memory"`
	Score  float64      `json:"score"`
}

type BeliefMatch struct {
	Belief Belief  `json:"belief"`
	Score  float64 `json:"score"`
}

// BeliefSimilarityQuery finds beliefs near a statement. Vector is optional;
// stores without it (or without stored statement embeddings) fall back to
// lexical scoring. Threshold >= 1 means exact normalized-statement match.
type BeliefSimilarityQuery struct {
	AgentID    string
	Statement  string
	Normalized string
	Vector     []float32
	Threshold  float64
	Limit      int
}

// MemoryStore is the persistence contract for memory records. Update is a
// compare-and-swap on Version: the caller passes the version it read, the
// store bumps it on success and returns ErrVersionConflict on a lost race.
type MemoryStore interface {
	Store(ctx context.Context, rec *MemoryRecord) error
	// StoreMany persists one chunk atomically: either every record in recs
	// becomes visible or none does.
	StoreMany(ctx context.Context, recs []*MemoryRecord) error
	Get(ctx context.Context, id string) (*MemoryRecord, error)
	GetMany(ctx context.Context, ids []string) (map[string]MemoryRecord, error)
	Update(ctx context.Context, rec *MemoryRecord) error
	Remove(ctx context.Context, id string) (bool, error)
	RemoveMany(ctx context.Context, ids []string) ([]string, error)
	ForAgent(ctx context.Context, agentID string, limit int) ([]MemoryRecord, error)
	InCategory(ctx context.Context, category, agentID string, limit int) ([]MemoryRecord, error)
	OlderThan(ctx context.Context, cutoff time.Time, agentID string, limit int) ([]MemoryRecord, error)
	RecordAccess(ctx context.Context, id string, at time.Time, relevance float64) error

	// SearchByVector is the native-vector hook; backends without a vector
	// index return ErrUnsupported.
	SearchByVector(ctx context.Context, q VectorQuery) ([]MemoryMatch, error)
	// KeywordCandidates prefilters records matching any keyword, using
	// whatever text index the backend has.
	KeywordCandidates(ctx context.Context, agentID string, keywords []string, limit int) ([]MemoryRecord, error)
	// Candidates returns the most recent records for in-process scoring.
	Candidates(ctx context.Context, agentID string, limit int) ([]MemoryRecord, error)

	Count(ctx context.Context) (int64, error)
	CountByAgent(ctx context.Context) (map[string]int64, error)
	CountByCategory(ctx context.Context) (map[string]int64, error)
}

// BeliefStore is the persistence contract for beliefs. Deactivate and
// Reactivate are idempotent: a no-op transition returns false, never an
// error.
type BeliefStore interface {
	Store(ctx context.Context, b *Belief) error
	StoreMany(ctx context.Context, bs []*Belief) error
	Get(ctx context.Context, id string) (*Belief, error)
	Update(ctx context.Context, b *Belief) error
	ForAgent(ctx context.Context, agentID string, includeInactive bool) ([]Belief, error)
	InCategory(ctx context.Context, category, agentID string, includeInactive bool) ([]Belief, error)
	Search(ctx context.Context, text, agentID string, limit int) ([]Belief, error)
	FindSimilar(ctx context.Context, q BeliefSimilarityQuery) ([]BeliefMatch, error)
	Deactivate(ctx context.Context, id string) (bool, error)
	Reactivate(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type ConflictStore interface {
	Store(ctx context.Context, c *BeliefConflict) error
	Get(ctx context.Context, id string) (*BeliefConflict, error)
	ForAgent(ctx context.Context, agentID string, unresolvedOnly bool) ([]BeliefConflict, error)
	Resolve(ctx context.Context, id string, strategy ResolutionStrategy, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// RelationshipStore persists edges. Invariant checks live in the graph
// service; callers must not mutate edges behind its back.
type RelationshipStore interface {
	Store(ctx context.Context, rel *BeliefRelationship) error
	Get(ctx context.Context, id string) (*BeliefRelationship, error)
	Update(ctx context.Context, rel *BeliefRelationship) error
	Deactivate(ctx context.Context, id string, at time.Time) (bool, error)
	Reactivate(ctx context.Context, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	Outgoing(ctx context.Context, beliefID string) ([]BeliefRelationship, error)
	Incoming(ctx context.Context, beliefID string) ([]BeliefRelationship, error)
	ByType(ctx context.Context, agentID string, rt RelationType) ([]BeliefRelationship, error)
	// Between returns edges joining a and b in either direction.
	Between(ctx context.Context, agentID, a, b string) ([]BeliefRelationship, error)
	ForAgent(ctx context.Context, agentID string, includeInactive bool) ([]BeliefRelationship, error)
	ActiveExists(ctx context.Context, agentID, sourceID, targetID string, rt RelationType) (bool, error)
}

// Capabilities is the probed feature set of a backend, populated once at
// init and consulted by the strategy selector.
type Capabilities struct {
	Vector  bool
	Trigram bool
}

// Stores bundles the four persistence contracts of one backend.
type Stores struct {
	Memories      MemoryStore
	Beliefs       BeliefStore
	Conflicts     ConflictStore
	Relationships RelationshipStore
}

// StoreProvider is a backend: its stores, its transaction scope, and its
// probed capabilities. InTx runs fn against tx-bound stores; rolling back on
// error. It is the unit the analyzer uses for per-candidate atomicity.
type StoreProvider interface {
	Stores() Stores
	InTx(ctx context.Context, fn func(Stores) error) error
	Capabilities(ctx context.Context) (Capabilities, error)
	Close() error
}

// EmbeddingProvider produces fixed-dimension vectors. A nil vector with nil
// error means "no embedding available for this text".
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// BeliefCandidate is the extractor's raw output before store-side analysis.
type BeliefCandidate struct {
	Statement    string   `json:"statement"`
	Category     string   `json:"category"`
	Tags         []string `json:"tags,omitempty"`
	Confidence   float64  `json:"confidence"`
	EvidenceSpan string   `json:"evidence_span,omitempty"`
}

// BeliefExtractionProvider distills candidate beliefs from content and
// answers pairwise statement questions.
type BeliefExtractionProvider interface {
	Extract(ctx context.Context, content, agentID, categoryHint string) ([]BeliefCandidate, error)
	Similarity(ctx context.Context, statementA, statementB string) (float64, error)
	Contradicts(ctx context.Context, statementA, statementB, categoryA, categoryB string) (bool, error)
	ExtractCategory(ctx context.Context, statement string) (string, error)
	Rescore(ctx context.Context, content, statement, contextHint string) (float64, error)
}

// StatementMerger is an optional extractor capability used by the merge
// resolution strategy; detected by interface upgrade.
type StatementMerger interface {
	Merge(ctx context.Context, statementA, statementB string) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock; all timestamps are UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator mints opaque unique ids.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator is the production id generator.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }
