package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/search"
	"github.com/doxa-ai/doxa/internal/store"
)

var (
	ErrContentEmpty   = errors.New("content is required")
	ErrAgentIDMissing = errors.New("agent_id is required")
	ErrContentTooLong = errors.New("content exceeds maximum length")
	ErrInvalidLimit   = errors.New("limit must be >= 0")
)

const (
	// casRetries bounds compare-and-swap attempts before the update
	// surfaces as a storage failure.
	casRetries = 3
	// embedConcurrency bounds parallel embedding calls in batch stores.
	embedConcurrency = 4
)

// MemoryConfig carries the memory.* options.
type MemoryConfig struct {
	BatchSize            int
	MaxSimilarityResults int
	SimilarityThreshold  float64
	EmbeddingDimension   int
}

func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BatchSize < 1 {
		c.BatchSize = 100
	}
	if c.MaxSimilarityResults < 1 {
		c.MaxSimilarityResults = 50
	}
	return c
}

// MemoryService is the encoding store: durable CRUD over memory records plus
// similarity retrieval through the active search strategy.
type MemoryService struct {
	provider domain.StoreProvider
	embedder domain.EmbeddingProvider
	strategy search.Strategy
	clock    domain.Clock
	ids      domain.IDGenerator
	logger   *zap.Logger
	cfg      MemoryConfig

	startTime time.Time
	stores    atomic.Int64
	reads     atomic.Int64
	updates   atomic.Int64
	removals  atomic.Int64
	searches  atomic.Int64
}

func NewMemoryService(provider domain.StoreProvider, embedder domain.EmbeddingProvider, strategy search.Strategy, clock domain.Clock, ids domain.IDGenerator, cfg MemoryConfig, logger *zap.Logger) *MemoryService {
	return &MemoryService{
		provider:  provider,
		embedder:  embedder,
		strategy:  strategy,
		clock:     clock,
		ids:       ids,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		startTime: clock.Now(),
	}
}

// EncodeInput is one record to encode. Embedding is optional; when nil the
// service asks its provider, and a provider failure downgrades to "no
// embedding" rather than failing the store.
type EncodeInput struct {
	AgentID   string
	Content   string
	Category  domain.CategoryLabel
	Metadata  domain.MemoryMetadata
	Embedding []float32
	// Timestamp backdates the record, for replayed or imported observations.
	Timestamp *time.Time
}

// EncodeAndStore persists one observation as a memory record.
func (s *MemoryService) EncodeAndStore(ctx context.Context, in EncodeInput) (*domain.MemoryRecord, error) {
	rec, err := s.buildRecord(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.provider.Stores().Memories.Store(ctx, rec); err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "store memory")
	}
	s.stores.Add(1)
	s.logger.Debug("memory stored",
		zap.String("memory_id", rec.ID),
		zap.String("agent_id", rec.AgentID),
		zap.String("category", rec.Category.Primary),
		zap.Bool("embedded", rec.Embedding != nil))
	return rec, nil
}

// EncodeAndStoreBatch encodes inputs in BatchSize chunks. Each chunk is one
// transaction: a failure rolls back that chunk only, and the records stored
// by earlier chunks stay visible. Embeddings for a chunk are produced
// concurrently with a bounded group.
func (s *MemoryService) EncodeAndStoreBatch(ctx context.Context, inputs []EncodeInput) ([]domain.MemoryRecord, error) {
	stored := make([]domain.MemoryRecord, 0, len(inputs))
	for start := 0; start < len(inputs); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		chunk := inputs[start:end]

		recs := make([]*domain.MemoryRecord, len(chunk))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(embedConcurrency)
		for i := range chunk {
			g.Go(func() error {
				rec, err := s.buildRecord(gctx, chunk[i])
				if err != nil {
					return err
				}
				recs[i] = rec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stored, err
		}

		err := s.provider.InTx(ctx, func(st domain.Stores) error {
			return st.Memories.StoreMany(ctx, recs)
		})
		if err != nil {
			return stored, domain.WrapError(domain.KindStorageFailure, err, "store batch chunk")
		}
		for _, rec := range recs {
			stored = append(stored, *rec)
		}
		s.stores.Add(int64(len(recs)))
	}
	return stored, nil
}

func (s *MemoryService) buildRecord(ctx context.Context, in EncodeInput) (*domain.MemoryRecord, error) {
	if in.AgentID == "" {
		return nil, domain.WrapError(domain.KindInvalidInput, ErrAgentIDMissing, "agent_id is required")
	}
	if in.Content == "" {
		return nil, domain.WrapError(domain.KindInvalidInput, ErrContentEmpty, "content is required")
	}

	embedding := in.Embedding
	if embedding == nil && s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, in.Content)
		if err != nil {
			s.logger.Warn("embedding failed, storing without vector",
				zap.String("agent_id", in.AgentID), zap.Error(err))
		} else {
			embedding = vec
		}
	}

	now := s.clock.Now()
	if in.Timestamp != nil {
		now = *in.Timestamp
	}
	relevance := in.Metadata.Importance
	if relevance == 0 {
		relevance = domain.DefaultRelevance
	}
	rec := &domain.MemoryRecord{
		ID:             s.ids.NewID(),
		AgentID:        in.AgentID,
		Content:        in.Content,
		Category:       in.Category,
		Metadata:       in.Metadata,
		Embedding:      embedding,
		CreatedAt:      now,
		LastAccessed:   now,
		RelevanceScore: relevance,
		Version:        1,
	}
	rec.Metadata.Tags = domain.DedupeTags(rec.Metadata.Tags)
	if err := rec.Validate(s.cfg.EmbeddingDimension); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns a record and marks the access: lastAccessed moves to now and
// the relevance score gets a small log-odds boost.
func (s *MemoryService) Get(ctx context.Context, id string) (*domain.MemoryRecord, error) {
	memories := s.provider.Stores().Memories
	rec, err := memories.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr(err, "memory %s", id)
	}
	s.reads.Add(1)

	now := s.clock.Now()
	boosted := ApplyLogOddsDelta(rec.RelevanceScore, AccessLogOdds)
	if err := memories.RecordAccess(ctx, id, now, boosted); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("access bookkeeping failed", zap.String("memory_id", id), zap.Error(err))
	} else {
		rec.Touch(now)
		rec.RelevanceScore = boosted
	}
	return rec, nil
}

// GetMany returns the found subset keyed by id; missing ids are absent.
func (s *MemoryService) GetMany(ctx context.Context, ids []string) (map[string]domain.MemoryRecord, error) {
	out, err := s.provider.Stores().Memories.GetMany(ctx, ids)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "get memories")
	}
	s.reads.Add(int64(len(out)))
	return out, nil
}

// Update replaces a record's mutable fields. When the content changed and no
// fresh embedding came with it, the record is re-embedded. Lost version
// races retry a bounded number of times before surfacing a storage failure.
func (s *MemoryService) Update(ctx context.Context, rec *domain.MemoryRecord) (*domain.MemoryRecord, error) {
	if err := rec.Validate(s.cfg.EmbeddingDimension); err != nil {
		return nil, err
	}
	memories := s.provider.Stores().Memories

	for attempt := 0; attempt < casRetries; attempt++ {
		existing, err := memories.Get(ctx, rec.ID)
		if err != nil {
			return nil, s.mapStoreErr(err, "memory %s", rec.ID)
		}
		if existing.Content != rec.Content && s.embedder != nil && sameEmbedding(existing.Embedding, rec.Embedding) {
			vec, embErr := s.embedder.Embed(ctx, rec.Content)
			if embErr != nil {
				s.logger.Warn("re-embedding failed, keeping prior vector",
					zap.String("memory_id", rec.ID), zap.Error(embErr))
			} else {
				rec.Embedding = vec
			}
		}
		rec.Version = existing.Version
		err = memories.Update(ctx, rec)
		if err == nil {
			s.updates.Add(1)
			return rec, nil
		}
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		return nil, s.mapStoreErr(err, "memory %s", rec.ID)
	}
	return nil, domain.Errorf(domain.KindStorageFailure, "memory %s: update retries exhausted", rec.ID)
}

// Remove deletes one record; removing an absent id is a benign false.
func (s *MemoryService) Remove(ctx context.Context, id string) (bool, error) {
	removed, err := s.provider.Stores().Memories.Remove(ctx, id)
	if err != nil {
		return false, domain.WrapError(domain.KindStorageFailure, err, "remove memory %s", id)
	}
	if removed {
		s.removals.Add(1)
	}
	return removed, nil
}

// RemoveMany deletes ids in BatchSize chunks and returns the set actually
// removed.
func (s *MemoryService) RemoveMany(ctx context.Context, ids []string) ([]string, error) {
	removed := make([]string, 0, len(ids))
	for start := 0; start < len(ids); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		var chunkRemoved []string
		err := s.provider.InTx(ctx, func(st domain.Stores) error {
			var err error
			chunkRemoved, err = st.Memories.RemoveMany(ctx, ids[start:end])
			return err
		})
		if err != nil {
			return removed, domain.WrapError(domain.KindStorageFailure, err, "remove batch chunk")
		}
		removed = append(removed, chunkRemoved...)
	}
	s.removals.Add(int64(len(removed)))
	return removed, nil
}

// ForAgent lists an agent's records newest first; limit 0 means unbounded.
func (s *MemoryService) ForAgent(ctx context.Context, agentID string, limit int) ([]domain.MemoryRecord, error) {
	if limit < 0 {
		return nil, domain.WrapError(domain.KindInvalidInput, ErrInvalidLimit, "limit must be >= 0, got %d", limit)
	}
	recs, err := s.provider.Stores().Memories.ForAgent(ctx, agentID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "list memories for agent %s", agentID)
	}
	s.reads.Add(1)
	return recs, nil
}

// InCategory lists records whose primary or secondary category matches.
func (s *MemoryService) InCategory(ctx context.Context, category, agentID string, limit int) ([]domain.MemoryRecord, error) {
	if limit < 0 {
		return nil, domain.WrapError(domain.KindInvalidInput, ErrInvalidLimit, "limit must be >= 0, got %d", limit)
	}
	recs, err := s.provider.Stores().Memories.InCategory(ctx, category, agentID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "list memories in category %s", category)
	}
	s.reads.Add(1)
	return recs, nil
}

// OlderThan lists records created at least seconds ago.
func (s *MemoryService) OlderThan(ctx context.Context, seconds int64, agentID string, limit int) ([]domain.MemoryRecord, error) {
	if seconds < 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "seconds must be >= 0, got %d", seconds)
	}
	if limit < 0 {
		return nil, domain.WrapError(domain.KindInvalidInput, ErrInvalidLimit, "limit must be >= 0, got %d", limit)
	}
	cutoff := s.clock.Now().Add(-time.Duration(seconds) * time.Second)
	recs, err := s.provider.Stores().Memories.OlderThan(ctx, cutoff, agentID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "list old memories")
	}
	s.reads.Add(1)
	return recs, nil
}

// SearchSimilar runs the active strategy over an agent's records. The query
// is embedded when a provider is available; a nil vector simply steers
// vector-capable strategies onto their lexical path.
func (s *MemoryService) SearchSimilar(ctx context.Context, agentID, query string, limit int) ([]domain.MemoryMatch, error) {
	if limit < 0 {
		return nil, domain.WrapError(domain.KindInvalidInput, ErrInvalidLimit, "limit must be >= 0, got %d", limit)
	}
	var vector []float32
	if s.embedder != nil && s.strategy.SupportsVectorSearch() {
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			s.logger.Warn("query embedding failed, using lexical path", zap.Error(err))
		} else {
			vector = vec
		}
	}
	matches, err := s.strategy.Search(ctx, search.Query{
		Text:       query,
		Vector:     vector,
		AgentID:    agentID,
		Limit:      limit,
		MaxResults: s.cfg.MaxSimilarityResults,
		Threshold:  s.cfg.SimilarityThreshold,
	})
	if err != nil {
		return nil, err
	}
	s.searches.Add(1)

	now := s.clock.Now()
	memories := s.provider.Stores().Memories
	for i := range matches {
		boosted := ApplyLogOddsDelta(matches[i].Memory.RelevanceScore, AccessLogOdds)
		if err := memories.RecordAccess(ctx, matches[i].Memory.ID, now, boosted); err == nil {
			matches[i].Memory.Touch(now)
			matches[i].Memory.RelevanceScore = boosted
		}
	}
	return matches, nil
}

// Reinitialize re-probes the backend and may swap the search strategy, for
// schema changes at runtime.
func (s *MemoryService) Reinitialize(ctx context.Context) error {
	if sel, ok := s.strategy.(*search.Selector); ok {
		return sel.Reinitialize(ctx)
	}
	return s.strategy.Initialize(ctx, s.provider)
}

// StrategyName reports which similarity strategy serves queries.
func (s *MemoryService) StrategyName() string { return s.strategy.Name() }

// Statistics is the read-only operational view of the store.
type Statistics struct {
	Total           int64            `json:"total"`
	PerAgent        map[string]int64 `json:"per_agent"`
	PerCategory     map[string]int64 `json:"per_category"`
	OperationCounts map[string]int64 `json:"operation_counts"`
	UptimeSeconds   int64            `json:"uptime_seconds"`
	Strategy        string           `json:"strategy"`
}

// Stats snapshots counts and counters. Counters are atomic, not
// transactional; they may lag live traffic slightly.
func (s *MemoryService) Stats(ctx context.Context) (*Statistics, error) {
	memories := s.provider.Stores().Memories
	total, err := memories.Count(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "count memories")
	}
	perAgent, err := memories.CountByAgent(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "count memories by agent")
	}
	perCategory, err := memories.CountByCategory(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "count memories by category")
	}
	return &Statistics{
		Total:       total,
		PerAgent:    perAgent,
		PerCategory: perCategory,
		OperationCounts: map[string]int64{
			"stores":   s.stores.Load(),
			"reads":    s.reads.Load(),
			"updates":  s.updates.Load(),
			"removals": s.removals.Load(),
			"searches": s.searches.Load(),
		},
		UptimeSeconds: int64(s.clock.Now().Sub(s.startTime).Seconds()),
		Strategy:      s.strategy.Name(),
	}, nil
}

func (s *MemoryService) mapStoreErr(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.WrapError(domain.KindNotFound, err, format+": not found", args...)
	}
	return domain.WrapError(domain.KindStorageFailure, err, format, args...)
}

func sameEmbedding(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
