package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/domain"
)

// Categorizer assigns a category label to raw content. metadata may carry a
// caller-provided hint.
type Categorizer interface {
	Categorize(ctx context.Context, content string, metadata map[string]string) (domain.CategoryLabel, error)
}

// IngestConfig carries the ingest.* options.
type IngestConfig struct {
	MaxContentLength int
	// DisableAnalysis skips the belief pass entirely; memories are still
	// categorized, embedded, and stored.
	DisableAnalysis bool
}

func (c IngestConfig) withDefaults() IngestConfig {
	if c.MaxContentLength < 1 {
		c.MaxContentLength = 10000
	}
	return c
}

// IngestionService is the front door: one call runs categorize, encode, and
// belief analysis in order. The pipeline degrades rather than fails —
// categorization and embedding problems downgrade with a note, and only a
// storage failure aborts the run.
type IngestionService struct {
	memories    *MemoryService
	analyzer    *BeliefAnalyzer
	categorizer Categorizer
	clock       domain.Clock
	logger      *zap.Logger
	cfg         IngestConfig
}

func NewIngestionService(memories *MemoryService, analyzer *BeliefAnalyzer, categorizer Categorizer, clock domain.Clock, cfg IngestConfig, logger *zap.Logger) *IngestionService {
	return &IngestionService{
		memories:    memories,
		analyzer:    analyzer,
		categorizer: categorizer,
		clock:       clock,
		logger:      logger,
		cfg:         cfg.withDefaults(),
	}
}

// Ingest runs the full pipeline for one observation. A dry-run input routes
// to Preview instead of writing anything.
func (s *IngestionService) Ingest(ctx context.Context, in domain.IngestionInput) (*domain.IngestionResult, error) {
	if in.DryRun {
		return s.DryRun(ctx, in)
	}
	started := s.clock.Now()
	result := &domain.IngestionResult{AgentID: in.AgentID, Status: domain.IngestionFailed}
	defer func() {
		result.ProcessingTimeMs = s.clock.Now().Sub(started).Milliseconds()
	}()

	if err := s.validate(in); err != nil {
		return result, err
	}

	category := s.categorize(ctx, in, result)
	result.Category = category

	rec, err := s.memories.EncodeAndStore(ctx, EncodeInput{
		AgentID:   in.AgentID,
		Content:   in.Content,
		Category:  category,
		Metadata:  s.metadataFor(in),
		Timestamp: in.Timestamp,
	})
	if err != nil {
		return result, err
	}
	result.MemoryID = rec.ID
	result.EncodedSuccessfully = true
	result.Status = domain.IngestionSuccess
	if rec.Embedding == nil && s.memories.embedder != nil {
		result.Note("embedding", "no vector produced; lexical search only for this memory")
	}

	if s.cfg.DisableAnalysis {
		result.Note("analysis", "disabled by configuration")
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		// The memory is durable; the belief pass can run on a later
		// ingestion or maintenance sweep.
		result.Status = domain.IngestionPartial
		result.Note("analysis", "skipped: "+err.Error())
		return result, nil
	}

	update, err := s.analyzer.Analyze(ctx, rec)
	if err != nil {
		s.logger.Warn("belief analysis failed",
			zap.String("memory_id", rec.ID),
			zap.String("agent_id", rec.AgentID),
			zap.Error(err))
		result.Status = domain.IngestionPartial
		result.Note("analysis", err.Error())
		return result, nil
	}
	result.BeliefUpdate = update
	if len(update.Errors) > 0 {
		result.Status = domain.IngestionPartial
		result.Note("analysis", "some belief candidates failed")
	}
	return result, nil
}

// DryRun classifies an observation without writing: the category it would
// get and the belief changes analysis would make.
func (s *IngestionService) DryRun(ctx context.Context, in domain.IngestionInput) (*domain.IngestionResult, error) {
	started := s.clock.Now()
	result := &domain.IngestionResult{AgentID: in.AgentID, DryRun: true, Status: domain.IngestionFailed}
	defer func() {
		result.ProcessingTimeMs = s.clock.Now().Sub(started).Milliseconds()
	}()

	if err := s.validate(in); err != nil {
		return result, err
	}
	result.Category = s.categorize(ctx, in, result)

	if s.cfg.DisableAnalysis {
		result.Note("analysis", "disabled by configuration")
		result.Status = domain.IngestionSuccess
		return result, nil
	}

	phantom := &domain.MemoryRecord{
		AgentID:  in.AgentID,
		Content:  in.Content,
		Category: result.Category,
		Metadata: s.metadataFor(in),
	}
	update, err := s.analyzer.Preview(ctx, phantom)
	if err != nil {
		result.Status = domain.IngestionPartial
		result.Note("analysis", err.Error())
		return result, nil
	}
	result.BeliefUpdate = update
	result.Status = domain.IngestionSuccess
	return result, nil
}

// IngestBatch runs observations through the pipeline one by one; a failed
// item is reported in place and does not stop the rest.
func (s *IngestionService) IngestBatch(ctx context.Context, inputs []domain.IngestionInput) []*domain.IngestionResult {
	results := make([]*domain.IngestionResult, 0, len(inputs))
	for _, in := range inputs {
		res, err := s.Ingest(ctx, in)
		if err != nil {
			res.Note("error", err.Error())
		}
		results = append(results, res)
	}
	return results
}

func (s *IngestionService) validate(in domain.IngestionInput) error {
	if strings.TrimSpace(in.AgentID) == "" {
		return domain.WrapError(domain.KindInvalidInput, ErrAgentIDMissing, "agent_id is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return domain.WrapError(domain.KindInvalidInput, ErrContentEmpty, "content is required")
	}
	if len(in.Content) > s.cfg.MaxContentLength {
		return domain.WrapError(domain.KindInvalidInput, ErrContentTooLong,
			"content length %d exceeds maximum %d", len(in.Content), s.cfg.MaxContentLength)
	}
	if in.Importance != nil && (*in.Importance < 0 || *in.Importance > 1) {
		return domain.Errorf(domain.KindInvalidInput, "importance must be in [0,1], got %v", *in.Importance)
	}
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return domain.Errorf(domain.KindInvalidInput, "confidence must be in [0,1], got %v", *in.Confidence)
	}
	return nil
}

func (s *IngestionService) categorize(ctx context.Context, in domain.IngestionInput, result *domain.IngestionResult) domain.CategoryLabel {
	category, err := s.categorizer.Categorize(ctx, in.Content, in.Metadata)
	if err != nil {
		s.logger.Warn("categorization failed, using default",
			zap.String("agent_id", in.AgentID), zap.Error(err))
		result.Note("categorization", err.Error())
		return domain.DefaultCategory()
	}
	return category
}

func (s *IngestionService) metadataFor(in domain.IngestionInput) domain.MemoryMetadata {
	md := domain.MemoryMetadata{
		Source: in.Source,
		Tags:   domain.DedupeTags(in.Tags),
		Extra:  in.Metadata,
	}
	if in.Importance != nil {
		md.Importance = *in.Importance
	}
	if in.Confidence != nil {
		md.Confidence = *in.Confidence
	}
	return md
}
