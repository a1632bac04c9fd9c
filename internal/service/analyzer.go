package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/store"
)

// AnalyzerConfig carries the belief.* thresholds.
type AnalyzerConfig struct {
	// MinCandidateConfidence drops extractor candidates below it.
	MinCandidateConfidence float64
	// ReinforceThreshold is the similarity at which a candidate reinforces
	// an existing belief instead of becoming a new one.
	ReinforceThreshold float64
	// RelatedThreshold is the similarity at which a candidate is linked to a
	// peer with a RELATES_TO edge.
	RelatedThreshold float64
	// PeerLimit bounds how many similar beliefs one candidate is compared
	// against.
	PeerLimit int
	// ResolutionByCategory overrides the resolution strategy per belief
	// category; unlisted categories use DefaultResolution.
	ResolutionByCategory map[string]domain.ResolutionStrategy
	DefaultResolution    domain.ResolutionStrategy
}

func (c AnalyzerConfig) withDefaults() AnalyzerConfig {
	if c.MinCandidateConfidence == 0 {
		c.MinCandidateConfidence = 0.3
	}
	if c.ReinforceThreshold == 0 {
		c.ReinforceThreshold = 0.85
	}
	if c.RelatedThreshold == 0 {
		c.RelatedThreshold = 0.6
	}
	if c.PeerLimit < 1 {
		c.PeerLimit = 5
	}
	if c.DefaultResolution == "" {
		c.DefaultResolution = domain.ResolutionNewerWins
	}
	return c
}

func (c AnalyzerConfig) resolutionFor(category string) domain.ResolutionStrategy {
	if s, ok := c.ResolutionByCategory[category]; ok {
		return s
	}
	return c.DefaultResolution
}

// BeliefAnalyzer turns stored memories into belief updates: extraction,
// reinforcement, conflict detection, and resolution. Each candidate is
// processed in its own transaction so one bad candidate never poisons the
// rest of a memory's analysis.
type BeliefAnalyzer struct {
	provider  domain.StoreProvider
	extractor domain.BeliefExtractionProvider
	graph     *GraphService
	clock     domain.Clock
	ids       domain.IDGenerator
	logger    *zap.Logger
	cfg       AnalyzerConfig
}

func NewBeliefAnalyzer(provider domain.StoreProvider, extractor domain.BeliefExtractionProvider, graph *GraphService, clock domain.Clock, ids domain.IDGenerator, cfg AnalyzerConfig, logger *zap.Logger) *BeliefAnalyzer {
	return &BeliefAnalyzer{
		provider:  provider,
		extractor: extractor,
		graph:     graph,
		clock:     clock,
		ids:       ids,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// Analyze runs the belief pipeline for one stored memory. Candidate failures
// are collected in the result's Errors and analysis continues; only a failed
// extraction aborts the whole run.
func (a *BeliefAnalyzer) Analyze(ctx context.Context, mem *domain.MemoryRecord) (*domain.BeliefUpdateResult, error) {
	result := &domain.BeliefUpdateResult{AgentID: mem.AgentID, MemoryID: mem.ID}

	candidates, err := a.extractCandidates(ctx, mem)
	if err != nil {
		return nil, err
	}
	for _, cand := range candidates {
		if err := a.provider.InTx(ctx, func(st domain.Stores) error {
			return a.applyCandidate(ctx, st, mem, cand, result)
		}); err != nil {
			a.logger.Warn("belief candidate failed",
				zap.String("memory_id", mem.ID),
				zap.String("statement", cand.Statement),
				zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", cand.Statement, err))
		}
	}

	if err := a.ConvergeDuplicates(ctx, mem.AgentID, result); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("convergence: %v", err))
	}
	return result, nil
}

// Preview classifies a memory's candidates without writing anything. New
// beliefs have no id yet, so they are reported by normalized statement.
func (a *BeliefAnalyzer) Preview(ctx context.Context, mem *domain.MemoryRecord) (*domain.BeliefUpdateResult, error) {
	result := &domain.BeliefUpdateResult{AgentID: mem.AgentID, MemoryID: mem.ID}

	candidates, err := a.extractCandidates(ctx, mem)
	if err != nil {
		return nil, err
	}
	st := a.provider.Stores()
	for _, cand := range candidates {
		verdict, err := a.classify(ctx, st, mem.AgentID, cand)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", cand.Statement, err))
			continue
		}
		switch {
		case verdict.reinforces != nil:
			result.ReinforcedBeliefIDs = append(result.ReinforcedBeliefIDs, verdict.reinforces.ID)
		case verdict.contradicts != nil:
			result.ConflictIDs = append(result.ConflictIDs, verdict.contradicts.ID)
		default:
			result.NewBeliefIDs = append(result.NewBeliefIDs, domain.NormalizeStatement(cand.Statement))
		}
	}
	return result, nil
}

func (a *BeliefAnalyzer) extractCandidates(ctx context.Context, mem *domain.MemoryRecord) ([]domain.BeliefCandidate, error) {
	raw, err := a.extractor.Extract(ctx, mem.Content, mem.AgentID, mem.Category.Primary)
	if err != nil {
		return nil, domain.WrapError(domain.KindBackendUnavailable, err, "belief extraction failed")
	}
	out := make([]domain.BeliefCandidate, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, cand := range raw {
		norm := domain.NormalizeStatement(cand.Statement)
		if norm == "" || cand.Confidence < a.cfg.MinCandidateConfidence {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		if cand.Category == "" {
			cand.Category = mem.Category.Primary
		}
		out = append(out, cand)
	}
	return out, nil
}

// verdict is one candidate's classification against its closest peers.
type verdict struct {
	reinforces  *domain.Belief
	contradicts *domain.Belief
	score       float64
	related     []domain.BeliefMatch
}

// peerRetrievalFloor is deliberately below RelatedThreshold: a contradicting
// statement can be lexically distant from the belief it contradicts, so peer
// retrieval casts a wider net than the classification thresholds.
const peerRetrievalFloor = 0.2

func (a *BeliefAnalyzer) classify(ctx context.Context, st domain.Stores, agentID string, cand domain.BeliefCandidate) (*verdict, error) {
	norm := domain.NormalizeStatement(cand.Statement)
	peers, err := st.Beliefs.FindSimilar(ctx, domain.BeliefSimilarityQuery{
		AgentID:    agentID,
		Statement:  cand.Statement,
		Normalized: norm,
		Threshold:  peerRetrievalFloor,
		Limit:      a.cfg.PeerLimit,
	})
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "find similar beliefs")
	}

	v := &verdict{}
	for i := range peers {
		peer := &peers[i].Belief
		score := peers[i].Score
		if sim, simErr := a.extractor.Similarity(ctx, cand.Statement, peer.Statement); simErr == nil && sim > score {
			score = sim
		}
		contra, err := a.extractor.Contradicts(ctx, cand.Statement, peer.Statement, cand.Category, peer.Category)
		if err != nil {
			return nil, domain.WrapError(domain.KindBackendUnavailable, err, "contradiction check")
		}
		if contra {
			// The strongest contradiction wins over any reinforcement.
			if v.contradicts == nil || score > v.score {
				v.contradicts = peer
				v.score = score
			}
			continue
		}
		if score >= a.cfg.ReinforceThreshold && v.contradicts == nil {
			if v.reinforces == nil || score > v.score {
				v.reinforces = peer
				v.score = score
			}
			continue
		}
		if score >= a.cfg.RelatedThreshold {
			v.related = append(v.related, domain.BeliefMatch{Belief: *peer, Score: score})
		}
	}
	if v.contradicts != nil {
		v.reinforces = nil
	}
	return v, nil
}

func (a *BeliefAnalyzer) applyCandidate(ctx context.Context, st domain.Stores, mem *domain.MemoryRecord, cand domain.BeliefCandidate, result *domain.BeliefUpdateResult) error {
	v, err := a.classify(ctx, st, mem.AgentID, cand)
	if err != nil {
		return err
	}
	switch {
	case v.reinforces != nil:
		return a.reinforce(ctx, st, v.reinforces, mem.ID, cand.Confidence, result)
	case v.contradicts != nil:
		return a.resolveContradiction(ctx, st, mem, cand, v.contradicts, result)
	default:
		return a.createBelief(ctx, st, mem, cand, v.related, result)
	}
}

// reinforce folds a fresh observation into an existing belief. A memory
// already in the evidence set changes nothing, which makes retries safe.
func (a *BeliefAnalyzer) reinforce(ctx context.Context, st domain.Stores, belief *domain.Belief, memoryID string, observed float64, result *domain.BeliefUpdateResult) error {
	if !belief.AddEvidence(memoryID) {
		result.ReinforcedBeliefIDs = append(result.ReinforcedBeliefIDs, belief.ID)
		return nil
	}
	belief.ReinforcementCount++
	belief.Confidence = ReinforcedConfidence(belief.Confidence, observed, belief.ReinforcementCount)
	belief.LastUpdated = a.clock.Now()
	if err := st.Beliefs.Update(ctx, belief); err != nil {
		return domain.WrapError(domain.KindStorageFailure, err, "reinforce belief %s", belief.ID)
	}
	result.ReinforcedBeliefIDs = append(result.ReinforcedBeliefIDs, belief.ID)
	return nil
}

// createBelief stores a new belief, reusing an existing active duplicate when
// the normalized statement already exists, and links sufficiently similar
// peers with RELATES_TO edges.
func (a *BeliefAnalyzer) createBelief(ctx context.Context, st domain.Stores, mem *domain.MemoryRecord, cand domain.BeliefCandidate, related []domain.BeliefMatch, result *domain.BeliefUpdateResult) error {
	norm := domain.NormalizeStatement(cand.Statement)
	exact, err := st.Beliefs.FindSimilar(ctx, domain.BeliefSimilarityQuery{
		AgentID:    mem.AgentID,
		Statement:  cand.Statement,
		Normalized: norm,
		Threshold:  1,
		Limit:      1,
	})
	if err != nil {
		return domain.WrapError(domain.KindStorageFailure, err, "duplicate lookup")
	}
	if len(exact) > 0 {
		return a.reinforce(ctx, st, &exact[0].Belief, mem.ID, cand.Confidence, result)
	}

	now := a.clock.Now()
	belief := &domain.Belief{
		ID:                 a.ids.NewID(),
		AgentID:            mem.AgentID,
		Statement:          cand.Statement,
		Confidence:         clampConfidence(cand.Confidence),
		Category:           cand.Category,
		Tags:               domain.DedupeTags(cand.Tags),
		EvidenceMemoryIDs:  []string{mem.ID},
		ReinforcementCount: 1,
		Active:             true,
		CreatedAt:          now,
		LastUpdated:        now,
		Version:            1,
	}
	if err := belief.Validate(); err != nil {
		return err
	}
	if err := st.Beliefs.Store(ctx, belief); err != nil {
		return domain.WrapError(domain.KindStorageFailure, err, "store belief")
	}
	result.NewBeliefIDs = append(result.NewBeliefIDs, belief.ID)

	for _, peer := range related {
		err := a.graph.createIn(ctx, st, &domain.BeliefRelationship{
			ID:             a.ids.NewID(),
			AgentID:        mem.AgentID,
			SourceBeliefID: belief.ID,
			TargetBeliefID: peer.Belief.ID,
			Type:           domain.RelationRelatesTo,
			Strength:       peer.Score,
			Active:         true,
			CreatedAt:      now,
			LastUpdated:    now,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicateActiveEdge) {
			return err
		}
	}
	return nil
}

func (a *BeliefAnalyzer) resolveContradiction(ctx context.Context, st domain.Stores, mem *domain.MemoryRecord, cand domain.BeliefCandidate, old *domain.Belief, result *domain.BeliefUpdateResult) error {
	strategy := a.cfg.resolutionFor(old.Category)
	now := a.clock.Now()

	conflict := &domain.BeliefConflict{
		ID:                  a.ids.NewID(),
		AgentID:             mem.AgentID,
		BeliefIDs:           []string{old.ID},
		NewEvidenceMemoryID: mem.ID,
		Description:         fmt.Sprintf("%q contradicts %q", cand.Statement, old.Statement),
		ConflictType:        domain.ConflictDirectContradiction,
		Severity:            domain.SeverityFor(old.Confidence, cand.Confidence),
		DetectedAt:          now,
		AutoResolvable:      strategy != domain.ResolutionManualReview,
	}

	var err error
	switch strategy {
	case domain.ResolutionNewerWins:
		err = a.resolveNewerWins(ctx, st, mem, cand, old, conflict, result)
	case domain.ResolutionHigherConfidence:
		err = a.resolveHigherConfidence(ctx, st, mem, cand, old, conflict, result)
	case domain.ResolutionMerge:
		err = a.resolveMerge(ctx, st, mem, cand, old, conflict, result)
	default:
		err = a.resolveManualReview(ctx, st, mem, cand, old, conflict, result)
	}
	if err != nil {
		return err
	}
	if err := conflict.Validate(); err != nil {
		return err
	}
	if err := st.Conflicts.Store(ctx, conflict); err != nil {
		return domain.WrapError(domain.KindStorageFailure, err, "store conflict")
	}
	result.ConflictIDs = append(result.ConflictIDs, conflict.ID)
	a.logger.Info("belief conflict",
		zap.String("agent_id", mem.AgentID),
		zap.String("conflict_id", conflict.ID),
		zap.String("strategy", string(strategy)),
		zap.Bool("resolved", conflict.Resolved))
	return nil
}

// resolveNewerWins deprecates the old belief in favor of the new evidence.
func (a *BeliefAnalyzer) resolveNewerWins(ctx context.Context, st domain.Stores, mem *domain.MemoryRecord, cand domain.BeliefCandidate, old *domain.Belief, conflict *domain.BeliefConflict, result *domain.BeliefUpdateResult) error {
	newBelief, err := a.storeResolutionBelief(ctx, st, mem, cand, true)
	if err != nil {
		return err
	}
	if _, err := st.Beliefs.Deactivate(ctx, old.ID); err != nil {
		return domain.WrapError(domain.KindStorageFailure, err, "deactivate belief %s", old.ID)
	}
	if err := a.supersede(ctx, st, mem.AgentID, newBelief.ID, old.ID, "newer evidence from memory "+mem.ID); err != nil {
		return err
	}
	a.markResolved(conflict, newBelief.ID, domain.ResolutionNewerWins)
	result.NewBeliefIDs = append(result.NewBeliefIDs, newBelief.ID)
	result.DeprecatedBeliefIDs = append(result.DeprecatedBeliefIDs, old.ID)
	return nil
}

// resolveHigherConfidence keeps whichever side is held more strongly. The
// loser is stored (or kept) inactive so the evidence trail survives.
func (a *BeliefAnalyzer) resolveHigherConfidence(ctx context.Context, st domain.Stores, mem *domain.MemoryRecord, cand domain.BeliefCandidate, old *domain.Belief, conflict *domain.BeliefConflict, result *domain.BeliefUpdateResult) error {
	newWins := cand.Confidence > old.Confidence
	newBelief, err := a.storeResolutionBelief(ctx, st, mem, cand, newWins)
	if err != nil {
		return err
	}
	winnerID, loserID := newBelief.ID, old.ID
	if !newWins {
		winnerID, loserID = old.ID, newBelief.ID
	}
	if newWins {
		if _, err := st.Beliefs.Deactivate(ctx, old.ID); err != nil {
			return domain.WrapError(domain.KindStorageFailure, err, "deactivate belief %s", old.ID)
		}
		result.DeprecatedBeliefIDs = append(result.DeprecatedBeliefIDs, old.ID)
	}
	if err := a.supersede(ctx, st, mem.AgentID, winnerID, loserID, "lower confidence"); err != nil {
		return err
	}
	a.markResolved(conflict, newBelief.ID, domain.ResolutionHigherConfidence)
	result.NewBeliefIDs = append(result.NewBeliefIDs, newBelief.ID)
	return nil
}

// resolveMerge rewrites the existing belief to the merged statement. Without
// a merging extractor the conflict falls back to manual review.
func (a *BeliefAnalyzer) resolveMerge(ctx context.Context, st domain.Stores, mem *domain.MemoryRecord, cand domain.BeliefCandidate, old *domain.Belief, conflict *domain.BeliefConflict, result *domain.BeliefUpdateResult) error {
	merger, ok := a.extractor.(domain.StatementMerger)
	if !ok {
		return a.resolveManualReview(ctx, st, mem, cand, old, conflict, result)
	}
	merged, err := merger.Merge(ctx, old.Statement, cand.Statement)
	if err != nil || domain.NormalizeStatement(merged) == "" {
		return a.resolveManualReview(ctx, st, mem, cand, old, conflict, result)
	}
	old.Statement = merged
	if cand.Confidence > old.Confidence {
		old.Confidence = clampConfidence(cand.Confidence)
	}
	if old.AddEvidence(mem.ID) {
		old.ReinforcementCount++
	}
	old.LastUpdated = a.clock.Now()
	if err := st.Beliefs.Update(ctx, old); err != nil {
		return domain.WrapError(domain.KindStorageFailure, err, "merge belief %s", old.ID)
	}
	a.markResolved(conflict, old.ID, domain.ResolutionMerge)
	result.ReinforcedBeliefIDs = append(result.ReinforcedBeliefIDs, old.ID)
	return nil
}

// resolveManualReview records the tension and leaves both beliefs active for
// a human to settle.
func (a *BeliefAnalyzer) resolveManualReview(ctx context.Context, st domain.Stores, mem *domain.MemoryRecord, cand domain.BeliefCandidate, old *domain.Belief, conflict *domain.BeliefConflict, result *domain.BeliefUpdateResult) error {
	newBelief, err := a.storeResolutionBelief(ctx, st, mem, cand, true)
	if err != nil {
		return err
	}
	now := a.clock.Now()
	err = a.graph.createIn(ctx, st, &domain.BeliefRelationship{
		ID:             a.ids.NewID(),
		AgentID:        mem.AgentID,
		SourceBeliefID: newBelief.ID,
		TargetBeliefID: old.ID,
		Type:           domain.RelationContradicts,
		Strength:       1,
		Active:         true,
		CreatedAt:      now,
		LastUpdated:    now,
	})
	if err != nil && !errors.Is(err, store.ErrDuplicateActiveEdge) {
		return err
	}
	conflict.BeliefIDs = append(conflict.BeliefIDs, newBelief.ID)
	conflict.AutoResolvable = false
	result.NewBeliefIDs = append(result.NewBeliefIDs, newBelief.ID)
	return nil
}

func (a *BeliefAnalyzer) storeResolutionBelief(ctx context.Context, st domain.Stores, mem *domain.MemoryRecord, cand domain.BeliefCandidate, active bool) (*domain.Belief, error) {
	now := a.clock.Now()
	b := &domain.Belief{
		ID:                 a.ids.NewID(),
		AgentID:            mem.AgentID,
		Statement:          cand.Statement,
		Confidence:         clampConfidence(cand.Confidence),
		Category:           cand.Category,
		Tags:               domain.DedupeTags(cand.Tags),
		EvidenceMemoryIDs:  []string{mem.ID},
		ReinforcementCount: 1,
		Active:             active,
		CreatedAt:          now,
		LastUpdated:        now,
		Version:            1,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := st.Beliefs.Store(ctx, b); err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "store belief")
	}
	return b, nil
}

// supersede emits the CONTRADICTS tension edge and the SUPERSEDES lineage
// edge from winner to loser, effective immediately.
func (a *BeliefAnalyzer) supersede(ctx context.Context, st domain.Stores, agentID, winnerID, loserID, reason string) error {
	now := a.clock.Now()
	edges := []*domain.BeliefRelationship{
		{
			ID:             a.ids.NewID(),
			AgentID:        agentID,
			SourceBeliefID: winnerID,
			TargetBeliefID: loserID,
			Type:           domain.RelationContradicts,
			Strength:       1,
			Active:         true,
			CreatedAt:      now,
			LastUpdated:    now,
		},
		{
			ID:                a.ids.NewID(),
			AgentID:           agentID,
			SourceBeliefID:    winnerID,
			TargetBeliefID:    loserID,
			Type:              domain.RelationSupersedes,
			Strength:          1,
			EffectiveFrom:     &now,
			DeprecationReason: reason,
			Active:            true,
			CreatedAt:         now,
			LastUpdated:       now,
		},
	}
	for _, e := range edges {
		if err := a.graph.createIn(ctx, st, e); err != nil && !errors.Is(err, store.ErrDuplicateActiveEdge) {
			return err
		}
	}
	return nil
}

func (a *BeliefAnalyzer) markResolved(conflict *domain.BeliefConflict, winnerID string, strategy domain.ResolutionStrategy) {
	now := a.clock.Now()
	conflict.BeliefIDs = append(conflict.BeliefIDs, winnerID)
	conflict.Resolved = true
	conflict.ResolvedAt = &now
	conflict.ResolutionStrategy = strategy
}

// ConvergeDuplicates collapses active beliefs sharing a normalized statement
// into the oldest one: evidence is unioned, confidence keeps the maximum, and
// each duplicate is deactivated behind an UPDATES edge so lineage survives.
func (a *BeliefAnalyzer) ConvergeDuplicates(ctx context.Context, agentID string, result *domain.BeliefUpdateResult) error {
	return a.provider.InTx(ctx, func(st domain.Stores) error {
		beliefs, err := st.Beliefs.ForAgent(ctx, agentID, false)
		if err != nil {
			return domain.WrapError(domain.KindStorageFailure, err, "list beliefs")
		}
		groups := make(map[string][]domain.Belief)
		for _, b := range beliefs {
			norm := domain.NormalizeStatement(b.Statement)
			groups[norm] = append(groups[norm], b)
		}
		norms := make([]string, 0, len(groups))
		for norm, group := range groups {
			if len(group) > 1 {
				norms = append(norms, norm)
			}
		}
		sort.Strings(norms)

		for _, norm := range norms {
			group := groups[norm]
			sort.Slice(group, func(i, j int) bool {
				if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
					return group[i].CreatedAt.Before(group[j].CreatedAt)
				}
				return group[i].ID < group[j].ID
			})
			survivor := group[0]
			for _, dup := range group[1:] {
				for _, ev := range dup.EvidenceMemoryIDs {
					survivor.AddEvidence(ev)
				}
				if dup.Confidence > survivor.Confidence {
					survivor.Confidence = dup.Confidence
				}
				survivor.ReinforcementCount += dup.ReinforcementCount
				if _, err := st.Beliefs.Deactivate(ctx, dup.ID); err != nil {
					return domain.WrapError(domain.KindStorageFailure, err, "deactivate duplicate %s", dup.ID)
				}
				now := a.clock.Now()
				err := a.graph.createIn(ctx, st, &domain.BeliefRelationship{
					ID:                a.ids.NewID(),
					AgentID:           agentID,
					SourceBeliefID:    survivor.ID,
					TargetBeliefID:    dup.ID,
					Type:              domain.RelationUpdates,
					Strength:          1,
					EffectiveFrom:     &now,
					DeprecationReason: "duplicate of " + survivor.ID,
					Active:            true,
					CreatedAt:         now,
					LastUpdated:       now,
				})
				if err != nil && !errors.Is(err, store.ErrDuplicateActiveEdge) {
					return err
				}
				if result != nil {
					result.DeprecatedBeliefIDs = append(result.DeprecatedBeliefIDs, dup.ID)
				}
			}
			survivor.LastUpdated = a.clock.Now()
			if err := st.Beliefs.Update(ctx, &survivor); err != nil {
				return domain.WrapError(domain.KindStorageFailure, err, "update survivor %s", survivor.ID)
			}
		}
		return nil
	})
}

// Beliefs lists an agent's beliefs, optionally including deactivated ones.
func (a *BeliefAnalyzer) Beliefs(ctx context.Context, agentID string, includeInactive bool) ([]domain.Belief, error) {
	out, err := a.provider.Stores().Beliefs.ForAgent(ctx, agentID, includeInactive)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "list beliefs for agent %s", agentID)
	}
	return out, nil
}

// Belief returns one belief by id.
func (a *BeliefAnalyzer) Belief(ctx context.Context, id string) (*domain.Belief, error) {
	b, err := a.provider.Stores().Beliefs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.WrapError(domain.KindNotFound, err, "belief %s: not found", id)
		}
		return nil, domain.WrapError(domain.KindStorageFailure, err, "get belief %s", id)
	}
	return b, nil
}

// SetBeliefActive deactivates or reactivates a belief by hand. It returns
// false when the belief was already in the requested state.
func (a *BeliefAnalyzer) SetBeliefActive(ctx context.Context, id string, active bool) (bool, error) {
	beliefs := a.provider.Stores().Beliefs
	if _, err := beliefs.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, domain.WrapError(domain.KindNotFound, err, "belief %s: not found", id)
		}
		return false, domain.WrapError(domain.KindStorageFailure, err, "get belief %s", id)
	}
	var (
		changed bool
		err     error
	)
	if active {
		changed, err = beliefs.Reactivate(ctx, id)
	} else {
		changed, err = beliefs.Deactivate(ctx, id)
	}
	if err != nil {
		return false, domain.WrapError(domain.KindStorageFailure, err, "set belief %s active=%t", id, active)
	}
	return changed, nil
}

// SearchBeliefs finds active beliefs whose statement contains text.
func (a *BeliefAnalyzer) SearchBeliefs(ctx context.Context, agentID, text string, limit int) ([]domain.Belief, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "search text must not be empty")
	}
	if limit < 0 {
		return nil, domain.WrapError(domain.KindInvalidInput, ErrInvalidLimit, "limit must be >= 0, got %d", limit)
	}
	out, err := a.provider.Stores().Beliefs.Search(ctx, text, agentID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "search beliefs")
	}
	return out, nil
}

// Conflicts lists an agent's conflicts, optionally only the unresolved ones.
func (a *BeliefAnalyzer) Conflicts(ctx context.Context, agentID string, unresolvedOnly bool) ([]domain.BeliefConflict, error) {
	out, err := a.provider.Stores().Conflicts.ForAgent(ctx, agentID, unresolvedOnly)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageFailure, err, "list conflicts for agent %s", agentID)
	}
	return out, nil
}

// ResolveConflict settles a stored conflict with the chosen strategy. For
// manual resolution the caller names the winner; every other party is
// deactivated behind a supersession edge.
func (a *BeliefAnalyzer) ResolveConflict(ctx context.Context, conflictID, winnerBeliefID string, strategy domain.ResolutionStrategy) (*domain.BeliefConflict, error) {
	if !domain.ValidResolutionStrategy(string(strategy)) {
		return nil, domain.Errorf(domain.KindInvalidInput, "unknown resolution strategy %q", strategy)
	}
	var resolved *domain.BeliefConflict
	err := a.provider.InTx(ctx, func(st domain.Stores) error {
		conflict, err := st.Conflicts.Get(ctx, conflictID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.WrapError(domain.KindNotFound, err, "conflict %s: not found", conflictID)
			}
			return domain.WrapError(domain.KindStorageFailure, err, "get conflict %s", conflictID)
		}
		if conflict.Resolved {
			resolved = conflict
			return nil
		}
		winnerID, err := a.pickWinner(ctx, st, conflict, winnerBeliefID, strategy)
		if err != nil {
			return err
		}
		for _, id := range conflict.BeliefIDs {
			if id == winnerID {
				continue
			}
			if _, err := st.Beliefs.Deactivate(ctx, id); err != nil {
				return domain.WrapError(domain.KindStorageFailure, err, "deactivate belief %s", id)
			}
			if err := a.supersede(ctx, st, conflict.AgentID, winnerID, id, "conflict "+conflict.ID+" resolved"); err != nil {
				return err
			}
		}
		if _, err := st.Conflicts.Resolve(ctx, conflict.ID, strategy, a.clock.Now()); err != nil {
			return domain.WrapError(domain.KindStorageFailure, err, "resolve conflict %s", conflict.ID)
		}
		resolved, err = st.Conflicts.Get(ctx, conflict.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (a *BeliefAnalyzer) pickWinner(ctx context.Context, st domain.Stores, conflict *domain.BeliefConflict, winnerBeliefID string, strategy domain.ResolutionStrategy) (string, error) {
	if winnerBeliefID != "" {
		if !conflict.Involves(winnerBeliefID) {
			return "", domain.Errorf(domain.KindInvalidInput, "belief %s is not a party to conflict %s", winnerBeliefID, conflict.ID)
		}
		return winnerBeliefID, nil
	}
	parties := make([]*domain.Belief, 0, len(conflict.BeliefIDs))
	for _, id := range conflict.BeliefIDs {
		b, err := st.Beliefs.Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return "", domain.WrapError(domain.KindStorageFailure, err, "get belief %s", id)
		}
		parties = append(parties, b)
	}
	if len(parties) == 0 {
		return "", domain.Errorf(domain.KindConflictUnresolved, "conflict %s has no surviving beliefs", conflict.ID)
	}
	winner := parties[0]
	for _, b := range parties[1:] {
		switch strategy {
		case domain.ResolutionHigherConfidence:
			if b.Confidence > winner.Confidence {
				winner = b
			}
		default:
			if b.CreatedAt.After(winner.CreatedAt) {
				winner = b
			}
		}
	}
	if strategy == domain.ResolutionManualReview {
		return "", domain.Errorf(domain.KindConflictUnresolved, "manual review requires an explicit winner")
	}
	return winner.ID, nil
}
