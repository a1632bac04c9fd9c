package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/search"
	"github.com/doxa-ai/doxa/internal/store"
)

const beliefColumns = `id, agent_id, statement, confidence, category, tags,
	evidence_memory_ids, reinforcement_count, active, created_at, last_updated, version`

// similarityFetchLimit bounds how many active beliefs are pulled for
// in-process statement scoring.
const similarityFetchLimit = 500

type BeliefStore struct {
	db querier
}

func scanBelief(row scannable) (*domain.Belief, error) {
	var b domain.Belief
	err := row.Scan(&b.ID, &b.AgentID, &b.Statement, &b.Confidence, &b.Category,
		&b.Tags, &b.EvidenceMemoryIDs, &b.ReinforcementCount, &b.Active,
		&b.CreatedAt, &b.LastUpdated, &b.Version)
	if err != nil {
		return nil, mapError(err)
	}
	return &b, nil
}

func (s *BeliefStore) Store(ctx context.Context, b *domain.Belief) error {
	return s.StoreMany(ctx, []*domain.Belief{b})
}

func (s *BeliefStore) StoreMany(ctx context.Context, bs []*domain.Belief) error {
	if len(bs) == 0 {
		return nil
	}
	args := make([]any, 0, len(bs)*13)
	tuples := make([]string, 0, len(bs))
	for _, b := range bs {
		base := len(args)
		tuples = append(tuples, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
			base+10, base+11, base+12, base+13))
		args = append(args, b.ID, b.AgentID, b.Statement, domain.NormalizeStatement(b.Statement),
			b.Confidence, b.Category, b.Tags, b.EvidenceMemoryIDs, b.ReinforcementCount,
			b.Active, b.CreatedAt, b.LastUpdated, b.Version)
	}
	query := fmt.Sprintf(`
		INSERT INTO beliefs (id, agent_id, statement, normalized_statement, confidence,
			category, tags, evidence_memory_ids, reinforcement_count, active,
			created_at, last_updated, version)
		VALUES %s
		ON CONFLICT (id) DO UPDATE SET
			agent_id = EXCLUDED.agent_id,
			statement = EXCLUDED.statement,
			normalized_statement = EXCLUDED.normalized_statement,
			confidence = EXCLUDED.confidence,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			evidence_memory_ids = EXCLUDED.evidence_memory_ids,
			reinforcement_count = EXCLUDED.reinforcement_count,
			active = EXCLUDED.active,
			created_at = EXCLUDED.created_at,
			last_updated = EXCLUDED.last_updated,
			version = EXCLUDED.version`,
		strings.Join(tuples, ", "))
	_, err := s.db.Exec(ctx, query, args...)
	return mapError(err)
}

func (s *BeliefStore) Get(ctx context.Context, id string) (*domain.Belief, error) {
	row := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM beliefs WHERE id = $1`, beliefColumns), id)
	return scanBelief(row)
}

// Update is a compare-and-swap on version, mirroring the memory store.
func (s *BeliefStore) Update(ctx context.Context, b *domain.Belief) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE beliefs SET
			agent_id = $1, statement = $2, normalized_statement = $3, confidence = $4,
			category = $5, tags = $6, evidence_memory_ids = $7, reinforcement_count = $8,
			active = $9, created_at = $10, last_updated = $11, version = version + 1
		WHERE id = $12 AND version = $13`,
		b.AgentID, b.Statement, domain.NormalizeStatement(b.Statement), b.Confidence,
		b.Category, b.Tags, b.EvidenceMemoryIDs, b.ReinforcementCount,
		b.Active, b.CreatedAt, b.LastUpdated, b.ID, b.Version)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM beliefs WHERE id = $1)`, b.ID).Scan(&exists); err != nil {
			return mapError(err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	b.Version++
	return nil
}

func (s *BeliefStore) ForAgent(ctx context.Context, agentID string, includeInactive bool) ([]domain.Belief, error) {
	conditions := []string{"agent_id = $1"}
	args := []any{agentID}
	if !includeInactive {
		conditions = append(conditions, "active")
	}
	return s.query(ctx, conditions, args, 0)
}

func (s *BeliefStore) InCategory(ctx context.Context, category, agentID string, includeInactive bool) ([]domain.Belief, error) {
	conditions := []string{"category = $1"}
	args := []any{category}
	if agentID != "" {
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", len(args)+1))
		args = append(args, agentID)
	}
	if !includeInactive {
		conditions = append(conditions, "active")
	}
	return s.query(ctx, conditions, args, 0)
}

func (s *BeliefStore) Search(ctx context.Context, text, agentID string, limit int) ([]domain.Belief, error) {
	needle := strings.TrimSpace(text)
	if needle == "" {
		return []domain.Belief{}, nil
	}
	conditions := []string{"active", "statement ILIKE $1"}
	args := []any{"%" + needle + "%"}
	if agentID != "" {
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", len(args)+1))
		args = append(args, agentID)
	}
	return s.query(ctx, conditions, args, limit)
}

// FindSimilar matches beliefs against a statement. Threshold >= 1 is an exact
// normalized-statement lookup served straight from the index; anything lower
// pulls the agent's active beliefs and scores them in process, so ranking is
// identical across backends.
func (s *BeliefStore) FindSimilar(ctx context.Context, q domain.BeliefSimilarityQuery) ([]domain.BeliefMatch, error) {
	normalized := q.Normalized
	if normalized == "" {
		normalized = domain.NormalizeStatement(q.Statement)
	}

	if q.Threshold >= 1 {
		exact, err := s.query(ctx,
			[]string{"agent_id = $1", "active", "normalized_statement = $2"},
			[]any{q.AgentID, normalized}, q.Limit)
		if err != nil {
			return nil, err
		}
		matches := make([]domain.BeliefMatch, 0, len(exact))
		for _, b := range exact {
			matches = append(matches, domain.BeliefMatch{Belief: b, Score: 1})
		}
		return matches, nil
	}

	candidates, err := s.query(ctx,
		[]string{"agent_id = $1", "active"}, []any{q.AgentID}, similarityFetchLimit)
	if err != nil {
		return nil, err
	}
	matches := make([]domain.BeliefMatch, 0)
	for _, b := range candidates {
		score := search.StatementScore(normalized, b.Statement)
		if score < q.Threshold {
			continue
		}
		matches = append(matches, domain.BeliefMatch{Belief: b, Score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Belief.ID < matches[j].Belief.ID
	})
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func (s *BeliefStore) Deactivate(ctx context.Context, id string) (bool, error) {
	return s.setActive(ctx, id, false)
}

func (s *BeliefStore) Reactivate(ctx context.Context, id string) (bool, error) {
	return s.setActive(ctx, id, true)
}

func (s *BeliefStore) setActive(ctx context.Context, id string, active bool) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE beliefs SET active = $2 WHERE id = $1 AND active <> $2`, id, active)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *BeliefStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM beliefs WHERE id = $1`, id)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *BeliefStore) query(ctx context.Context, conditions []string, args []any, limit int) ([]domain.Belief, error) {
	query := fmt.Sprintf(`SELECT %s FROM beliefs WHERE %s ORDER BY created_at DESC, id`,
		beliefColumns, strings.Join(conditions, " AND "))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]domain.Belief, 0)
	for rows.Next() {
		b, err := scanBelief(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
