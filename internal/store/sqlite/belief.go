package sqlite

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

const similarityFetchLimit = 500

type BeliefStore struct {
	db querier
}

func scanBelief(row scannable) (*domain.Belief, error) {
	var (
		b           domain.Belief
		tags        string
		evidence    string
		createdAt   int64
		lastUpdated int64
	)
	err := row.Scan(&b.ID, &b.AgentID, &b.Statement, &b.Confidence, &b.Category,
		&tags, &evidence, &b.ReinforcementCount, &b.Active, &createdAt, &lastUpdated, &b.Version)
	if err != nil {
		return nil, mapError(err)
	}
	if err := decodeJSON(tags, &b.Tags); err != nil {
		return nil, err
	}
	if err := decodeJSON(evidence, &b.EvidenceMemoryIDs); err != nil {
		return nil, err
	}
	b.CreatedAt = decodeTime(createdAt)
	b.LastUpdated = decodeTime(lastUpdated)
	return &b, nil
}

func (s *BeliefStore) Store(ctx context.Context, b *domain.Belief) error {
	tags, err := encodeJSON(b.Tags)
	if err != nil {
		return err
	}
	evidence, err := encodeJSON(b.EvidenceMemoryIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO beliefs (id, agent_id, statement, normalized_statement, confidence,
			category, tags, evidence_memory_ids, reinforcement_count, active,
			created_at, last_updated, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			agent_id = excluded.agent_id,
			statement = excluded.statement,
			normalized_statement = excluded.normalized_statement,
			confidence = excluded.confidence,
			category = excluded.category,
			tags = excluded.tags,
			evidence_memory_ids = excluded.evidence_memory_ids,
			reinforcement_count = excluded.reinforcement_count,
			active = excluded.active,
			created_at = excluded.created_at,
			last_updated = excluded.last_updated,
			version = excluded.version`,
		b.ID, b.AgentID, b.Statement, domain.NormalizeStatement(b.Statement), b.Confidence,
		b.Category, tags, evidence, b.ReinforcementCount, b.Active,
		encodeTime(b.CreatedAt), encodeTime(b.LastUpdated), b.Version)
	return mapError(err)
}

func (s *BeliefStore) StoreMany(ctx context.Context, bs []*domain.Belief) error {
	for _, b := range bs {
		if err := s.Store(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *BeliefStore) Get(ctx context.Context, id string) (*domain.Belief, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM beliefs WHERE id = ?`, beliefColumns), id)
	return scanBelief(row)
}

func (s *BeliefStore) Update(ctx context.Context, b *domain.Belief) error {
	tags, err := encodeJSON(b.Tags)
	if err != nil {
		return err
	}
	evidence, err := encodeJSON(b.EvidenceMemoryIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE beliefs SET
			agent_id = ?, statement = ?, normalized_statement = ?, confidence = ?,
			category = ?, tags = ?, evidence_memory_ids = ?, reinforcement_count = ?,
			active = ?, created_at = ?, last_updated = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		b.AgentID, b.Statement, domain.NormalizeStatement(b.Statement), b.Confidence,
		b.Category, tags, evidence, b.ReinforcementCount, b.Active,
		encodeTime(b.CreatedAt), encodeTime(b.LastUpdated), b.ID, b.Version)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM beliefs WHERE id = ?)`, b.ID).Scan(&exists); err != nil {
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
	conditions := []string{"agent_id = ?"}
	args := []any{agentID}
	if !includeInactive {
		conditions = append(conditions, "active = 1")
	}
	return s.query(ctx, conditions, args, 0)
}

func (s *BeliefStore) InCategory(ctx context.Context, category, agentID string, includeInactive bool) ([]domain.Belief, error) {
	conditions := []string{"category = ?"}
	args := []any{category}
	if agentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, agentID)
	}
	if !includeInactive {
		conditions = append(conditions, "active = 1")
	}
	return s.query(ctx, conditions, args, 0)
}

func (s *BeliefStore) Search(ctx context.Context, text, agentID string, limit int) ([]domain.Belief, error) {
	needle := strings.TrimSpace(text)
	if needle == "" {
		return []domain.Belief{}, nil
	}
	conditions := []string{"active = 1", "statement LIKE ? ESCAPE '\\'"}
	args := []any{"%" + escapeLike(needle) + "%"}
	if agentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, agentID)
	}
	return s.query(ctx, conditions, args, limit)
}

// FindSimilar serves exact normalized lookups from the index and scores the
// similarity mode in process, the same way the other backends do.
func (s *BeliefStore) FindSimilar(ctx context.Context, q domain.BeliefSimilarityQuery) ([]domain.BeliefMatch, error) {
	normalized := q.Normalized
	if normalized == "" {
		normalized = domain.NormalizeStatement(q.Statement)
	}

	if q.Threshold >= 1 {
		exact, err := s.query(ctx,
			[]string{"agent_id = ?", "active = 1", "normalized_statement = ?"},
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
		[]string{"agent_id = ?", "active = 1"}, []any{q.AgentID}, similarityFetchLimit)
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
	return s.setActive(ctx, id, 0)
}

func (s *BeliefStore) Reactivate(ctx context.Context, id string) (bool, error) {
	return s.setActive(ctx, id, 1)
}

func (s *BeliefStore) setActive(ctx context.Context, id string, active int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE beliefs SET active = ? WHERE id = ? AND active <> ?`, active, id, active)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *BeliefStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM beliefs WHERE id = ?`, id)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *BeliefStore) query(ctx context.Context, conditions []string, args []any, limit int) ([]domain.Belief, error) {
	query := fmt.Sprintf(`SELECT %s FROM beliefs WHERE %s ORDER BY created_at DESC, id`,
		beliefColumns, strings.Join(conditions, " AND "))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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
