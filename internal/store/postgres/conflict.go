package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doxa-ai/doxa/internal/domain"
)

const conflictColumns = `id, agent_id, belief_ids, new_evidence_memory_id, description,
	conflict_type, severity, detected_at, resolved, resolved_at, resolution_strategy,
	auto_resolvable`

type ConflictStore struct {
	db querier
}

func scanConflict(row scannable) (*domain.BeliefConflict, error) {
	var c domain.BeliefConflict
	err := row.Scan(&c.ID, &c.AgentID, &c.BeliefIDs, &c.NewEvidenceMemoryID,
		&c.Description, &c.ConflictType, &c.Severity, &c.DetectedAt,
		&c.Resolved, &c.ResolvedAt, &c.ResolutionStrategy, &c.AutoResolvable)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func (s *ConflictStore) Store(ctx context.Context, c *domain.BeliefConflict) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO belief_conflicts (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			agent_id = EXCLUDED.agent_id,
			belief_ids = EXCLUDED.belief_ids,
			new_evidence_memory_id = EXCLUDED.new_evidence_memory_id,
			description = EXCLUDED.description,
			conflict_type = EXCLUDED.conflict_type,
			severity = EXCLUDED.severity,
			detected_at = EXCLUDED.detected_at,
			resolved = EXCLUDED.resolved,
			resolved_at = EXCLUDED.resolved_at,
			resolution_strategy = EXCLUDED.resolution_strategy,
			auto_resolvable = EXCLUDED.auto_resolvable`, conflictColumns),
		c.ID, c.AgentID, c.BeliefIDs, c.NewEvidenceMemoryID, c.Description,
		c.ConflictType, c.Severity, c.DetectedAt, c.Resolved, c.ResolvedAt,
		c.ResolutionStrategy, c.AutoResolvable)
	return mapError(err)
}

func (s *ConflictStore) Get(ctx context.Context, id string) (*domain.BeliefConflict, error) {
	row := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM belief_conflicts WHERE id = $1`, conflictColumns), id)
	return scanConflict(row)
}

func (s *ConflictStore) ForAgent(ctx context.Context, agentID string, unresolvedOnly bool) ([]domain.BeliefConflict, error) {
	conditions := []string{"agent_id = $1"}
	if unresolvedOnly {
		conditions = append(conditions, "NOT resolved")
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM belief_conflicts WHERE %s ORDER BY detected_at DESC, id`,
		conflictColumns, strings.Join(conditions, " AND ")), agentID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]domain.BeliefConflict, 0)
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Resolve is idempotent: an already-resolved or missing conflict returns
// false without error.
func (s *ConflictStore) Resolve(ctx context.Context, id string, strategy domain.ResolutionStrategy, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE belief_conflicts
		SET resolved = TRUE, resolved_at = $2, resolution_strategy = $3
		WHERE id = $1 AND NOT resolved`, id, at, strategy)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *ConflictStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM belief_conflicts WHERE id = $1`, id)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}
