package sqlite

import (
	"context"
	"database/sql"
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
	var (
		c          domain.BeliefConflict
		beliefIDs  string
		detectedAt int64
		resolvedAt sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.AgentID, &beliefIDs, &c.NewEvidenceMemoryID,
		&c.Description, &c.ConflictType, &c.Severity, &detectedAt,
		&c.Resolved, &resolvedAt, &c.ResolutionStrategy, &c.AutoResolvable)
	if err != nil {
		return nil, mapError(err)
	}
	if err := decodeJSON(beliefIDs, &c.BeliefIDs); err != nil {
		return nil, err
	}
	c.DetectedAt = decodeTime(detectedAt)
	c.ResolvedAt = decodeTimePtr(resolvedAt)
	return &c, nil
}

func (s *ConflictStore) Store(ctx context.Context, c *domain.BeliefConflict) error {
	beliefIDs, err := encodeJSON(c.BeliefIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO belief_conflicts (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			agent_id = excluded.agent_id,
			belief_ids = excluded.belief_ids,
			new_evidence_memory_id = excluded.new_evidence_memory_id,
			description = excluded.description,
			conflict_type = excluded.conflict_type,
			severity = excluded.severity,
			detected_at = excluded.detected_at,
			resolved = excluded.resolved,
			resolved_at = excluded.resolved_at,
			resolution_strategy = excluded.resolution_strategy,
			auto_resolvable = excluded.auto_resolvable`, conflictColumns),
		c.ID, c.AgentID, beliefIDs, c.NewEvidenceMemoryID, c.Description,
		string(c.ConflictType), string(c.Severity), encodeTime(c.DetectedAt),
		c.Resolved, encodeTimePtr(c.ResolvedAt), string(c.ResolutionStrategy),
		c.AutoResolvable)
	return mapError(err)
}

func (s *ConflictStore) Get(ctx context.Context, id string) (*domain.BeliefConflict, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM belief_conflicts WHERE id = ?`, conflictColumns), id)
	return scanConflict(row)
}

func (s *ConflictStore) ForAgent(ctx context.Context, agentID string, unresolvedOnly bool) ([]domain.BeliefConflict, error) {
	conditions := []string{"agent_id = ?"}
	if unresolvedOnly {
		conditions = append(conditions, "resolved = 0")
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
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

func (s *ConflictStore) Resolve(ctx context.Context, id string, strategy domain.ResolutionStrategy, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE belief_conflicts
		SET resolved = 1, resolved_at = ?, resolution_strategy = ?
		WHERE id = ? AND resolved = 0`, encodeTime(at), string(strategy), id)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *ConflictStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM belief_conflicts WHERE id = ?`, id)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
