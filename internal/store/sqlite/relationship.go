package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/store"
)

const relationshipColumns = `id, agent_id, source_belief_id, target_belief_id, type,
	strength, priority, effective_from, effective_until, deprecation_reason, metadata,
	active, created_at, last_updated`

type RelationshipStore struct {
	db querier
}

func scanRelationship(row scannable) (*domain.BeliefRelationship, error) {
	var (
		rel            domain.BeliefRelationship
		effectiveFrom  sql.NullInt64
		effectiveUntil sql.NullInt64
		metadata       string
		createdAt      int64
		lastUpdated    int64
	)
	err := row.Scan(&rel.ID, &rel.AgentID, &rel.SourceBeliefID, &rel.TargetBeliefID,
		&rel.Type, &rel.Strength, &rel.Priority, &effectiveFrom, &effectiveUntil,
		&rel.DeprecationReason, &metadata, &rel.Active, &createdAt, &lastUpdated)
	if err != nil {
		return nil, mapError(err)
	}
	if err := decodeJSON(metadata, &rel.Metadata); err != nil {
		return nil, err
	}
	rel.EffectiveFrom = decodeTimePtr(effectiveFrom)
	rel.EffectiveUntil = decodeTimePtr(effectiveUntil)
	rel.CreatedAt = decodeTime(createdAt)
	rel.LastUpdated = decodeTime(lastUpdated)
	return &rel, nil
}

func relationshipArgs(rel *domain.BeliefRelationship) ([]any, error) {
	metadata, err := encodeJSON(rel.Metadata)
	if err != nil {
		return nil, err
	}
	return []any{rel.ID, rel.AgentID, rel.SourceBeliefID, rel.TargetBeliefID,
		string(rel.Type), rel.Strength, rel.Priority, encodeTimePtr(rel.EffectiveFrom),
		encodeTimePtr(rel.EffectiveUntil), rel.DeprecationReason, metadata,
		rel.Active, encodeTime(rel.CreatedAt), encodeTime(rel.LastUpdated)}, nil
}

// Store inserts the edge; the partial unique index on active edges surfaces a
// duplicate as ErrDuplicateActiveEdge.
func (s *RelationshipStore) Store(ctx context.Context, rel *domain.BeliefRelationship) error {
	args, err := relationshipArgs(rel)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO belief_relationships (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		relationshipColumns), args...)
	return mapError(err)
}

func (s *RelationshipStore) Get(ctx context.Context, id string) (*domain.BeliefRelationship, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM belief_relationships WHERE id = ?`, relationshipColumns), id)
	return scanRelationship(row)
}

func (s *RelationshipStore) Update(ctx context.Context, rel *domain.BeliefRelationship) error {
	args, err := relationshipArgs(rel)
	if err != nil {
		return err
	}
	// id first in the arg list, so rotate it to the WHERE position.
	res, err := s.db.ExecContext(ctx, `
		UPDATE belief_relationships SET
			agent_id = ?, source_belief_id = ?, target_belief_id = ?, type = ?,
			strength = ?, priority = ?, effective_from = ?, effective_until = ?,
			deprecation_reason = ?, metadata = ?, active = ?,
			created_at = ?, last_updated = ?
		WHERE id = ?`, append(args[1:], args[0])...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *RelationshipStore) Deactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE belief_relationships SET active = 0, last_updated = ?
		WHERE id = ? AND active = 1`, encodeTime(at), id)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *RelationshipStore) Reactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE belief_relationships SET active = 1, last_updated = ?
		WHERE id = ? AND active = 0`, encodeTime(at), id)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *RelationshipStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM belief_relationships WHERE id = ?`, id)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *RelationshipStore) DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM belief_relationships
		WHERE active = 0 AND last_updated <= ?`, encodeTime(cutoff))
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

func (s *RelationshipStore) Outgoing(ctx context.Context, beliefID string) ([]domain.BeliefRelationship, error) {
	return s.query(ctx, []string{"source_belief_id = ?"}, []any{beliefID})
}

func (s *RelationshipStore) Incoming(ctx context.Context, beliefID string) ([]domain.BeliefRelationship, error) {
	return s.query(ctx, []string{"target_belief_id = ?"}, []any{beliefID})
}

func (s *RelationshipStore) ByType(ctx context.Context, agentID string, rt domain.RelationType) ([]domain.BeliefRelationship, error) {
	return s.query(ctx, []string{"agent_id = ?", "type = ?"}, []any{agentID, string(rt)})
}

func (s *RelationshipStore) Between(ctx context.Context, agentID, a, b string) ([]domain.BeliefRelationship, error) {
	return s.query(ctx,
		[]string{"agent_id = ?",
			`((source_belief_id = ? AND target_belief_id = ?) OR
			  (source_belief_id = ? AND target_belief_id = ?))`},
		[]any{agentID, a, b, b, a})
}

func (s *RelationshipStore) ForAgent(ctx context.Context, agentID string, includeInactive bool) ([]domain.BeliefRelationship, error) {
	conditions := []string{"agent_id = ?"}
	if !includeInactive {
		conditions = append(conditions, "active = 1")
	}
	return s.query(ctx, conditions, []any{agentID})
}

func (s *RelationshipStore) ActiveExists(ctx context.Context, agentID, sourceID, targetID string, rt domain.RelationType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM belief_relationships
			WHERE agent_id = ? AND source_belief_id = ? AND target_belief_id = ?
				AND type = ? AND active = 1
		)`, agentID, sourceID, targetID, string(rt)).Scan(&exists)
	return exists, mapError(err)
}

func (s *RelationshipStore) query(ctx context.Context, conditions []string, args []any) ([]domain.BeliefRelationship, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM belief_relationships WHERE %s ORDER BY strength DESC, id`,
		relationshipColumns, strings.Join(conditions, " AND ")), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]domain.BeliefRelationship, 0)
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rel)
	}
	return out, rows.Err()
}
