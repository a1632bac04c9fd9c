package postgres

import (
	"context"
	"encoding/json"
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
		rel      domain.BeliefRelationship
		metadata []byte
	)
	err := row.Scan(&rel.ID, &rel.AgentID, &rel.SourceBeliefID, &rel.TargetBeliefID,
		&rel.Type, &rel.Strength, &rel.Priority, &rel.EffectiveFrom, &rel.EffectiveUntil,
		&rel.DeprecationReason, &metadata, &rel.Active, &rel.CreatedAt, &rel.LastUpdated)
	if err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal(metadata, &rel.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &rel, nil
}

func relationshipArgs(rel *domain.BeliefRelationship) ([]any, error) {
	metadata, err := json.Marshal(rel.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return []any{rel.ID, rel.AgentID, rel.SourceBeliefID, rel.TargetBeliefID, rel.Type,
		rel.Strength, rel.Priority, rel.EffectiveFrom, rel.EffectiveUntil,
		rel.DeprecationReason, metadata, rel.Active, rel.CreatedAt, rel.LastUpdated}, nil
}

// Store inserts the edge; the partial unique index on active edges surfaces a
// duplicate as ErrDuplicateActiveEdge.
func (s *RelationshipStore) Store(ctx context.Context, rel *domain.BeliefRelationship) error {
	args, err := relationshipArgs(rel)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO belief_relationships (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		relationshipColumns), args...)
	return mapError(err)
}

func (s *RelationshipStore) Get(ctx context.Context, id string) (*domain.BeliefRelationship, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM belief_relationships WHERE id = $1`, relationshipColumns), id)
	return scanRelationship(row)
}

func (s *RelationshipStore) Update(ctx context.Context, rel *domain.BeliefRelationship) error {
	args, err := relationshipArgs(rel)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE belief_relationships SET
			agent_id = $2, source_belief_id = $3, target_belief_id = $4, type = $5,
			strength = $6, priority = $7, effective_from = $8, effective_until = $9,
			deprecation_reason = $10, metadata = $11, active = $12,
			created_at = $13, last_updated = $14
		WHERE id = $1`, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *RelationshipStore) Deactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE belief_relationships SET active = FALSE, last_updated = $2
		WHERE id = $1 AND active`, id, at)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// Reactivate refuses to resurrect an edge whose active slot has since been
// taken; the unique index reports that as ErrDuplicateActiveEdge.
func (s *RelationshipStore) Reactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE belief_relationships SET active = TRUE, last_updated = $2
		WHERE id = $1 AND NOT active`, id, at)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *RelationshipStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM belief_relationships WHERE id = $1`, id)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *RelationshipStore) DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM belief_relationships
		WHERE NOT active AND last_updated <= $1`, cutoff)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *RelationshipStore) Outgoing(ctx context.Context, beliefID string) ([]domain.BeliefRelationship, error) {
	return s.query(ctx, []string{"source_belief_id = $1"}, []any{beliefID})
}

func (s *RelationshipStore) Incoming(ctx context.Context, beliefID string) ([]domain.BeliefRelationship, error) {
	return s.query(ctx, []string{"target_belief_id = $1"}, []any{beliefID})
}

func (s *RelationshipStore) ByType(ctx context.Context, agentID string, rt domain.RelationType) ([]domain.BeliefRelationship, error) {
	return s.query(ctx, []string{"agent_id = $1", "type = $2"}, []any{agentID, rt})
}

func (s *RelationshipStore) Between(ctx context.Context, agentID, a, b string) ([]domain.BeliefRelationship, error) {
	return s.query(ctx,
		[]string{"agent_id = $1",
			`((source_belief_id = $2 AND target_belief_id = $3) OR
			  (source_belief_id = $3 AND target_belief_id = $2))`},
		[]any{agentID, a, b})
}

func (s *RelationshipStore) ForAgent(ctx context.Context, agentID string, includeInactive bool) ([]domain.BeliefRelationship, error) {
	conditions := []string{"agent_id = $1"}
	if !includeInactive {
		conditions = append(conditions, "active")
	}
	return s.query(ctx, conditions, []any{agentID})
}

func (s *RelationshipStore) ActiveExists(ctx context.Context, agentID, sourceID, targetID string, rt domain.RelationType) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM belief_relationships
			WHERE agent_id = $1 AND source_belief_id = $2 AND target_belief_id = $3
				AND type = $4 AND active
		)`, agentID, sourceID, targetID, rt).Scan(&exists)
	return exists, mapError(err)
}

// query returns matching edges ordered by strength desc, then id, the way the
// graph queries expect to rank neighbors.
func (s *RelationshipStore) query(ctx context.Context, conditions []string, args []any) ([]domain.BeliefRelationship, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(
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
