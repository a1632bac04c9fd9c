package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/store"
)

type RelationshipStore struct {
	sess *session
}

func (s *RelationshipStore) Store(ctx context.Context, rel *domain.BeliefRelationship) error {
	st, unlock := s.sess.write()
	defer unlock()
	if rel.Active && activeExists(st, rel.AgentID, rel.SourceBeliefID, rel.TargetBeliefID, rel.Type, rel.ID) {
		return store.ErrDuplicateActiveEdge
	}
	st.relationships[rel.ID] = copyRelationship(rel)
	return nil
}

func (s *RelationshipStore) Get(ctx context.Context, id string) (*domain.BeliefRelationship, error) {
	st, unlock := s.sess.read()
	defer unlock()
	rel, ok := st.relationships[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyRelationship(rel), nil
}

func (s *RelationshipStore) Update(ctx context.Context, rel *domain.BeliefRelationship) error {
	st, unlock := s.sess.write()
	defer unlock()
	if _, ok := st.relationships[rel.ID]; !ok {
		return store.ErrNotFound
	}
	if rel.Active && activeExists(st, rel.AgentID, rel.SourceBeliefID, rel.TargetBeliefID, rel.Type, rel.ID) {
		return store.ErrDuplicateActiveEdge
	}
	st.relationships[rel.ID] = copyRelationship(rel)
	return nil
}

func (s *RelationshipStore) Deactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	st, unlock := s.sess.write()
	defer unlock()
	rel, ok := st.relationships[id]
	if !ok || !rel.Active {
		return false, nil
	}
	rel.Active = false
	rel.LastUpdated = at
	return true, nil
}

func (s *RelationshipStore) Reactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	st, unlock := s.sess.write()
	defer unlock()
	rel, ok := st.relationships[id]
	if !ok || rel.Active {
		return false, nil
	}
	if activeExists(st, rel.AgentID, rel.SourceBeliefID, rel.TargetBeliefID, rel.Type, rel.ID) {
		return false, store.ErrDuplicateActiveEdge
	}
	rel.Active = true
	rel.LastUpdated = at
	return true, nil
}

func (s *RelationshipStore) Delete(ctx context.Context, id string) (bool, error) {
	st, unlock := s.sess.write()
	defer unlock()
	if _, ok := st.relationships[id]; !ok {
		return false, nil
	}
	delete(st.relationships, id)
	return true, nil
}

func (s *RelationshipStore) DeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	st, unlock := s.sess.write()
	defer unlock()
	var n int64
	for id, rel := range st.relationships {
		if !rel.Active && !rel.LastUpdated.After(cutoff) {
			delete(st.relationships, id)
			n++
		}
	}
	return n, nil
}

func (s *RelationshipStore) Outgoing(ctx context.Context, beliefID string) ([]domain.BeliefRelationship, error) {
	return s.filter(func(r *domain.BeliefRelationship) bool {
		return r.SourceBeliefID == beliefID
	})
}

func (s *RelationshipStore) Incoming(ctx context.Context, beliefID string) ([]domain.BeliefRelationship, error) {
	return s.filter(func(r *domain.BeliefRelationship) bool {
		return r.TargetBeliefID == beliefID
	})
}

func (s *RelationshipStore) ByType(ctx context.Context, agentID string, rt domain.RelationType) ([]domain.BeliefRelationship, error) {
	return s.filter(func(r *domain.BeliefRelationship) bool {
		return r.AgentID == agentID && r.Type == rt
	})
}

func (s *RelationshipStore) Between(ctx context.Context, agentID, a, b string) ([]domain.BeliefRelationship, error) {
	return s.filter(func(r *domain.BeliefRelationship) bool {
		if r.AgentID != agentID {
			return false
		}
		return (r.SourceBeliefID == a && r.TargetBeliefID == b) ||
			(r.SourceBeliefID == b && r.TargetBeliefID == a)
	})
}

func (s *RelationshipStore) ForAgent(ctx context.Context, agentID string, includeInactive bool) ([]domain.BeliefRelationship, error) {
	return s.filter(func(r *domain.BeliefRelationship) bool {
		return r.AgentID == agentID && (includeInactive || r.Active)
	})
}

func (s *RelationshipStore) ActiveExists(ctx context.Context, agentID, sourceID, targetID string, rt domain.RelationType) (bool, error) {
	st, unlock := s.sess.read()
	defer unlock()
	return activeExists(st, agentID, sourceID, targetID, rt, ""), nil
}

func activeExists(st *state, agentID, sourceID, targetID string, rt domain.RelationType, excludeID string) bool {
	for id, r := range st.relationships {
		if id == excludeID {
			continue
		}
		if r.Active && r.AgentID == agentID && r.SourceBeliefID == sourceID &&
			r.TargetBeliefID == targetID && r.Type == rt {
			return true
		}
	}
	return false
}

// filter returns matching edges ordered by strength desc, then id, the way
// the graph queries expect to rank neighbors.
func (s *RelationshipStore) filter(keep func(*domain.BeliefRelationship) bool) ([]domain.BeliefRelationship, error) {
	st, unlock := s.sess.read()
	defer unlock()
	out := make([]domain.BeliefRelationship, 0)
	for _, r := range st.relationships {
		if keep(r) {
			out = append(out, *copyRelationship(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
