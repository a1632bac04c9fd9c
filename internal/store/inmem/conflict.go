package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/store"
)

type ConflictStore struct {
	sess *session
}

func (s *ConflictStore) Store(ctx context.Context, c *domain.BeliefConflict) error {
	st, unlock := s.sess.write()
	defer unlock()
	st.conflicts[c.ID] = copyConflict(c)
	return nil
}

func (s *ConflictStore) Get(ctx context.Context, id string) (*domain.BeliefConflict, error) {
	st, unlock := s.sess.read()
	defer unlock()
	c, ok := st.conflicts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyConflict(c), nil
}

func (s *ConflictStore) ForAgent(ctx context.Context, agentID string, unresolvedOnly bool) ([]domain.BeliefConflict, error) {
	st, unlock := s.sess.read()
	defer unlock()
	out := make([]domain.BeliefConflict, 0)
	for _, c := range st.conflicts {
		if c.AgentID != agentID {
			continue
		}
		if unresolvedOnly && c.Resolved {
			continue
		}
		out = append(out, *copyConflict(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *ConflictStore) Resolve(ctx context.Context, id string, strategy domain.ResolutionStrategy, at time.Time) (bool, error) {
	st, unlock := s.sess.write()
	defer unlock()
	c, ok := st.conflicts[id]
	if !ok || c.Resolved {
		return false, nil
	}
	c.Resolved = true
	c.ResolvedAt = &at
	c.ResolutionStrategy = strategy
	return true, nil
}

func (s *ConflictStore) Delete(ctx context.Context, id string) (bool, error) {
	st, unlock := s.sess.write()
	defer unlock()
	if _, ok := st.conflicts[id]; !ok {
		return false, nil
	}
	delete(st.conflicts, id)
	return true, nil
}
