package inmem

import (
	"context"
	"sort"
	"strings"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/search"
	"github.com/doxa-ai/doxa/internal/store"
)

type BeliefStore struct {
	sess *session
}

func (s *BeliefStore) Store(ctx context.Context, b *domain.Belief) error {
	st, unlock := s.sess.write()
	defer unlock()
	st.beliefs[b.ID] = copyBelief(b)
	return nil
}

func (s *BeliefStore) StoreMany(ctx context.Context, bs []*domain.Belief) error {
	st, unlock := s.sess.write()
	defer unlock()
	for _, b := range bs {
		st.beliefs[b.ID] = copyBelief(b)
	}
	return nil
}

func (s *BeliefStore) Get(ctx context.Context, id string) (*domain.Belief, error) {
	st, unlock := s.sess.read()
	defer unlock()
	b, ok := st.beliefs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyBelief(b), nil
}

func (s *BeliefStore) Update(ctx context.Context, b *domain.Belief) error {
	st, unlock := s.sess.write()
	defer unlock()
	existing, ok := st.beliefs[b.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Version != b.Version {
		return store.ErrVersionConflict
	}
	b.Version++
	st.beliefs[b.ID] = copyBelief(b)
	return nil
}

func (s *BeliefStore) ForAgent(ctx context.Context, agentID string, includeInactive bool) ([]domain.Belief, error) {
	return s.filter(func(b *domain.Belief) bool {
		return b.AgentID == agentID && (includeInactive || b.Active)
	})
}

func (s *BeliefStore) InCategory(ctx context.Context, category, agentID string, includeInactive bool) ([]domain.Belief, error) {
	return s.filter(func(b *domain.Belief) bool {
		if agentID != "" && b.AgentID != agentID {
			return false
		}
		return b.Category == category && (includeInactive || b.Active)
	})
}

func (s *BeliefStore) Search(ctx context.Context, text, agentID string, limit int) ([]domain.Belief, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	out, err := s.filter(func(b *domain.Belief) bool {
		if agentID != "" && b.AgentID != agentID {
			return false
		}
		return b.Active && needle != "" && strings.Contains(strings.ToLower(b.Statement), needle)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *BeliefStore) FindSimilar(ctx context.Context, q domain.BeliefSimilarityQuery) ([]domain.BeliefMatch, error) {
	st, unlock := s.sess.read()
	defer unlock()
	normalized := q.Normalized
	if normalized == "" {
		normalized = domain.NormalizeStatement(q.Statement)
	}
	matches := make([]domain.BeliefMatch, 0)
	for _, b := range st.beliefs {
		if b.AgentID != q.AgentID || !b.Active {
			continue
		}
		score := search.StatementScore(normalized, b.Statement)
		if q.Threshold >= 1 && score < 1 {
			continue
		}
		if score < q.Threshold {
			continue
		}
		matches = append(matches, domain.BeliefMatch{Belief: *copyBelief(b), Score: score})
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
	return s.setActive(id, false)
}

func (s *BeliefStore) Reactivate(ctx context.Context, id string) (bool, error) {
	return s.setActive(id, true)
}

func (s *BeliefStore) setActive(id string, active bool) (bool, error) {
	st, unlock := s.sess.write()
	defer unlock()
	b, ok := st.beliefs[id]
	if !ok || b.Active == active {
		return false, nil
	}
	b.Active = active
	return true, nil
}

func (s *BeliefStore) Delete(ctx context.Context, id string) (bool, error) {
	st, unlock := s.sess.write()
	defer unlock()
	if _, ok := st.beliefs[id]; !ok {
		return false, nil
	}
	delete(st.beliefs, id)
	return true, nil
}

func (s *BeliefStore) filter(keep func(*domain.Belief) bool) ([]domain.Belief, error) {
	st, unlock := s.sess.read()
	defer unlock()
	out := make([]domain.Belief, 0)
	for _, b := range st.beliefs {
		if keep(b) {
			out = append(out, *copyBelief(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
