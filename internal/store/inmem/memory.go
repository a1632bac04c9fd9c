package inmem

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/store"
)

type MemoryStore struct {
	sess *session
}

func (s *MemoryStore) Store(ctx context.Context, rec *domain.MemoryRecord) error {
	st, unlock := s.sess.write()
	defer unlock()
	st.memories[rec.ID] = copyMemory(rec)
	return nil
}

func (s *MemoryStore) StoreMany(ctx context.Context, recs []*domain.MemoryRecord) error {
	st, unlock := s.sess.write()
	defer unlock()
	for _, rec := range recs {
		st.memories[rec.ID] = copyMemory(rec)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.MemoryRecord, error) {
	st, unlock := s.sess.read()
	defer unlock()
	rec, ok := st.memories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyMemory(rec), nil
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []string) (map[string]domain.MemoryRecord, error) {
	st, unlock := s.sess.read()
	defer unlock()
	out := make(map[string]domain.MemoryRecord, len(ids))
	for _, id := range ids {
		if rec, ok := st.memories[id]; ok {
			out[id] = *copyMemory(rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *domain.MemoryRecord) error {
	st, unlock := s.sess.write()
	defer unlock()
	existing, ok := st.memories[rec.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Version != rec.Version {
		return store.ErrVersionConflict
	}
	rec.Version++
	st.memories[rec.ID] = copyMemory(rec)
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) (bool, error) {
	st, unlock := s.sess.write()
	defer unlock()
	if _, ok := st.memories[id]; !ok {
		return false, nil
	}
	delete(st.memories, id)
	return true, nil
}

func (s *MemoryStore) RemoveMany(ctx context.Context, ids []string) ([]string, error) {
	st, unlock := s.sess.write()
	defer unlock()
	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := st.memories[id]; ok {
			delete(st.memories, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (s *MemoryStore) ForAgent(ctx context.Context, agentID string, limit int) ([]domain.MemoryRecord, error) {
	return s.filter(limit, func(m *domain.MemoryRecord) bool {
		return m.AgentID == agentID
	})
}

func (s *MemoryStore) InCategory(ctx context.Context, category, agentID string, limit int) ([]domain.MemoryRecord, error) {
	return s.filter(limit, func(m *domain.MemoryRecord) bool {
		if agentID != "" && m.AgentID != agentID {
			return false
		}
		return m.Category.Matches(category)
	})
}

func (s *MemoryStore) OlderThan(ctx context.Context, cutoff time.Time, agentID string, limit int) ([]domain.MemoryRecord, error) {
	return s.filter(limit, func(m *domain.MemoryRecord) bool {
		if agentID != "" && m.AgentID != agentID {
			return false
		}
		return !m.CreatedAt.After(cutoff)
	})
}

func (s *MemoryStore) RecordAccess(ctx context.Context, id string, at time.Time, relevance float64) error {
	st, unlock := s.sess.write()
	defer unlock()
	rec, ok := st.memories[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.LastAccessed = at
	rec.Metadata.AccessCount++
	rec.RelevanceScore = relevance
	return nil
}

func (s *MemoryStore) SearchByVector(ctx context.Context, q domain.VectorQuery) ([]domain.MemoryMatch, error) {
	return nil, domain.ErrUnsupported
}

func (s *MemoryStore) KeywordCandidates(ctx context.Context, agentID string, keywords []string, limit int) ([]domain.MemoryRecord, error) {
	return s.filter(limit, func(m *domain.MemoryRecord) bool {
		if agentID != "" && m.AgentID != agentID {
			return false
		}
		content := strings.ToLower(m.Content)
		for _, kw := range keywords {
			if strings.Contains(content, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	})
}

func (s *MemoryStore) Candidates(ctx context.Context, agentID string, limit int) ([]domain.MemoryRecord, error) {
	return s.ForAgent(ctx, agentID, limit)
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	st, unlock := s.sess.read()
	defer unlock()
	return int64(len(st.memories)), nil
}

func (s *MemoryStore) CountByAgent(ctx context.Context) (map[string]int64, error) {
	st, unlock := s.sess.read()
	defer unlock()
	out := make(map[string]int64)
	for _, m := range st.memories {
		out[m.AgentID]++
	}
	return out, nil
}

func (s *MemoryStore) CountByCategory(ctx context.Context) (map[string]int64, error) {
	st, unlock := s.sess.read()
	defer unlock()
	out := make(map[string]int64)
	for _, m := range st.memories {
		out[m.Category.Primary]++
	}
	return out, nil
}

// filter returns matching records ordered by createdAt desc. limit 0 means
// unbounded.
func (s *MemoryStore) filter(limit int, keep func(*domain.MemoryRecord) bool) ([]domain.MemoryRecord, error) {
	st, unlock := s.sess.read()
	defer unlock()
	out := make([]domain.MemoryRecord, 0)
	for _, m := range st.memories {
		if keep(m) {
			out = append(out, *copyMemory(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
