// Package inmem is the map-backed storage backend. It advertises no search
// capabilities, so the selector pairs it with the lexical fallback strategy.
// It doubles as the test backend for every service suite.
package inmem

import (
	"context"
	"sync"

	"github.com/doxa-ai/doxa/internal/domain"
)

type state struct {
	memories      map[string]*domain.MemoryRecord
	beliefs       map[string]*domain.Belief
	conflicts     map[string]*domain.BeliefConflict
	relationships map[string]*domain.BeliefRelationship
}

func newState() *state {
	return &state{
		memories:      make(map[string]*domain.MemoryRecord),
		beliefs:       make(map[string]*domain.Belief),
		conflicts:     make(map[string]*domain.BeliefConflict),
		relationships: make(map[string]*domain.BeliefRelationship),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, m := range s.memories {
		c.memories[id] = copyMemory(m)
	}
	for id, b := range s.beliefs {
		c.beliefs[id] = copyBelief(b)
	}
	for id, bc := range s.conflicts {
		c.conflicts[id] = copyConflict(bc)
	}
	for id, r := range s.relationships {
		c.relationships[id] = copyRelationship(r)
	}
	return c
}

// Provider is an in-process domain.StoreProvider. Transactions run against a
// deep copy of the state under the write lock; the copy is swapped in only
// when fn succeeds, which gives rollback for free.
type Provider struct {
	mu   sync.RWMutex
	data *state
}

func NewProvider() *Provider {
	return &Provider{data: newState()}
}

// session binds a store to either the live provider state or a transaction
// copy. Inside a transaction the provider lock is already held.
type session struct {
	p  *Provider
	tx *state
}

func (s *session) read() (*state, func()) {
	if s.tx != nil {
		return s.tx, func() {}
	}
	s.p.mu.RLock()
	return s.p.data, s.p.mu.RUnlock
}

func (s *session) write() (*state, func()) {
	if s.tx != nil {
		return s.tx, func() {}
	}
	s.p.mu.Lock()
	return s.p.data, s.p.mu.Unlock
}

func storesFor(sess *session) domain.Stores {
	return domain.Stores{
		Memories:      &MemoryStore{sess: sess},
		Beliefs:       &BeliefStore{sess: sess},
		Conflicts:     &ConflictStore{sess: sess},
		Relationships: &RelationshipStore{sess: sess},
	}
}

func (p *Provider) Stores() domain.Stores {
	return storesFor(&session{p: p})
}

// InTx runs fn against a transaction copy of the state. On error nothing is
// applied; on success the copy replaces the live state atomically.
func (p *Provider) InTx(ctx context.Context, fn func(domain.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := p.data.clone()
	if err := fn(storesFor(&session{tx: clone})); err != nil {
		return err
	}
	p.data = clone
	return nil
}

func (p *Provider) Capabilities(ctx context.Context) (domain.Capabilities, error) {
	return domain.Capabilities{}, nil
}

func (p *Provider) Close() error { return nil }

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyMemory(m *domain.MemoryRecord) *domain.MemoryRecord {
	c := *m
	c.Category.Tags = copyStrings(m.Category.Tags)
	c.Metadata.Tags = copyStrings(m.Metadata.Tags)
	c.Metadata.Extra = copyStringMap(m.Metadata.Extra)
	if m.Embedding != nil {
		c.Embedding = make([]float32, len(m.Embedding))
		copy(c.Embedding, m.Embedding)
	}
	return &c
}

func copyBelief(b *domain.Belief) *domain.Belief {
	c := *b
	c.Tags = copyStrings(b.Tags)
	c.EvidenceMemoryIDs = copyStrings(b.EvidenceMemoryIDs)
	return &c
}

func copyConflict(bc *domain.BeliefConflict) *domain.BeliefConflict {
	c := *bc
	c.BeliefIDs = copyStrings(bc.BeliefIDs)
	if bc.ResolvedAt != nil {
		t := *bc.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

func copyRelationship(r *domain.BeliefRelationship) *domain.BeliefRelationship {
	c := *r
	c.Metadata = copyStringMap(r.Metadata)
	if r.EffectiveFrom != nil {
		t := *r.EffectiveFrom
		c.EffectiveFrom = &t
	}
	if r.EffectiveUntil != nil {
		t := *r.EffectiveUntil
		c.EffectiveUntil = &t
	}
	return &c
}
