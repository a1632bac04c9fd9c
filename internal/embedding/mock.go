package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/doxa-ai/doxa/internal/domain"
)

// MockProvider produces deterministic vectors from token hashes: equal texts
// embed identically and texts sharing tokens land near each other, which is
// enough signal for similarity tests. Failure injection and call tracking
// make it the test double for every embedding seam.
type MockProvider struct {
	dimension int

	mu         sync.Mutex
	EmbedError error
	EmbedCalls []string
}

func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockProvider{dimension: dimension}
}

func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.EmbedCalls = append(m.EmbedCalls, text)
	err := m.EmbedError
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, m.dimension)
	for _, tok := range splitTokens(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		seed := h.Sum32()
		// Each token contributes a unit bump at a hashed position plus a
		// smeared neighborhood so overlap produces graded similarity.
		idx := int(seed) % m.dimension
		if idx < 0 {
			idx += m.dimension
		}
		vec[idx] += 1
		vec[(idx+1)%m.dimension] += 0.5
		vec[(idx+m.dimension-1)%m.dimension] += 0.5
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, m.dimension)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (m *MockProvider) Dimension() int { return m.dimension }

// FailWith makes subsequent Embed calls return err; nil restores normal
// operation.
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	m.EmbedError = err
	m.mu.Unlock()
}

// CallCount returns how many times Embed was invoked.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.EmbedCalls)
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var _ domain.EmbeddingProvider = (*MockProvider)(nil)
