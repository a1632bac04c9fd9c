// Package embedding supplies vector providers behind the
// domain.EmbeddingProvider contract. Model-backed clients live outside this
// repo; the factory is the seam where they plug in.
package embedding

import (
	"context"
	"fmt"

	"github.com/doxa-ai/doxa/internal/domain"
)

const (
	ProviderMock = "mock"
	ProviderNone = "none"
)

// NewProvider creates an embedding provider by name. "none" is a valid
// production choice: ingestion proceeds without vectors and similarity
// search falls back to the lexical tiers.
func NewProvider(provider string, dimension int) (domain.EmbeddingProvider, error) {
	switch provider {
	case ProviderMock:
		return NewMockProvider(dimension), nil
	case ProviderNone, "":
		return NoneProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: mock, none)", provider)
	}
}

// NoneProvider never produces a vector. A nil result with nil error is the
// contract's "no embedding available".
type NoneProvider struct{}

func (NoneProvider) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }

func (NoneProvider) Dimension() int { return 0 }
