// Package extract supplies belief extraction providers: the heuristic
// pattern-rule provider for production without a model, and a scripted mock
// for tests. The factory is the seam where a model-backed provider plugs in.
package extract

import (
	"fmt"

	"github.com/doxa-ai/doxa/internal/domain"
)

const (
	ProviderHeuristic = "heuristic"
	ProviderMock      = "mock"
)

// NewProvider creates a belief extraction provider by name.
func NewProvider(provider string) (domain.BeliefExtractionProvider, error) {
	switch provider {
	case ProviderHeuristic, "":
		return NewHeuristicProvider(), nil
	case ProviderMock:
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown extract provider: %s (valid options: heuristic, mock)", provider)
	}
}
