package extract

import (
	"context"

	"github.com/doxa-ai/doxa/internal/domain"
)

// MockProvider is a configurable extraction provider for testing. Set the
// response fields to control what each method returns; calls are recorded
// for assertions.
type MockProvider struct {
	ExtractResponse  []domain.BeliefCandidate
	ExtractError     error
	SimilarityFn     func(a, b string) float64
	SimilarityError  error
	ContradictsFn    func(a, b string) bool
	ContradictsError error
	CategoryResponse string
	RescoreResponse  float64
	MergeResponse    string
	MergeError       error

	ExtractCalls     []string
	SimilarityCalls  []struct{ A, B string }
	ContradictsCalls []struct{ A, B string }
	MergeCalls       []struct{ A, B string }
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		CategoryResponse: "general",
		RescoreResponse:  0.5,
	}
}

func (m *MockProvider) Extract(ctx context.Context, content, agentID, categoryHint string) ([]domain.BeliefCandidate, error) {
	m.ExtractCalls = append(m.ExtractCalls, content)
	if m.ExtractError != nil {
		return nil, m.ExtractError
	}
	return m.ExtractResponse, nil
}

func (m *MockProvider) Similarity(ctx context.Context, a, b string) (float64, error) {
	m.SimilarityCalls = append(m.SimilarityCalls, struct{ A, B string }{a, b})
	if m.SimilarityError != nil {
		return 0, m.SimilarityError
	}
	if m.SimilarityFn != nil {
		return m.SimilarityFn(a, b), nil
	}
	return 0, nil
}

func (m *MockProvider) Contradicts(ctx context.Context, a, b, categoryA, categoryB string) (bool, error) {
	m.ContradictsCalls = append(m.ContradictsCalls, struct{ A, B string }{a, b})
	if m.ContradictsError != nil {
		return false, m.ContradictsError
	}
	if m.ContradictsFn != nil {
		return m.ContradictsFn(a, b), nil
	}
	return false, nil
}

func (m *MockProvider) ExtractCategory(ctx context.Context, statement string) (string, error) {
	return m.CategoryResponse, nil
}

func (m *MockProvider) Rescore(ctx context.Context, content, statement, contextHint string) (float64, error) {
	return m.RescoreResponse, nil
}

// Merge satisfies domain.StatementMerger when MergeResponse is set.
func (m *MockProvider) Merge(ctx context.Context, a, b string) (string, error) {
	m.MergeCalls = append(m.MergeCalls, struct{ A, B string }{a, b})
	if m.MergeError != nil {
		return "", m.MergeError
	}
	if m.MergeResponse != "" {
		return m.MergeResponse, nil
	}
	return a, nil
}

// Reset clears recorded calls and scripted responses.
func (m *MockProvider) Reset() {
	*m = *NewMockProvider()
}
