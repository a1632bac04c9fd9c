package search

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/domain"
)

// Strategy override names, matching the memory.strategy config option.
const (
	StrategyAuto     = "auto"
	StrategyVector   = "vector"
	StrategyText     = "text"
	StrategyFallback = "fallback"
)

// Selector is the default strategy: it probes the backend once, picks the
// most specific strategy the backend supports, and forwards every call.
// Reinitialize re-probes after a schema change at runtime.
type Selector struct {
	src      BackendSource
	prober   Prober
	override string
	logger   *zap.Logger

	mu     sync.RWMutex
	active Strategy
}

func NewSelector(ctx context.Context, src BackendSource, prober Prober, override string, logger *zap.Logger) (*Selector, error) {
	s := &Selector{src: src, prober: prober, override: override, logger: logger}
	if err := s.Reinitialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reinitialize re-probes the backend and swaps the delegate. In-flight
// searches finish on the strategy they started with.
func (s *Selector) Reinitialize(ctx context.Context) error {
	strategy, err := s.pick(ctx)
	if err != nil {
		return err
	}
	if err := strategy.Initialize(ctx, s.prober); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = strategy
	s.mu.Unlock()
	s.logger.Info("similarity strategy selected",
		zap.String("strategy", strategy.Name()),
		zap.String("override", s.override))
	return nil
}

func (s *Selector) pick(ctx context.Context) (Strategy, error) {
	switch s.override {
	case StrategyVector:
		return NewVectorStrategy(s.src, s.src), nil
	case StrategyText:
		return NewTrigramStrategy(s.src, s.src, s.logger), nil
	case StrategyFallback:
		return NewLexicalStrategy(s.src), nil
	case "", StrategyAuto:
	default:
		return nil, domain.Errorf(domain.KindInvalidInput, "unknown similarity strategy %q", s.override)
	}

	caps, err := s.prober.Capabilities(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.KindBackendUnavailable, err, "capability probe failed")
	}
	switch {
	case caps.Vector:
		return NewVectorStrategy(s.src, s.src), nil
	case caps.Trigram:
		return NewTrigramStrategy(s.src, s.src, s.logger), nil
	default:
		return NewLexicalStrategy(s.src), nil
	}
}

func (s *Selector) delegate() Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Selector) Name() string { return s.delegate().Name() }

func (s *Selector) SupportsVectorSearch() bool { return s.delegate().SupportsVectorSearch() }

// Initialize satisfies Strategy; the selector probes with its own prober.
func (s *Selector) Initialize(ctx context.Context, _ Prober) error {
	return s.Reinitialize(ctx)
}

func (s *Selector) ValidateSchema(ctx context.Context, _ Prober) error {
	return s.delegate().ValidateSchema(ctx, s.prober)
}

func (s *Selector) Search(ctx context.Context, q Query) ([]domain.MemoryMatch, error) {
	return s.delegate().Search(ctx, q)
}
