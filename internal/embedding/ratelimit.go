package embedding

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/doxa-ai/doxa/internal/domain"
)

// RateLimited wraps a provider with a token-bucket limiter so batch
// ingestion cannot saturate an upstream embedding API. Embed blocks until a
// token is available or the context is done.
type RateLimited struct {
	inner   domain.EmbeddingProvider
	limiter *rate.Limiter
}

func NewRateLimited(inner domain.EmbeddingProvider, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

func (r *RateLimited) Dimension() int { return r.inner.Dimension() }
