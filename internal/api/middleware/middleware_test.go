package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowPerKey(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1")) // bucket drained

	// Separate clients get separate buckets.
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiterCleanupDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Allow("10.0.0.1")
	rl.clients["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	rl.Allow("10.0.0.2")

	rl.Cleanup(time.Minute)

	assert.NotContains(t, rl.clients, "10.0.0.1")
	assert.Contains(t, rl.clients, "10.0.0.2")
}

func TestMetricsCollectorCountsErrors(t *testing.T) {
	var requests, errors atomic.Int64
	mc := NewMetricsCollector(&requests, &errors)

	status := http.StatusOK
	h := mc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	send := func(path string) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	send("/v1/stats")
	status = http.StatusNotFound
	send("/v1/stats")
	require.Equal(t, int64(2), requests.Load())
	require.Equal(t, int64(1), errors.Load())

	// Probe endpoints stay out of the counters.
	status = http.StatusOK
	send("/health")
	send("/metrics")
	assert.Equal(t, int64(2), requests.Load())
}
