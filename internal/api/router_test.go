package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doxa-ai/doxa/internal/extract"
	"github.com/doxa-ai/doxa/internal/store/inmem"
)

// A rate cap on embedding calls must not break deployments that run without
// an embedder at all.
func TestNewAppWithoutEmbedderUnderRateCap(t *testing.T) {
	t.Setenv("EMBEDDING_RPS", "10")

	provider := inmem.NewProvider()
	defer func() { _ = provider.Close() }()

	app, err := NewApp(context.Background(), Deps{
		Provider:  provider,
		Embedder:  nil,
		Extractor: extract.NewHeuristicProvider(),
	})
	require.NoError(t, err)

	body := `{"agent_id":"agent-1","content":"User prefers dark mode for all editors"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "memory_id")
}
