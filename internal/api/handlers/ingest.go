package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/service"
)

type IngestHandler struct {
	svc *service.IngestionService
}

func NewIngestHandler(svc *service.IngestionService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// Ingest runs the full pipeline for one observation. A FAILED result still
// carries diagnostic detail, so it is rendered alongside the error status.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var in domain.IngestionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Ingest(r.Context(), in)
	if err != nil {
		if result != nil {
			writeJSON(w, statusFor(err), result)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// DryRun previews belief-side effects without writing anything.
func (h *IngestHandler) DryRun(w http.ResponseWriter, r *http.Request) {
	var in domain.IngestionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in.DryRun = true

	result, err := h.svc.Ingest(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Batch ingests a list of observations, continuing past per-item failures.
func (h *IngestHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var inputs []domain.IngestionInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(inputs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one observation is required")
		return
	}

	results := h.svc.IngestBatch(r.Context(), inputs)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
