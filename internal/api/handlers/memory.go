package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/service"
)

type MemoryHandler struct {
	svc *service.MemoryService
}

func NewMemoryHandler(svc *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type updateMemoryRequest struct {
	Content  *string               `json:"content,omitempty"`
	Category *domain.CategoryLabel `json:"category,omitempty"`
	Tags     []string              `json:"tags,omitempty"`
	Extra    map[string]string     `json:"extra,omitempty"`
}

// Update patches a memory record. Changing content re-embeds it; the service
// retries the version race internally.
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Content != nil {
		rec.Content = *req.Content
	}
	if req.Category != nil {
		rec.Category = *req.Category
	}
	if req.Tags != nil {
		rec.Metadata.Tags = domain.DedupeTags(req.Tags)
	}
	if req.Extra != nil {
		rec.Metadata.Extra = req.Extra
	}

	updated, err := h.svc.Update(r.Context(), rec)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemoryHandler) ForAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	limit := queryInt(r, "limit", 0)

	var (
		recs []domain.MemoryRecord
		err  error
	)
	if category := r.URL.Query().Get("category"); category != "" {
		recs, err = h.svc.InCategory(r.Context(), category, agentID, limit)
	} else {
		recs, err = h.svc.ForAgent(r.Context(), agentID, limit)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": recs})
}

func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	agentID := r.URL.Query().Get("agent_id")
	if query == "" || agentID == "" {
		writeError(w, http.StatusBadRequest, "query and agent_id are required")
		return
	}

	matches, err := h.svc.SearchSimilar(r.Context(), agentID, query, queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches":  matches,
		"strategy": h.svc.StrategyName(),
	})
}

func (h *MemoryHandler) OlderThan(w http.ResponseWriter, r *http.Request) {
	seconds, err := strconv.ParseInt(r.URL.Query().Get("seconds"), 10, 64)
	if err != nil || seconds < 0 {
		writeError(w, http.StatusBadRequest, "seconds must be a non-negative integer")
		return
	}

	recs, err := h.svc.OlderThan(r.Context(), seconds, chi.URLParam(r, "agentID"), queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": recs})
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}
