package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/service"
)

type BeliefHandler struct {
	svc *service.BeliefAnalyzer
}

func NewBeliefHandler(svc *service.BeliefAnalyzer) *BeliefHandler {
	return &BeliefHandler{svc: svc}
}

// ForAgent lists an agent's beliefs; ?q= switches to substring search and
// ?include_inactive=true widens the listing.
func (h *BeliefHandler) ForAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var (
		beliefs []domain.Belief
		err     error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		beliefs, err = h.svc.SearchBeliefs(r.Context(), agentID, q, queryInt(r, "limit", 0))
	} else {
		beliefs, err = h.svc.Beliefs(r.Context(), agentID, queryBool(r, "include_inactive"))
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"beliefs": beliefs})
}

func (h *BeliefHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Belief(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BeliefHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *BeliefHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *BeliefHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := chi.URLParam(r, "id")
	changed, err := h.svc.SetBeliefActive(r.Context(), id, active)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": active, "changed": changed})
}

func (h *BeliefHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.svc.Conflicts(r.Context(), chi.URLParam(r, "agentID"), queryBool(r, "unresolved_only"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

type resolveConflictRequest struct {
	WinnerBeliefID string `json:"winner_belief_id,omitempty"`
	Strategy       string `json:"strategy,omitempty"`
}

func (h *BeliefHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conflict, err := h.svc.ResolveConflict(r.Context(), chi.URLParam(r, "id"),
		req.WinnerBeliefID, domain.ResolutionStrategy(req.Strategy))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflict)
}

func queryBool(r *http.Request, key string) bool {
	return r.URL.Query().Get(key) == "true"
}
