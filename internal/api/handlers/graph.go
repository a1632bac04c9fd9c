package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/service"
)

type GraphHandler struct {
	svc *service.GraphService
}

func NewGraphHandler(svc *service.GraphService) *GraphHandler {
	return &GraphHandler{svc: svc}
}

func (h *GraphHandler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	var in service.CreateEdgeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rel, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (h *GraphHandler) GetEdge(w http.ResponseWriter, r *http.Request) {
	rel, err := h.svc.Edge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (h *GraphHandler) UpdateEdge(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateEdgeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rel, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (h *GraphHandler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "relationship not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GraphHandler) DeactivateEdge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed, err := h.svc.Deactivate(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": false, "changed": changed})
}

func (h *GraphHandler) ReactivateEdge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed, err := h.svc.Reactivate(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": true, "changed": changed})
}

// BeliefRelationships lists the edges touching a belief;
// ?direction=out|in|both picks the side, defaulting to both.
func (h *GraphHandler) BeliefRelationships(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var (
		edges []domain.BeliefRelationship
		err   error
	)
	switch r.URL.Query().Get("direction") {
	case "out":
		edges, err = h.svc.Outgoing(ctx, id)
	case "in":
		edges, err = h.svc.Incoming(ctx, id)
	case "", "both":
		var incoming []domain.BeliefRelationship
		edges, err = h.svc.Outgoing(ctx, id)
		if err == nil {
			incoming, err = h.svc.Incoming(ctx, id)
			edges = append(edges, incoming...)
		}
	default:
		writeError(w, http.StatusBadRequest, "direction must be out, in, or both")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationships": edges})
}

func (h *GraphHandler) Related(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	related, err := h.svc.RelatedWithinDepth(r.Context(), agentID, chi.URLParam(r, "id"), queryInt(r, "depth", 1))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"related": related})
}

func (h *GraphHandler) DeprecationChain(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	chain, err := h.svc.DeprecationChain(r.Context(), agentID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chain": chain})
}

func (h *GraphHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	graph, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "agentID"), queryBool(r, "include_inactive"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (h *GraphHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = string(domain.ExportJSON)
	}

	data, err := h.svc.Export(r.Context(), chi.URLParam(r, "agentID"), format)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if format == string(domain.ExportDOT) {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Import loads an exported JSON graph document under the agent, regenerating
// all ids.
func (h *GraphHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	graph, err := h.svc.Import(r.Context(), chi.URLParam(r, "agentID"), data)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, graph)
}

func (h *GraphHandler) Validate(w http.ResponseWriter, r *http.Request) {
	issues, err := h.svc.Validate(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issues":     issues,
		"consistent": len(issues) == 0,
	})
}

func (h *GraphHandler) Clusters(w http.ResponseWriter, r *http.Request) {
	minStrength := 0.0
	if raw := r.URL.Query().Get("min_strength"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_strength must be a number")
			return
		}
		minStrength = parsed
	}

	clusters, err := h.svc.ClustersByStrength(r.Context(), chi.URLParam(r, "agentID"), minStrength)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters})
}

func (h *GraphHandler) Path(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agentID, from, to := q.Get("agent_id"), q.Get("from"), q.Get("to")
	if agentID == "" || from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "agent_id, from, and to are required")
		return
	}

	path, err := h.svc.ShortestPath(r.Context(), agentID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}
