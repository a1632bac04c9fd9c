package handlers

import (
	"net/http"

	"github.com/doxa-ai/doxa/internal/service"
)

type SystemHandler struct {
	memories *service.MemoryService
}

func NewSystemHandler(memories *service.MemoryService) *SystemHandler {
	return &SystemHandler{memories: memories}
}

// Stats reports store-wide memory counts and the active search strategy.
func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.memories.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
