package handlers

import (
	"errors"
	"net/http"

	"github.com/uezo/speech-gateway/internal/gateway"
)

type CacheHandler struct {
	unified *gateway.UnifiedGateway
}

func NewCacheHandler(unified *gateway.UnifiedGateway) *CacheHandler {
	return &CacheHandler{unified: unified}
}

// Purge handles DELETE /cache: drops every cached entry for one service.
func (h *CacheHandler) Purge(w http.ResponseWriter, r *http.Request) {
	serviceName := r.URL.Query().Get("service_name")
	if serviceName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "service_name required"})
		return
	}

	if err := h.unified.PurgeCache(r.Context(), serviceName); err != nil {
		if errors.Is(err, gateway.ErrNoGateway) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no gateway found: " + serviceName})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared", "service_name": serviceName})
}
