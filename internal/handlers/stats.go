package handlers

import (
	"net/http"
	"time"
)

// StatsResponse represents the aggregate session statistics response.
type StatsResponse struct {
	Sessions  map[string]int64 `json:"sessions"`
	Total     int64            `json:"total"`
	Timestamp string           `json:"timestamp"`
}

// Stats handles GET /stats: session counts grouped by status.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.orch.Stats(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}

	sessions := make(map[string]int64, len(counts))
	var total int64
	for status, n := range counts {
		sessions[string(status)] = n
		total += n
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Sessions:  sessions,
		Total:     total,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
