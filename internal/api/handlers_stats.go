package api

import (
	"net/http"

	"github.com/shohag/hookrelay/internal/webhook"
)

type StatsHandler struct {
	svc *webhook.Service
}

func NewStatsHandler(svc *webhook.Service) *StatsHandler {
	return &StatsHandler{svc: svc}
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "hookrelay",
	})
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	stats, err := h.svc.TenantStats(r.Context(), tenant.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
