package api

import (
	"encoding/json"
	"net/http"

	"github.com/shohag/hookrelay/internal/webhook"
)

type EventHandler struct {
	svc   *webhook.Service
	queue webhook.Queue
}

func NewEventHandler(svc *webhook.Service, queue webhook.Queue) *EventHandler {
	return &EventHandler{svc: svc, queue: queue}
}

type publishRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const maxPayloadSize = 256 * 1024 // 256KB

// Publish queues one delivery per matching endpoint and answers before any
// of them run.
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadSize)
	var req publishRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}

	matched, err := h.svc.Publish(r.Context(), tenant.ID, req.Event, req.Data, h.queue)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"event":   req.Event,
		"matched": matched,
	})
}
