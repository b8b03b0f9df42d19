package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shohag/hookrelay/internal/apperr"
	"github.com/shohag/hookrelay/internal/webhook"
)

type WebhookHandler struct {
	svc *webhook.Service
}

func NewWebhookHandler(svc *webhook.Service) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// Create returns the only response that carries the endpoint secret.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	var req webhook.CreateInput
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}

	ep, err := h.svc.CreateEndpoint(r.Context(), tenant.ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ep)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	q := r.URL.Query()

	filter := webhook.ListFilter{Status: q.Get("status")}
	var err error
	if filter.Page, err = intParam(q.Get("page"), "page"); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeServiceError(w, r, apperr.Validation("active", "active must be true or false"))
			return
		}
		filter.Active = &active
	}

	page, err := h.svc.ListEndpoints(r.Context(), tenant.ID, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	ep, err := h.svc.GetEndpoint(r.Context(), tenant.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ep.Redacted())
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	var req webhook.UpdateInput
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}

	ep, err := h.svc.UpdateEndpoint(r.Context(), tenant.ID, chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ep.Redacted())
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.svc.DeleteEndpoint(r.Context(), tenant.ID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"webhookId": id})
}

func (h *WebhookHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	ep, err := h.svc.ToggleEndpoint(r.Context(), tenant.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ep.Redacted())
}

type testRequest struct {
	TestData any `json:"testData"`
}

// Test always answers 200 with the delivery result once the attempt ran,
// whether or not the endpoint accepted it.
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	var req testRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.svc.Test(r.Context(), tenant.ID, chi.URLParam(r, "id"), req.TestData)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *WebhookHandler) Logs(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	q := r.URL.Query()

	filter := webhook.LogFilter{Status: q.Get("status")}
	var err error
	if filter.Page, err = intParam(q.Get("page"), "page"); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		writeServiceError(w, r, err)
		return
	}

	logs, err := h.svc.Logs(r.Context(), tenant.ID, chi.URLParam(r, "id"), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *WebhookHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	stats, err := h.svc.Stats(r.Context(), tenant.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *WebhookHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	settings, err := h.svc.Settings(r.Context(), tenant.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *WebhookHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	var req webhook.SettingsInput
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}

	settings, err := h.svc.UpdateSettings(r.Context(), tenant.ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(field, field+" must be a positive integer")
	}
	return n, nil
}
