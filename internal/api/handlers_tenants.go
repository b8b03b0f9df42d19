package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shohag/hookrelay/internal/apperr"
	"github.com/shohag/hookrelay/internal/models"
	"github.com/shohag/hookrelay/internal/storage"
	"github.com/shohag/hookrelay/internal/webhook"
)

type TenantHandler struct {
	store    storage.Storage
	svc      *webhook.Service
	defaults models.WebhookSettings
}

func NewTenantHandler(store storage.Storage, svc *webhook.Service, defaults models.WebhookSettings) *TenantHandler {
	return &TenantHandler{store: store, svc: svc, defaults: defaults}
}

type createTenantRequest struct {
	Name     string                  `json:"name"`
	Settings *models.WebhookSettings `json:"settings"`
}

// Create returns the tenant with its API key; later reads never show it.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeServiceError(w, r, apperr.Validation("name", "name is required"))
		return
	}

	settings := h.defaults
	if req.Settings != nil {
		settings = *req.Settings
	}
	if err := settings.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	tenant := models.NewTenant(name, settings)
	if err := h.store.CreateTenant(r.Context(), tenant); err != nil {
		writeServiceError(w, r, apperr.Internal(err, "failed to create tenant"))
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tenant, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, apperr.Internal(err, "failed to get tenant"))
		return
	}
	if tenant == nil {
		writeServiceError(w, r, apperr.NotFound("tenant", id))
		return
	}
	tenant.APIKey = "" // don't expose
	writeJSON(w, http.StatusOK, tenant)
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.ListTenants(r.Context())
	if err != nil {
		writeServiceError(w, r, apperr.Internal(err, "failed to list tenants"))
		return
	}
	for i := range tenants {
		tenants[i].APIKey = "" // don't expose
	}
	if tenants == nil {
		tenants = []models.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTenant(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TenantHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	newKey := models.NewAPIKey()
	err := h.store.UpdateTenantAPIKey(r.Context(), id, newKey)
	if errors.Is(err, storage.ErrNotFound) {
		writeServiceError(w, r, apperr.NotFound("tenant", id))
		return
	}
	if err != nil {
		writeServiceError(w, r, apperr.Internal(err, "failed to rotate key"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"apiKey": newKey})
}
