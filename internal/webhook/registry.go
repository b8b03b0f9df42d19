package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/shohag/hookrelay/internal/apperr"
	"github.com/shohag/hookrelay/internal/metrics"
	"github.com/shohag/hookrelay/internal/models"
	"github.com/shohag/hookrelay/internal/storage"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100

	// registryWriteAttempts bounds re-read/re-apply cycles on version conflicts.
	registryWriteAttempts = 3
)

type RegistryOptions struct {
	// RejectDuplicates refuses a second endpoint with the same URL and
	// event set for one tenant.
	RejectDuplicates bool
}

type CreateInput struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Events      []string          `json:"events"`
	Method      string            `json:"method"`
	Description string            `json:"description"`
	Active      *bool             `json:"active"`
	Headers     map[string]string `json:"headers"`
}

// UpdateInput is a partial update; nil fields are left alone.
type UpdateInput struct {
	Name        *string            `json:"name"`
	URL         *string            `json:"url"`
	Events      *[]string          `json:"events"`
	Method      *string            `json:"method"`
	Description *string            `json:"description"`
	Active      *bool              `json:"active"`
	Headers     *map[string]string `json:"headers"`
}

type ListFilter struct {
	Status string
	Active *bool
	Page   int
	Limit  int
}

type Page struct {
	Webhooks   []models.Endpoint `json:"webhooks"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"totalPages"`
}

// Registry owns endpoint definitions. Every write is version-checked.
type Registry struct {
	store storage.Storage
	opts  RegistryOptions
	now   func() time.Time
}

func NewRegistry(store storage.Storage, opts RegistryOptions) *Registry {
	return &Registry{store: store, opts: opts, now: time.Now}
}

func (r *Registry) Create(ctx context.Context, tenantID string, in CreateInput) (*models.Endpoint, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	rawURL, err := validateURL(in.URL)
	if err != nil {
		return nil, err
	}
	events, err := normalizeEvents(in.Events)
	if err != nil {
		return nil, err
	}
	method, err := validateMethod(in.Method)
	if err != nil {
		return nil, err
	}
	description, err := validateDescription(in.Description)
	if err != nil {
		return nil, err
	}
	headers, err := validateHeaders(in.Headers)
	if err != nil {
		return nil, err
	}
	if err := r.checkDuplicate(ctx, tenantID, "", rawURL, events); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	ep := &models.Endpoint{
		ID:          models.NewID("wh"),
		TenantID:    tenantID,
		Name:        name,
		Description: description,
		URL:         rawURL,
		Events:      events,
		Method:      method,
		Active:      true,
		Secret:      models.NewSecret(),
		Headers:     headers,
		Status:      models.StatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Active != nil && !*in.Active {
		ep.SetActive(false)
	}

	if err := r.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, apperr.Internal(err, "failed to create webhook")
	}
	return ep, nil
}

func (r *Registry) Get(ctx context.Context, tenantID, id string) (*models.Endpoint, error) {
	ep, err := r.store.GetEndpoint(ctx, tenantID, id)
	if err != nil {
		return nil, apperr.Internal(err, "failed to get webhook")
	}
	if ep == nil {
		return nil, apperr.NotFound("webhook", id)
	}
	return ep, nil
}

func (r *Registry) List(ctx context.Context, tenantID string, f ListFilter) (*Page, error) {
	filter := models.EndpointFilter{Active: f.Active}
	if f.Status != "" {
		status, ok := models.ParseStatus(f.Status)
		if !ok {
			return nil, apperr.Validation("status", "status must be one of pending, healthy, error, disabled")
		}
		filter.Status = status
	}
	page, limit := normalizePage(f.Page, f.Limit)
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	endpoints, total, err := r.store.ListEndpoints(ctx, tenantID, filter)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list webhooks")
	}
	out := make([]models.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		out = append(out, ep.Redacted())
	}
	return &Page{
		Webhooks:   out,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}, nil
}

func (r *Registry) Update(ctx context.Context, tenantID, id string, in UpdateInput) (*models.Endpoint, error) {
	// Validate once up front so a bad field never costs a read.
	var patch models.Endpoint
	var err error
	if in.Name != nil {
		if patch.Name, err = validateName(*in.Name); err != nil {
			return nil, err
		}
	}
	if in.URL != nil {
		if patch.URL, err = validateURL(*in.URL); err != nil {
			return nil, err
		}
	}
	if in.Events != nil {
		if patch.Events, err = normalizeEvents(*in.Events); err != nil {
			return nil, err
		}
	}
	if in.Method != nil {
		if patch.Method, err = validateMethod(*in.Method); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		if patch.Description, err = validateDescription(*in.Description); err != nil {
			return nil, err
		}
	}
	if in.Headers != nil {
		if patch.Headers, err = validateHeaders(*in.Headers); err != nil {
			return nil, err
		}
	}

	return r.mutate(ctx, tenantID, id, func(ep *models.Endpoint) error {
		if in.Name != nil {
			ep.Name = patch.Name
		}
		if in.URL != nil {
			ep.URL = patch.URL
		}
		if in.Events != nil {
			ep.Events = patch.Events
		}
		if in.Method != nil {
			ep.Method = patch.Method
		}
		if in.Description != nil {
			ep.Description = patch.Description
		}
		if in.Headers != nil {
			ep.Headers = patch.Headers
		}
		if in.Active != nil && *in.Active != ep.Active {
			ep.SetActive(*in.Active)
		}
		if in.URL != nil || in.Events != nil {
			return r.checkDuplicate(ctx, tenantID, ep.ID, ep.URL, ep.Events)
		}
		return nil
	})
}

func (r *Registry) Delete(ctx context.Context, tenantID, id string) error {
	err := r.store.DeleteEndpoint(ctx, tenantID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("webhook", id)
	}
	if err != nil {
		return apperr.Internal(err, "failed to delete webhook")
	}
	return nil
}

// Toggle flips Active. Deactivating sets disabled; reactivating restores the
// status implied by the last attempt.
func (r *Registry) Toggle(ctx context.Context, tenantID, id string) (*models.Endpoint, error) {
	return r.mutate(ctx, tenantID, id, func(ep *models.Endpoint) error {
		ep.SetActive(!ep.Active)
		return nil
	})
}

func (r *Registry) mutate(ctx context.Context, tenantID, id string, apply func(*models.Endpoint) error) (*models.Endpoint, error) {
	for attempt := 0; attempt < registryWriteAttempts; attempt++ {
		ep, err := r.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		before := ep.Status
		if err := apply(ep); err != nil {
			return nil, err
		}
		ep.UpdatedAt = r.now().UTC()

		err = r.store.UpdateEndpoint(ctx, ep)
		switch {
		case err == nil:
			metrics.ObserveTransition(string(before), string(ep.Status))
			return ep, nil
		case errors.Is(err, storage.ErrConflict):
			continue
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperr.NotFound("webhook", id)
		default:
			return nil, apperr.Internal(err, "failed to update webhook")
		}
	}
	return nil, apperr.Conflict("webhook was modified concurrently, retry the request")
}

func (r *Registry) checkDuplicate(ctx context.Context, tenantID, selfID, rawURL string, events []string) error {
	if !r.opts.RejectDuplicates {
		return nil
	}
	err := r.each(ctx, tenantID, func(ep models.Endpoint) bool {
		return ep.ID != selfID && ep.URL == rawURL && sameEventSet(ep.Events, events)
	})
	if errors.Is(err, errStop) {
		return apperr.Conflict("a webhook with the same url and events already exists")
	}
	if err != nil {
		return apperr.Internal(err, "failed to check for duplicate webhooks")
	}
	return nil
}

var errStop = errors.New("stop")

// each walks every endpoint of the tenant, returning errStop when match
// reports true.
func (r *Registry) each(ctx context.Context, tenantID string, match func(models.Endpoint) bool) error {
	for offset := 0; ; offset += MaxPageLimit {
		batch, total, err := r.store.ListEndpoints(ctx, tenantID, models.EndpointFilter{Limit: MaxPageLimit, Offset: offset})
		if err != nil {
			return err
		}
		for _, ep := range batch {
			if match(ep) {
				return errStop
			}
		}
		if len(batch) == 0 || offset+len(batch) >= total {
			return nil
		}
	}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
