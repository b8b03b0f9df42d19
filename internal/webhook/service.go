package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/hookrelay/internal/apperr"
	"github.com/shohag/hookrelay/internal/delivery"
	"github.com/shohag/hookrelay/internal/metrics"
	"github.com/shohag/hookrelay/internal/models"
	"github.com/shohag/hookrelay/internal/storage"
)

const DefaultRetention = 100

// AttemptLog is the bounded per-endpoint delivery log.
type AttemptLog interface {
	CreateAttempt(ctx context.Context, a *models.Attempt, keep int) error
	ListAttempts(ctx context.Context, tenantID, endpointID string, filter models.AttemptFilter) ([]models.Attempt, int, error)
}

// attemptPurger is implemented by logs that do not cascade with the
// endpoint row.
type attemptPurger interface {
	PurgeAttempts(ctx context.Context, tenantID, endpointID string) error
}

// tenantPurger is implemented by logs that must be cleared when a tenant
// goes away.
type tenantPurger interface {
	PurgeTenant(ctx context.Context, tenantID string) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req delivery.Request) (models.DeliveryResult, error)
}

type Queue interface {
	Submit(job delivery.Job) error
}

type Options struct {
	Registry  RegistryOptions
	Retention int
	Backoff   delivery.Backoff
}

type Service struct {
	store      storage.Storage
	registry   *Registry
	tracker    *Tracker
	dispatcher Dispatcher
	logs       AttemptLog
	retention  int
	backoff    delivery.Backoff
	log        zerolog.Logger
}

func NewService(store storage.Storage, dispatcher Dispatcher, logs AttemptLog, opts Options, log zerolog.Logger) *Service {
	if logs == nil {
		logs = store
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Backoff == (delivery.Backoff{}) {
		opts.Backoff = delivery.DefaultBackoff
	}
	return &Service{
		store:      store,
		registry:   NewRegistry(store, opts.Registry),
		tracker:    NewTracker(store),
		dispatcher: dispatcher,
		logs:       logs,
		retention:  opts.Retention,
		backoff:    opts.Backoff,
		log:        log,
	}
}

func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) tenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load tenant")
	}
	if t == nil {
		return nil, apperr.NotFound("tenant", tenantID)
	}
	return t, nil
}

// --- Endpoint CRUD ---

func (s *Service) CreateEndpoint(ctx context.Context, tenantID string, in CreateInput) (*models.Endpoint, error) {
	return s.registry.Create(ctx, tenantID, in)
}

func (s *Service) GetEndpoint(ctx context.Context, tenantID, id string) (*models.Endpoint, error) {
	return s.registry.Get(ctx, tenantID, id)
}

func (s *Service) ListEndpoints(ctx context.Context, tenantID string, f ListFilter) (*Page, error) {
	return s.registry.List(ctx, tenantID, f)
}

func (s *Service) UpdateEndpoint(ctx context.Context, tenantID, id string, in UpdateInput) (*models.Endpoint, error) {
	return s.registry.Update(ctx, tenantID, id, in)
}

func (s *Service) ToggleEndpoint(ctx context.Context, tenantID, id string) (*models.Endpoint, error) {
	return s.registry.Toggle(ctx, tenantID, id)
}

func (s *Service) DeleteEndpoint(ctx context.Context, tenantID, id string) error {
	if err := s.registry.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	if p, ok := s.logs.(attemptPurger); ok {
		if err := p.PurgeAttempts(ctx, tenantID, id); err != nil {
			s.log.Warn().Err(err).Str("endpoint_id", id).Msg("failed to purge attempt log")
		}
	}
	return nil
}

// DeleteTenant removes the tenant with its endpoints and their attempt logs.
func (s *Service) DeleteTenant(ctx context.Context, tenantID string) error {
	err := s.store.DeleteTenant(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("tenant", tenantID)
	}
	if err != nil {
		return apperr.Internal(err, "failed to delete tenant")
	}
	if p, ok := s.logs.(tenantPurger); ok {
		if err := p.PurgeTenant(ctx, tenantID); err != nil {
			s.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("failed to purge tenant attempt logs")
		}
	}
	return nil
}

// --- Settings ---

// SettingsInput is a partial settings update.
type SettingsInput struct {
	Enabled            *bool `json:"enabled"`
	RetryAttempts      *int  `json:"retryAttempts"`
	TimeoutSeconds     *int  `json:"timeoutSeconds"`
	EnableSigning      *bool `json:"enableSigning"`
	LogWebhooks        *bool `json:"logWebhooks"`
	EnableRateLimiting *bool `json:"enableRateLimiting"`
	RateLimit          *int  `json:"rateLimit"`
}

func (s *Service) Settings(ctx context.Context, tenantID string) (models.WebhookSettings, error) {
	t, err := s.tenant(ctx, tenantID)
	if err != nil {
		return models.WebhookSettings{}, err
	}
	return t.Settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, tenantID string, in SettingsInput) (models.WebhookSettings, error) {
	t, err := s.tenant(ctx, tenantID)
	if err != nil {
		return models.WebhookSettings{}, err
	}
	next := t.Settings
	if in.Enabled != nil {
		next.Enabled = *in.Enabled
	}
	if in.RetryAttempts != nil {
		next.RetryAttempts = *in.RetryAttempts
	}
	if in.TimeoutSeconds != nil {
		next.TimeoutSeconds = *in.TimeoutSeconds
	}
	if in.EnableSigning != nil {
		next.EnableSigning = *in.EnableSigning
	}
	if in.LogWebhooks != nil {
		next.LogWebhooks = *in.LogWebhooks
	}
	if in.EnableRateLimiting != nil {
		next.EnableRateLimiting = *in.EnableRateLimiting
	}
	if in.RateLimit != nil {
		next.RateLimit = *in.RateLimit
	}
	if err := next.Validate(); err != nil {
		return models.WebhookSettings{}, err
	}

	err = s.store.UpdateTenantSettings(ctx, tenantID, next)
	if errors.Is(err, storage.ErrNotFound) {
		return models.WebhookSettings{}, apperr.NotFound("tenant", tenantID)
	}
	if err != nil {
		return models.WebhookSettings{}, apperr.Internal(err, "failed to update webhook settings")
	}
	return next, nil
}

// --- Delivery ---

func defaultTestData(at time.Time) map[string]any {
	return map[string]any{
		"message":   "This is a test webhook from HookRelay",
		"timestamp": at.UTC().Format(time.RFC3339),
	}
}

// Test sends one webhook.test attempt. A failed delivery is a normal result,
// not an error.
func (s *Service) Test(ctx context.Context, tenantID, id string, testData any) (*models.DeliveryResult, error) {
	ep, err := s.registry.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	t, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.Settings.Enabled {
		return nil, apperr.Precondition("webhooks are disabled for this tenant")
	}
	if !ep.Active {
		return nil, apperr.Precondition("cannot test an inactive webhook endpoint")
	}
	if testData == nil {
		testData = defaultTestData(time.Now())
	}

	result, err := s.dispatcher.Dispatch(ctx, delivery.Request{
		TenantID: tenantID,
		Settings: t.Settings,
		Endpoint: *ep,
		Event:    models.TestEvent,
		Data:     testData,
		Test:     true,
		Attempt:  1,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.record(ctx, t, ep.ID, models.TestEvent, true, result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Deliver runs the retry loop for one endpoint. It stops early on success,
// or when the endpoint is deleted or deactivated between attempts.
func (s *Service) Deliver(ctx context.Context, tenantID, endpointID, event string, data any) ([]models.DeliveryResult, error) {
	t, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.Settings.Enabled {
		return nil, apperr.Precondition("webhooks are disabled for this tenant")
	}

	var results []models.DeliveryResult
	err = delivery.Retry(ctx, t.Settings.RetryAttempts, s.backoff, func(ctx context.Context, attempt int) (bool, error) {
		ep, err := s.store.GetEndpoint(ctx, tenantID, endpointID)
		if err != nil {
			return false, apperr.Internal(err, "failed to load webhook")
		}
		if ep == nil {
			if attempt == 1 {
				return false, apperr.NotFound("webhook", endpointID)
			}
			return true, nil
		}
		if !ep.Active && attempt > 1 {
			return true, nil
		}

		result, err := s.dispatcher.Dispatch(ctx, delivery.Request{
			TenantID: tenantID,
			Settings: t.Settings,
			Endpoint: *ep,
			Event:    event,
			Data:     data,
			Attempt:  attempt,
		})
		if err != nil {
			return false, err
		}
		results = append(results, result)

		updated, err := s.record(ctx, t, endpointID, event, false, result)
		if err != nil {
			return false, err
		}
		return result.Success || updated == nil, nil
	})
	return results, err
}

// Publish fans event out to every active endpoint subscribed to it and
// returns how many jobs were queued.
func (s *Service) Publish(ctx context.Context, tenantID, event string, data json.RawMessage, queue Queue) (int, error) {
	if err := validateEventName("event", event); err != nil {
		return 0, err
	}
	if len(data) > 0 && !json.Valid(data) {
		return 0, apperr.Validation("data", "data must be valid JSON")
	}
	t, err := s.tenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if !t.Settings.Enabled {
		return 0, apperr.Precondition("webhooks are disabled for this tenant")
	}

	endpoints, err := s.store.GetEndpointsByEvent(ctx, tenantID, event)
	if err != nil {
		return 0, apperr.Internal(err, "failed to match webhooks")
	}

	queued := 0
	for _, ep := range endpoints {
		err := queue.Submit(delivery.Job{
			TenantID:   tenantID,
			EndpointID: ep.ID,
			Event:      event,
			Data:       data,
			EnqueuedAt: time.Now().UTC(),
		})
		if err != nil {
			s.log.Warn().Err(err).
				Str("tenant_id", tenantID).
				Str("event", event).
				Int("queued", queued).
				Int("matched", len(endpoints)).
				Msg("delivery queue rejected job")
			return queued, apperr.Unavailable("delivery queue is full, retry later")
		}
		queued++
	}
	return queued, nil
}

// HandleJob makes Service a delivery.Handler for the worker pool.
func (s *Service) HandleJob(ctx context.Context, job delivery.Job) {
	var data any
	if len(job.Data) > 0 {
		data = job.Data
	}
	results, err := s.Deliver(ctx, job.TenantID, job.EndpointID, job.Event, data)
	if err != nil {
		s.log.Warn().Err(err).
			Str("tenant_id", job.TenantID).
			Str("endpoint_id", job.EndpointID).
			Str("event", job.Event).
			Msg("delivery job stopped")
		return
	}
	if n := len(results); n > 0 && !results[n-1].Success {
		s.log.Warn().
			Str("tenant_id", job.TenantID).
			Str("endpoint_id", job.EndpointID).
			Str("event", job.Event).
			Int("attempts", n).
			Msg("delivery exhausted retries")
	}
}

// record feeds the result to the tracker and the attempt log. It returns
// nil when the endpoint was deleted meanwhile. A throttled result never
// reached the endpoint, so it leaves counters, status and the log alone.
func (s *Service) record(ctx context.Context, t *models.Tenant, endpointID, event string, test bool, r models.DeliveryResult) (*models.Endpoint, error) {
	outcome := "success"
	if !r.Success {
		outcome = "http_error"
		if r.Error != nil {
			outcome = r.Error.Code
		}
	}
	metrics.ObserveDelivery(event, outcome, r.DurationMs)

	logEvent := s.log.Info()
	if !r.Success {
		logEvent = s.log.Warn().Str("error", r.FailureMessage())
	}
	logEvent.
		Str("tenant_id", t.ID).
		Str("endpoint_id", endpointID).
		Str("delivery_id", r.ID).
		Str("event", event).
		Int("attempt", r.Attempt).
		Int("status_code", r.StatusCode).
		Int64("duration_ms", r.DurationMs).
		Bool("test", test).
		Msg("webhook delivery attempt")

	if delivery.Throttled(r) {
		ep, err := s.store.GetEndpoint(ctx, t.ID, endpointID)
		if err != nil {
			return nil, apperr.Internal(err, "failed to load webhook")
		}
		return ep, nil
	}

	updated, err := s.tracker.Record(ctx, t.ID, endpointID, r)
	if err != nil {
		return nil, apperr.Internal(err, "failed to record delivery result")
	}
	if updated == nil {
		s.log.Debug().Str("endpoint_id", endpointID).Msg("endpoint deleted during delivery, result dropped")
		return nil, nil
	}

	if t.Settings.LogWebhooks {
		attempt := models.NewAttempt(t.ID, endpointID, event, test, r)
		if err := s.logs.CreateAttempt(ctx, &attempt, s.retention); err != nil {
			s.log.Warn().Err(err).Str("endpoint_id", endpointID).Msg("failed to append attempt log")
		}
	}
	return updated, nil
}
