package storage

import (
	"context"
	"errors"

	"github.com/shohag/hookrelay/internal/models"
)

var (
	// ErrNotFound is returned by writes that target a missing row. Reads
	// return a nil value and a nil error instead.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict means the row changed since it was read.
	ErrConflict = errors.New("storage: version conflict")
)

type Storage interface {
	// Tenants
	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	UpdateTenantSettings(ctx context.Context, id string, settings models.WebhookSettings) error
	UpdateTenantAPIKey(ctx context.Context, id, newKey string) error
	DeleteTenant(ctx context.Context, id string) error

	// Endpoints
	CreateEndpoint(ctx context.Context, ep *models.Endpoint) error
	GetEndpoint(ctx context.Context, tenantID, id string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context, tenantID string, filter models.EndpointFilter) ([]models.Endpoint, int, error)
	// UpdateEndpoint writes ep if its Version still matches the stored row
	// and bumps ep.Version on success.
	UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error
	DeleteEndpoint(ctx context.Context, tenantID, id string) error
	GetEndpointsByEvent(ctx context.Context, tenantID, event string) ([]models.Endpoint, error)

	// Attempts
	CreateAttempt(ctx context.Context, a *models.Attempt, keep int) error
	ListAttempts(ctx context.Context, tenantID, endpointID string, filter models.AttemptFilter) ([]models.Attempt, int, error)

	// Stats
	GetStats(ctx context.Context, tenantID string) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type Stats struct {
	TotalEndpoints    int64   `json:"totalEndpoints"`
	ActiveEndpoints   int64   `json:"activeEndpoints"`
	HealthyEndpoints  int64   `json:"healthyEndpoints"`
	ErrorEndpoints    int64   `json:"errorEndpoints"`
	PendingEndpoints  int64   `json:"pendingEndpoints"`
	DisabledEndpoints int64   `json:"disabledEndpoints"`
	TotalTriggers     int64   `json:"totalTriggers"`
	SuccessCount      int64   `json:"successCount"`
	FailureCount      int64   `json:"failureCount"`
	SuccessRate       float64 `json:"successRate"`
}

func (s *Stats) addStatus(status models.Status, n int64) {
	switch status {
	case models.StatusHealthy:
		s.HealthyEndpoints += n
	case models.StatusError:
		s.ErrorEndpoints += n
	case models.StatusPending:
		s.PendingEndpoints += n
	case models.StatusDisabled:
		s.DisabledEndpoints += n
	}
}

func (s *Stats) finish() {
	s.SuccessRate = models.SuccessRate(s.SuccessCount, s.TotalTriggers)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
