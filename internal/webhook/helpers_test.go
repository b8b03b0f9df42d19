package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/shohag/hookrelay/internal/delivery"
	"github.com/shohag/hookrelay/internal/models"
	"github.com/shohag/hookrelay/internal/storage"
)

type fixture struct {
	store  storage.Storage
	svc    *Service
	tenant *models.Tenant
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "hookrelay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	settings := models.DefaultWebhookSettings()
	settings.TimeoutSeconds = 5
	tenant := models.NewTenant("acme", settings)
	require.NoError(t, store.CreateTenant(context.Background(), tenant))

	if opts.Backoff == (delivery.Backoff{}) {
		opts.Backoff = delivery.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond}
	}
	svc := NewService(store, delivery.NewDispatcher(delivery.Options{}), nil, opts, zerolog.Nop())
	return &fixture{store: store, svc: svc, tenant: tenant}
}

func (f *fixture) create(t *testing.T, url string, events ...string) *models.Endpoint {
	t.Helper()
	if len(events) == 0 {
		events = []string{"order.created"}
	}
	ep, err := f.svc.CreateEndpoint(context.Background(), f.tenant.ID, CreateInput{
		Name:   "Order Hook",
		URL:    url,
		Events: events,
		Method: "POST",
	})
	require.NoError(t, err)
	return ep
}

func (f *fixture) reload(t *testing.T, id string) *models.Endpoint {
	t.Helper()
	ep, err := f.svc.GetEndpoint(context.Background(), f.tenant.ID, id)
	require.NoError(t, err)
	return ep
}

func (f *fixture) updateSettings(t *testing.T, fn func(*models.WebhookSettings)) {
	t.Helper()
	settings := f.tenant.Settings
	fn(&settings)
	require.NoError(t, f.store.UpdateTenantSettings(context.Background(), f.tenant.ID, settings))
	f.tenant.Settings = settings
}

// statusServer answers with the next status from codes, repeating the last.
func statusServer(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(codes) {
			n = len(codes) - 1
		}
		w.WriteHeader(codes[n])
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func unreachableURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

// conflictStore fails the first n endpoint writes with a version conflict.
type conflictStore struct {
	storage.Storage
	remaining atomic.Int32
	writes    atomic.Int32
}

func (s *conflictStore) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	s.writes.Add(1)
	if s.remaining.Add(-1) >= 0 {
		return storage.ErrConflict
	}
	return s.Storage.UpdateEndpoint(ctx, ep)
}
