package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/hookrelay/internal/models"
)

func newTestPostgres(t *testing.T) *PostgresStorage {
	t.Helper()
	dsn := os.Getenv("HOOKRELAY_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("HOOKRELAY_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgres(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestPostgres_EndpointLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestPostgres(t)
	tenant := seedTenant(t, store)
	t.Cleanup(func() { store.DeleteTenant(context.Background(), tenant.ID) })
	ep := seedEndpoint(t, store, tenant.ID, "order.created")

	got, err := store.GetEndpoint(ctx, tenant.ID, ep.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"order.created"}, got.Events)

	stale := *got
	now := time.Now().UTC()
	ok := true
	got.TriggerCount, got.SuccessCount = 1, 1
	got.LastTriggered, got.LastSuccess = &now, &ok
	got.Status = models.StatusHealthy
	require.NoError(t, store.UpdateEndpoint(ctx, got))
	assert.Equal(t, int64(2), got.Version)
	assert.ErrorIs(t, store.UpdateEndpoint(ctx, &stale), ErrConflict)

	for i := 1; i <= 4; i++ {
		require.NoError(t, store.CreateAttempt(ctx, &models.Attempt{
			ID:         models.NewID("att"),
			TenantID:   tenant.ID,
			EndpointID: ep.ID,
			Event:      "order.created",
			Success:    true,
			StatusCode: 200,
			Attempt:    i,
			CreatedAt:  time.Now().UTC(),
		}, 2))
	}
	attempts, total, err := store.ListAttempts(ctx, tenant.ID, ep.ID, models.AttemptFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, attempts, 2)
	assert.Equal(t, 4, attempts[0].Attempt)

	stats, err := store.GetStats(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.HealthyEndpoints)
	assert.Equal(t, float64(100), stats.SuccessRate)

	require.NoError(t, store.DeleteEndpoint(ctx, tenant.ID, ep.ID))
	assert.ErrorIs(t, store.UpdateEndpoint(ctx, got), ErrNotFound)
}
