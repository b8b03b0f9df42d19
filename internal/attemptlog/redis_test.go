package attemptlog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/hookrelay/internal/models"
)

func newTestLog(t *testing.T) *RedisLog {
	t.Helper()
	url := os.Getenv("HOOKRELAY_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HOOKRELAY_TEST_REDIS_URL not set")
	}
	log, err := NewRedis(context.Background(), url, "hookrelay-test:"+models.NewID("run"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestRedisLog_RetentionAndFilter(t *testing.T) {
	ctx := context.Background()
	log := newTestLog(t)
	t.Cleanup(func() { log.PurgeAttempts(context.Background(), "tnt_a", "wh_a") })

	for i := 1; i <= 6; i++ {
		a := &models.Attempt{
			ID:         models.NewID("att"),
			TenantID:   "tnt_a",
			EndpointID: "wh_a",
			Event:      "order.created",
			Success:    i%2 == 0,
			Attempt:    i,
			CreatedAt:  time.Now().UTC(),
		}
		require.NoError(t, log.CreateAttempt(ctx, a, 4))
	}

	all, total, err := log.ListAttempts(ctx, "tnt_a", "wh_a", models.AttemptFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, all, 4)
	assert.Equal(t, 6, all[0].Attempt)
	assert.Equal(t, 3, all[3].Attempt)

	ok, total, err := log.ListAttempts(ctx, "tnt_a", "wh_a", models.AttemptFilter{Status: models.AttemptSuccess, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, ok, 1)
	assert.Equal(t, 6, ok[0].Attempt)

	page, _, err := log.ListAttempts(ctx, "tnt_a", "wh_a", models.AttemptFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)

	require.NoError(t, log.PurgeAttempts(ctx, "tnt_a", "wh_a"))
	_, total, err = log.ListAttempts(ctx, "tnt_a", "wh_a", models.AttemptFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRedisLog_PurgeTenant(t *testing.T) {
	ctx := context.Background()
	log := newTestLog(t)
	t.Cleanup(func() { log.PurgeTenant(context.Background(), "tnt_keep") })

	for _, target := range [][2]string{{"tnt_gone", "wh_1"}, {"tnt_gone", "wh_2"}, {"tnt_keep", "wh_3"}} {
		a := &models.Attempt{ID: models.NewID("att"), TenantID: target[0], EndpointID: target[1], Success: true, Attempt: 1}
		require.NoError(t, log.CreateAttempt(ctx, a, 10))
	}

	require.NoError(t, log.PurgeTenant(ctx, "tnt_gone"))

	for _, id := range []string{"wh_1", "wh_2"} {
		_, total, err := log.ListAttempts(ctx, "tnt_gone", id, models.AttemptFilter{})
		require.NoError(t, err)
		assert.Zero(t, total, id)
	}
	_, total, err := log.ListAttempts(ctx, "tnt_keep", "wh_3", models.AttemptFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRedisLog_PurgeTenantWithoutKeys(t *testing.T) {
	log := newTestLog(t)
	require.NoError(t, log.PurgeTenant(context.Background(), "tnt_none"))
}
