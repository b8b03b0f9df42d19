package webhook

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/hookrelay/internal/apperr"
	"github.com/shohag/hookrelay/internal/models"
)

func TestCreate_NewEndpointStartsPending(t *testing.T) {
	f := newFixture(t, Options{})

	ep, err := f.svc.CreateEndpoint(context.Background(), f.tenant.ID, CreateInput{
		Name:   "Order Hook",
		URL:    "https://example.com/hook",
		Events: []string{"order.created"},
		Method: "POST",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, ep.Status)
	assert.Zero(t, ep.TriggerCount)
	assert.Zero(t, ep.SuccessCount)
	assert.Zero(t, ep.FailureCount)
	assert.True(t, strings.HasPrefix(ep.Secret, "whsec_"))
	assert.True(t, ep.Active)
	assert.Nil(t, ep.LastTriggered)
	assert.True(t, strings.HasPrefix(ep.ID, "wh_"))
}

func TestCreate_RejectsEmptyEventsAndPersistsNothing(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.CreateEndpoint(ctx, f.tenant.ID, CreateInput{
		Name:   "Order Hook",
		URL:    "https://example.com/hook",
		Events: []string{},
	})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	page, err := f.svc.ListEndpoints(ctx, f.tenant.ID, ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	valid := CreateInput{Name: "Hook", URL: "https://example.com", Events: []string{"a"}}

	cases := map[string]func(in *CreateInput){
		"empty name":      func(in *CreateInput) { in.Name = "   " },
		"long name":       func(in *CreateInput) { in.Name = strings.Repeat("n", 101) },
		"relative url":    func(in *CreateInput) { in.URL = "/hook" },
		"ftp url":         func(in *CreateInput) { in.URL = "ftp://example.com/hook" },
		"missing host":    func(in *CreateInput) { in.URL = "https://" },
		"nil events":      func(in *CreateInput) { in.Events = nil },
		"blank event":     func(in *CreateInput) { in.Events = []string{"order.created", " "} },
		"unknown method":  func(in *CreateInput) { in.Method = "DELETE" },
		"long desc":       func(in *CreateInput) { in.Description = strings.Repeat("d", 501) },
		"bad header name": func(in *CreateInput) { in.Headers = map[string]string{"Bad Header": "x"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := f.svc.CreateEndpoint(context.Background(), f.tenant.ID, in)
			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err), "got %v", err)
		})
	}
}

func TestCreate_NormalizesInput(t *testing.T) {
	f := newFixture(t, Options{})
	inactive := false

	ep, err := f.svc.CreateEndpoint(context.Background(), f.tenant.ID, CreateInput{
		Name:   "  Hook  ",
		URL:    " https://example.com/hook ",
		Events: []string{" order.created", "order.created", "order.paid"},
		Method: "patch",
		Active: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hook", ep.Name)
	assert.Equal(t, "https://example.com/hook", ep.URL)
	assert.Equal(t, []string{"order.created", "order.paid"}, ep.Events)
	assert.Equal(t, models.MethodPatch, ep.Method)
	assert.False(t, ep.Active)
	assert.Equal(t, models.StatusDisabled, ep.Status)
}

func TestList_PaginatesAndRedacts(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		f.create(t, "https://example.com/hook")
	}
	off := f.create(t, "https://example.com/off")
	_, err := f.svc.ToggleEndpoint(ctx, f.tenant.ID, off.ID)
	require.NoError(t, err)

	page, err := f.svc.ListEndpoints(ctx, f.tenant.ID, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 13, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageLimit, page.Limit)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Webhooks, 10)
	for _, ep := range page.Webhooks {
		assert.Empty(t, ep.Secret)
	}

	second, err := f.svc.ListEndpoints(ctx, f.tenant.ID, ListFilter{Page: 2})
	require.NoError(t, err)
	assert.Len(t, second.Webhooks, 3)

	inactive := false
	filtered, err := f.svc.ListEndpoints(ctx, f.tenant.ID, ListFilter{Active: &inactive})
	require.NoError(t, err)
	require.Equal(t, 1, filtered.Total)
	assert.Equal(t, off.ID, filtered.Webhooks[0].ID)

	disabled, err := f.svc.ListEndpoints(ctx, f.tenant.ID, ListFilter{Status: "disabled", Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, disabled.Total)
	assert.Equal(t, MaxPageLimit, disabled.Limit)

	_, err = f.svc.ListEndpoints(ctx, f.tenant.ID, ListFilter{Status: "broken"})
	assert.True(t, apperr.IsValidation(err))
}

func TestUpdate_PartialKeepsSecretAndCounters(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	ep := f.create(t, "https://example.com/hook")

	name := "Renamed"
	events := []string{"user.created"}
	updated, err := f.svc.UpdateEndpoint(ctx, f.tenant.ID, ep.ID, UpdateInput{Name: &name, Events: &events})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, []string{"user.created"}, updated.Events)
	assert.Equal(t, ep.URL, updated.URL)
	assert.Equal(t, ep.Secret, updated.Secret)
	assert.Greater(t, updated.Version, ep.Version)

	badURL := "not a url"
	_, err = f.svc.UpdateEndpoint(ctx, f.tenant.ID, ep.ID, UpdateInput{URL: &badURL})
	assert.True(t, apperr.IsValidation(err))

	empty := []string{}
	_, err = f.svc.UpdateEndpoint(ctx, f.tenant.ID, ep.ID, UpdateInput{Events: &empty})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.svc.UpdateEndpoint(ctx, f.tenant.ID, "wh_missing", UpdateInput{Name: &name})
	assert.True(t, apperr.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	ep := f.create(t, "https://example.com/hook")

	require.NoError(t, f.svc.DeleteEndpoint(ctx, f.tenant.ID, ep.ID))
	_, err := f.svc.GetEndpoint(ctx, f.tenant.ID, ep.ID)
	assert.True(t, apperr.IsNotFound(err))
	assert.True(t, apperr.IsNotFound(f.svc.DeleteEndpoint(ctx, f.tenant.ID, ep.ID)))
}

func TestToggle_DisablesAndRestores(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	srv, _ := statusServer(t, 200)
	ep := f.create(t, srv.URL)

	_, err := f.svc.Test(ctx, f.tenant.ID, ep.ID, nil)
	require.NoError(t, err)

	off, err := f.svc.ToggleEndpoint(ctx, f.tenant.ID, ep.ID)
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.Equal(t, models.StatusDisabled, off.Status)

	on, err := f.svc.ToggleEndpoint(ctx, f.tenant.ID, ep.ID)
	require.NoError(t, err)
	assert.True(t, on.Active)
	assert.Equal(t, models.StatusHealthy, on.Status)

	_, err = f.svc.ToggleEndpoint(ctx, f.tenant.ID, "wh_missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestDuplicates(t *testing.T) {
	t.Run("allowed by default", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.create(t, "https://example.com/hook", "a", "b")
		f.create(t, "https://example.com/hook", "b", "a")
	})

	t.Run("rejected when configured", func(t *testing.T) {
		f := newFixture(t, Options{Registry: RegistryOptions{RejectDuplicates: true}})
		ctx := context.Background()
		first := f.create(t, "https://example.com/hook", "a", "b")

		_, err := f.svc.CreateEndpoint(ctx, f.tenant.ID, CreateInput{
			Name: "Again", URL: "https://example.com/hook", Events: []string{"b", "a"},
		})
		assert.True(t, apperr.IsConflict(err))

		other := f.create(t, "https://example.com/other", "a", "b")
		dupURL := "https://example.com/hook"
		_, err = f.svc.UpdateEndpoint(ctx, f.tenant.ID, other.ID, UpdateInput{URL: &dupURL})
		assert.True(t, apperr.IsConflict(err))

		name := "Same endpoint, new name"
		_, err = f.svc.UpdateEndpoint(ctx, f.tenant.ID, first.ID, UpdateInput{Name: &name, URL: &dupURL})
		assert.NoError(t, err, "an endpoint never conflicts with itself")
	})
}

func TestRegistry_RetriesVersionConflicts(t *testing.T) {
	f := newFixture(t, Options{})
	ep := f.create(t, "https://example.com/hook")

	flaky := &conflictStore{Storage: f.store}
	flaky.remaining.Store(2)
	reg := NewRegistry(flaky, RegistryOptions{})
	toggled, err := reg.Toggle(context.Background(), f.tenant.ID, ep.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)
	assert.Equal(t, int32(3), flaky.writes.Load())

	always := &conflictStore{Storage: f.store}
	always.remaining.Store(100)
	reg = NewRegistry(always, RegistryOptions{})
	_, err = reg.Toggle(context.Background(), f.tenant.ID, ep.ID)
	assert.True(t, apperr.IsConflict(err))
	assert.Equal(t, int32(registryWriteAttempts), always.writes.Load())
}
