package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribesTo(t *testing.T) {
	ep := Endpoint{Events: []string{"order.created", "product.*"}}

	assert.True(t, ep.SubscribesTo("order.created"))
	assert.False(t, ep.SubscribesTo("order.updated"))
	assert.True(t, ep.SubscribesTo("product.updated"))
	assert.True(t, ep.SubscribesTo("product.variant.deleted"))
	assert.False(t, ep.SubscribesTo("productx.updated"))

	all := Endpoint{Events: []string{"*"}}
	assert.True(t, all.SubscribesTo("anything"))

	none := Endpoint{}
	assert.False(t, none.SubscribesTo("order.created"))
}

func TestSetActiveRestoresOutcomeStatus(t *testing.T) {
	ep := Endpoint{Active: true, Status: StatusPending}

	ep.SetActive(false)
	assert.Equal(t, StatusDisabled, ep.Status)
	ep.SetActive(true)
	assert.Equal(t, StatusPending, ep.Status)

	failed := false
	ep.LastSuccess = &failed
	ep.SetActive(false)
	ep.SetActive(true)
	assert.Equal(t, StatusError, ep.Status)

	ok := true
	ep.LastSuccess = &ok
	ep.SetActive(true)
	assert.Equal(t, StatusHealthy, ep.Status)
}

func TestParseMethod(t *testing.T) {
	m, ok := ParseMethod("")
	assert.True(t, ok)
	assert.Equal(t, MethodPost, m)

	m, ok = ParseMethod("patch")
	assert.True(t, ok)
	assert.Equal(t, MethodPatch, m)

	_, ok = ParseMethod("DELETE")
	assert.False(t, ok)
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("Healthy")
	assert.True(t, ok)
	assert.Equal(t, StatusHealthy, s)

	_, ok = ParseStatus("unknown")
	assert.False(t, ok)
}

func TestRedactedDropsSecret(t *testing.T) {
	ep := Endpoint{ID: "wh_1", Secret: "whsec_abc"}
	assert.Empty(t, ep.Redacted().Secret)
	assert.Equal(t, "whsec_abc", ep.Secret)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "HTTP 502", DeliveryResult{StatusCode: 502}.FailureMessage())
	assert.Equal(t, "dial tcp: refused", DeliveryResult{Error: &DeliveryError{Message: "dial tcp: refused"}}.FailureMessage())
	assert.Empty(t, DeliveryResult{Success: true, StatusCode: 200}.FailureMessage())
}

func TestSuccessRate(t *testing.T) {
	assert.Zero(t, SuccessRate(0, 0))
	assert.Equal(t, 100.0, SuccessRate(3, 3))
	assert.Equal(t, 66.67, SuccessRate(2, 3))
	assert.Equal(t, 33.33, SuccessRate(1, 3))
	assert.Equal(t, 50.0, SuccessRate(1, 2))
}
