package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSecret(t *testing.T) {
	a, b := NewSecret(), NewSecret()

	assert.True(t, strings.HasPrefix(a, "whsec_"))
	assert.Len(t, strings.TrimPrefix(a, "whsec_"), secretLength)
	assert.NotEqual(t, a, b)
}

func TestNewIDPrefix(t *testing.T) {
	id := NewID("wh")
	assert.True(t, strings.HasPrefix(id, "wh_"))
	assert.Len(t, id, len("wh_")+26)
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultWebhookSettings()
	assert.NoError(t, s.Validate())

	s.TimeoutSeconds = 4
	assert.Error(t, s.Validate())

	s = DefaultWebhookSettings()
	s.RetryAttempts = 11
	assert.Error(t, s.Validate())

	s = DefaultWebhookSettings()
	s.RateLimit = 0
	assert.Error(t, s.Validate())
}
