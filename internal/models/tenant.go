package models

import (
	"time"

	"github.com/shohag/hookrelay/internal/apperr"
)

const (
	MinRetryAttempts  = 1
	MaxRetryAttempts  = 10
	MinTimeoutSeconds = 5
	MaxTimeoutSeconds = 120
	MinRateLimit      = 1
	MaxRateLimit      = 1000
)

type Tenant struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	APIKey    string          `json:"apiKey,omitempty"`
	Settings  WebhookSettings `json:"settings"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// WebhookSettings is the per-tenant webhook configuration. Enabled is the
// global kill switch for every endpoint of the tenant.
type WebhookSettings struct {
	Enabled            bool `json:"enabled" mapstructure:"enabled"`
	RetryAttempts      int  `json:"retryAttempts" mapstructure:"retry_attempts"`
	TimeoutSeconds     int  `json:"timeoutSeconds" mapstructure:"timeout_seconds"`
	EnableSigning      bool `json:"enableSigning" mapstructure:"enable_signing"`
	LogWebhooks        bool `json:"logWebhooks" mapstructure:"log_webhooks"`
	EnableRateLimiting bool `json:"enableRateLimiting" mapstructure:"enable_rate_limiting"`
	RateLimit          int  `json:"rateLimit" mapstructure:"rate_limit"`
}

func DefaultWebhookSettings() WebhookSettings {
	return WebhookSettings{
		Enabled:        true,
		RetryAttempts:  3,
		TimeoutSeconds: 30,
		EnableSigning:  true,
		LogWebhooks:    true,
		RateLimit:      60,
	}
}

func (s WebhookSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func (s WebhookSettings) Validate() error {
	if s.RetryAttempts < MinRetryAttempts || s.RetryAttempts > MaxRetryAttempts {
		return apperr.Validation("retryAttempts", "retryAttempts must be between 1 and 10")
	}
	if s.TimeoutSeconds < MinTimeoutSeconds || s.TimeoutSeconds > MaxTimeoutSeconds {
		return apperr.Validation("timeoutSeconds", "timeoutSeconds must be between 5 and 120")
	}
	if s.RateLimit < MinRateLimit || s.RateLimit > MaxRateLimit {
		return apperr.Validation("rateLimit", "rateLimit must be between 1 and 1000")
	}
	return nil
}

func NewTenant(name string, settings WebhookSettings) *Tenant {
	now := time.Now().UTC()
	return &Tenant{
		ID:        NewID("tnt"),
		Name:      name,
		APIKey:    NewAPIKey(),
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
