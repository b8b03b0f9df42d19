package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusHealthy  Status = "healthy"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, true
	case StatusHealthy:
		return StatusHealthy, true
	case StatusError:
		return StatusError, true
	case StatusDisabled:
		return StatusDisabled, true
	}
	return "", false
}

type Method string

const (
	MethodPost  Method = "POST"
	MethodPut   Method = "PUT"
	MethodPatch Method = "PATCH"
)

// ParseMethod accepts any casing and defaults an empty value to POST.
func ParseMethod(s string) (Method, bool) {
	switch Method(strings.ToUpper(strings.TrimSpace(s))) {
	case "", MethodPost:
		return MethodPost, true
	case MethodPut:
		return MethodPut, true
	case MethodPatch:
		return MethodPatch, true
	}
	return "", false
}

type Endpoint struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenantId"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	URL           string            `json:"url"`
	Events        []string          `json:"events"`
	Method        Method            `json:"method"`
	Active        bool              `json:"active"`
	Secret        string            `json:"secret,omitempty"`
	Headers       map[string]string `json:"headers"`
	Status        Status            `json:"status"`
	TriggerCount  int64             `json:"triggerCount"`
	SuccessCount  int64             `json:"successCount"`
	FailureCount  int64             `json:"failureCount"`
	LastTriggered *time.Time        `json:"lastTriggered"`
	LastError     *string           `json:"lastError"`
	// LastSuccess remembers the most recent outcome so reactivation can
	// restore healthy/error without another attempt.
	LastSuccess *bool     `json:"-"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Redacted returns a copy without the signing secret.
func (e Endpoint) Redacted() Endpoint {
	e.Secret = ""
	return e
}

// OutcomeStatus is the status implied by the latest attempt alone.
func (e Endpoint) OutcomeStatus() Status {
	switch {
	case e.LastSuccess == nil:
		return StatusPending
	case *e.LastSuccess:
		return StatusHealthy
	default:
		return StatusError
	}
}

// SetActive flips eligibility for dispatch; disabled takes precedence over
// whatever the last attempt said.
func (e *Endpoint) SetActive(active bool) {
	e.Active = active
	if !active {
		e.Status = StatusDisabled
		return
	}
	e.Status = e.OutcomeStatus()
}

// SubscribesTo reports whether the endpoint wants eventName. Subscriptions
// are exact names, "prefix.*" wildcards or "*".
func (e Endpoint) SubscribesTo(eventName string) bool {
	for _, sub := range e.Events {
		if sub == "*" || sub == eventName {
			return true
		}
		if strings.HasSuffix(sub, ".*") {
			prefix := strings.TrimSuffix(sub, ".*")
			if strings.HasPrefix(eventName, prefix+".") {
				return true
			}
		}
	}
	return false
}

type EndpointFilter struct {
	Status Status
	Active *bool
	Limit  int
	Offset int
}
