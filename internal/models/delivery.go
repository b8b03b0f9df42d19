package models

import (
	"fmt"
	"math"
	"time"
)

type DeliveryError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// DeliveryResult is the outcome of one dispatch attempt. Error is only set
// for transport failures; a reachable endpoint answering non-2xx leaves it nil.
type DeliveryResult struct {
	ID           string         `json:"id"`
	Success      bool           `json:"success"`
	StatusCode   int            `json:"statusCode"`
	DurationMs   int64          `json:"durationMs"`
	ResponseBody string         `json:"responseBody"`
	Error        *DeliveryError `json:"error"`
	Timestamp    time.Time      `json:"timestamp"`
	Attempt      int            `json:"attempt"`
}

func (r DeliveryResult) FailureMessage() string {
	if r.Success {
		return ""
	}
	if r.Error != nil {
		return r.Error.Message
	}
	return fmt.Sprintf("HTTP %d", r.StatusCode)
}

type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

func ParseAttemptStatus(s string) (AttemptStatus, bool) {
	switch AttemptStatus(s) {
	case "":
		return "", true
	case AttemptSuccess, AttemptFailed:
		return AttemptStatus(s), true
	}
	return "", false
}

// Attempt is a delivery log entry.
type Attempt struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenantId"`
	EndpointID   string         `json:"webhookId"`
	Event        string         `json:"event"`
	Test         bool           `json:"test"`
	Success      bool           `json:"success"`
	StatusCode   int            `json:"statusCode"`
	DurationMs   int64          `json:"durationMs"`
	ResponseBody string         `json:"responseBody"`
	Error        *DeliveryError `json:"error"`
	Attempt      int            `json:"attempt"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func NewAttempt(tenantID, endpointID, event string, test bool, r DeliveryResult) Attempt {
	id := r.ID
	if id == "" {
		id = NewID("att")
	}
	return Attempt{
		ID:           id,
		TenantID:     tenantID,
		EndpointID:   endpointID,
		Event:        event,
		Test:         test,
		Success:      r.Success,
		StatusCode:   r.StatusCode,
		DurationMs:   r.DurationMs,
		ResponseBody: r.ResponseBody,
		Error:        r.Error,
		Attempt:      r.Attempt,
		CreatedAt:    r.Timestamp,
	}
}

func (a Attempt) Matches(status AttemptStatus) bool {
	switch status {
	case AttemptSuccess:
		return a.Success
	case AttemptFailed:
		return !a.Success
	}
	return true
}

type AttemptFilter struct {
	Status AttemptStatus
	Limit  int
	Offset int
}

// SuccessRate is success/total as a percentage rounded to two decimals, and
// 0 when nothing was attempted.
func SuccessRate(success, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(success)/float64(total)*100*100) / 100
}
