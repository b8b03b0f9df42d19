package models

import (
	"encoding/json"
	"time"
)

const TestEvent = "webhook.test"

// Envelope is the JSON body an endpoint receives.
type Envelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	WebhookID string `json:"webhook_id"`
	Test      bool   `json:"test,omitempty"`
	Data      any    `json:"data"`
	UserID    string `json:"user_id"`
}

func NewEnvelope(event, webhookID, tenantID string, data any, test bool, at time.Time) Envelope {
	return Envelope{
		Event:     event,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		WebhookID: webhookID,
		Test:      test,
		Data:      data,
		UserID:    tenantID,
	}
}

// Event is a domain event published by the console for fan-out.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}
