package webhook

import (
	"net/url"
	"strings"

	"github.com/shohag/hookrelay/internal/apperr"
	"github.com/shohag/hookrelay/internal/models"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
	MaxEventNameLength   = 200
)

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name", "name is required")
	}
	if len([]rune(name)) > MaxNameLength {
		return "", apperr.Validation("name", "name must be at most 100 characters")
	}
	return name, nil
}

func validateDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if len([]rune(description)) > MaxDescriptionLength {
		return "", apperr.Validation("description", "description must be at most 500 characters")
	}
	return description, nil
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.Validation("url", "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.Validation("url", "url must be a valid HTTP or HTTPS URL")
	}
	return raw, nil
}

// normalizeEvents trims and de-duplicates subscriptions, keeping order.
func normalizeEvents(events []string) ([]string, error) {
	if len(events) == 0 {
		return nil, apperr.Validation("events", "events must be a non-empty list")
	}
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if err := validateEventName("events", e); err != nil {
			return nil, err
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func validateEventName(field, name string) error {
	if name == "" {
		return apperr.Validation(field, "event names must not be empty")
	}
	if len(name) > MaxEventNameLength {
		return apperr.Validation(field, "event names must be at most 200 characters")
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return apperr.Validation(field, "event names must not contain whitespace")
	}
	return nil
}

func validateMethod(raw string) (models.Method, error) {
	m, ok := models.ParseMethod(raw)
	if !ok {
		return "", apperr.Validation("method", "method must be one of POST, PUT, PATCH")
	}
	return m, nil
}

func validateHeaders(headers map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, " :\t\r\n") {
			return nil, apperr.Validation("headers", "header names must be non-empty tokens")
		}
		if strings.ContainsAny(value, "\r\n") {
			return nil, apperr.Validation("headers", "header values must not contain line breaks")
		}
		out[name] = value
	}
	return out, nil
}

func sameEventSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, e := range a {
		set[e] = struct{}{}
	}
	for _, e := range b {
		if _, ok := set[e]; !ok {
			return false
		}
	}
	return true
}
