package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/shohag/hookrelay/internal/metrics"
	"github.com/shohag/hookrelay/internal/models"
	"github.com/shohag/hookrelay/internal/storage"
)

const trackerWriteAttempts = 5

// Apply folds one attempt result into the endpoint. Every result counts
// exactly once; a success leaves the previous LastError in place.
func Apply(ep models.Endpoint, r models.DeliveryResult) models.Endpoint {
	ep.TriggerCount++
	if r.Success {
		ep.SuccessCount++
	} else {
		ep.FailureCount++
		msg := r.FailureMessage()
		ep.LastError = &msg
	}

	at := r.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ep.LastTriggered = &at
	success := r.Success
	ep.LastSuccess = &success

	if ep.Active && ep.Status != models.StatusDisabled {
		ep.Status = ep.OutcomeStatus()
	}
	return ep
}

// Tracker persists Apply with optimistic version checks.
type Tracker struct {
	store storage.Storage
	now   func() time.Time
}

func NewTracker(store storage.Storage) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// Record re-reads the endpoint, applies r and writes it back. It returns
// nil, nil when the endpoint no longer exists.
func (t *Tracker) Record(ctx context.Context, tenantID, endpointID string, r models.DeliveryResult) (*models.Endpoint, error) {
	var lastErr error
	for attempt := 0; attempt < trackerWriteAttempts; attempt++ {
		ep, err := t.store.GetEndpoint(ctx, tenantID, endpointID)
		if err != nil {
			return nil, err
		}
		if ep == nil {
			return nil, nil
		}

		before := ep.Status
		next := Apply(*ep, r)
		next.UpdatedAt = t.now().UTC()

		err = t.store.UpdateEndpoint(ctx, &next)
		switch {
		case err == nil:
			metrics.ObserveTransition(string(before), string(next.Status))
			return &next, nil
		case errors.Is(err, storage.ErrNotFound):
			return nil, nil
		case errors.Is(err, storage.ErrConflict):
			lastErr = err
			continue
		default:
			return nil, err
		}
	}
	return nil, lastErr
}
