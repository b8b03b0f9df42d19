package delivery

import (
	"context"
	"time"
)

var DefaultBackoff = Backoff{Base: time.Second, Max: time.Minute}

// Backoff is an exponential delay schedule: Base, 2*Base, 4*Base ... capped
// at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before attempt n+1, given that attempt n (1-indexed)
// just failed.
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 || b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < n; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// AttemptFunc runs one attempt. done stops the loop early, a non-nil error
// aborts it.
type AttemptFunc func(ctx context.Context, attempt int) (done bool, err error)

// Retry calls fn up to attempts times, sleeping per backoff between calls.
// It returns ctx.Err() if the context ends while waiting.
func Retry(ctx context.Context, attempts int, backoff Backoff, fn AttemptFunc) error {
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		done, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		if done || attempt == attempts {
			return nil
		}

		timer := time.NewTimer(backoff.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
