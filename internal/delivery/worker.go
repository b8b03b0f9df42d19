package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/hookrelay/internal/metrics"
)

// Job asks for one endpoint to receive one published event.
type Job struct {
	TenantID   string
	EndpointID string
	Event      string
	Data       json.RawMessage
	EnqueuedAt time.Time
}

type Handler interface {
	HandleJob(ctx context.Context, job Job)
}

type HandlerFunc func(ctx context.Context, job Job)

func (f HandlerFunc) HandleJob(ctx context.Context, job Job) { f(ctx, job) }

type worker struct {
	handler Handler
	log     zerolog.Logger
}

func (w *worker) process(ctx context.Context, job Job) {
	metrics.QueueDepth.Dec()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().
				Interface("panic", r).
				Str("tenant_id", job.TenantID).
				Str("endpoint_id", job.EndpointID).
				Str("event", job.Event).
				Msg("delivery job panicked")
		}
	}()

	w.log.Debug().
		Str("tenant_id", job.TenantID).
		Str("endpoint_id", job.EndpointID).
		Str("event", job.Event).
		Dur("queued", time.Since(job.EnqueuedAt)).
		Msg("processing delivery job")

	w.handler.HandleJob(ctx, job)
}
