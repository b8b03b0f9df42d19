package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shohag/hookrelay/internal/apperr"
	"github.com/shohag/hookrelay/internal/models"
	"github.com/shohag/hookrelay/internal/signing"
)

const defaultTimeout = 30 * time.Second

type Options struct {
	UserAgent        string
	Brand            string
	MaxResponseBytes int64
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Request describes one attempt against one endpoint.
type Request struct {
	TenantID string
	Settings models.WebhookSettings
	Endpoint models.Endpoint
	Event    string
	Data     any
	Test     bool
	Attempt  int
}

// Dispatcher makes exactly one signed, time-bounded delivery attempt per
// call. It never retries.
type Dispatcher struct {
	sender    *Sender
	limiters  *Limiters
	userAgent string
	brand     string
	now       func() time.Time
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "HookRelay-Webhook/1.0"
	}
	if opts.Brand == "" {
		opts.Brand = "HookRelay"
	}
	return &Dispatcher{
		sender:    NewSender(opts.Client, opts.MaxResponseBytes),
		limiters:  NewLimiters(),
		userAgent: opts.UserAgent,
		brand:     opts.Brand,
		now:       time.Now,
	}
}

// Dispatch returns an error only when the attempt is refused before any
// network I/O. Every transport or HTTP failure is reported in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (models.DeliveryResult, error) {
	ep := req.Endpoint
	if !ep.Active {
		return models.DeliveryResult{}, apperr.Precondition("webhook endpoint is inactive")
	}
	if req.Attempt < 1 {
		req.Attempt = 1
	}

	deliveryID := uuid.NewString()
	at := d.now().UTC()
	envelope := models.NewEnvelope(req.Event, ep.ID, req.TenantID, req.Data, req.Test, at)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.DeliveryResult{}, apperr.Validation("data", "event data is not JSON encodable")
	}

	header := http.Header{}
	for name, value := range ep.Headers {
		header.Set(name, value)
	}
	header.Set("Content-Type", "application/json")
	header.Set("User-Agent", d.userAgent)
	header.Set("X-"+d.brand+"-Event", req.Event)
	header.Set("X-"+d.brand+"-Delivery", deliveryID)
	header.Set("X-"+d.brand+"-Timestamp", strconv.FormatInt(at.Unix(), 10))
	if req.Settings.EnableSigning {
		header.Set(signing.HeaderName(d.brand), signing.Sign(ep.Secret, payload))
	}

	timeout := req.Settings.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := models.DeliveryResult{
		ID:        deliveryID,
		Timestamp: at,
		Attempt:   req.Attempt,
	}

	if req.Settings.EnableRateLimiting {
		start := time.Now()
		if err := d.limiters.Get(req.TenantID, req.Settings.RateLimit).Wait(attemptCtx); err != nil {
			result.DurationMs = time.Since(start).Milliseconds()
			if errors.Is(ctx.Err(), context.Canceled) {
				result.Error = &models.DeliveryError{Message: "request canceled", Code: CodeCanceled}
			} else {
				result.Error = &models.DeliveryError{Message: "tenant rate limit exceeded", Code: CodeRateLimited}
			}
			return result, nil
		}
	}

	sent := d.sender.Send(attemptCtx, string(ep.Method), ep.URL, header, payload)
	result.DurationMs = sent.LatencyMs
	if sent.Err != nil {
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		result.Error = classify(sent.Err, timedOut, timeout)
		return result, nil
	}

	result.StatusCode = sent.StatusCode
	result.ResponseBody = sent.ResponseBody
	result.Success = IsSuccess(sent.StatusCode)
	return result, nil
}
