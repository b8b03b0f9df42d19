package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hookrelay_http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "hookrelay_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookDeliveries counts attempts by event and outcome (success,
	// http_error or the transport error code).
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hookrelay_webhook_deliveries_total", Help: "Webhook delivery attempts by event and outcome."},
		[]string{"event", "outcome"},
	)
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "hookrelay_webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000}},
		[]string{"event", "outcome"},
	)
	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hookrelay_endpoint_status_transitions_total", Help: "Endpoint status changes."},
		[]string{"from", "to"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "hookrelay_delivery_queue_depth", Help: "Jobs waiting in the delivery queue."},
	)
)

var regOnce sync.Once

// RegisterDefault registers every collector on Registry. Safe to call more
// than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(StatusTransitions)
		Registry.MustRegister(QueueDepth)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequests.WithLabelValues(method, path, code).Inc()
	HTTPDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}

func ObserveDelivery(event, outcome string, durationMs int64) {
	WebhookDeliveries.WithLabelValues(event, outcome).Inc()
	WebhookLatency.WithLabelValues(event, outcome).Observe(float64(durationMs))
}

func ObserveTransition(from, to string) {
	if from == to {
		return
	}
	StatusTransitions.WithLabelValues(from, to).Inc()
}
