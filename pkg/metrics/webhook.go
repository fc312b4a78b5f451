package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records per-event-type outcomes for webhook ingress.
type WebhookMetrics struct {
	duration *prometheus.HistogramVec
	handled  *prometheus.CounterVec
	failed   *prometheus.CounterVec
	replayed *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_duration_seconds",
		Help:    "Duration of webhook event processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	handled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_handled",
		Help: "Webhook events processed to completion.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_failed",
		Help: "Webhook events that errored after retries.",
	}, []string{"event_type"})
	replayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_replayed",
		Help: "Webhook deliveries skipped as already processed.",
	}, []string{"event_type"})
	reg.MustRegister(duration, handled, failed, replayed)
	return &WebhookMetrics{
		duration: duration,
		handled:  handled,
		failed:   failed,
		replayed: replayed,
	}
}

// ObserveDuration records the processing time for the event type.
func (w *WebhookMetrics) ObserveDuration(eventType string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncHandled increments the processed counter for the event type.
func (w *WebhookMetrics) IncHandled(eventType string) {
	if w == nil || w.handled == nil {
		return
	}
	w.handled.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed increments the failure counter for the event type.
func (w *WebhookMetrics) IncFailed(eventType string) {
	if w == nil || w.failed == nil {
		return
	}
	w.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncReplayed increments the duplicate-delivery counter for the event type.
func (w *WebhookMetrics) IncReplayed(eventType string) {
	if w == nil || w.replayed == nil {
		return
	}
	w.replayed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return strings.ReplaceAll(value, ".", "_")
}
