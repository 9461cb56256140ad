// Package metrics exposes prometheus instrumentation for the reminder
// lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	NotificationsSent    prometheus.Counter
	NotificationFailures prometheus.Counter
	ExtractionFailures   prometheus.Counter
	RenderFallbacks      prometheus.Counter
	InboundMessages      prometheus.Counter
	TickDuration         prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "remindbot_notifications_sent_total",
			Help: "Reminder occurrences delivered to the messaging channel.",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "remindbot_notification_failures_total",
			Help: "Sends rejected by the messaging channel.",
		}),
		ExtractionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "remindbot_extraction_failures_total",
			Help: "Inbound messages the extractor could not understand.",
		}),
		RenderFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "remindbot_render_fallbacks_total",
			Help: "Deliveries that used the templated message fallback.",
		}),
		InboundMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "remindbot_inbound_messages_total",
			Help: "Messages received from the webhook.",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "remindbot_scheduler_tick_duration_seconds",
			Help:    "Wall time of a full scheduler scan.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
