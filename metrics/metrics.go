// Package metrics exposes klatsch's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klatsch_messages_submitted_total",
			Help: "Total number of messages submitted, by outcome",
		},
		[]string{"outcome"},
	)

	EventsBroadcastTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "klatsch_events_broadcast_total",
			Help: "Total number of events published to the broadcast hub",
		},
	)

	SubscriberLagTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "klatsch_subscriber_lag_total",
			Help: "Total number of times a live subscriber fell behind the hub's ring buffer",
		},
	)

	HubRingLen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "klatsch_hub_ring_length",
			Help: "Current number of events retained in the broadcast hub's ring buffer",
		},
	)

	LastEventID = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "klatsch_last_event_id",
			Help: "The id of the most recently recorded event",
		},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "klatsch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(MessagesSubmittedTotal)
	prometheus.MustRegister(EventsBroadcastTotal)
	prometheus.MustRegister(SubscriberLagTotal)
	prometheus.MustRegister(HubRingLen)
	prometheus.MustRegister(LastEventID)
	prometheus.MustRegister(HTTPRequestDuration)
}

// Handler returns the HTTP handler that serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
