package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publish outcomes.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_events_published_total",
			Help: "Domain events handed to Kafka, by topic, event type and outcome",
		},
		[]string{"topic", "event_type", "outcome"},
	)

	publishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pos_event_publish_seconds",
			Help:    "Time spent writing one event to Kafka",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"topic"},
	)
)

func observePublish(topic, eventType string, seconds float64, err error) {
	publishLatency.WithLabelValues(topic).Observe(seconds)
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	eventsPublished.WithLabelValues(topic, eventType, outcome).Inc()
}
