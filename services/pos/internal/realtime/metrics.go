package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_realtime_events_dispatched_total",
			Help: "Change events delivered to listeners, by table",
		},
		[]string{"table"},
	)

	channelsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_realtime_channels_open",
		Help: "Upstream change channels currently open",
	})

	channelErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_realtime_channel_errors_total",
		Help: "Upstream channel failures (open failures and errors on joined channels)",
	})
)
