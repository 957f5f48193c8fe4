package discord

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alliancebot_discord_events_total",
			Help: "Gateway events handled, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	eventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alliancebot_discord_event_duration_seconds",
			Help:    "Time spent handling a gateway event.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(eventsTotal, eventDuration)
}
