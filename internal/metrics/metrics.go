package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqttbridge_exchanges_total",
			Help: "Bridged requests by route and outcome",
		},
		[]string{"route", "status"}, // published|failed|timeout
	)

	PublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mqttbridge_publish_duration_seconds",
			Help:    "Time from publish to broker acknowledgment",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RelayTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqttbridge_relay_total",
			Help: "MQTT messages relayed to event sinks by outcome",
		},
		[]string{"status"}, // delivered|failed|dropped
	)

	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqttbridge_ingest_total",
			Help: "Kafka records fed through the bridge by outcome",
		},
		[]string{"status"}, // published|failed|poison
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		ExchangesTotal,
		PublishDuration,
		RelayTotal,
		IngestTotal,
	)
}
