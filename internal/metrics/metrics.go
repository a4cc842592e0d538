package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simulator"

// Metrics holds the service collectors.
type Metrics struct {
	UpdatesIngested  prometheus.Counter
	CurrentBlock     prometheus.Gauge
	QueueDepth       prometheus.Gauge
	Subscribers      prometheus.Gauge
	LaggedMessages   prometheus.Counter
	SinkErrors       *prometheus.CounterVec
	SimulateDuration *prometheus.HistogramVec
}

// New builds the collectors and registers them when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpdatesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_ingested_total",
			Help:      "Block updates merged into the cache.",
		}),
		CurrentBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_block",
			Help:      "Block number of the most recent ingest.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_queue_depth",
			Help:      "Block updates waiting for the writer.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_subscribers",
			Help:      "Open websocket subscribers.",
		}),
		LaggedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lagged_messages_total",
			Help:      "Client updates dropped for slow subscribers.",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed export sink writes.",
		}, []string{"sink"}),
		SimulateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulate_duration_seconds",
			Help:      "Latency of simulate and limits requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"endpoint", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.UpdatesIngested,
			m.CurrentBlock,
			m.QueueDepth,
			m.Subscribers,
			m.LaggedMessages,
			m.SinkErrors,
			m.SimulateDuration,
		)
	}
	return m
}
