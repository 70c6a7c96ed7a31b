package execution

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors of one Executor.
type Metrics struct {
	results        *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	submitDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the executor collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "executor",
			Name:      "requests_total",
			Help:      "Execution requests by final status.",
		}, []string{"status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arb",
			Subsystem: "executor",
			Name:      "queue_depth",
			Help:      "Requests waiting for the worker.",
		}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arb",
			Subsystem: "executor",
			Name:      "submit_duration_seconds",
			Help:      "Time from dequeue to submission result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),
	}

	reg.MustRegister(m.results, m.queueDepth, m.submitDuration)
	return m
}
