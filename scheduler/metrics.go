package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors of one Scheduler.
type Metrics struct {
	eventsApplied     *prometheus.CounterVec
	passes            prometheus.Counter
	recomputations    prometheus.Counter
	requests          *prometheus.CounterVec
	abandoned         prometheus.Counter
	staleEvaluations  prometheus.Counter
	passDuration      *prometheus.HistogramVec
	bestProfit        prometheus.Gauge
	cyclesNeedingWork prometheus.Gauge
}

// NewMetrics creates and registers the scheduler collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "scheduler",
			Name:      "events_applied_total",
			Help:      "Feed events applied to the price cache, by kind.",
		}, []string{"kind"}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "scheduler",
			Name:      "passes_total",
			Help:      "Evaluation passes over the cycle list.",
		}),
		recomputations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "scheduler",
			Name:      "recomputations_total",
			Help:      "Cycles re-sized after a dependency changed.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "scheduler",
			Name:      "execution_requests_total",
			Help:      "Execution requests handed to the sink, by trigger.",
		}, []string{"trigger"}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "scheduler",
			Name:      "abandoned_requests_total",
			Help:      "Profitable cycles whose hop plan could not be built.",
		}),
		staleEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "scheduler",
			Name:      "stale_evaluations_total",
			Help:      "Evaluations that priced to zero, usually because a leg was waiting for its pair.",
		}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arb",
			Subsystem: "scheduler",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one evaluation pass.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{}),
		bestProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arb",
			Subsystem: "scheduler",
			Name:      "best_profit",
			Help:      "Highest predicted profit observed, in native units of the base currency.",
		}),
		cyclesNeedingWork: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arb",
			Subsystem: "scheduler",
			Name:      "cycles_pending",
			Help:      "Cycles flagged for recomputation at the start of the last pass.",
		}),
	}

	reg.MustRegister(
		m.eventsApplied,
		m.passes,
		m.recomputations,
		m.requests,
		m.abandoned,
		m.staleEvaluations,
		m.passDuration,
		m.bestProfit,
		m.cyclesNeedingWork,
	)
	return m
}
