package stable

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors of one Printer.
type Metrics struct {
	steps   prometheus.Counter
	swaps   *prometheus.CounterVec
	holding *prometheus.GaugeVec
}

// NewMetrics creates and registers the stable printer collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "stable",
			Name:      "steps_total",
			Help:      "Evaluations of every hop out of the held currency.",
		}),
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "stable",
			Name:      "swaps_total",
			Help:      "Hops handed to the executor, by result status.",
		}, []string{"status"}),
		holding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arb",
			Subsystem: "stable",
			Name:      "holding",
			Help:      "Wallet balance of the currency currently held, in native units.",
		}, []string{"currency"}),
	}
	reg.MustRegister(m.steps, m.swaps, m.holding)
	return m
}
