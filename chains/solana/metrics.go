package solana

import "github.com/prometheus/client_golang/prometheus"

// FeedMetrics holds the collectors of one Feed.
type FeedMetrics struct {
	balances *prometheus.CounterVec
	updates  prometheus.Counter
}

// NewFeedMetrics creates and registers the feed collectors with reg.
func NewFeedMetrics(reg prometheus.Registerer) *FeedMetrics {
	m := &FeedMetrics{
		balances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "feed",
			Name:      "balances_total",
			Help:      "Account balances received, by resolution result.",
		}, []string{"result"}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "feed",
			Name:      "reserve_updates_total",
			Help:      "Reserve updates emitted after resolving accounts to legs.",
		}),
	}
	reg.MustRegister(m.balances, m.updates)
	return m
}

// RPCMetrics holds the collectors of one Client.
type RPCMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRPCMetrics creates and registers the rpc collectors with reg.
func NewRPCMetrics(reg prometheus.Registerer) *RPCMetrics {
	m := &RPCMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arb",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Solana RPC calls, by method and result.",
		}, []string{"method", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arb",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Solana RPC call latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.calls, m.duration)
	return m
}

// track starts timing method; call the returned func with the call's error.
func (m *RPCMetrics) track(method string) func(err error) {
	timer := prometheus.NewTimer(m.duration.WithLabelValues(method))
	return func(err error) {
		timer.ObserveDuration()
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.calls.WithLabelValues(method, result).Inc()
	}
}
