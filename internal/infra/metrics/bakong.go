package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(bakongRequestDuration, bakongBreakerState) }

var (
	bakongRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bakong_request_duration_seconds",
			Help:    "Latency of calls to the Bakong API, by endpoint and outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint", "outcome"},
	)

	// 0 closed, 1 half-open, 2 open
	bakongBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bakong_circuit_breaker_state",
			Help: "State of the Bakong client circuit breaker (0 closed, 1 half-open, 2 open).",
		},
	)
)

func ObserveBakongRequest(endpoint, outcome string, d time.Duration) {
	bakongRequestDuration.WithLabelValues(norm(endpoint), norm(outcome)).Observe(d.Seconds())
}

func SetBakongBreakerState(state int) {
	bakongBreakerState.Set(float64(state))
}
