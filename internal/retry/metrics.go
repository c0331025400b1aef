package retry

import "github.com/prometheus/client_golang/prometheus"

var (
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Retries issued after a retryable failure",
		},
		[]string{"op"},
	)
	exhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_exhausted_total",
			Help: "Operations that failed after spending the whole retry budget",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(attemptsTotal)
	prometheus.MustRegister(exhaustedTotal)
}
