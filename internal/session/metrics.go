package session

import "github.com/prometheus/client_golang/prometheus"

var refreshes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "profile_refresh_total",
		Help: "Profile refresh requests by outcome (fetched, shared, debounced)",
	},
	[]string{"outcome"},
)

var activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "active_sessions",
	Help: "Signed-in sessions held by the registry",
})

var staleSnapshots = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "profile_stale_snapshots_total",
	Help: "Profile reads dropped because a newer profile was already cached",
})

func init() {
	prometheus.MustRegister(refreshes)
	prometheus.MustRegister(activeSessions)
	prometheus.MustRegister(staleSnapshots)
}
