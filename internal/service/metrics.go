package service

import "github.com/prometheus/client_golang/prometheus"

var (
	referralClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_claims_total",
			Help: "Referral claims by result",
		},
		[]string{"result"},
	)
	streakBonuses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streak_bonuses_granted_total",
		Help: "Seven-day streak bonuses granted",
	})
	rateUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mining_rate_updates_total",
		Help: "Writes of a recomputed coins_per_second",
	})
	minedCoins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mining_collected_coins_total",
		Help: "Coins credited by mining collection",
	})
)

func init() {
	prometheus.MustRegister(referralClaims)
	prometheus.MustRegister(streakBonuses)
	prometheus.MustRegister(rateUpdates)
	prometheus.MustRegister(minedCoins)
}
