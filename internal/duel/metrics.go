package duel

import "github.com/prometheus/client_golang/prometheus"

var (
	duelCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ikkii",
		Name:      "duels_created_total",
		Help:      "Total duels created.",
	})
	duelJoinedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ikkii",
		Name:      "duels_joined_total",
		Help:      "Total duels joined by a challenger.",
	})
	duelSettledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ikkii",
		Name:      "duels_settled_total",
		Help:      "Total duels settled with a winner.",
	})
	duelDisputedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ikkii",
		Name:      "duels_disputed_total",
		Help:      "Total duels entering dispute.",
	})
	duelCancelledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ikkii",
		Name:      "duels_cancelled_total",
		Help:      "Total duels cancelled, including expiry sweeps.",
	})
	duelSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ikkii",
		Name:      "duels_swept_total",
		Help:      "Total expired duels cancelled by the sweeper.",
	})
	settlementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ikkii",
		Name:      "duel_settlement_duration_seconds",
		Help:      "Escrow payout and settle-update duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})
)

func init() {
	prometheus.MustRegister(
		duelCreatedTotal,
		duelJoinedTotal,
		duelSettledTotal,
		duelDisputedTotal,
		duelCancelledTotal,
		duelSweptTotal,
		settlementDuration,
	)
}
