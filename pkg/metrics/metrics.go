package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache facade operations",
		},
		[]string{"op"}, // hit|miss|set|invalidate|error
	)
	ReservationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reservations_total",
			Help: "Stock reservation lifecycle events",
		},
		[]string{"op"}, // reserved|insufficient|conflict|confirmed|released|expired|failed
	)
	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Fixed-window rate limiter outcomes",
		},
		[]string{"result"}, // allowed|denied|failopen
	)
	LockOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributed_lock_operations_total",
			Help: "Distributed lock acquire/release outcomes",
		},
		[]string{"op"}, // acquired|contended|released|stale
	)
)

func MustRegister() {
	prometheus.MustRegister(CacheOps, ReservationOps, RateLimitDecisions, LockOps)
}
