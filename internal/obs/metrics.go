package obs

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	JoinTotal     *prometheus.CounterVec // result=success|rejected|error
	LeaveTotal    *prometheus.CounterVec // result=success|rejected|error
	ClaimTotal    *prometheus.CounterVec // result=success|rejected|error
	CompleteTotal *prometheus.CounterVec // result=success|rejected|error

	OpLatencyMS *prometheus.HistogramVec // op=join|leave|claim|complete

	DBBusyTotal *prometheus.CounterVec // op=join|leave|claim|complete

	ClaimsPending      prometheus.Gauge
	ClaimsExpiredTotal prometheus.Counter
	GamingFlagsTotal   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		JoinTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drop_waitlist_join_total",
				Help: "Total waitlist join attempts by result",
			},
			[]string{"result"},
		),
		LeaveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drop_waitlist_leave_total",
				Help: "Total waitlist leave attempts by result",
			},
			[]string{"result"},
		),
		ClaimTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drop_claim_total",
				Help: "Total claim attempts by result",
			},
			[]string{"result"},
		),
		CompleteTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drop_claim_complete_total",
				Help: "Total claim completion attempts by result",
			},
			[]string{"result"},
		),
		OpLatencyMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "drop_op_latency_ms",
				Help:    "Latency of drop operations (ms)",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1ms .. ~2048ms
			},
			[]string{"op"},
		),
		DBBusyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drop_db_busy_total",
				Help: "Total sqlite busy/locked errors",
			},
			[]string{"op"},
		),
		ClaimsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drop_claims_pending",
			Help: "Number of currently pending (unexpired) claims",
		}),
		ClaimsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drop_claims_expired_total",
			Help: "Total number of claims that lapsed and were expired by the monitor",
		}),
		GamingFlagsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drop_gaming_flags_total",
			Help: "Total waitlist joins flagged by the anti-gaming heuristic",
		}),
	}

	prometheus.MustRegister(
		m.JoinTotal,
		m.LeaveTotal,
		m.ClaimTotal,
		m.CompleteTotal,
		m.OpLatencyMS,
		m.DBBusyTotal,
		m.ClaimsPending,
		m.ClaimsExpiredTotal,
		m.GamingFlagsTotal,
	)

	return m
}
