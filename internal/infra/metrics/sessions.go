package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		admissionsTotal,
		sessionDisconnectsTotal,
		sessionsReapedTotal,
	)
}

var (
	admissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_admissions_total",
			Help: "Total number of login attempts, by outcome.",
		},
		[]string{"outcome"}, // 'admitted', 'readmitted', 'rejected_limit', 'rejected_not_premium'
	)

	sessionDisconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_disconnects_total",
			Help: "Total number of explicit session removals, by scope.",
		},
		[]string{"scope"}, // 'device' (single session), 'user' (bulk disconnect)
	)

	sessionsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_reaped_total",
			Help: "Total number of stale sessions removed by the background sweep.",
		},
	)
)

func IncAdmissions(outcome string) {
	admissionsTotal.WithLabelValues(outcome).Inc()
}

func IncSessionDisconnects(scope string) {
	sessionDisconnectsTotal.WithLabelValues(scope).Inc()
}

func IncSessionsReaped(count int) {
	sessionsReapedTotal.Add(float64(count))
}
