package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		codesCreatedTotal,
		codeRedemptionsTotal,
		codesRevokedTotal,
	)
}

var (
	codesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premium_codes_created_total",
			Help: "Total number of premium codes issued, by tier.",
		},
		[]string{"tier"},
	)

	codeRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premium_code_redemptions_total",
			Help: "Total number of redemption attempts, by outcome.",
		},
		[]string{"outcome"}, // 'ok', 'not_found', 'inactive', 'expired', 'already_redeemed', 'claimed', 'error'
	)

	codesRevokedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "premium_code_revocations_total",
			Help: "Total number of revocation operations that removed at least one redemption.",
		},
	)
)

func IncCodesCreated(tier string) {
	codesCreatedTotal.WithLabelValues(tier).Inc()
}

func IncCodeRedemptions(outcome string) {
	codeRedemptionsTotal.WithLabelValues(outcome).Inc()
}

func IncCodesRevoked() {
	codesRevokedTotal.Inc()
}
