package utils

import "github.com/prometheus/client_golang/prometheus"

var (
	RemindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Reminders sent by the delay scheduler, per class",
		},
		[]string{"class"},
	)

	ClaimsLost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_claims_lost_total",
			Help: "Conditional reminder claims lost to a concurrent scan",
		},
		[]string{"class"},
	)

	MovementsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caisse_movements_rejected_total",
			Help: "Cash movements rejected by the balance check",
		},
		[]string{"type"},
	)
)

func InitDomainMetrics() {
	prometheus.MustRegister(RemindersSent, ClaimsLost, MovementsRejected)
}
