package services

import "github.com/prometheus/client_golang/prometheus"

var (
	outboxEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_enqueued_total",
			Help: "Outbound rows inserted into the outbox.",
		},
		[]string{"channel"},
	)

	outboxClaimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_claimed_total",
			Help: "Outbound rows claimed for delivery.",
		},
		[]string{"channel"},
	)

	// outcome is one of sent, failed, dead_lettered.
	outboxDelivery = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_delivery_total",
			Help: "Delivery outcomes recorded by the outbox.",
		},
		[]string{"channel", "outcome"},
	)

	outboxDeadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dead_letters_total",
			Help: "Dead letter events written.",
		},
		[]string{"channel"},
	)

	// sweep is one of requeue, reclaim, idempotency_purge.
	sweepRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_sweep_rows_total",
			Help: "Rows touched by background sweeps.",
		},
		[]string{"sweep"},
	)
)

func init() {
	prometheus.MustRegister(outboxEnqueued, outboxClaimed, outboxDelivery, outboxDeadLetters, sweepRows)
}
