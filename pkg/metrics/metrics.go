package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_reservations_total",
		Help: "Stock reservation attempts by result.",
	}, []string{"result"})

	ReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_releases_total",
		Help: "Stock reservation releases.",
	})

	OrderRecomputesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_order_recomputes_total",
		Help: "Lazy order total recomputations triggered by dirty reads.",
	})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_outbox_published_total",
		Help: "Outbox events published to the broker.",
	})

	OutboxFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_outbox_failed_total",
		Help: "Outbox events that failed to publish.",
	})
)
