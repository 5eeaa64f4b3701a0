package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics for the sync subsystem.
type Metrics struct {
	ReservationsSynced        prometheus.Counter
	ReservationsAutoCancelled prometheus.Counter
	SyncErrors                *prometheus.CounterVec
	SyncDuration              prometheus.Histogram
}

// New registers and returns the sync metrics on the default registry.
func New(namespace string) *Metrics {
	return NewFor(namespace, prometheus.DefaultRegisterer)
}

// NewFor registers the sync metrics on the given registerer. Tests use this
// with a throwaway registry.
func NewFor(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReservationsSynced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_synced_total",
			Help:      "The total number of reservations synced from the PMS",
		}),
		ReservationsAutoCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_auto_cancelled_total",
			Help:      "The total number of reservations cancelled by the payment-deadline job",
		}),
		SyncErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "The total number of sync errors",
		}, []string{"operation"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "branch_sync_duration_seconds",
			Help:      "Time taken to sync one branch",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
