package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome (reserved, conflict, error).",
		},
		[]string{"outcome"},
	)

	releases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "releases_total",
			Help:      "Slot range releases.",
		},
	)

	reserveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "courtbook",
			Name:      "reserve_duration_seconds",
			Help:      "Duration of reserve transactions.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	holdsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "holds_expired_total",
			Help:      "Holding bookings cancelled by the expiry sweeper.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservations, releases, reserveDuration, holdsExpired, httpRequests)
	})
}

func IncReservation(outcome string)   { reservations.WithLabelValues(outcome).Inc() }
func IncRelease()                     { releases.Inc() }
func ObserveReserve(d time.Duration)  { reserveDuration.Observe(d.Seconds()) }
func IncHoldsExpired()                { holdsExpired.Inc() }
func IncHTTP(endpoint, status string) { httpRequests.WithLabelValues(endpoint, status).Inc() }
