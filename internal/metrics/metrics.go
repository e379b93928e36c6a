// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Bookings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_bookings_total",
		Help: "Booking attempts by outcome code (ok on success).",
	}, []string{"outcome"})

	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_reservation_transitions_total",
		Help: "Committed reservation transitions by target status and trigger.",
	}, []string{"to", "trigger"})

	BilledHours = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_billed_hours_total",
		Help: "Subscription hours deducted at session end.",
	})

	PenaltyHours = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_penalty_hours_total",
		Help: "Overage hours recorded as penalties.",
	})

	ExpiredReservations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_reservations_expired_total",
		Help: "Reserved bookings cancelled by the expiry sweeper.",
	})

	GateScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_gate_scans_total",
		Help: "Scanner events consumed from the gate queue by direction and result.",
	}, []string{"direction", "result"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parking_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// GinMiddleware records request latency keyed by the matched route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
