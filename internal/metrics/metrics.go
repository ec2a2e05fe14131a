package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RateLimitExceededTotal *prometheus.CounterVec

	// Realtime
	WebsocketConnections prometheus.Gauge
	WebsocketEventsTotal *prometheus.CounterVec

	// Domain
	MatchTransitionsTotal *prometheus.CounterVec
	PaymentsTotal         *prometheus.CounterVec
	NotificationsTotal    *prometheus.CounterVec
	NearbyCacheTotal      *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics once per process.
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path"},
			),
			RateLimitExceededTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Requests rejected by the rate limiter",
				},
				[]string{"scope"},
			),
			WebsocketConnections: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "websocket_connections",
					Help: "Currently open websocket connections",
				},
			),
			WebsocketEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "websocket_events_total",
					Help: "Websocket events by type and direction",
				},
				[]string{"type", "direction"},
			),
			MatchTransitionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "match_transitions_total",
					Help: "Match status transitions",
				},
				[]string{"to"},
			),
			PaymentsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "payments_total",
					Help: "Payment gateway calls by operation and outcome",
				},
				[]string{"operation", "outcome"},
			),
			NotificationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "notifications_sent_total",
					Help: "Notifications delivered by channel",
				},
				[]string{"channel"},
			),
			NearbyCacheTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "nearby_cache_total",
					Help: "Nearby search cache lookups",
				},
				[]string{"result"},
			),
		}
	})
	return instance
}

// Get returns the process metrics, initializing them on first use.
func Get() *Metrics {
	return Initialize()
}
