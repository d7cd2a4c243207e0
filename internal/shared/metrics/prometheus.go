package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Workflow metrics
	incidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_created_total",
			Help: "Total number of incidents created",
		},
		[]string{"category", "priority"},
	)

	incidentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_transitions_total",
			Help: "Total number of applied incident status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	incidentTransitionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_transitions_rejected_total",
			Help: "Total number of rejected incident status transitions",
		},
		[]string{"reason"},
	)

	respondersAssigned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "responders_assigned_total",
			Help: "Total number of responder assignments",
		},
	)

	activeSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_subscriptions_active",
			Help: "Number of live incident subscriptions",
		},
	)

	subscriptionDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_deliveries_total",
			Help: "Total number of subscription change deliveries",
		},
	)

	notificationsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_emitted_total",
			Help: "Total number of notifications emitted to the fan-out",
		},
		[]string{"kind"},
	)

	authorizationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authorization_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"action", "decision"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Workflow metric helpers ---

// RecordIncidentCreated records an incident creation
func RecordIncidentCreated(category, priority string) {
	incidentsCreated.WithLabelValues(category, priority).Inc()
}

// RecordTransition records an applied status transition
func RecordTransition(fromStatus, toStatus string) {
	incidentTransitions.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordTransitionRejected records a rejected transition by reason code
func RecordTransitionRejected(reason string) {
	incidentTransitionsRejected.WithLabelValues(reason).Inc()
}

// RecordAssignment records a responder assignment
func RecordAssignment() {
	respondersAssigned.Inc()
}

// RecordSubscriptionOpened tracks a new live subscription
func RecordSubscriptionOpened() {
	activeSubscriptions.Inc()
}

// RecordSubscriptionClosed tracks a cancelled subscription
func RecordSubscriptionClosed() {
	activeSubscriptions.Dec()
}

// RecordDelivery records one subscription change delivery
func RecordDelivery() {
	subscriptionDeliveries.Inc()
}

// RecordNotificationEmitted records a notification handed to the fan-out
func RecordNotificationEmitted(kind string) {
	notificationsEmitted.WithLabelValues(kind).Inc()
}

// RecordAuthorizationDecision records an authorization decision
func RecordAuthorizationDecision(action string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	authorizationDecisions.WithLabelValues(action, decision).Inc()
}
