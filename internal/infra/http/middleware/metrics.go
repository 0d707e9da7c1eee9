package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
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
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)

	enrollmentsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrollments_started_total",
			Help: "Total number of enrollment intents created",
		},
	)

	paymentsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_confirmed_total",
			Help: "Total number of payment confirmations by gateway and result",
		},
		[]string{"gateway", "status"},
	)

	crmSyncRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_sync_retries_total",
			Help: "Total number of CRM update retries after payment",
		},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notification attempts by kind and result",
		},
		[]string{"kind", "status"},
	)

	reconciliationRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_runs_total",
			Help: "Total number of reconciliation sweep runs",
		},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		activeConnections.Inc()
		defer activeConnections.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

func RecordEnrollmentStarted() {
	enrollmentsStarted.Inc()
}

func RecordPayment(gateway, status string) {
	paymentsConfirmed.WithLabelValues(gateway, status).Inc()
}

func RecordCRMRetry() {
	crmSyncRetries.Inc()
}

func RecordNotification(kind, status string) {
	notificationsSent.WithLabelValues(kind, status).Inc()
}

func RecordReconciliationRun() {
	reconciliationRuns.Inc()
}
