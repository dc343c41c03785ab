package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediabib_login_total",
			Help: "Total number of token obtain attempts",
		},
	)

	// Registration counters
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediabib_register_total",
			Help: "Total number of reader self-registrations",
		},
	)

	// Library selection counter
	LibrarySelectionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediabib_library_selection_total",
			Help: "Total number of superadmin library selections",
		},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabib_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabib_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "invalid_credentials", "invalid_token", "revoked_token", ...
	)

	// Policy denials by operation
	PolicyDenialCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabib_policy_denials_total",
			Help: "Total number of requests denied by the access policy",
		},
		[]string{"operation", "decision"},
	)

	// Library operation counter
	LibraryOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabib_library_operations_total",
			Help: "Total number of library administration operations",
		},
		[]string{"operation"}, // "create", "update", "delete"
	)

	// Reader operation counter
	ReaderOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabib_reader_operations_total",
			Help: "Total number of reader operations",
		},
		[]string{"operation"}, // "create", "update", "delete", "password_reset", "self_update"
	)

	// Card number collisions during issuance
	CardCollisionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediabib_card_number_collisions_total",
			Help: "Total number of generated card numbers that were already taken",
		},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediabib_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediabib_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediabib_info",
			Help: "Information about the MediaBib service",
		},
		[]string{"version"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(LibrarySelectionCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(PolicyDenialCounter)
	prometheus.MustRegister(LibraryOperationCounter)
	prometheus.MustRegister(ReaderOperationCounter)
	prometheus.MustRegister(CardCollisionCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	// Register gauges
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures a database operation; use as
// defer TrackDBOperation("query")(time.Now())
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(time.Since(start).Seconds())
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordPolicyDenial records a request refused by the access policy
func RecordPolicyDenial(operation, decision string) {
	PolicyDenialCounter.With(prometheus.Labels{"operation": operation, "decision": decision}).Inc()
}

// RecordLibraryOperation records a library administration operation
func RecordLibraryOperation(operation string) {
	LibraryOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordReaderOperation records a reader operation
func RecordReaderOperation(operation string) {
	ReaderOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}
