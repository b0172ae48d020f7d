package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

var (
	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warehouse_query_duration_seconds",
			Help:    "Duration of warehouse queries in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 15.0, 60.0},
		},
		[]string{"kind"},
	)

	queryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warehouse_query_errors_total",
			Help: "Total number of failed warehouse queries",
		},
		[]string{"kind"},
	)

	definitionEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "data_definition_evaluations_total",
			Help: "Total number of data definition evaluations by source",
		},
		[]string{"type", "source"},
	)

	reportRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_runs_total",
			Help: "Total number of report runs by outcome",
		},
		[]string{"report", "status"},
	)

	reportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_run_duration_seconds",
			Help:    "Duration of report evaluation in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"report"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	httpPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_panics_total",
			Help: "Total number of recovered handler panics",
		},
		[]string{"route"},
	)
)

func init() {
	Registry.MustRegister(
		queryDuration,
		queryErrors,
		definitionEvaluations,
		reportRuns,
		reportDuration,
		httpRequestsTotal,
		httpRequestDuration,
		httpPanics,
	)
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveQuery records the duration and outcome of one warehouse query.
func ObserveQuery(kind string, d time.Duration, err error) {
	queryDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		queryErrors.WithLabelValues(kind).Inc()
	}
}

// RecordEvaluation counts a data definition evaluation. source is "query" or "cache".
func RecordEvaluation(defType, source string) {
	definitionEvaluations.WithLabelValues(defType, source).Inc()
}

// RecordReportRun records a finished report run.
func RecordReportRun(reportID, status string, d time.Duration) {
	reportRuns.WithLabelValues(reportID, status).Inc()
	reportDuration.WithLabelValues(reportID).Observe(d.Seconds())
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordPanic counts a recovered panic on route.
func RecordPanic(route string) {
	httpPanics.WithLabelValues(route).Inc()
}
