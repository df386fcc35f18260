// Package metrics exposes Prometheus metrics for scriptd.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptd_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptd_executions_total",
			Help: "Total number of script executions by terminal status",
		},
		[]string{"language", "status"},
	)

	executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptd_execution_duration_seconds",
			Help:    "Script execution time in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"language"},
	)

	executionsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scriptd_executions_running",
			Help: "Number of executions currently running",
		},
	)

	dependencyInstalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptd_dependency_installs_total",
			Help: "Total number of dependency install attempts",
		},
		[]string{"result"},
	)

	scheduledInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptd_scheduled_invocations_total",
			Help: "Total number of scheduler-triggered invocations",
		},
		[]string{"result"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func ExecutionStarted() {
	executionsRunning.Inc()
}

func ExecutionFinished(language, status string, duration time.Duration) {
	executionsRunning.Dec()
	executionsTotal.WithLabelValues(language, status).Inc()
	executionDuration.WithLabelValues(language).Observe(duration.Seconds())
}

func DependencyInstall(result string) {
	dependencyInstalls.WithLabelValues(result).Inc()
}

func ScheduledInvocation(result string) {
	scheduledInvocations.WithLabelValues(result).Inc()
}
