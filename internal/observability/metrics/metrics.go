// Package metrics provides Prometheus instrumentation for ignition.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	register    sync.Once

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Module build metrics
	buildTotal    *prometheus.CounterVec
	buildDuration prometheus.Histogram
	planActions   prometheus.Histogram

	// Plan archive metrics
	planPublishTotal  *prometheus.CounterVec
	planRetrieveTotal *prometheus.CounterVec
	planDeleteTotal   *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered once per
// process; later calls only toggle enabled.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}
	register.Do(registerCollectors)
}

func registerCollectors() {
	constLabels := prometheus.Labels{"service": serviceName}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)

	// Build outcomes, labelled by error kind
	buildTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "module_build_total",
			Help:        "Total number of module builds by result",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)

	buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:        "module_build_duration_seconds",
			Help:        "Time spent compiling and building a module",
			Buckets:     []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			ConstLabels: constLabels,
		},
	)

	planActions = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:        "plan_actions",
			Help:        "Number of actions in successfully built plans",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
			ConstLabels: constLabels,
		},
	)

	planPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "plan_publish_total",
			Help:        "Total number of plan publish requests",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	planRetrieveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "plan_retrieve_total",
			Help:        "Total number of plans retrieved",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	planDeleteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "plan_delete_total",
			Help:        "Total number of plans deleted",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
