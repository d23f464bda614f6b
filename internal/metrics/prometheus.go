package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for OJP server metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	dispatchTotal   *prometheus.CounterVec
	redirectsTotal  prometheus.Counter

	// Histograms
	dispatchDuration *prometheus.HistogramVec

	// Gauges
	uptime              prometheus.GaugeFunc
	poolConnections     *prometheus.GaugeVec
	poolUtilization     *prometheus.GaugeVec
	activeSessions      prometheus.Gauge
	xaActiveBranches    prometheus.Gauge
	circuitBreakerState *prometheus.GaugeVec
}

// Default histogram buckets for dispatch duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// breakerStateValue maps a circuitbreaker.State.String() result to the
// numeric gauge value the Prometheus convention expects
// (0=closed, 1=open, 2=half_open).
func breakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}

// InitPrometheus initializes the Prometheus metrics subsystem, registered
// under namespace "ojp" on ojp.prometheus.port.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total number of dispatched actions",
			},
			[]string{"action", "status"},
		),

		redirectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cluster_redirects_total",
				Help:      "Total number of cluster redirect hints returned instead of local dispatch",
			},
		),

		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_milliseconds",
				Help:      "Duration of dispatched actions in milliseconds",
				Buckets:   buckets,
			},
			[]string{"action"},
		),

		poolConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_connections",
				Help:      "Current backend connections by connection hash and state",
			},
			[]string{"conn_hash", "state"},
		),

		poolUtilization: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_utilization_ratio",
				Help:      "Pool utilization ratio (active / (active+idle)) by connection hash",
			},
			[]string{"conn_hash"},
		),

		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of currently connected client sessions",
			},
		),

		xaActiveBranches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "xa_active_branches",
				Help:      "Total number of live XA transaction branches across all connection hashes",
			},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_circuit_breaker_state",
				Help:      "Pool provider circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"provider"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the OJP server started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.dispatchTotal,
		pm.redirectsTotal,
		pm.dispatchDuration,
		pm.uptime,
		pm.poolConnections,
		pm.poolUtilization,
		pm.activeSessions,
		pm.xaActiveBranches,
		pm.circuitBreakerState,
	)

	promMetrics = pm
}

// RecordPrometheusDispatch records a completed dispatch action.
func RecordPrometheusDispatch(action string, durationMs int64, success bool) {
	if promMetrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.dispatchTotal.WithLabelValues(action, status).Inc()
	promMetrics.dispatchDuration.WithLabelValues(action).Observe(float64(durationMs))
}

// RecordPrometheusRedirect records a cluster redirect hint.
func RecordPrometheusRedirect() {
	if promMetrics == nil {
		return
	}
	promMetrics.redirectsTotal.Inc()
}

// SetPoolConnections sets the active/idle connection gauges for a
// connection hash, called periodically from a snapshot of
// connpool.Manager.AllStats.
func SetPoolConnections(connHash string, active, idle int) {
	if promMetrics == nil {
		return
	}
	promMetrics.poolConnections.WithLabelValues(connHash, "active").Set(float64(active))
	promMetrics.poolConnections.WithLabelValues(connHash, "idle").Set(float64(idle))

	total := active + idle
	if total > 0 {
		promMetrics.poolUtilization.WithLabelValues(connHash).Set(float64(active) / float64(total))
	}
}

// SetActiveSessions sets the number of currently connected sessions.
func SetActiveSessions(count int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeSessions.Set(float64(count))
}

// SetXAActiveBranches sets the total live XA branch count across all
// connection hashes (xaregistry.Registries.TotalLen).
func SetXAActiveBranches(count int) {
	if promMetrics == nil {
		return
	}
	promMetrics.xaActiveBranches.Set(float64(count))
}

// SetProviderBreakerStates refreshes the circuit breaker state gauge for
// every provider, from providerreg.Registry.BreakerStates.
func SetProviderBreakerStates(states map[string]string) {
	if promMetrics == nil {
		return
	}
	for provider, state := range states {
		promMetrics.circuitBreakerState.WithLabelValues(provider).Set(breakerStateValue(state))
	}
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
