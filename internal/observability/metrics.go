package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the multiplexer.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
	pendingBundles   prometheus.Gauge
	passesLaunched   prometheus.Counter
	passesLive       prometheus.Gauge
	backendActive    *prometheus.GaugeVec
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	bundlesReleased  prometheus.Counter
	bundlesExpired   prometheus.Counter
	configReloads    *prometheus.CounterVec
	buildInfo        *prometheus.GaugeVec
	registry         *prometheus.Registry
}

// NewMetrics creates a new Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avamux"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Inbound request duration including time spent queued",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10, 30,
			},
		},
		[]string{"method", "status"},
	)

	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Number of dispatch units waiting in the admission queue",
	})

	m.pendingBundles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "pending_bundles",
		Help:      "Number of incomplete bundles being collected",
	})

	m.passesLaunched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "drain_passes_launched_total",
		Help:      "Total number of drain passes launched by debounce expiries",
	})

	m.passesLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "drain_passes_running",
		Help:      "Number of drain passes currently running",
	})

	m.backendActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "active_units",
			Help:      "Number of dispatch units currently executing on a backend",
		},
		[]string{"backend"},
	)

	m.dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "dispatch_total",
			Help:      "Total number of requests forwarded to backends by outcome",
		},
		[]string{"backend", "status"},
	)

	m.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of a dispatch unit on its backend",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "kind"},
	)

	m.bundlesReleased = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "bundles_released_total",
		Help:      "Total number of bundles that reached their expected size",
	})

	m.bundlesExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "bundles_expired_total",
		Help:      "Total number of incomplete bundles evicted after their TTL",
	})

	m.configReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Total number of configuration reload attempts",
		},
		[]string{"result"},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.queueDepth,
		m.pendingBundles,
		m.passesLaunched,
		m.passesLive,
		m.backendActive,
		m.dispatchTotal,
		m.dispatchDuration,
		m.bundlesReleased,
		m.bundlesExpired,
		m.configReloads,
		m.buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRequest records a completed inbound request.
func (m *Metrics) RecordRequest(method string, status int, duration time.Duration) {
	s := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, s).Inc()
	m.requestDuration.WithLabelValues(method, s).Observe(duration.Seconds())
}

// SetQueueDepth sets the admission queue depth.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// SetPendingBundles sets the number of incomplete bundles.
func (m *Metrics) SetPendingBundles(n int) {
	m.pendingBundles.Set(float64(n))
}

// PassesLaunched adds n to the launched drain pass counter.
func (m *Metrics) PassesLaunched(n int) {
	m.passesLaunched.Add(float64(n))
}

// PassStarted marks a drain pass as running.
func (m *Metrics) PassStarted() {
	m.passesLive.Inc()
}

// PassFinished marks a drain pass as stopped.
func (m *Metrics) PassFinished() {
	m.passesLive.Dec()
}

// SetBackendActive sets the active unit count of one backend.
func (m *Metrics) SetBackendActive(backend string, active int64) {
	m.backendActive.WithLabelValues(backend).Set(float64(active))
}

// RecordUnit records the time one unit spent on a backend.
func (m *Metrics) RecordUnit(backend, kind string, duration time.Duration) {
	m.dispatchDuration.WithLabelValues(backend, kind).Observe(duration.Seconds())
}

// RecordForward records the outcome of one forwarded request.
func (m *Metrics) RecordForward(backend string, status int) {
	m.dispatchTotal.WithLabelValues(backend, strconv.Itoa(status)).Inc()
}

// BundleReleased counts a completed bundle.
func (m *Metrics) BundleReleased() {
	m.bundlesReleased.Inc()
}

// BundleExpired counts an evicted bundle.
func (m *Metrics) BundleExpired() {
	m.bundlesExpired.Inc()
}

// RecordReload records the result of a config reload.
func (m *Metrics) RecordReload(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
