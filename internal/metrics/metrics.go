package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ligadeals/ligadeals-web/internal/version"
)

type ServerMetrics struct {
	reg             *prometheus.Registry
	handler         http.Handler
	inflight        prometheus.Gauge
	reqTotal        *prometheus.CounterVec
	reqDur          *prometheus.HistogramVec
	respBytes       *prometheus.HistogramVec
	httpPanicTotal  prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	ratelimitDeniedTotal   *prometheus.CounterVec
	ratelimitCapacityTotal prometheus.Counter

	webhookTotal       *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec

	pagecacheRequests  *prometheus.CounterVec
	pagecacheEvictions *prometheus.CounterVec

	emailsTotal        *prometheus.CounterVec
	videoUpstreamTotal *prometheus.CounterVec
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		ratelimitDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by a rate limiter, by limiter scope",
		}, []string{"scope"}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revalidate_webhooks_total",
			Help: "CMS revalidation webhooks by outcome",
		}, []string{"outcome"}),
		invalidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revalidate_invalidations_total",
			Help: "Path and tag invalidations by kind and outcome",
		}, []string{"kind", "outcome"}),
		pagecacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagecache_requests_total",
			Help: "Page requests by cache outcome (hit, miss, bypass, error)",
		}, []string{"outcome"}),
		pagecacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagecache_evictions_total",
			Help: "Entries dropped from the page cache by reason",
		}, []string{"reason"}),
		emailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Transactional emails by category and outcome",
		}, []string{"category", "outcome"}),
		videoUpstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "video_upstream_errors_total",
			Help: "Video proxy upstream failures by status (0 = transport error)",
		}, []string{"status"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.errorsTotal,
		m.buildInfo,
		m.profilingActive,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.webhookTotal,
		m.invalidationsTotal,
		m.pagecacheRequests,
		m.pagecacheEvictions,
		m.emailsTotal,
		m.videoUpstreamTotal,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncRateLimitDenied(scope string) {
	m.ratelimitDeniedTotal.WithLabelValues(scope).Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) IncWebhook(outcome string) {
	m.webhookTotal.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) IncInvalidation(kind, outcome string) {
	m.invalidationsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *ServerMetrics) IncPageCache(outcome string) {
	m.pagecacheRequests.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) AddPageCacheEvictions(reason string, n int) {
	m.pagecacheEvictions.WithLabelValues(reason).Add(float64(n))
}

// WatchPageCacheSize exports size as pagecache_entries. Call once.
func (m *ServerMetrics) WatchPageCacheSize(size func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pagecache_entries",
		Help: "Pages currently held in the page cache",
	}, func() float64 { return float64(size()) }))
}

func (m *ServerMetrics) IncEmail(category, outcome string) {
	m.emailsTotal.WithLabelValues(category, outcome).Inc()
}

func (m *ServerMetrics) IncVideoUpstreamError(status int) {
	m.videoUpstreamTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}
