package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
)

// Prometheus mirrors routing outcomes and HTTP traffic into a private
// registry.
type Prometheus struct {
	queriesTotal     *prometheus.CounterVec
	hitsTotal        *prometheus.CounterVec
	fallbackFailures prometheus.Counter
	queryDuration    *prometheus.HistogramVec
	entries          prometheus.Gauge

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

var _ ports.Recorder = (*Prometheus)(nil)

func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "faqroute"
	}

	p := &Prometheus{registry: prometheus.NewRegistry()}

	p.queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Routed queries by decision and miss reason",
		},
		[]string{"decision", "reason"},
	)
	p.hitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Template hits by entry category",
		},
		[]string{"category"},
	)
	p.fallbackFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_failures_total",
			Help:      "Misses whose fallback generation failed",
		},
	)
	p.queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end Answer latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"decision"},
	)
	p.entries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "knowledge_entries",
			Help:      "Entries in the serving snapshot",
		},
	)
	p.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	p.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	p.registry.MustRegister(
		p.queriesTotal,
		p.hitsTotal,
		p.fallbackFailures,
		p.queryDuration,
		p.entries,
		p.requestsTotal,
		p.requestDuration,
	)
	p.registry.MustRegister(prometheus.NewGoCollector())
	p.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return p
}

func (p *Prometheus) Record(o entities.QueryOutcome, fallbackFailed bool) {
	p.queriesTotal.WithLabelValues(string(o.Decision), string(o.Reason)).Inc()
	if o.Hit() {
		category := o.Category
		if category == "" {
			category = Uncategorized
		}
		p.hitsTotal.WithLabelValues(category).Inc()
	}
	if fallbackFailed {
		p.fallbackFailures.Inc()
	}
	p.queryDuration.WithLabelValues(string(o.Decision)).Observe(o.Latency.Seconds())
}

// SetEntries publishes the size of the serving snapshot.
func (p *Prometheus) SetEntries(n int) {
	p.entries.Set(float64(n))
}

// Registry exposes the registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Middleware counts requests and their latency per route pattern.
func (p *Prometheus) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		p.requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		p.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
