// Package metrics exposes Prometheus instrumentation for the discovery pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "workhuntr"

// Metrics holds all pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SearchQueries   *prometheus.CounterVec
	SearchHits      prometheus.Counter
	DegradedSteps   *prometheus.CounterVec
	AIFallbacks     *prometheus.CounterVec
	JobsPersisted   *prometheus.CounterVec
	Runs            *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	QuotaRejections *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	RateLimited     prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SearchQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Search provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		SearchHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_hits_total",
			Help:      "Raw search hits returned by providers",
		}),
		DegradedSteps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_steps_total",
			Help:      "Pipeline steps that failed and continued with an empty result",
		}, []string{"stage"}),
		AIFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_fallbacks_total",
			Help:      "AI calls replaced by a deterministic fallback",
		}, []string{"stage"}),
		JobsPersisted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_persisted_total",
			Help:      "Discovered job upserts by result",
		}, []string{"result"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by type and final status",
		}, []string{"type", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"type"}),
		QuotaRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejections_total",
			Help:      "Runs refused by the tier gate",
		}, []string{"reason"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route pattern, method and status code",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "API requests rejected by the per-key rate limit",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SearchQuery(provider, outcome string, hits int) {
	if m == nil {
		return
	}
	m.SearchQueries.WithLabelValues(provider, outcome).Inc()
	m.SearchHits.Add(float64(hits))
}

func (m *Metrics) Degraded(stage string) {
	if m == nil {
		return
	}
	m.DegradedSteps.WithLabelValues(stage).Inc()
}

func (m *Metrics) Fallback(stage string) {
	if m == nil {
		return
	}
	m.AIFallbacks.WithLabelValues(stage).Inc()
}

func (m *Metrics) Persisted(inserted, updated int) {
	if m == nil {
		return
	}
	m.JobsPersisted.WithLabelValues("inserted").Add(float64(inserted))
	m.JobsPersisted.WithLabelValues("updated").Add(float64(updated))
}

func (m *Metrics) RunFinished(runType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(runType, status).Inc()
	m.RunDuration.WithLabelValues(runType).Observe(elapsed.Seconds())
}

func (m *Metrics) QuotaRejected(reason string) {
	if m == nil {
		return
	}
	m.QuotaRejections.WithLabelValues(reason).Inc()
}

// HTTPRequest records one served API request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) RateLimitRejected() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
