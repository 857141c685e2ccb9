package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "journal"

// Metrics owns a private registry so several instances can coexist in tests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	submissions      *prometheus.CounterVec
	submitDuration   prometheus.Histogram
	submitRetries    prometheus.Counter
	xpAwarded        *prometheus.CounterVec
	levelUps         prometheus.Counter
	questTransitions *prometheus.CounterVec
	predicateLimit   prometheus.Counter

	exportJobs     *prometheus.CounterVec
	exportDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progression",
			Name:      "submissions_total",
			Help:      "Journal entry submissions by outcome.",
		}, []string{"outcome"}),
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "progression",
			Name:      "submission_duration_seconds",
			Help:      "Duration of a journal entry submission including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		submitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progression",
			Name:      "conflict_retries_total",
			Help:      "Submissions retried after a concurrent modification.",
		}),
		xpAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progression",
			Name:      "xp_awarded_total",
			Help:      "Experience points awarded by source.",
		}, []string{"source"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progression",
			Name:      "level_ups_total",
			Help:      "Levels gained across all characters.",
		}),
		questTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quests",
			Name:      "transitions_total",
			Help:      "Quest status transitions.",
		}, []string{"status"}),
		predicateLimit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quests",
			Name:      "predicate_limit_hits_total",
			Help:      "Quest evaluations stopped at the pass limit.",
		}),
		exportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exports",
			Name:      "jobs_total",
			Help:      "Export jobs by final status.",
		}, []string{"status"}),
		exportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exports",
			Name:      "job_duration_seconds",
			Help:      "Duration of export jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.submissions,
		m.submitDuration,
		m.submitRetries,
		m.xpAwarded,
		m.levelUps,
		m.questTransitions,
		m.predicateLimit,
		m.exportJobs,
		m.exportDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency keyed by the route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveSubmission(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	m.submitDuration.Observe(d.Seconds())
}

func (m *Metrics) SubmissionRetried() {
	if m == nil {
		return
	}
	m.submitRetries.Inc()
}

func (m *Metrics) AddXP(source string, xp int64) {
	if m == nil || xp <= 0 {
		return
	}
	m.xpAwarded.WithLabelValues(source).Add(float64(xp))
}

func (m *Metrics) LevelUp() {
	if m == nil {
		return
	}
	m.levelUps.Inc()
}

func (m *Metrics) QuestTransition(status string) {
	if m == nil {
		return
	}
	m.questTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) PredicateLimitHit() {
	if m == nil {
		return
	}
	m.predicateLimit.Inc()
}

func (m *Metrics) ObserveExport(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(status).Inc()
	m.exportDuration.Observe(d.Seconds())
}
