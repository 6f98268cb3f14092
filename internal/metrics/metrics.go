// Package metrics exports pipeline and HTTP measurements to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zenith"

// Prometheus implements service.Metrics on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	ingestEntries     *prometheus.CounterVec
	retrievalResults  prometheus.Histogram
	retrievalFiltered prometheus.Counter
	answers           *prometheus.CounterVec
	answerDuration    *prometheus.HistogramVec
	externalCalls     *prometheus.CounterVec
	externalDuration  *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

var _ service.Metrics = (*Prometheus)(nil)

// New registers every collector, plus the Go and process collectors, on a
// fresh registry.
func New() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		ingestEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_entries_total",
			Help:      "Knowledge entries submitted for ingestion, by outcome.",
		}, []string{"result"}),
		retrievalResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Entries returned per retrieval after tenant filtering.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}),
		retrievalFiltered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_filtered_total",
			Help:      "Similarity candidates dropped by tenant filtering or the limit.",
		}),
		answers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answer invocations by terminal stage and grounding.",
		}, []string{"stage", "grounded"}),
		answerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "Answer invocation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"stage"}),
		externalCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Calls to embedding and generation providers.",
		}, []string{"service", "result"}),
		externalDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"service"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_lookups_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) IngestCompleted(processed, total int) {
	p.ingestEntries.WithLabelValues("processed").Add(float64(processed))
	if skipped := total - processed; skipped > 0 {
		p.ingestEntries.WithLabelValues("skipped").Add(float64(skipped))
	}
}

func (p *Prometheus) RetrievalCompleted(candidates, returned int) {
	p.retrievalResults.Observe(float64(returned))
	if dropped := candidates - returned; dropped > 0 {
		p.retrievalFiltered.Add(float64(dropped))
	}
}

func (p *Prometheus) AnswerCompleted(stage domain.PipelineStage, grounded bool, elapsed time.Duration) {
	p.answers.WithLabelValues(string(stage), strconv.FormatBool(grounded)).Inc()
	p.answerDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (p *Prometheus) ExternalCall(svc string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.externalCalls.WithLabelValues(svc, result).Inc()
	p.externalDuration.WithLabelValues(svc).Observe(elapsed.Seconds())
}

// CacheLookup implements cache.HitRecorder.
func (p *Prometheus) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served request. route is the router pattern, not
// the raw path, to keep label cardinality bounded.
func (p *Prometheus) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
