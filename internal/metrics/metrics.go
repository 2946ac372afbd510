// Package metrics exposes Prometheus instruments for the ingestion, answer and enrichment paths.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperjump/ragdocs/internal/apperr"
)

const namespace = "ragdocs"

// Enrichment results.
const (
	EnrichmentUpdated = "updated"
	EnrichmentSkipped = "skipped"
	EnrichmentFailed  = "failed"
	EnrichmentDropped = "dropped"
)

// Metrics holds the instruments and the registry they are registered on.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	ingestTotal     *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	answerDuration  *prometheus.HistogramVec
	enrichmentTotal *prometheus.CounterVec
}

// New registers the instruments, plus Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Document ingestions by result.",
		}, []string{"result"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline failures by error kind.",
		}, []string{"stage"}),
		answerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "Answer generation latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"result"}),
		enrichmentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_total",
			Help:      "Title enrichment jobs by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.ingestTotal,
		m.stageFailures,
		m.answerDuration,
		m.enrichmentTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the instruments.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveIngest counts one ingestion and, on failure, its error kind.
func (m *Metrics) ObserveIngest(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ingestTotal.WithLabelValues("failure").Inc()
		m.stageFailures.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return
	}
	m.ingestTotal.WithLabelValues("success").Inc()
}

// ObserveAnswer records the latency of one answer started at start.
func (m *Metrics) ObserveAnswer(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
		m.stageFailures.WithLabelValues(string(apperr.KindOf(err))).Inc()
	}
	m.answerDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// ObserveEnrichment counts one title enrichment outcome.
func (m *Metrics) ObserveEnrichment(result string) {
	if m == nil {
		return
	}
	m.enrichmentTotal.WithLabelValues(result).Inc()
}
