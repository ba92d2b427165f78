// Package metrics exports retrieval metrics in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcomes reported on the queries counter.
const (
	OutcomeMatched       = "matched"
	OutcomeLowConfidence = "low_confidence"
	OutcomeEmptyQuery    = "empty_query"
	OutcomeNotReady      = "not_ready"
)

// Reload statuses reported on the reloads counter.
const (
	ReloadOK     = "ok"
	ReloadFailed = "failed"
)

// Metrics collects retrieval engine metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	queries          *prometheus.CounterVec
	suggests         prometheus.Counter
	reloads          *prometheus.CounterVec
	bestScore        prometheus.Histogram
	indexedQuestions prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askmatch",
			Name:      "queries_total",
			Help:      "Answered queries by outcome",
		}, []string{"outcome"}),
		suggests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "askmatch",
			Name:      "suggest_requests_total",
			Help:      "Suggestion lookups served",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askmatch",
			Name:      "reloads_total",
			Help:      "Knowledge base reloads by status",
		}, []string{"status"}),
		bestScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "askmatch",
			Name:      "best_match_score",
			Help:      "Best cosine similarity per scored query",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		indexedQuestions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "askmatch",
			Name:      "indexed_questions",
			Help:      "Number of questions in the serving snapshot",
		}),
	}
	m.registry.MustRegister(m.queries, m.suggests, m.reloads, m.bestScore, m.indexedQuestions)
	return m
}

func (m *Metrics) ObserveQuery(outcome string) {
	m.queries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSuggest() {
	m.suggests.Inc()
}

func (m *Metrics) ObserveBestScore(score float64) {
	m.bestScore.Observe(score)
}

func (m *Metrics) ObserveReload(status string, questions int) {
	m.reloads.WithLabelValues(status).Inc()
	if status == ReloadOK {
		m.indexedQuestions.Set(float64(questions))
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
