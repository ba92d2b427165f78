package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.ObserveQuery(OutcomeMatched)
	m.ObserveQuery(OutcomeLowConfidence)
	m.ObserveSuggest()
	m.ObserveBestScore(0.42)
	m.ObserveReload(ReloadOK, 7)
	m.ObserveReload(ReloadFailed, 0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `askmatch_queries_total{outcome="matched"} 1`)
	assert.Contains(t, body, `askmatch_queries_total{outcome="low_confidence"} 1`)
	assert.Contains(t, body, `askmatch_suggest_requests_total 1`)
	assert.Contains(t, body, `askmatch_reloads_total{status="ok"} 1`)
	assert.Contains(t, body, `askmatch_reloads_total{status="failed"} 1`)
	assert.Contains(t, body, `askmatch_indexed_questions 7`)
}

func TestMetrics_FailedReloadKeepsGauge(t *testing.T) {
	m := New()
	m.ObserveReload(ReloadOK, 3)
	m.ObserveReload(ReloadFailed, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `askmatch_indexed_questions 3`)
}
