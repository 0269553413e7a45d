// Copyright © 2018 One Concern

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New(WithoutRuntime())

	m.Transform("merge", time.Now(), nil)
	m.Transform("merge", time.Now(), errors.New("boom"))
	m.Entries("merge", 3)
	m.Entries("remove", 0)
	m.Upload(1024, nil)
	m.Token("generate", 1)
	m.Request(http.MethodGet, "/repodata", http.StatusOK)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.entries.WithLabelValues("merge")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.uploads.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.tokens.WithLabelValues("generate")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.transforms))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `condarepo_index_entries_total{op="merge"} 3`), body)
	assert.Contains(t, body, `condarepo_http_requests_total{code="200",method="GET",route="/repodata"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transform("merge", time.Now(), nil)
		m.Entries("merge", 1)
		m.Upload(1, nil)
		m.Token("revoke", 1)
		m.Request(http.MethodGet, "/", http.StatusOK)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
