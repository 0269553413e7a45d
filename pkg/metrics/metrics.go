// Copyright © 2018 One Concern

// Package metrics exposes prometheus metrics about channel activity.
//
// All recording methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics collected by the channel
type Metrics struct {
	registry *prometheus.Registry

	transforms *prometheus.HistogramVec
	entries    *prometheus.CounterVec
	uploads    *prometheus.CounterVec
	uploadSize prometheus.Histogram
	tokens     *prometheus.CounterVec
	requests   *prometheus.CounterVec
}

// New set of metrics
func New(opts ...Option) *Metrics {
	s := defaultSettings()
	for _, apply := range opts {
		apply(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: s.registry,
		transforms: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Subsystem: "index",
			Name:      "transform_duration_seconds",
			Help:      "Duration of index document transforms",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"op", "outcome"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Subsystem: "index",
			Name:      "entries_total",
			Help:      "Package entries merged into or removed from index documents",
		}, []string{"op"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Subsystem: "packages",
			Name:      "uploads_total",
			Help:      "Package uploads",
		}, []string{"outcome"}),
		uploadSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Subsystem: "packages",
			Name:      "upload_size_bytes",
			Help:      "Size of uploaded packages",
			Buckets:   prometheus.ExponentialBuckets(64*units.KiB, 4, 10),
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Subsystem: "tokens",
			Name:      "operations_total",
			Help:      "Token generations, revocations and cleanups",
		}, []string{"op"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
	}

	m.registry.MustRegister(m.transforms, m.entries, m.uploads, m.uploadSize, m.tokens, m.requests)
	if s.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Handler serves the metrics in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry of the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}

// Transform records the duration of an index transform
func (m *Metrics) Transform(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.transforms.WithLabelValues(op, outcome(err)).Observe(time.Since(start).Seconds())
}

// Entries counts index entries processed by an operation
func (m *Metrics) Entries(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.entries.WithLabelValues(op).Add(float64(n))
}

// Upload records a package upload
func (m *Metrics) Upload(size int64, err error) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.uploadSize.Observe(float64(size))
	}
}

// Token counts a token operation
func (m *Metrics) Token(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokens.WithLabelValues(op).Add(float64(n))
}

// Request counts a served HTTP request
func (m *Metrics) Request(method, route string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
