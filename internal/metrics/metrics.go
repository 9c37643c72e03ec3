// Package metrics registers the Prometheus instruments exported by the
// service and exposes them over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the scheduling engine and
// the content pipeline.
type Metrics struct {
	registry prometheus.Registerer

	activitiesCreated *prometheus.CounterVec
	walkOutcomes      *prometheus.CounterVec
	walkDuration      prometheus.Histogram
	generations       *prometheus.CounterVec
	casts             *prometheus.CounterVec
	feedFetches       *prometheus.CounterVec
}

// New registers all instruments on reg (DefaultRegisterer when nil).
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registry: reg,
		activitiesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activities_created_total",
				Help:      "Network activities created by the scheduling walker",
			},
			[]string{"kind"},
		),
		walkOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "walk_outcomes_total",
				Help:      "Per-combination walker outcomes",
			},
			[]string{"outcome"},
		),
		walkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "walk_duration_seconds",
				Help:      "Duration of one plan walk",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5},
			},
		),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_generations_total",
				Help:      "Content generation attempts",
			},
			[]string{"status"},
		),
		casts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "casts_total",
				Help:      "Publish attempts",
			},
			[]string{"provider", "status"},
		),
		feedFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_fetches_total",
				Help:      "Feed provider fetches",
			},
			[]string{"type", "status"},
		),
	}

	reg.MustRegister(
		m.activitiesCreated,
		m.walkOutcomes,
		m.walkDuration,
		m.generations,
		m.casts,
		m.feedFetches,
	)

	return m
}

// RecordActivityCreated counts one created activity.
func (m *Metrics) RecordActivityCreated(kind string) {
	if m == nil {
		return
	}
	m.activitiesCreated.WithLabelValues(kind).Inc()
}

// RecordWalkOutcome counts one per-combination outcome.
func (m *Metrics) RecordWalkOutcome(outcome string) {
	if m == nil {
		return
	}
	m.walkOutcomes.WithLabelValues(outcome).Inc()
}

// RecordWalkDuration observes one plan walk.
func (m *Metrics) RecordWalkDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.walkDuration.Observe(d.Seconds())
}

// RecordGeneration counts one generation attempt by status.
func (m *Metrics) RecordGeneration(status string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(status).Inc()
}

// RecordCast counts one publish attempt.
func (m *Metrics) RecordCast(provider, status string) {
	if m == nil {
		return
	}
	m.casts.WithLabelValues(provider, status).Inc()
}

// RecordFeedFetch counts one feed provider fetch.
func (m *Metrics) RecordFeedFetch(providerType, status string) {
	if m == nil {
		return
	}
	m.feedFetches.WithLabelValues(providerType, status).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
