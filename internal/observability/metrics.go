// Package observability provides logging and Prometheus metrics.
package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "hptrack"

// Metrics holds the Prometheus collectors of the conversion pipeline and
// the store browser.
type Metrics struct {
	LevelsWritten      prometheus.Counter
	LevelsFailed       prometheus.Counter
	LevelWriteDuration prometheus.Histogram
	CellsResampled     prometheus.Counter
	MaskedCellRatio    prometheus.Gauge
	StageDuration      *prometheus.HistogramVec // labels: stage={load,fix,resample,pyramid}

	HTTPRequests *prometheus.CounterVec // labels: route, code
}

func newMetrics() *Metrics {
	return &Metrics{
		LevelsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "levels_written_total",
			Help:      "Resolution levels persisted successfully.",
		}),
		LevelsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "levels_failed_total",
			Help:      "Resolution levels whose store write failed.",
		}),
		LevelWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "level_write_duration_seconds",
			Help:      "Duration of one level store write.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
		CellsResampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_resampled_total",
			Help:      "Target cells produced by the nearest-neighbour resampler.",
		}),
		MaskedCellRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "masked_cell_ratio",
			Help:      "Fraction of target cells masked by the extrapolation guard in the last run.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Store browser requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LevelsWritten,
		m.LevelsFailed,
		m.LevelWriteDuration,
		m.CellsResampled,
		m.MaskedCellRatio,
		m.StageDuration,
		m.HTTPRequests,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered metrics, so tests can build as
// many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Push sends the batch metrics of a run to a Pushgateway under job.
func Push(ctx context.Context, url, job string, m *Metrics) error {
	p := push.New(url, job)
	for _, c := range m.collectors() {
		p = p.Collector(c)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
