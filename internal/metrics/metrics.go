// Package metrics exposes Prometheus metrics for sync runs.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kjannette/stocksync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "stocksync"

// Collector holds sync metrics on a private registry.
type Collector struct {
	InstrumentsSynced *prometheus.CounterVec
	RowsWritten       prometheus.Counter
	RowFailures       *prometheus.CounterVec
	Fallbacks         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	InstrumentLatency prometheus.Histogram
	LastRunTimestamp  prometheus.Gauge
	LastRunNewRows    prometheus.Gauge
	RunsAborted       prometheus.Counter

	registry *prometheus.Registry
}

func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.InstrumentsSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instruments_synced_total",
			Help:      "Instrument syncs by outcome",
		},
		[]string{"status"}, // updated, up_to_date, no_data, failed
	)
	c.RowsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_written_total",
		Help:      "Price bars upserted",
	})
	c.RowFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_failures_total",
			Help:      "Provider rows skipped during conversion or upsert",
		},
		[]string{"symbol"},
	)
	c.Fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Instruments served by a fallback provider",
		},
		[]string{"from", "to"},
	)
	c.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of a full sync run",
		Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
	})
	c.InstrumentLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "instrument_sync_seconds",
		Help:      "Duration of one instrument's sync",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})
	c.LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last sync run finished",
	})
	c.LastRunNewRows = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_new_rows",
		Help:      "New rows written by the last sync run",
	})
	c.RunsAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_aborted_total",
		Help:      "Sync runs stopped because the store was unavailable",
	})

	c.registry.MustRegister(
		c.InstrumentsSynced,
		c.RowsWritten,
		c.RowFailures,
		c.Fallbacks,
		c.RunDuration,
		c.InstrumentLatency,
		c.LastRunTimestamp,
		c.LastRunNewRows,
		c.RunsAborted,
	)
	return c
}

func (c *Collector) ObserveFallback(symbol string, from, to models.Provider) {
	c.Fallbacks.WithLabelValues(from.String(), to.String()).Inc()
}

func (c *Collector) ObserveRowFailure(symbol string) {
	c.RowFailures.WithLabelValues(symbol).Inc()
}

func (c *Collector) ObserveInstrument(res models.InstrumentResult) {
	c.InstrumentsSynced.WithLabelValues(string(res.Status)).Inc()
	c.RowsWritten.Add(float64(res.NewRows))
	c.InstrumentLatency.Observe(res.Duration.Seconds())
}

func (c *Collector) ObserveRun(r *models.SyncReport) {
	c.RunDuration.Observe(r.Duration.Seconds())
	c.LastRunTimestamp.Set(float64(r.StartedAt.Add(r.Duration).Unix()))
	c.LastRunNewRows.Set(float64(r.NewRows))
	if r.Aborted {
		c.RunsAborted.Inc()
	}
}

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Push sends the current values to a Pushgateway, for one-shot sync runs
// that exit before they could be scraped.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := push.New(url, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
