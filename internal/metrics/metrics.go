// Package metrics provides Prometheus metrics for the entry store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the entry store.
type Metrics struct {
	// Write metrics
	PutEntries    *prometheus.CounterVec
	PutErrors     *prometheus.CounterVec
	InsertBatches prometheus.Counter

	// Partition metrics
	PartitionAppends  prometheus.Counter
	PartitionRewrites prometheus.Counter
	DrainDuration     prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.PutEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entrystore_put_entries_total",
			Help: "Total number of entries submitted via put",
		},
		[]string{"backend"},
	)

	m.PutErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entrystore_put_errors_total",
			Help: "Total number of failed put operations",
		},
		[]string{"backend"},
	)

	m.InsertBatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entrystore_insert_statements_total",
			Help: "Total number of chunked INSERT statements emitted",
		},
	)

	m.PartitionAppends = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entrystore_partition_appends_total",
			Help: "Total number of partition batches written in append mode",
		},
	)

	m.PartitionRewrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entrystore_partition_rewrites_total",
			Help: "Total number of partition batches written in rewrite mode",
		},
	)

	m.DrainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "entrystore_partition_drain_duration_seconds",
			Help:    "Per-partition batch drain latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.registry.MustRegister(
		m.PutEntries,
		m.PutErrors,
		m.InsertBatches,
		m.PartitionAppends,
		m.PartitionRewrites,
		m.DrainDuration,
	)
	return m
}

// Registry returns the underlying Prometheus registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
