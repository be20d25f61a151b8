package batch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	entriesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logshipper_entries_emitted_total",
		Help: "Entries successfully delivered downstream",
	})

	entriesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logshipper_entries_dropped_total",
		Help: "Entries dropped because the queue was at its limit",
	})

	batchesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logshipper_batches_emitted_total",
		Help: "Batches successfully delivered downstream",
	})

	batchesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logshipper_batches_failed_total",
		Help: "Batch delivery attempts that ended in an error",
	})

	batchesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logshipper_batches_dropped_total",
		Help: "Batches discarded after repeated delivery failures",
	})

	queueDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logshipper_queue_drops_total",
		Help: "Times the whole backlog was discarded after sustained failures",
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logshipper_queue_depth",
		Help: "Entries currently buffered awaiting delivery",
	})
)

var registerOnce sync.Once

// RegisterMetrics registers the pipeline metrics with the default prometheus
// registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(entriesEmitted)
		prometheus.MustRegister(entriesDropped)
		prometheus.MustRegister(batchesEmitted)
		prometheus.MustRegister(batchesFailed)
		prometheus.MustRegister(batchesDropped)
		prometheus.MustRegister(queueDrops)
		prometheus.MustRegister(queueDepth)
	})
}
