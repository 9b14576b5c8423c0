// Package metrics defines the Prometheus collectors for the metadata store
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the store.
type Metrics struct {
	RecordsIngestedTotal *prometheus.CounterVec
	RecordsDroppedTotal  *prometheus.CounterVec
	SubBatchDuration     prometheus.Histogram
	SubBatchSize         prometheus.Histogram
	QueryDuration        *prometheus.HistogramVec
	HealthMergesTotal    *prometheus.CounterVec
}

// New creates the store's collectors and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() to avoid cross-test collisions.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tms_records_ingested_total",
				Help: "Records accepted from remote batches, by outcome (new, duplicate).",
			},
			[]string{"outcome"},
		),
		RecordsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tms_records_dropped_total",
				Help: "Records dropped during ingest, by reason (bad_signature, unrecognized_type, personal).",
			},
			[]string{"reason"},
		),
		SubBatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tms_ingest_subbatch_duration_seconds",
				Help:    "Wall-clock time of one ingest sub-batch transaction.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		SubBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tms_ingest_subbatch_size",
				Help:    "Records per ingest sub-batch as chosen by the adaptive controller.",
				Buckets: []float64{10, 25, 50, 100, 250, 500, 1000},
			},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tms_query_duration_seconds",
				Help:    "Query latency in seconds, by operation.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"op"},
		),
		HealthMergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tms_health_merges_total",
				Help: "Health observations processed, by outcome (replaced, kept_existing).",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.RecordsIngestedTotal,
		m.RecordsDroppedTotal,
		m.SubBatchDuration,
		m.SubBatchSize,
		m.QueryDuration,
		m.HealthMergesTotal,
	)
	return m
}

// Handler returns the scrape endpoint for a registry created with New.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
