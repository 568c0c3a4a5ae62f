// Package prometheus exposes engine counters as a
// [prometheus.Collector], so they can join an existing registry or be
// served standalone via [Exporter.Handler].
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsdeck/authcore"
	"github.com/opsdeck/authcore/metrics/export/internaldefs"
)

// MetricsSource is the part of the engine the exporter reads.
type MetricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter reads a snapshot on every scrape; it holds no state of its
// own.
type Exporter struct {
	source       MetricsSource
	counterDescs map[authcore.MetricID]*prometheus.Desc
	histDescs    map[authcore.MetricID]*prometheus.Desc
	droppedDesc  *prometheus.Desc
}

var _ prometheus.Collector = (*Exporter)(nil)

// NewExporter creates an exporter over the given source, typically an
// [*authcore.Engine].
func NewExporter(source MetricsSource) *Exporter {
	e := &Exporter{
		source:       source,
		counterDescs: make(map[authcore.MetricID]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histDescs:    make(map[authcore.MetricID]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		droppedDesc: prometheus.NewDesc(
			"authcore_audit_dropped_total",
			"Audit events dropped under dispatcher backpressure.",
			nil, nil,
		),
	}
	for _, def := range internaldefs.CounterDefs {
		e.counterDescs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for _, def := range internaldefs.HistogramDefs {
		e.histDescs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return e
}

// Describe implements [prometheus.Collector].
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range e.counterDescs {
		ch <- desc
	}
	for _, desc := range e.histDescs {
		ch <- desc
	}
	ch <- e.droppedDesc
}

// Collect implements [prometheus.Collector].
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e == nil || e.source == nil {
		return
	}

	snapshot := e.source.MetricsSnapshot()

	for _, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(
			e.counterDescs[def.ID], prometheus.CounterValue,
			float64(snapshot.Counters[def.ID]),
		)
	}

	for _, def := range internaldefs.HistogramDefs {
		raw := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
		cumulative := internaldefs.CumulativeBuckets(raw)

		buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds))
		for i, bound := range internaldefs.HistogramBounds {
			buckets[bound] = cumulative[i]
		}
		count := cumulative[len(cumulative)-1]

		// The engine tracks bucket counts only; no sum is available.
		ch <- prometheus.MustNewConstHistogram(e.histDescs[def.ID], count, 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(
		e.droppedDesc, prometheus.CounterValue,
		float64(e.source.AuditDropped()),
	)
}

// Handler returns a scrape handler backed by a private registry holding
// only this exporter.
func (e *Exporter) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(e)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
