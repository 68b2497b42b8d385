package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type IndexerMetrics struct {
	registry *prometheus.Registry

	reindexTotal    *prometheus.CounterVec
	reindexDuration *prometheus.HistogramVec
	reindexInFlight prometheus.Gauge
	indexedChunks   *prometheus.GaugeVec
	skippedFiles    *prometheus.CounterVec
}

func NewIndexerMetrics(service string) *IndexerMetrics {
	registry := prometheus.NewRegistry()

	reindexTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fa",
			Subsystem: "indexer",
			Name:      "reindex_total",
			Help:      "Total reindex runs by status.",
		},
		[]string{"service", "status"},
	)
	reindexDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fa",
			Subsystem: "indexer",
			Name:      "reindex_duration_seconds",
			Help:      "Full reindex duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	reindexInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fa",
			Subsystem: "indexer",
			Name:      "reindex_in_flight",
			Help:      "Number of in-flight reindex runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	indexedChunks := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fa",
			Subsystem: "indexer",
			Name:      "active_chunks",
			Help:      "Chunk count of the active index generation.",
		},
		[]string{"service"},
	)
	skippedFiles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fa",
			Subsystem: "indexer",
			Name:      "skipped_files_total",
			Help:      "Total source files skipped during reindex.",
		},
		[]string{"service"},
	)

	registry.MustRegister(reindexTotal, reindexDuration, reindexInFlight, indexedChunks, skippedFiles)

	return &IndexerMetrics{
		registry:        registry,
		reindexTotal:    reindexTotal,
		reindexDuration: reindexDuration,
		reindexInFlight: reindexInFlight,
		indexedChunks:   indexedChunks,
		skippedFiles:    skippedFiles,
	}
}

func (m *IndexerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *IndexerMetrics) StartReindex() {
	m.reindexInFlight.Inc()
}

func (m *IndexerMetrics) FinishReindex(service string, duration time.Duration, err error) {
	m.reindexInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.reindexTotal.WithLabelValues(service, status).Inc()
	m.reindexDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *IndexerMetrics) SetActiveChunks(service string, count int) {
	m.indexedChunks.WithLabelValues(service).Set(float64(count))
}

func (m *IndexerMetrics) RecordSkippedFiles(service string, count int) {
	if count <= 0 {
		return
	}
	m.skippedFiles.WithLabelValues(service).Add(float64(count))
}
