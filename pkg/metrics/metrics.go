// Package metrics exposes the Prometheus instrumentation shared by the
// server and worker binaries.
package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics counts analysis runs and observes their cost and output
// sizes.
type PipelineMetrics struct {
	AnalysesTotal   *prometheus.CounterVec
	AnalysisSeconds prometheus.Histogram
	EntitiesPerRun  prometheus.Histogram
	TriplesPerRun   prometheus.Histogram
	GraphNodes      prometheus.Histogram
	GraphEdges      prometheus.Histogram
}

// NewPipelineMetrics registers the pipeline metrics under the given
// namespace on the default registry.
func NewPipelineMetrics(namespace string) *PipelineMetrics {
	return &PipelineMetrics{
		AnalysesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analysis runs by outcome (ok, partial, error).",
		}, []string{"status"}),
		AnalysisSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one analysis run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		EntitiesPerRun: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entities_per_run",
			Help:      "Canonical entities produced per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		TriplesPerRun: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "triples_per_run",
			Help:      "Relation triples produced per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		GraphNodes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_nodes_per_run",
			Help:      "Graph nodes produced per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		GraphEdges: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_edges_per_run",
			Help:      "Graph edges produced per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// DatabaseMetrics exports sql.DBStats gauges for the result store.
type DatabaseMetrics struct {
	OpenConnections prometheus.Gauge
	InUse           prometheus.Gauge
	Idle            prometheus.Gauge
	WaitCount       prometheus.Gauge
}

// NewDatabaseMetrics registers the database gauges under the given
// namespace.
func NewDatabaseMetrics(namespace string) *DatabaseMetrics {
	return &DatabaseMetrics{
		OpenConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_open_connections",
			Help:      "Open connections to the result store.",
		}),
		InUse: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_in_use",
			Help:      "Connections currently in use.",
		}),
		Idle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Idle connections.",
		}),
		WaitCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_wait_count",
			Help:      "Total connections waited for.",
		}),
	}
}

// UpdateDBStats refreshes the gauges from the connection pool.
func (m *DatabaseMetrics) UpdateDBStats(db *sql.DB) {
	stats := db.Stats()
	m.OpenConnections.Set(float64(stats.OpenConnections))
	m.InUse.Set(float64(stats.InUse))
	m.Idle.Set(float64(stats.Idle))
	m.WaitCount.Set(float64(stats.WaitCount))
}
