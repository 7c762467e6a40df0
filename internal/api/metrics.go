package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cellwatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	analysisRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellwatch_analysis_runs_total",
			Help: "Total number of analysis runs by outcome",
		},
		[]string{"outcome"},
	)

	analysisRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cellwatch_analysis_run_duration_seconds",
			Help:    "Wall-clock duration of analysis runs in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	anomalousCells = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellwatch_anomalous_cells",
			Help: "Number of anomalous cells in the most recent analysis run",
		},
	)

	neighborRelations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellwatch_neighbor_relations",
			Help: "Number of anomaly-to-neighbor relations in the most recent analysis run",
		},
	)
)
