package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DatasetsBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coverage_datasets_built_total",
			Help: "Total number of coverage datasets built from collections",
		},
		[]string{"dataset_type"},
	)

	RuntimeSmooshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coverage_runtime_smooshes_total",
			Help: "Total number of runtime axes merged into another runtime axis",
		},
	)

	Time2DSubstitutions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coverage_time2d_substitutions_total",
			Help: "Total number of time2D coordinates replaced by an identical one",
		},
	)

	DataReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coverage_data_reads_total",
			Help: "Total number of coverage data reads",
		},
		[]string{"status"},
	)

	DataReadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coverage_data_read_duration_seconds",
			Help:    "Duration of coverage data reads",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
	)

	ChunkReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coverage_chunk_reads_total",
			Help: "Total number of zarr chunk reads",
		},
		[]string{"status"},
	)

	MissingRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coverage_missing_records_total",
			Help: "Total number of coordinate tuples with no stored record, filled with NaN",
		},
	)
)
