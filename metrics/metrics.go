package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
	ResultTimeout  = "timeout"
)

var (
	RowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabletconn_rows_written_total",
		Help: "Total number of row writes by table, write mode and result.",
	}, []string{"table", "mode", "result"})

	WriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tabletconn_write_duration_seconds",
		Help:    "Duration of single row writes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"table"})

	TableOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabletconn_table_operations_total",
		Help: "Total number of structural table operations (exists, create, delete, schema) by result.",
	}, []string{"table", "op", "result"})

	SinkFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabletconn_sink_flushes_total",
		Help: "Total number of sink flushes by table and path (batch or rows).",
	}, []string{"table", "path"})

	SinkFlushSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tabletconn_sink_flush_rows",
		Help:    "Number of rows per sink flush.",
		Buckets: prometheus.LinearBuckets(1, 4, 7),
	})

	SinkBatchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabletconn_sink_batch_retries_total",
		Help: "Total number of BatchWriteItem retries for unprocessed items.",
	}, []string{"table"})
)

// Result maps an operation outcome onto a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
