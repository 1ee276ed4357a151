package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// walMetrics mirrors the shape of a production WAL's instrumentation: one
// set of counters/gauges per handle, registered against whatever
// Registerer the caller supplied (or left un-registered if nil).
type walMetrics struct {
	appends           prometheus.Counter
	bytesWritten      prometheus.Counter
	fsyncs            prometheus.Counter
	segmentRotations  prometheus.Counter
	tornTailRecovered prometheus.Counter
	truncations       prometheus.Counter
	snapshots         prometheus.Counter
	recordsCompacted  prometheus.Counter
	residentEntries   prometheus.Gauge
}

func newWALMetrics(reg prometheus.Registerer) *walMetrics {
	return &walMetrics{
		appends: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wal_appends_total",
			Help: "Number of successful Append calls.",
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wal_bytes_written_total",
			Help: "Number of framed record bytes written to segment files.",
		}),
		fsyncs: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wal_fsyncs_total",
			Help: "Number of fsync calls issued by Append's batching or by Sync.",
		}),
		segmentRotations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wal_segment_rotations_total",
			Help: "Number of times the active segment was rotated.",
		}),
		tornTailRecovered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wal_torn_tail_recovered_total",
			Help: "Number of Open calls that found and truncated a torn trailing frame.",
		}),
		truncations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wal_truncate_from_total",
			Help: "Number of TruncateFrom calls that removed at least one entry.",
		}),
		snapshots: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wal_snapshots_total",
			Help: "Number of successful CreateSnapshot calls.",
		}),
		recordsCompacted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "wal_records_compacted_total",
			Help: "Number of in-memory entries dropped by snapshot compaction.",
		}),
		residentEntries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "wal_resident_entries",
			Help: "Current number of entries held in the in-memory index.",
		}),
	}
}
