// Package prometheus implements the engine metrics on client_golang.
// Importing it links the implementation into metrics.NewEngineMetrics.
package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/eradb/pkg/engine"
	"github.com/marmos91/eradb/pkg/metrics"
)

func init() {
	metrics.RegisterEngineMetricsConstructor(NewEngineMetrics)
}

// latencyBuckets are in milliseconds.
var latencyBuckets = []float64{
	0.01, // 10us - cache hits
	0.05, // 50us
	0.1,  // 100us - journal and store hits
	0.5,  // 500us
	1,    // 1ms
	5,    // 5ms - single era fsync
	10,   // 10ms
	50,   // 50ms
	100,  // 100ms
	500,  // 500ms - large flushes
	1000, // 1s
	5000, // 5s
}

// engineMetrics is the Prometheus implementation of engine.Metrics.
type engineMetrics struct {
	gets          *prometheus.CounterVec
	getDuration   *prometheus.HistogramVec
	commits       *prometheus.CounterVec
	commitOps     prometheus.Histogram
	commitBytes   prometheus.Histogram
	commitLatency prometheus.Histogram
	rollbacks     *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	flushDuration *prometheus.HistogramVec
	flushEras     prometheus.Histogram
	flushKeys     prometheus.Histogram
	flushBytes    prometheus.Counter
	growths       prometheus.Counter
	compactions   prometheus.Counter
	reclaimed     prometheus.Counter
	recoveries    *prometheus.CounterVec
	corruptEras   prometheus.Counter

	version      prometheus.Gauge
	usedMemory   prometheus.Gauge
	capacity     prometheus.Gauge
	pendingEras  prometheus.Gauge
	lastSequence prometheus.Gauge
	liveKeys     prometheus.Gauge
	liveBytes    prometheus.Gauge
}

var (
	instancesMu sync.Mutex
	instances   = make(map[*prometheus.Registry]*engineMetrics)
)

// NewEngineMetrics creates a Prometheus-backed engine.Metrics registered on
// the active registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called). Engines
// sharing a registry share their collectors.
func NewEngineMetrics() engine.Metrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}

	instancesMu.Lock()
	defer instancesMu.Unlock()
	if m, ok := instances[reg]; ok {
		return m
	}
	m := newEngineMetrics(reg)
	instances[reg] = m
	return m
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	f := promauto.With(reg)
	return &engineMetrics{
		gets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eradb_get_total",
				Help: "Total number of Get calls by the layer that resolved them",
			},
			[]string{"source"}, // cache, journal, vcommit, store, miss
		),
		getDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eradb_get_duration_milliseconds",
				Help:    "Duration of Get calls in milliseconds",
				Buckets: latencyBuckets,
			},
			[]string{"source"},
		),
		commits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eradb_commits_total",
				Help: "Total number of Commit calls by status",
			},
			[]string{"status"},
		),
		commitOps: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eradb_commit_ops",
				Help:    "Distribution of ops per committed batch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		commitBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Name: "eradb_commit_bytes",
				Help: "Distribution of encoded batch sizes",
				Buckets: []float64{
					64,       // single small put
					1024,     // 1KB
					16384,    // 16KB
					131072,   // 128KB
					1048576,  // 1MB
					16777216, // 16MB
				},
			},
		),
		commitLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eradb_commit_duration_milliseconds",
				Help:    "Duration of Commit calls in milliseconds, including implicit flushes",
				Buckets: latencyBuckets,
			},
		),
		rollbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eradb_rollbacks_total",
				Help: "Total number of Rollback calls by status",
			},
			[]string{"status"},
		),
		flushes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eradb_flushes_total",
				Help: "Total number of flushes by reason and status",
			},
			[]string{"reason", "status"}, // reason: manual, era_limit, recover
		),
		flushDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eradb_flush_duration_milliseconds",
				Help:    "Duration of flushes in milliseconds",
				Buckets: latencyBuckets,
			},
			[]string{"reason"},
		),
		flushEras: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eradb_flush_eras",
				Help:    "Distribution of eras merged per flush",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
		),
		flushKeys: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eradb_flush_keys",
				Help:    "Distribution of distinct keys applied per flush",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		flushBytes: f.NewCounter(
			prometheus.CounterOpts{
				Name: "eradb_flush_bytes_total",
				Help: "Total bytes appended to the mapped store",
			},
		),
		growths: f.NewCounter(
			prometheus.CounterOpts{
				Name: "eradb_store_growths_total",
				Help: "Total number of mapped store extensions",
			},
		),
		compactions: f.NewCounter(
			prometheus.CounterOpts{
				Name: "eradb_store_compactions_total",
				Help: "Total number of mapped store compactions",
			},
		),
		reclaimed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "eradb_store_reclaimed_bytes_total",
				Help: "Total bytes of dead records dropped by compaction",
			},
		),
		recoveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eradb_recoveries_total",
				Help: "Total number of recovery runs by virtual commit outcome",
			},
			[]string{"virtual_commit"}, // none, applied, already_applied, discarded
		),
		corruptEras: f.NewCounter(
			prometheus.CounterOpts{
				Name: "eradb_recovery_corrupt_eras_total",
				Help: "Total number of corrupt era files deleted by recovery",
			},
		),
		version: f.NewGauge(prometheus.GaugeOpts{
			Name: "eradb_version",
			Help: "Number of flushes applied to the mapped store",
		}),
		usedMemory: f.NewGauge(prometheus.GaugeOpts{
			Name: "eradb_used_memory_bytes",
			Help: "Bytes occupied in the record region",
		}),
		capacity: f.NewGauge(prometheus.GaugeOpts{
			Name: "eradb_capacity_bytes",
			Help: "Size of the record region",
		}),
		pendingEras: f.NewGauge(prometheus.GaugeOpts{
			Name: "eradb_pending_eras",
			Help: "Eras committed but not yet flushed",
		}),
		lastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "eradb_last_sequence",
			Help: "Sequence number of the newest era",
		}),
		liveKeys: f.NewGauge(prometheus.GaugeOpts{
			Name: "eradb_live_keys",
			Help: "Live keys in the mapped store",
		}),
		liveBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "eradb_live_bytes",
			Help: "Key and value bytes of the live keys in the mapped store",
		}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func ms(d time.Duration) float64 {
	return d.Seconds() * 1000
}

func (m *engineMetrics) ObserveGet(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.gets.WithLabelValues(source).Inc()
	m.getDuration.WithLabelValues(source).Observe(ms(d))
}

func (m *engineMetrics) ObserveCommit(ops int, bytes int64, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	m.commitOps.Observe(float64(ops))
	m.commitBytes.Observe(float64(bytes))
	m.commitLatency.Observe(ms(d))
}

func (m *engineMetrics) ObserveRollback(err error) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(status(err)).Inc()
}

func (m *engineMetrics) ObserveFlush(reason string, eras, keys int, bytes uint64, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(reason, status(err)).Inc()
	if err != nil {
		return
	}
	m.flushDuration.WithLabelValues(reason).Observe(ms(d))
	if eras > 0 {
		m.flushEras.Observe(float64(eras))
	}
	m.flushKeys.Observe(float64(keys))
	m.flushBytes.Add(float64(bytes))
}

func (m *engineMetrics) ObserveGrowth(_, newCapacity uint64) {
	if m == nil {
		return
	}
	m.growths.Inc()
	m.capacity.Set(float64(newCapacity))
}

func (m *engineMetrics) ObserveCompaction(reclaimed uint64) {
	if m == nil {
		return
	}
	m.compactions.Inc()
	m.reclaimed.Add(float64(reclaimed))
}

func (m *engineMetrics) ObserveRecovery(r *engine.RecoveryReport) {
	if m == nil || r == nil {
		return
	}
	m.recoveries.WithLabelValues(string(r.VirtualCommit)).Inc()
	m.corruptEras.Add(float64(r.CorruptEras))
}

func (m *engineMetrics) RecordProperties(p engine.Properties) {
	if m == nil {
		return
	}
	m.version.Set(float64(p.Version))
	m.usedMemory.Set(float64(p.UsedMemory))
	m.capacity.Set(float64(p.Capacity))
	m.pendingEras.Set(float64(p.PendingEras))
	m.lastSequence.Set(float64(p.LastSequence))
	m.liveKeys.Set(float64(p.LiveKeys))
	m.liveBytes.Set(float64(p.LiveBytes))
}
