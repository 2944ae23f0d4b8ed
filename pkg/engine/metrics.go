package engine

import "time"

// Read sources reported to Metrics.ObserveGet.
const (
	SourceCache   = "cache"
	SourceJournal = "journal"
	SourceVCommit = "vcommit"
	SourceStore   = "store"
	SourceMiss    = "miss"
)

// Flush reasons reported to Metrics.ObserveFlush.
const (
	ReasonManual   = "manual"
	ReasonEraLimit = "era_limit"
	ReasonRecover  = "recover"
)

// Metrics receives engine observations. A nil Metrics disables collection
// with no overhead.
type Metrics interface {
	ObserveGet(source string, d time.Duration)
	ObserveCommit(ops int, bytes int64, d time.Duration, err error)
	ObserveRollback(err error)
	ObserveFlush(reason string, eras, keys int, bytes uint64, d time.Duration, err error)
	ObserveGrowth(oldCapacity, newCapacity uint64)
	ObserveCompaction(reclaimed uint64)
	ObserveRecovery(r *RecoveryReport)
	RecordProperties(p Properties)
}
