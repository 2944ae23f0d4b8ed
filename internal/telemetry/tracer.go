package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span names.
const (
	SpanOpen     = "eradb.Open"
	SpanGet      = "eradb.Get"
	SpanCommit   = "eradb.Commit"
	SpanFlush    = "eradb.Flush"
	SpanRollback = "eradb.Rollback"
	SpanRecover  = "eradb.Recover"
	SpanScan     = "eradb.Scan"
	SpanCompact  = "eradb.Compact"
)

// Attribute keys.
const (
	AttrDB       = "db.path"
	AttrKeyLen   = "db.key_length"
	AttrOps      = "db.ops"
	AttrSeq      = "db.seq"
	AttrEras     = "db.eras"
	AttrVersion  = "db.version"
	AttrFlushID  = "db.flush_id"
	AttrSource   = "db.source"
	AttrFound    = "db.found"
	AttrBytes    = "db.bytes"
	AttrGrew     = "db.store_grew"
	AttrCompact  = "db.store_compacted"
	AttrResumed  = "db.resumed"
	AttrCapacity = "db.capacity"
)

// Seq returns a sequence number attribute.
func Seq(seq uint64) attribute.KeyValue {
	return attribute.Int64(AttrSeq, int64(seq))
}

// Eras returns an era count attribute.
func Eras(n int) attribute.KeyValue {
	return attribute.Int(AttrEras, n)
}

// Source returns the attribute naming where a read was served from.
func Source(s string) attribute.KeyValue {
	return attribute.String(AttrSource, s)
}

// Found returns the lookup result attribute.
func Found(found bool) attribute.KeyValue {
	return attribute.Bool(AttrFound, found)
}
