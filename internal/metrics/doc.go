// Package metrics provides lock-free counters and a latency histogram for
// session engine observability.
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically. The verify latency histogram uses 8 fixed buckets (<=5ms to
// +Inf). Both are allocation-free on the write path.
//
// Export (Prometheus, OTel) lives in metrics/export and reads Snapshot values.
// This package performs no I/O and imports no sibling package.
package metrics
