// Package prometheus exports engine counters and the verify latency
// histogram through a prometheus.Collector.
//
// Register [Collector] with your own registry, or mount [Handler] which
// serves it from a private one. Nothing is registered globally.
package prometheus
