// Package otel publishes engine metrics through an OpenTelemetry meter.
//
// Counters become Int64ObservableCounters and each latency bucket an
// Int64ObservableGauge. Callers own the MeterProvider.
package otel
