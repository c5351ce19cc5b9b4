// Package otel bridges engine metrics into OpenTelemetry. Counters and
// histogram buckets are exposed as observable instruments read from the
// engine's snapshot on each collection cycle.
package otel
