// Package internaldefs holds the shared metric name and bucket definitions
// used by the Prometheus and OpenTelemetry exporters. It exists so both
// exporters render identical series names from one table.
package internaldefs
