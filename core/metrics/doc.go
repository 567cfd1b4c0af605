// Package metrics defines interfaces and events for observing the simulator.
// Sinks like the Prometheus and InfluxDB implementations in infra/metrics
// record published telemetry and processed commands and can be combined with
// NewMultiSink. The factory helpers return a MultiSink automatically when
// multiple sinks are configured.
package metrics
