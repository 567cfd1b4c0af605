package metrics

import "github.com/openride/devicesim/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr is the listen address of the /metrics endpoint. It is
	// only used when a prometheus sink is configured.
	PrometheusAddr string `json:"prometheus_addr"`
}
