package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/openride/devicesim/core/metrics"
)

// PromSink records simulator events in Prometheus metrics.
type PromSink struct {
	published *prometheus.CounterVec
	failures  *prometheus.CounterVec
	commands  *prometheus.CounterVec
	battery   *prometheus.GaugeVec
}

// NewPromSink registers simulator metrics on the default Prometheus
// registerer. The /metrics server is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_records_published_total",
		Help: "Total number of records published to the bus",
	}, []string{"device_id", "kind"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_publish_failures_total",
		Help: "Total number of failed publish attempts",
	}, []string{"device_id", "kind"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_commands_total",
		Help: "Total number of control commands processed",
	}, []string{"device_id", "command", "disposition"})
	battery := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "device_battery_level",
		Help: "Current battery level per device",
	}, []string{"device_id"})

	if err := reg.Register(published); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			published = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(failures); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			failures = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(commands); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			commands = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(battery); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			battery = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{published: published, failures: failures, commands: commands, battery: battery}, nil
}

// RecordPublish counts publishes, successful or not.
func (s *PromSink) RecordPublish(ev coremetrics.PublishEvent) error {
	if ev.OK {
		s.published.WithLabelValues(ev.DeviceID, ev.Kind).Inc()
	} else {
		s.failures.WithLabelValues(ev.DeviceID, ev.Kind).Inc()
	}
	return nil
}

// RecordCommand counts processed commands by disposition.
func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(ev.DeviceID, ev.Command, ev.Disposition).Inc()
	return nil
}

// RecordState tracks the battery level gauge.
func (s *PromSink) RecordState(ev coremetrics.StateEvent) error {
	s.battery.WithLabelValues(ev.DeviceID).Set(ev.BatteryLevel)
	return nil
}
