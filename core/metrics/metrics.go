package metrics

import "time"

// PublishEvent describes one attempt to publish a record to the bus.
type PublishEvent struct {
	DeviceID string
	Kind     string // location, status, battery, maintenance, performance, registration
	Topic    string
	OK       bool
	Time     time.Time
}

// CommandEvent describes one processed control command.
type CommandEvent struct {
	DeviceID    string
	Command     string
	Disposition string
	Time        time.Time
}

// Sink records simulator events for observability purposes.
type Sink interface {
	RecordPublish(ev PublishEvent) error
	RecordCommand(ev CommandEvent) error
}

// StateEvent is a snapshot of a device, recorded by sinks that implement
// StateRecorder.
type StateEvent struct {
	DeviceID     string
	Latitude     float64
	Longitude    float64
	Speed        float64
	BatteryLevel float64
	Voltage      float64
	Locked       bool
	Active       bool
	Time         time.Time
}

// StateRecorder records device snapshots.
type StateRecorder interface {
	RecordState(ev StateEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordPublish(PublishEvent) error { return nil }
func (NopSink) RecordCommand(CommandEvent) error { return nil }
func (NopSink) RecordState(StateEvent) error     { return nil }
