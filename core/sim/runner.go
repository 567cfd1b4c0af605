// Package sim drives simulated devices: a Runner owns one device and its bus
// connection and runs the fixed-period telemetry loop, applying control
// commands between ticks.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openride/devicesim/core/bus"
	"github.com/openride/devicesim/core/device"
	"github.com/openride/devicesim/core/logger"
	"github.com/openride/devicesim/core/metrics"
)

// Record kinds reported to metrics sinks.
const (
	kindLocation     = "location"
	kindStatus       = "status"
	kindBattery      = "battery"
	kindMaintenance  = "maintenance"
	kindPerformance  = "performance"
	kindRegistration = "registration"
)

// Runner executes the telemetry cadence loop for a single device. The device
// is owned exclusively by its runner: ticks and command handling are
// serialized by the loop, no locking is involved.
type Runner struct {
	dev       *device.Device
	connector bus.Connector
	log       logger.Logger
	sink      metrics.Sink

	interval         time.Duration
	batteryEvery     int
	maintenanceEvery int
	now              func() time.Time
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRunnerClock overrides the wall clock, used by tests.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithRunnerInterval overrides the tick period, used by tests to run the
// cadence faster than the configured seconds granularity.
func WithRunnerInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.interval = d }
}

// NewRunner wires a device to a bus connector.
func NewRunner(dev *device.Device, connector bus.Connector, cfg Config, log logger.Logger, sink metrics.Sink, opts ...RunnerOption) *Runner {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	r := &Runner{
		dev:              dev,
		connector:        connector,
		log:              log,
		sink:             sink,
		interval:         time.Duration(cfg.IntervalSeconds) * time.Second,
		batteryEvery:     cfg.BatteryEveryTicks,
		maintenanceEvery: cfg.MaintenanceEveryTicks,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run connects to the bus, announces the device and loops until the context
// is cancelled or the connection fails permanently. The connection is
// released on every exit path.
func (r *Runner) Run(ctx context.Context) error {
	id := r.dev.ID()
	conn, err := r.connector.Connect(ctx, id)
	if err != nil {
		return fmt.Errorf("connect %s: %w", id, err)
	}
	defer conn.Close()

	if err := r.emit(conn, kindRegistration, bus.RegistrationTopic, r.dev.RegistrationRecord(r.now())); err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			r.log.Infof("%s: stopping", id)
			return nil
		case d, ok := <-conn.Commands():
			if !ok {
				return fmt.Errorf("%s: command channel closed: %w", id, bus.ErrConnClosed)
			}
			if err := r.handleCommand(conn, d); err != nil {
				return err
			}
		case <-ticker.C:
			if err := r.tick(conn, tick); err != nil {
				return err
			}
			tick++
		}
	}
}

// tick runs one cadence iteration: advance the simulation, publish the
// periodic records, then resolve a pending kill.
func (r *Runner) tick(conn bus.Conn, tick int) error {
	r.dev.Advance()
	id := r.dev.ID()
	now := r.now()

	if err := r.emit(conn, kindLocation, bus.LocationTopic(id), r.dev.Location(now)); err != nil {
		return err
	}
	if err := r.emit(conn, kindStatus, bus.StatusTopic(id), r.dev.Status(now)); err != nil {
		return err
	}
	if r.batteryEvery > 0 && tick%r.batteryEvery == 0 {
		if err := r.emit(conn, kindBattery, bus.BatteryTopic(id), r.dev.BatterySample(now)); err != nil {
			return err
		}
	}
	if r.dev.ResolveKill() {
		r.log.Infof("%s: kill completed, vehicle immobilized and locked", id)
	}
	if r.maintenanceEvery > 0 && tick > 0 && tick%r.maintenanceEvery == 0 {
		rid := r.dev.RentalID()
		if rid == "" {
			rid = r.dev.SynthesizeRentalID()
		}
		if err := r.emit(conn, kindMaintenance, bus.MaintenanceTopic(id), r.dev.MaintenanceReport(rid, now)); err != nil {
			return err
		}
	}
	r.recordState(now)
	return nil
}

// handleCommand applies a control command and settles its delivery. It only
// returns an error when the bus connection is gone for good.
func (r *Runner) handleCommand(conn bus.Conn, d bus.Delivery) error {
	id := r.dev.ID()
	disp := bus.DispositionAck
	var emitErr error

	switch d.Cmd.Name {
	case bus.CmdStartRent:
		rid := r.dev.StartRental(d.Cmd.OrderID)
		r.log.Infof("%s: rental %s started", id, rid)
	case bus.CmdEndRent:
		rid := r.dev.EndRental()
		r.log.Infof("%s: rental %s ended", id, rid)
		if rid != "" {
			now := r.now()
			if err := r.emit(conn, kindMaintenance, bus.MaintenanceTopic(id), r.dev.MaintenanceReport(rid, now)); err != nil {
				emitErr = err
			}
			if emitErr == nil {
				if err := r.emit(conn, kindPerformance, bus.PerformanceTopic(id), r.dev.PerformanceReport(rid, now)); err != nil {
					emitErr = err
				}
			}
		}
	case bus.CmdKillVehicle:
		r.dev.RequestKill()
		r.log.Infof("%s: kill requested, waiting for speed decay", id)
	default:
		r.log.Warnf("%s: rejecting unknown command %q", id, d.Cmd.Name)
		disp = bus.DispositionNack
	}

	if disp == bus.DispositionAck {
		d.Ack()
	} else {
		d.Nack()
	}
	if err := r.sink.RecordCommand(metrics.CommandEvent{
		DeviceID: id, Command: d.Cmd.Name, Disposition: disp.String(), Time: r.now(),
	}); err != nil {
		r.log.Warnf("%s: record command: %v", id, err)
	}
	return emitErr
}

// emit serializes and publishes one record. A transient publish failure is
// logged and swallowed so the tick continues; a closed connection is
// returned to terminate the loop.
func (r *Runner) emit(conn bus.Conn, kind, topic string, record any) error {
	id := r.dev.ID()
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%s: marshal %s: %w", id, kind, err)
	}
	err = conn.Publish(topic, payload)
	if serr := r.sink.RecordPublish(metrics.PublishEvent{
		DeviceID: id, Kind: kind, Topic: topic, OK: err == nil, Time: r.now(),
	}); serr != nil {
		r.log.Warnf("%s: record publish: %v", id, serr)
	}
	if err != nil {
		if errors.Is(err, bus.ErrConnClosed) {
			return fmt.Errorf("%s: publish %s: %w", id, kind, err)
		}
		r.log.Warnf("%s: publish %s failed, continuing: %v", id, kind, err)
		return nil
	}
	r.log.Debugf("%s: published %s to %s", id, kind, topic)
	return nil
}

func (r *Runner) recordState(now time.Time) {
	rec, ok := r.sink.(metrics.StateRecorder)
	if !ok {
		return
	}
	loc := r.dev.Location(now)
	if err := rec.RecordState(metrics.StateEvent{
		DeviceID:     r.dev.ID(),
		Latitude:     loc.Latitude,
		Longitude:    loc.Longitude,
		Speed:        loc.Speed,
		BatteryLevel: r.dev.Battery(),
		Voltage:      r.dev.Voltage(),
		Locked:       r.dev.Locked(),
		Active:       r.dev.Active(),
		Time:         now,
	}); err != nil {
		r.log.Warnf("%s: record state: %v", r.dev.ID(), err)
	}
}
