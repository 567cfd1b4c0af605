// Package device implements the state machine of one simulated vehicle and
// the trip report generator. A Device is owned exclusively by its cadence
// loop: all methods assume single-threaded access.
package device

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/openride/devicesim/core/telemetry"
)

const (
	// killSpeedThreshold is the speed below which a pending kill completes.
	// A vehicle must decelerate before immobilization.
	killSpeedThreshold = 10.0

	voltageBase = 10.5
	voltageSpan = 2.1
	voltageFull = 12.6
)

// Origin is the fixed point initial positions are jittered around.
type Origin struct {
	Latitude  float64
	Longitude float64
}

// DefaultOrigin is central Jakarta, where the reference fleet operates.
var DefaultOrigin = Origin{Latitude: -6.2088, Longitude: 106.8456}

// Device holds the physical and operational state of one simulated vehicle.
type Device struct {
	id  string
	rng *rand.Rand
	now func() time.Time

	latitude  float64
	longitude float64
	altitude  float64
	speed     float64
	heading   int
	battery   float64
	voltage   float64

	locked      bool
	active      bool
	killPending bool
	rentalID    string
}

// Option customizes device construction.
type Option func(*Device)

// WithOrigin overrides the position jitter origin.
func WithOrigin(o Origin) Option {
	return func(d *Device) {
		d.latitude = o.Latitude
		d.longitude = o.Longitude
	}
}

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// New creates a device with randomized initial position, heading and battery.
// The randomness source is injected so tests can fix the seed.
func New(id string, rng *rand.Rand, opts ...Option) *Device {
	d := &Device{
		id:        id,
		rng:       rng,
		now:       time.Now,
		latitude:  DefaultOrigin.Latitude,
		longitude: DefaultOrigin.Longitude,
		voltage:   voltageFull,
		locked:    true,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.latitude += d.uniform(-0.1, 0.1)
	d.longitude += d.uniform(-0.1, 0.1)
	d.altitude = d.uniform(5, 25)
	d.heading = d.rng.Intn(360)
	d.battery = d.uniform(85, 100)
	return d
}

func (d *Device) ID() string        { return d.id }
func (d *Device) Speed() float64    { return d.speed }
func (d *Device) Heading() int      { return d.heading }
func (d *Device) Battery() float64  { return d.battery }
func (d *Device) Voltage() float64  { return d.voltage }
func (d *Device) Locked() bool      { return d.locked }
func (d *Device) Active() bool      { return d.active }
func (d *Device) KillPending() bool { return d.killPending }
func (d *Device) RentalID() string  { return d.rentalID }

// StartRental unlocks and activates the device. The rental keeps the supplied
// order id, or a synthesized one when absent. Repeating the command while a
// rental is open keeps the existing id.
func (d *Device) StartRental(orderID string) string {
	if d.active && d.rentalID != "" {
		return d.rentalID
	}
	d.locked = false
	d.active = true
	d.killPending = false
	d.speed = d.uniform(20, 40)
	if orderID != "" {
		d.rentalID = orderID
	} else if d.rentalID == "" {
		d.rentalID = d.SynthesizeRentalID()
	}
	return d.rentalID
}

// EndRental locks and deactivates the device and returns the closed rental
// id, empty when no rental was open. Speed is left to decay rather than
// zeroed. The rental id is cleared before returning; the caller builds the
// end-of-trip reports from the returned value.
func (d *Device) EndRental() string {
	id := d.rentalID
	d.active = false
	d.locked = true
	d.rentalID = ""
	return id
}

// RequestKill defers immobilization: the flag is only cleared by ResolveKill
// once speed has decayed below the threshold.
func (d *Device) RequestKill() {
	d.killPending = true
}

// ResolveKill completes a pending kill when the device has slowed enough.
// It reports whether the kill completed on this call.
func (d *Device) ResolveKill() bool {
	if !d.killPending || d.speed >= killSpeedThreshold {
		return false
	}
	d.active = false
	d.locked = true
	d.killPending = false
	return true
}

// Advance runs one tick of the physical simulation. While active the device
// drifts, drains its battery and varies speed; a pending kill forces
// deceleration so the two-phase stop always converges. While inactive only
// speed decays.
func (d *Device) Advance() {
	if !d.active {
		d.decaySpeed()
		return
	}
	d.latitude += d.uniform(-0.001, 0.001)
	d.longitude += d.uniform(-0.001, 0.001)
	d.altitude += d.uniform(-0.5, 0.5)
	d.heading = wrapHeading(d.heading + d.rng.Intn(21) - 10)
	if d.killPending {
		d.decaySpeed()
	} else {
		d.speed += d.uniform(-5, 5)
		if d.speed < 0 {
			d.speed = 0
		}
	}
	d.battery -= d.uniform(0.1, 0.3)
	if d.battery < 0 {
		d.battery = 0
	}
	d.voltage = voltageBase + d.battery/100*voltageSpan
}

func (d *Device) decaySpeed() {
	d.speed -= d.uniform(1, 3)
	if d.speed < 0 {
		d.speed = 0
	}
}

func wrapHeading(h int) int {
	return ((h % 360) + 360) % 360
}

// SynthesizeRentalID builds a rental identifier from the wall clock and a
// random suffix.
func (d *Device) SynthesizeRentalID() string {
	return fmt.Sprintf("RENT-%d-%s", d.now().Unix(), uuid.NewString()[:8])
}

func (d *Device) uniform(lo, hi float64) float64 {
	return lo + d.rng.Float64()*(hi-lo)
}

// Location builds the GPS record for the current state.
func (d *Device) Location(t time.Time) telemetry.Location {
	return telemetry.Location{
		VehicleID: d.id,
		Latitude:  telemetry.Round(d.latitude, 6),
		Longitude: telemetry.Round(d.longitude, 6),
		Altitude:  telemetry.Round(d.altitude, 2),
		Speed:     telemetry.Round(d.speed, 2),
		Heading:   d.heading,
		Timestamp: telemetry.Timestamp(t),
	}
}

// Status builds the lock/activity record for the current state.
func (d *Device) Status(t time.Time) telemetry.Status {
	return telemetry.Status{
		VehicleID: d.id,
		IsLocked:  d.locked,
		IsActive:  d.active,
		Speed:     telemetry.Round(d.speed, 2),
		Heading:   d.heading,
		Timestamp: telemetry.Timestamp(t),
	}
}

// BatterySample builds the power record for the current state.
func (d *Device) BatterySample(t time.Time) telemetry.Battery {
	return telemetry.Battery{
		VehicleID:    d.id,
		BatteryLevel: telemetry.Round(d.battery, 2),
		Voltage:      telemetry.Round(d.voltage, 2),
		Timestamp:    telemetry.Timestamp(t),
	}
}

// RegistrationRecord builds the one-time startup announcement.
func (d *Device) RegistrationRecord(t time.Time) telemetry.Registration {
	return telemetry.Registration{
		VehicleID:    d.id,
		Latitude:     telemetry.Round(d.latitude, 6),
		Longitude:    telemetry.Round(d.longitude, 6),
		BatteryLevel: telemetry.Round(d.battery, 2),
		Timestamp:    telemetry.Timestamp(t),
	}
}
