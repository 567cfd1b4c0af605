package sim

import "fmt"

// Config holds the cadence and randomization parameters shared by all
// devices of the fleet.
type Config struct {
	// IntervalSeconds is the tick period.
	IntervalSeconds int `json:"interval_seconds"`
	// BatteryEveryTicks emits the battery record every Nth tick.
	BatteryEveryTicks int `json:"battery_every_ticks"`
	// MaintenanceEveryTicks emits a scheduled maintenance report every Nth
	// tick, independent of rental boundaries. 0 disables it.
	MaintenanceEveryTicks int `json:"maintenance_every_ticks"`
	// Seed fixes the randomness source; 0 derives one from the clock.
	Seed int64 `json:"seed"`
	// OriginLatitude and OriginLongitude anchor initial positions.
	OriginLatitude  float64 `json:"origin_latitude"`
	OriginLongitude float64 `json:"origin_longitude"`
}

// SetDefaults applies the reference cadence: 5s ticks, battery every other
// tick, maintenance every 20th.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 5
	}
	if c.BatteryEveryTicks == 0 {
		c.BatteryEveryTicks = 2
	}
	if c.MaintenanceEveryTicks == 0 {
		c.MaintenanceEveryTicks = 20
	}
	if c.OriginLatitude == 0 && c.OriginLongitude == 0 {
		c.OriginLatitude = -6.2088
		c.OriginLongitude = 106.8456
	}
}

// Validate checks the cadence parameters.
func (c Config) Validate() error {
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be positive")
	}
	if c.BatteryEveryTicks <= 0 {
		return fmt.Errorf("battery_every_ticks must be positive")
	}
	if c.MaintenanceEveryTicks < 0 {
		return fmt.Errorf("maintenance_every_ticks must not be negative")
	}
	return nil
}
