package device

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/openride/devicesim/core/telemetry"
)

// Report metrics are randomized within fixed bounds: this is a simulator,
// not a physical model. Bounds match the backend's accepted ranges.

const maintenanceThreshold = 80

// MaintenanceReport samples component health scores and derives the overall
// score and the maintenance-required flag.
func (d *Device) MaintenanceReport(rentalID string, t time.Time) telemetry.Maintenance {
	m := telemetry.Maintenance{
		VehicleID:      d.id,
		RentalID:       rentalID,
		TireFrontLeft:  d.score(75, 95),
		TireFrontRight: d.score(75, 95),
		TireRearLeft:   d.score(75, 95),
		TireRearRight:  d.score(75, 95),
		BrakePads:      d.score(70, 90),
		ChainCVT:       d.score(80, 95),
		EngineOil:      d.score(75, 92),
		Battery:        d.score(80, 95),
		Lights:         d.score(85, 98),
		SparkPlug:      d.score(75, 92),
		Timestamp:      telemetry.Timestamp(t),
	}
	m.OverallScore = telemetry.Round(stat.Mean(m.ComponentScores(), nil), 2)
	m.MaintenanceRequired = m.OverallScore < maintenanceThreshold
	return m
}

// PerformanceReport samples trip aggregates and component wear counters.
func (d *Device) PerformanceReport(rentalID string, t time.Time) telemetry.Performance {
	return telemetry.Performance{
		VehicleID:           d.id,
		RentalID:            rentalID,
		DistanceTravelled:   telemetry.Round(d.uniform(5, 50), 2),
		AverageSpeed:        telemetry.Round(d.uniform(25, 45), 2),
		MaxSpeed:            telemetry.Round(d.uniform(50, 80), 2),
		FuelEfficiency:      telemetry.Round(d.uniform(15, 25), 2),
		TripDurationMinutes: d.score(15, 120),
		TireWear:            d.score(1, 20),
		BrakeWear:           d.score(1, 20),
		OilWear:             d.score(1, 20),
		DrivetrainWear:      d.score(1, 20),
		EngineWear:          d.score(1, 20),
		Timestamp:           telemetry.Timestamp(t),
	}
}

// score samples an integer uniformly in [lo, hi].
func (d *Device) score(lo, hi int) int {
	return lo + d.rng.Intn(hi-lo+1)
}
