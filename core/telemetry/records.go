// Package telemetry defines the wire shapes published by simulated devices.
// Field names and rounding follow the backend contract: six decimals for
// coordinates, two for speed, battery and voltage, timestamps in UTC RFC 3339.
package telemetry

import (
	"math"
	"time"
)

// Location is the per-tick GPS sample.
type Location struct {
	VehicleID string  `json:"vehicle_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Speed     float64 `json:"speed"`
	Heading   int     `json:"heading"`
	Timestamp string  `json:"timestamp"`
}

// Status is the per-tick lock/activity sample.
type Status struct {
	VehicleID string  `json:"vehicle_id"`
	IsLocked  bool    `json:"is_locked"`
	IsActive  bool    `json:"is_active"`
	Speed     float64 `json:"speed"`
	Heading   int     `json:"heading"`
	Timestamp string  `json:"timestamp"`
}

// Battery is the every-other-tick power sample.
type Battery struct {
	VehicleID    string  `json:"vehicle_id"`
	BatteryLevel float64 `json:"battery_level"`
	Voltage      float64 `json:"voltage"`
	Timestamp    string  `json:"timestamp"`
}

// Maintenance carries per-component health scores for one rental.
type Maintenance struct {
	VehicleID           string  `json:"vehicle_id"`
	RentalID            string  `json:"rental_id"`
	TireFrontLeft       int     `json:"tire_front_left"`
	TireFrontRight      int     `json:"tire_front_right"`
	TireRearLeft        int     `json:"tire_rear_left"`
	TireRearRight       int     `json:"tire_rear_right"`
	BrakePads           int     `json:"brake_pads"`
	ChainCVT            int     `json:"chain_cvt"`
	EngineOil           int     `json:"engine_oil"`
	Battery             int     `json:"battery"`
	Lights              int     `json:"lights"`
	SparkPlug           int     `json:"spark_plug"`
	OverallScore        float64 `json:"overall_score"`
	MaintenanceRequired bool    `json:"maintenance_required"`
	Timestamp           string  `json:"timestamp"`
}

// ComponentScores returns the ten health scores in report order.
func (m Maintenance) ComponentScores() []float64 {
	return []float64{
		float64(m.TireFrontLeft), float64(m.TireFrontRight),
		float64(m.TireRearLeft), float64(m.TireRearRight),
		float64(m.BrakePads), float64(m.ChainCVT),
		float64(m.EngineOil), float64(m.Battery),
		float64(m.Lights), float64(m.SparkPlug),
	}
}

// Performance summarizes one trip.
type Performance struct {
	VehicleID           string  `json:"vehicle_id"`
	RentalID            string  `json:"rental_id"`
	DistanceTravelled   float64 `json:"distance_travelled"`
	AverageSpeed        float64 `json:"average_speed"`
	MaxSpeed            float64 `json:"max_speed"`
	FuelEfficiency      float64 `json:"fuel_efficiency"`
	TripDurationMinutes int     `json:"trip_duration_minutes"`
	TireWear            int     `json:"tire_wear"`
	BrakeWear           int     `json:"brake_wear"`
	OilWear             int     `json:"oil_wear"`
	DrivetrainWear      int     `json:"drivetrain_wear"`
	EngineWear          int     `json:"engine_wear"`
	Timestamp           string  `json:"timestamp"`
}

// Registration announces a device once at startup.
type Registration struct {
	VehicleID    string  `json:"vehicle_id"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	BatteryLevel float64 `json:"battery_level"`
	Timestamp    string  `json:"timestamp"`
}

// Round truncates v to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Timestamp formats t as the exchange wall-clock format.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
