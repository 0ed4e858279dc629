package model

import "time"

// LiveMeasurement is an instantaneous reading from the grid meter and the
// battery inverter. It is superseded every tactical tick and never stored.
type LiveMeasurement struct {
	// GridPowerW is the net grid exchange, positive for import.
	GridPowerW float64 `json:"grid_power_w"`
	// BatteryPowerW is the battery power, positive for charging.
	BatteryPowerW float64   `json:"battery_power_w"`
	Time          time.Time `json:"time"`
}
