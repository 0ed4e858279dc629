// Package events defines the payloads published on the internal bus by the
// planning and tactical loops.
package events

import (
	"time"

	"github.com/bvweerd/battery-controller/core/model"
)

// ScheduleEvent is published when a planning cycle succeeds and its
// schedule becomes the active one.
type ScheduleEvent struct {
	Schedule *model.Schedule
	// Elapsed is the wall time the cycle took.
	Elapsed time.Duration
}

// CycleFailedEvent is published when a planning cycle fails and the
// previous schedule stays in effect.
type CycleFailedEvent struct {
	Err  error
	Time time.Time
}

// SetpointEvent is published on every tactical tick that produces a
// setpoint.
type SetpointEvent struct {
	TargetPowerW  float64
	GridPowerW    float64
	BatteryPowerW float64
	SoCWh         float64
	Mode          model.ControlMode
	Time          time.Time
}
