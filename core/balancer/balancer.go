// Package balancer computes the instantaneous battery setpoint on the
// tactical cadence. It is a thin function of the latest telemetry, the
// active control mode and the published schedule, with the previous
// zero-grid target as its only retained state.
package balancer

import (
	"fmt"
	"math"
	"sync"

	"github.com/bvweerd/battery-controller/core/battery"
	"github.com/bvweerd/battery-controller/core/logger"
	"github.com/bvweerd/battery-controller/core/model"
)

// Config tunes the tactical controller.
type Config struct {
	// DeadbandW suppresses setpoint chatter: zero-grid targets closer than
	// this to the previous target are not applied.
	DeadbandW float64 `json:"deadband_w"`
}

// SetDefaults applies the standard deadband.
func (c *Config) SetDefaults() {
	if c.DeadbandW == 0 {
		c.DeadbandW = 50
	}
}

// Validate checks the tuning parameters.
func (c Config) Validate() error {
	if c.DeadbandW < 0 {
		return fmt.Errorf("%w: deadband must not be negative, got %.1f W", model.ErrConfig, c.DeadbandW)
	}
	return nil
}

// Input is one tactical tick's worth of context.
type Input struct {
	Measurement model.LiveMeasurement
	// TelemetryOK reports whether the measurement carries live grid data.
	// Without it the zero-grid path is inert.
	TelemetryOK bool
	Mode        model.ControlMode
	// ScheduledPowerW and ScheduledMode describe the current schedule
	// step; idle at zero power when no schedule is in effect.
	ScheduledPowerW float64
	ScheduledMode   model.Mode
	// UpcomingDischarge reports whether a later step still plans to
	// discharge, in which case an idle hybrid step preserves capacity.
	UpcomingDischarge bool
	// BuyPriceEUR and FeedInPriceEUR are the tariffs of the current step.
	BuyPriceEUR    float64
	FeedInPriceEUR float64
	// SoCWh is the last known state of charge; SoCOK is false when none
	// has been observed yet.
	SoCWh float64
	SoCOK bool
}

// Balancer derives setpoints. Safe for concurrent use.
type Balancer struct {
	cfg  Config
	batt *battery.Model
	log  logger.Logger

	mu         sync.Mutex
	prevTarget float64
}

// New builds a Balancer for the given battery.
func New(batt *battery.Model, cfg Config, log logger.Logger) (*Balancer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Balancer{cfg: cfg, batt: batt, log: log}, nil
}

// Target returns the signed battery power to request now, positive for
// charging.
func (b *Balancer) Target(in Input) float64 {
	var target float64
	switch in.Mode {
	case model.ControlManual, model.ControlIdle:
		return 0
	case model.ControlFollowSchedule:
		target = in.ScheduledPowerW
	case model.ControlZeroGrid:
		target = b.zeroGridTarget(in)
	case model.ControlHybrid:
		target = b.hybridTarget(in)
	default:
		return 0
	}

	target = b.batt.ClampPower(target)
	if in.SoCOK {
		target = b.batt.GuardSoC(target, in.SoCWh)
	}
	return target
}

// hybridTarget resolves the planned step against live conditions: the
// schedule handles arbitrage, zero-grid handles self-consumption.
func (b *Balancer) hybridTarget(in Input) float64 {
	switch in.ScheduledMode {
	case model.ModeDischarging:
		// Stored energy leaves the battery at the same efficiency either
		// way, so exporting only matches self-consumption when the
		// feed-in price reaches the buy price.
		if in.BuyPriceEUR > 0 && in.FeedInPriceEUR >= in.BuyPriceEUR {
			return in.ScheduledPowerW
		}
		return b.zeroGridTarget(in)
	case model.ModeCharging:
		exporting := in.TelemetryOK && in.Measurement.GridPowerW < 0
		if exporting && in.FeedInPriceEUR >= 0 {
			// Surplus is flowing to the grid: track it instead of
			// fixed-rate charging, which imports when clouds pass.
			return b.zeroGridTarget(in)
		}
		return in.ScheduledPowerW
	default:
		// An idle step preserves capacity for a planned discharge unless
		// the house is exporting surplus worth capturing.
		if in.UpcomingDischarge && in.TelemetryOK && in.Measurement.GridPowerW >= 0 {
			return 0
		}
		return b.zeroGridTarget(in)
	}
}

// zeroGridTarget is the power that would drive net grid exchange to zero,
// held through the deadband. Without live telemetry it is inert.
func (b *Balancer) zeroGridTarget(in Input) float64 {
	if !in.TelemetryOK {
		return 0
	}
	raw := in.Measurement.BatteryPowerW - in.Measurement.GridPowerW

	b.mu.Lock()
	defer b.mu.Unlock()
	if math.Abs(raw-b.prevTarget) < b.cfg.DeadbandW {
		return b.prevTarget
	}
	b.log.Debugf("zero-grid target %.0f W -> %.0f W", b.prevTarget, raw)
	b.prevTarget = raw
	return raw
}
