// Package battery models the physical battery: efficiency conversion,
// state-of-charge transitions and feasibility limits. It is pure and
// stateless beyond its configuration.
package battery

import (
	"fmt"
	"math"
	"time"

	"github.com/bvweerd/battery-controller/core/model"
)

// Config holds the physical parameters of the battery system.
type Config struct {
	CapacityWh    float64 `json:"capacity_wh"`
	MinSoCWh      float64 `json:"min_soc_wh"`
	MaxSoCWh      float64 `json:"max_soc_wh"`
	MaxChargeW    float64 `json:"max_charge_w"`
	MaxDischargeW float64 `json:"max_discharge_w"`
	// RoundTripEfficiency is the fraction of energy recovered after a full
	// charge/discharge cycle, in (0,1].
	RoundTripEfficiency float64 `json:"round_trip_efficiency"`
	// DegradationCostPerKWh prices battery wear per kWh of throughput.
	DegradationCostPerKWh float64 `json:"degradation_cost_per_kwh"`
	// DCCoupledEfficiency applies to PV charging the battery over the DC
	// bus, bypassing the inverter.
	DCCoupledEfficiency float64 `json:"dc_coupled_efficiency"`
}

// SetDefaults applies sane defaults for optional parameters.
func (c *Config) SetDefaults() {
	if c.RoundTripEfficiency == 0 {
		c.RoundTripEfficiency = 0.90
	}
	if c.DCCoupledEfficiency == 0 {
		c.DCCoupledEfficiency = 0.97
	}
	if c.MaxSoCWh == 0 && c.CapacityWh > 0 {
		c.MinSoCWh = 0.10 * c.CapacityWh
		c.MaxSoCWh = 0.90 * c.CapacityWh
	}
}

// Validate checks the physical parameters. Violations are configuration
// errors: fatal, surfaced immediately, never retried.
func (c Config) Validate() error {
	if c.CapacityWh <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %.1f Wh", model.ErrConfig, c.CapacityWh)
	}
	if c.RoundTripEfficiency <= 0 || c.RoundTripEfficiency > 1 {
		return fmt.Errorf("%w: round-trip efficiency must be in (0,1], got %.3f", model.ErrConfig, c.RoundTripEfficiency)
	}
	if c.DCCoupledEfficiency <= 0 || c.DCCoupledEfficiency > 1 {
		return fmt.Errorf("%w: dc-coupled efficiency must be in (0,1], got %.3f", model.ErrConfig, c.DCCoupledEfficiency)
	}
	if c.MinSoCWh < 0 || c.MaxSoCWh > c.CapacityWh || c.MinSoCWh >= c.MaxSoCWh {
		return fmt.Errorf("%w: soc bounds [%.1f, %.1f] invalid for capacity %.1f Wh",
			model.ErrConfig, c.MinSoCWh, c.MaxSoCWh, c.CapacityWh)
	}
	if c.MaxChargeW <= 0 || c.MaxDischargeW <= 0 {
		return fmt.Errorf("%w: power limits must be positive", model.ErrConfig)
	}
	if c.DegradationCostPerKWh < 0 {
		return fmt.Errorf("%w: degradation cost must not be negative", model.ErrConfig)
	}
	return nil
}

// Model converts requested AC-side power into state-of-charge transitions.
type Model struct {
	cfg Config
	// The round-trip efficiency is split evenly between the charge and the
	// discharge path.
	chargeEff    float64
	dischargeEff float64
}

// New validates the configuration and builds a Model.
func New(cfg Config) (*Model, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	eff := math.Sqrt(cfg.RoundTripEfficiency)
	return &Model{cfg: cfg, chargeEff: eff, dischargeEff: eff}, nil
}

// Config returns the validated configuration.
func (m *Model) Config() Config { return m.cfg }

// ChargeEfficiency returns the AC-to-battery conversion efficiency.
func (m *Model) ChargeEfficiency() float64 { return m.chargeEff }

// DischargeEfficiency returns the battery-to-AC conversion efficiency.
func (m *Model) DischargeEfficiency() float64 { return m.dischargeEff }

// SoCDelta converts a requested AC-side power held for dt into the resulting
// change of stored energy. Charging stores powerW*dt*eff; discharging removes
// powerW*dt/eff, so losses always land on the battery side of the meter.
func (m *Model) SoCDelta(powerW float64, dt time.Duration) float64 {
	h := dt.Hours()
	switch {
	case powerW > 0:
		return powerW * h * m.chargeEff
	case powerW < 0:
		return powerW * h / m.dischargeEff
	default:
		return 0
	}
}

// ThroughputKWh returns the battery-side energy moved by an action,
// the quantity that degradation is charged against.
func (m *Model) ThroughputKWh(powerW float64, dt time.Duration) float64 {
	return math.Abs(m.SoCDelta(powerW, dt)) / 1000
}

// Apply returns the state of charge after holding powerW for dt, and whether
// the transition is feasible. A transition is feasible when the power is
// within the rated limits and the resulting SoC stays inside the configured
// bounds. Idle is always feasible.
func (m *Model) Apply(socWh, powerW float64, dt time.Duration) (float64, bool) {
	if powerW > m.cfg.MaxChargeW || powerW < -m.cfg.MaxDischargeW {
		return socWh, false
	}
	next := socWh + m.SoCDelta(powerW, dt)
	if next < m.cfg.MinSoCWh-socTolerance || next > m.cfg.MaxSoCWh+socTolerance {
		return socWh, false
	}
	return next, true
}

// socTolerance absorbs float rounding at the SoC bounds.
const socTolerance = 1e-6

// ClampSoC bounds a SoC reading to the configured window.
func (m *Model) ClampSoC(socWh float64) float64 {
	if socWh < m.cfg.MinSoCWh {
		return m.cfg.MinSoCWh
	}
	if socWh > m.cfg.MaxSoCWh {
		return m.cfg.MaxSoCWh
	}
	return socWh
}

// ClampPower bounds a power request to the rated charge/discharge limits.
func (m *Model) ClampPower(powerW float64) float64 {
	if powerW > m.cfg.MaxChargeW {
		return m.cfg.MaxChargeW
	}
	if powerW < -m.cfg.MaxDischargeW {
		return -m.cfg.MaxDischargeW
	}
	return powerW
}

// GuardSoC zeroes a power request that would push the SoC past its bounds.
func (m *Model) GuardSoC(powerW, socWh float64) float64 {
	if socWh <= m.cfg.MinSoCWh && powerW < 0 {
		return 0
	}
	if socWh >= m.cfg.MaxSoCWh && powerW > 0 {
		return 0
	}
	return powerW
}

// DegradationCostPerKWh estimates the wear cost of one kWh of throughput
// from replacement economics: cost per cycle spread over the energy a cycle
// moves (charge plus discharge at the given depth of discharge).
func DegradationCostPerKWh(replacementPerKWh float64, lifecycleCycles int, depthOfDischarge float64) float64 {
	if lifecycleCycles <= 0 || depthOfDischarge <= 0 {
		return 0
	}
	costPerCycle := replacementPerKWh / float64(lifecycleCycles)
	return costPerCycle / (2 * depthOfDischarge)
}

// ProfitableCycle reports whether buying energy now to sell it later covers
// the round-trip losses and wear: sell > buy/rte + 2*degradation.
func ProfitableCycle(buyEUR, sellEUR, rte, degradationPerKWh float64) bool {
	if rte <= 0 {
		return false
	}
	return sellEUR > buyEUR/rte+2*degradationPerKWh
}
