package model

import "time"

// Mode labels the battery action planned or observed for a step.
type Mode int

const (
	ModeIdle Mode = iota
	ModeCharging
	ModeDischarging
)

// String returns a human-readable representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeCharging:
		return "charging"
	case ModeDischarging:
		return "discharging"
	default:
		return "unknown"
	}
}

// ModeForPower derives the mode label from a signed power value.
// Positive power means charging.
func ModeForPower(powerW float64) Mode {
	switch {
	case powerW > 0:
		return ModeCharging
	case powerW < 0:
		return ModeDischarging
	default:
		return ModeIdle
	}
}

// ControlMode selects how the real-time controller drives the battery.
type ControlMode int

const (
	// ControlZeroGrid compensates grid exchange fully.
	ControlZeroGrid ControlMode = iota
	// ControlFollowSchedule executes the planned power exactly.
	ControlFollowSchedule
	// ControlHybrid follows the schedule for arbitrage and falls back to
	// zero-grid for self-consumption.
	ControlHybrid
	// ControlManual disables automatic control.
	ControlManual
	// ControlIdle holds the battery still to preserve capacity.
	ControlIdle
)

// String returns a human-readable representation of the control mode.
func (m ControlMode) String() string {
	switch m {
	case ControlZeroGrid:
		return "zero_grid"
	case ControlFollowSchedule:
		return "follow_schedule"
	case ControlHybrid:
		return "hybrid"
	case ControlManual:
		return "manual"
	case ControlIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// ParseControlMode maps a configuration string to a ControlMode.
func ParseControlMode(s string) (ControlMode, bool) {
	switch s {
	case "zero_grid":
		return ControlZeroGrid, true
	case "follow_schedule":
		return ControlFollowSchedule, true
	case "hybrid":
		return ControlHybrid, true
	case "manual":
		return ControlManual, true
	case "idle":
		return ControlIdle, true
	default:
		return ControlHybrid, false
	}
}

// SchedulePoint is one step of the planned trajectory.
type SchedulePoint struct {
	// PowerW is the planned battery power, positive for charging.
	PowerW float64 `json:"power_w"`
	Mode   Mode    `json:"mode"`
	// SoCWh is the expected state of charge after the step.
	SoCWh float64 `json:"soc_wh"`
	// ProfitLossEUR is the step gain versus leaving the battery idle.
	ProfitLossEUR float64 `json:"profit_loss_eur"`
	// BuyPriceEUR and FeedInPriceEUR echo the tariffs the step was
	// planned against.
	BuyPriceEUR    float64 `json:"buy_price_eur"`
	FeedInPriceEUR float64 `json:"feed_in_price_eur"`
}

// ShadowPrice is the marginal value of stored energy with its derived
// decision thresholds.
type ShadowPrice struct {
	// EURPerKWh is the value of one additional kWh in the battery now.
	EURPerKWh float64 `json:"eur_per_kwh"`
	// ChargeThresholdEUR: charging pays off below this buy price.
	ChargeThresholdEUR float64 `json:"charge_threshold_eur"`
	// DischargeThresholdEUR: exporting pays off above this feed-in price.
	DischargeThresholdEUR float64 `json:"discharge_threshold_eur"`
}

// Diagnostics summarises the economics of one planning cycle.
type Diagnostics struct {
	TotalCostEUR    float64 `json:"total_cost_eur"`
	BaselineCostEUR float64 `json:"baseline_cost_eur"`
	SavingsEUR      float64 `json:"savings_eur"`
}

// Schedule is the published result of one planning cycle. It is immutable
// after publication; consumers read it as a snapshot.
type Schedule struct {
	CycleID      string          `json:"cycle_id"`
	CreatedAt    time.Time       `json:"created_at"`
	StepDuration time.Duration   `json:"step_duration"`
	StartSoCWh   float64         `json:"start_soc_wh"`
	Points       []SchedulePoint `json:"points"`
	ShadowPrice  ShadowPrice     `json:"shadow_price"`
	Diagnostics  Diagnostics     `json:"diagnostics"`
}

// Current returns the first step of the schedule, the one to execute now.
func (s *Schedule) Current() (SchedulePoint, bool) {
	if s == nil || len(s.Points) == 0 {
		return SchedulePoint{}, false
	}
	return s.Points[0], true
}
