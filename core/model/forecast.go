package model

import (
	"fmt"
	"time"
)

// Coupling tags how a PV array is wired into the installation.
type Coupling int

const (
	// ACCoupled arrays sit behind their own inverter; their forecast is
	// already AC-side power.
	ACCoupled Coupling = iota
	// DCCoupled arrays feed the battery inverter's DC bus directly.
	DCCoupled
)

// String returns a human-readable representation of the coupling type.
func (c Coupling) String() string {
	switch c {
	case ACCoupled:
		return "ac"
	case DCCoupled:
		return "dc"
	default:
		return "unknown"
	}
}

// ParseCoupling maps a configuration string to a Coupling.
func ParseCoupling(s string) (Coupling, bool) {
	switch s {
	case "ac", "":
		return ACCoupled, true
	case "dc":
		return DCCoupled, true
	default:
		return ACCoupled, false
	}
}

// PVArray holds the production forecast of a single PV array in W per step.
type PVArray struct {
	Coupling Coupling  `json:"coupling"`
	PowerW   []float64 `json:"power_w"`
}

// HorizonForecast bundles the inputs of one planning cycle. It is immutable
// once handed to the optimizer.
type HorizonForecast struct {
	StepDuration time.Duration `json:"step_duration"`
	// BuyPriceEUR is the grid import price in EUR/kWh per step. Its length
	// defines the horizon.
	BuyPriceEUR []float64 `json:"buy_price_eur"`
	// FeedInPriceEUR is the export price in EUR/kWh per step. The caller
	// must supply a full series; an explicit fallback constant is required
	// when no source exists. An empty or short series fails the cycle.
	FeedInPriceEUR []float64 `json:"feed_in_price_eur"`
	PV             []PVArray `json:"pv"`
	ConsumptionW   []float64 `json:"consumption_w"`
}

// Steps returns the horizon length in steps.
func (f HorizonForecast) Steps() int { return len(f.BuyPriceEUR) }

// Validate checks that all series cover the horizon. Prices are never
// zero-filled here: a gap is the caller's problem to resolve explicitly.
func (f HorizonForecast) Validate() error {
	n := f.Steps()
	if n == 0 {
		return fmt.Errorf("%w: empty buy price series", ErrMissingInput)
	}
	if f.StepDuration <= 0 {
		return fmt.Errorf("%w: step duration must be positive", ErrConfig)
	}
	if len(f.FeedInPriceEUR) < n {
		return fmt.Errorf("%w: feed-in price series has %d of %d steps (a fallback constant must be applied by the caller)",
			ErrMissingInput, len(f.FeedInPriceEUR), n)
	}
	if len(f.ConsumptionW) < n {
		return fmt.Errorf("%w: consumption series has %d of %d steps", ErrMissingInput, len(f.ConsumptionW), n)
	}
	for i, arr := range f.PV {
		if len(arr.PowerW) < n {
			return fmt.Errorf("%w: pv array %d has %d of %d steps", ErrMissingInput, i, len(arr.PowerW), n)
		}
	}
	return nil
}
