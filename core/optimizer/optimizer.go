// Package optimizer plans the cheapest battery trajectory over a price and
// production forecast. It runs backward induction over a discretized
// state-of-charge lattice, smooths unprofitable oscillations out of the
// resulting plan and derives the marginal value of stored energy.
package optimizer

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/bvweerd/battery-controller/core/battery"
	"github.com/bvweerd/battery-controller/core/logger"
	"github.com/bvweerd/battery-controller/core/model"
)

// tieTolerance is the relative tolerance under which two step costs count
// as equal, in which case the action closest to idle wins.
const tieTolerance = 1e-9

// Config tunes the discretization and the oscillation filter.
type Config struct {
	// SoCResolutionWh is the lattice spacing of the state dimension.
	SoCResolutionWh float64 `json:"soc_resolution_wh"`
	// PowerStepW is the spacing of the action dimension.
	PowerStepW float64 `json:"power_step_w"`
	// MinPriceSpreadEUR is the minimum buy-price spread, before loss and
	// wear correction, that justifies a charge/discharge pair.
	MinPriceSpreadEUR float64 `json:"min_price_spread_eur"`
	// OscillationWindow bounds how far ahead the filter pairs a step with
	// one of the opposite sign.
	OscillationWindow time.Duration `json:"oscillation_window"`
}

// SetDefaults applies the standard discretization.
func (c *Config) SetDefaults() {
	if c.SoCResolutionWh == 0 {
		c.SoCResolutionWh = 100
	}
	if c.PowerStepW == 0 {
		c.PowerStepW = 500
	}
	if c.MinPriceSpreadEUR == 0 {
		c.MinPriceSpreadEUR = 0.05
	}
	if c.OscillationWindow == 0 {
		c.OscillationWindow = 2 * time.Hour
	}
}

// Validate checks the tuning parameters.
func (c Config) Validate() error {
	if c.SoCResolutionWh <= 0 {
		return fmt.Errorf("%w: soc resolution must be positive, got %.1f Wh", model.ErrConfig, c.SoCResolutionWh)
	}
	if c.PowerStepW <= 0 {
		return fmt.Errorf("%w: power step must be positive, got %.1f W", model.ErrConfig, c.PowerStepW)
	}
	if c.MinPriceSpreadEUR < 0 {
		return fmt.Errorf("%w: minimum price spread must not be negative", model.ErrConfig)
	}
	if c.OscillationWindow < 0 {
		return fmt.Errorf("%w: oscillation window must not be negative", model.ErrConfig)
	}
	return nil
}

// Optimizer is safe for concurrent use; all state lives on the stack of
// each Optimize call.
type Optimizer struct {
	batt *battery.Model
	cfg  Config
	log  logger.Logger
}

// New builds an Optimizer for the given battery.
func New(batt *battery.Model, cfg Config, log logger.Logger) (*Optimizer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Optimizer{batt: batt, cfg: cfg, log: log}, nil
}

// Request carries the inputs of one planning cycle.
type Request struct {
	Forecast   model.HorizonForecast
	StartSoCWh float64
}

// Optimize plans the cheapest trajectory over the forecast horizon starting
// from the given state of charge. The same request always yields the same
// schedule.
func (o *Optimizer) Optimize(req Request) (*model.Schedule, error) {
	if err := req.Forecast.Validate(); err != nil {
		return nil, err
	}
	h := newHorizon(req.Forecast)
	bc := o.batt.Config()
	lat := NewSoCLattice(bc.MinSoCWh, bc.MaxSoCWh, o.cfg.SoCResolutionWh)
	actions := NewActionSet(bc.MaxChargeW, bc.MaxDischargeW, o.cfg.PowerStepW)

	value, policy, err := o.solve(h, lat, actions)
	if err != nil {
		return nil, err
	}

	s0 := lat.Index(o.batt.ClampSoC(req.StartSoCWh))
	points := o.rollout(h, lat, actions, policy, s0)
	points = o.filterOscillations(points, h, lat.Energy(s0))

	baseline := o.baselineCost(h)
	sched := &model.Schedule{
		CycleID:      uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		StepDuration: h.dt,
		StartSoCWh:   lat.Energy(s0),
		Points:       points,
		ShadowPrice:  o.shadowPrice(value[0], s0, lat),
		Diagnostics: model.Diagnostics{
			TotalCostEUR:    value[0][s0],
			BaselineCostEUR: baseline,
			SavingsEUR:      baseline - value[0][s0],
		},
	}
	o.log.Debugw("planning cycle solved", map[string]any{
		"cycle_id": sched.CycleID,
		"steps":    h.steps(),
		"levels":   lat.Len(),
		"actions":  len(actions),
		"savings":  sched.Diagnostics.SavingsEUR,
	})
	return sched, nil
}

// solve runs the backward induction. value[t][s] is the minimum cost to
// finish the horizon from level s at step t; policy[t][s] is the index of
// the action achieving it. Stored energy left at the end of the horizon is
// valued at the final feed-in price.
func (o *Optimizer) solve(h horizon, lat SoCLattice, actions ActionSet) (value [][]float64, policy [][]int, err error) {
	steps, levels := h.steps(), lat.Len()
	value = make([][]float64, steps+1)
	policy = make([][]int, steps)
	for t := range value {
		value[t] = make([]float64, levels)
	}
	final := h.feedIn[steps-1]
	for s := 0; s < levels; s++ {
		value[steps][s] = -lat.UsableKWh(s) * final
	}

	for t := steps - 1; t >= 0; t-- {
		policy[t] = make([]int, levels)
		for s := 0; s < levels; s++ {
			best := math.Inf(1)
			bestIdx := -1
			for ai, a := range actions {
				next, ok := o.batt.Apply(lat.Energy(s), a, h.dt)
				if !ok {
					continue
				}
				c := o.stepCost(t, a, h) + value[t+1][lat.Index(next)]
				switch tol := tieTolerance * math.Max(1, math.Abs(best)); {
				case bestIdx < 0 || c < best-tol:
					best, bestIdx = c, ai
				case c <= best+tol && math.Abs(a) < math.Abs(actions[bestIdx]):
					bestIdx = ai
					if c < best {
						best = c
					}
				}
			}
			if bestIdx < 0 {
				return nil, nil, fmt.Errorf("%w: no feasible action at step %d, soc %.0f Wh",
					model.ErrInvariant, t, lat.Energy(s))
			}
			value[t][s] = best
			policy[t][s] = bestIdx
		}
	}
	return value, policy, nil
}

// rollout simulates the optimal policy forward from lattice level s0 and
// materializes the schedule points.
func (o *Optimizer) rollout(h horizon, lat SoCLattice, actions ActionSet, policy [][]int, s0 int) []model.SchedulePoint {
	soc := lat.Energy(s0)
	points := make([]model.SchedulePoint, 0, h.steps())
	for t := 0; t < h.steps(); t++ {
		a := actions[policy[t][lat.Index(soc)]]
		next, ok := o.batt.Apply(soc, a, h.dt)
		if !ok {
			// The continuous SoC drifted off the lattice level the policy
			// was solved for. Idle is always feasible.
			a, next = 0, soc
		}
		points = append(points, model.SchedulePoint{
			PowerW:         a,
			Mode:           model.ModeForPower(a),
			SoCWh:          next,
			ProfitLossEUR:  o.stepCost(t, 0, h) - o.stepCost(t, a, h),
			BuyPriceEUR:    h.buy[t],
			FeedInPriceEUR: h.feedIn[t],
		})
		soc = next
	}
	return points
}
