package optimizer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvweerd/battery-controller/core/battery"
	"github.com/bvweerd/battery-controller/core/logger"
	"github.com/bvweerd/battery-controller/core/model"
)

func testBattery(t *testing.T) *battery.Model {
	t.Helper()
	m, err := battery.New(battery.Config{
		CapacityWh:            10000,
		MinSoCWh:              1000,
		MaxSoCWh:              9000,
		MaxChargeW:            5000,
		MaxDischargeW:         5000,
		RoundTripEfficiency:   0.90,
		DegradationCostPerKWh: 0.03,
	})
	require.NoError(t, err)
	return m
}

func testOptimizer(t *testing.T) *Optimizer {
	t.Helper()
	o, err := New(testBattery(t), Config{}, logger.NopLogger{})
	require.NoError(t, err)
	return o
}

// repeat builds a flat series of n steps.
func repeat(v float64, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func flatForecast(buy, feedIn float64, steps int) model.HorizonForecast {
	return model.HorizonForecast{
		StepDuration:   15 * time.Minute,
		BuyPriceEUR:    repeat(buy, steps),
		FeedInPriceEUR: repeat(feedIn, steps),
		ConsumptionW:   repeat(0, steps),
	}
}

func TestOptimizeFlatPricesStaysIdle(t *testing.T) {
	o := testOptimizer(t)
	sched, err := o.Optimize(Request{Forecast: flatForecast(0.25, 0.07, 16), StartSoCWh: 5000})
	require.NoError(t, err)
	require.Len(t, sched.Points, 16)
	for i, p := range sched.Points {
		assert.Equalf(t, model.ModeIdle, p.Mode, "step %d not idle", i)
		assert.InDelta(t, 5000, p.SoCWh, 1e-9)
	}
}

func TestOptimizeShadowPriceFlatPricesEqualsFeedIn(t *testing.T) {
	o := testOptimizer(t)
	sched, err := o.Optimize(Request{Forecast: flatForecast(0.25, 0.07, 16), StartSoCWh: 5000})
	require.NoError(t, err)

	eff := math.Sqrt(0.90)
	assert.InDelta(t, 0.07, sched.ShadowPrice.EURPerKWh, 1e-9)
	assert.InDelta(t, 0.07/eff, sched.ShadowPrice.ChargeThresholdEUR, 1e-9)
	assert.InDelta(t, 0.07*eff, sched.ShadowPrice.DischargeThresholdEUR, 1e-9)
	assert.Less(t, sched.ShadowPrice.DischargeThresholdEUR, sched.ShadowPrice.ChargeThresholdEUR)
}

func TestOptimizeNegativePriceChargesAtFullPower(t *testing.T) {
	o := testOptimizer(t)
	f := flatForecast(0.30, 0.07, 12)
	for i := 0; i < 4; i++ {
		f.BuyPriceEUR[i] = -0.10
	}
	sched, err := o.Optimize(Request{Forecast: f, StartSoCWh: 1000})
	require.NoError(t, err)

	// Getting paid to consume makes max charge optimal from an empty
	// battery regardless of what follows.
	assert.Equal(t, 5000.0, sched.Points[0].PowerW)
	assert.Equal(t, model.ModeCharging, sched.Points[0].Mode)
	assert.Greater(t, sched.Diagnostics.SavingsEUR, 0.0)
}

func TestOptimizeDeterministic(t *testing.T) {
	o := testOptimizer(t)
	f := flatForecast(0.25, 0.07, 24)
	for i := range f.BuyPriceEUR {
		if i%6 < 3 {
			f.BuyPriceEUR[i] = 0.05
		}
	}
	a, err := o.Optimize(Request{Forecast: f, StartSoCWh: 4200})
	require.NoError(t, err)
	b, err := o.Optimize(Request{Forecast: f, StartSoCWh: 4200})
	require.NoError(t, err)

	assert.Equal(t, a.Points, b.Points)
	assert.Equal(t, a.ShadowPrice, b.ShadowPrice)
	assert.Equal(t, a.Diagnostics, b.Diagnostics)
}

func TestOptimizeMissingFeedInFailsCycle(t *testing.T) {
	o := testOptimizer(t)
	f := flatForecast(0.25, 0.07, 8)
	f.FeedInPriceEUR = f.FeedInPriceEUR[:3]
	_, err := o.Optimize(Request{Forecast: f, StartSoCWh: 5000})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrMissingInput)
}

func TestOptimizeStartSoCSnapsToLattice(t *testing.T) {
	o := testOptimizer(t)
	sched, err := o.Optimize(Request{Forecast: flatForecast(0.25, 0.07, 4), StartSoCWh: 5049})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, sched.StartSoCWh)

	// Readings outside the usable window clamp to the nearest bound.
	sched, err = o.Optimize(Request{Forecast: flatForecast(0.25, 0.07, 4), StartSoCWh: 12000})
	require.NoError(t, err)
	assert.Equal(t, 9000.0, sched.StartSoCWh)
}

func TestSolveTerminalValuation(t *testing.T) {
	o := testOptimizer(t)
	h := newHorizon(flatForecast(0.25, 0.07, 8))
	lat := NewSoCLattice(1000, 9000, 100)
	value, _, err := o.solve(h, lat, NewActionSet(5000, 5000, 500))
	require.NoError(t, err)

	for s := 0; s < lat.Len(); s++ {
		assert.InDelta(t, -lat.UsableKWh(s)*0.07, value[len(h.buy)][s], 1e-12)
	}
}

func TestSolveValueMonotoneInSoC(t *testing.T) {
	o := testOptimizer(t)
	f := flatForecast(0.25, 0.07, 24)
	for i := range f.BuyPriceEUR {
		f.BuyPriceEUR[i] = 0.20 + 0.06*float64(i%4)/3
	}
	h := newHorizon(f)
	lat := NewSoCLattice(1000, 9000, 100)
	value, _, err := o.solve(h, lat, NewActionSet(5000, 5000, 500))
	require.NoError(t, err)

	// More stored energy can never cost more to finish the horizon.
	for s := 1; s < lat.Len(); s++ {
		assert.LessOrEqualf(t, value[0][s], value[0][s-1]+1e-9, "value not monotone at level %d", s)
	}
}

func TestFilterOscillationsIdlesThinPairs(t *testing.T) {
	o := testOptimizer(t)
	f := flatForecast(0.25, 0.07, 8)
	f.BuyPriceEUR[2] = 0.20
	f.BuyPriceEUR[5] = 0.22
	h := newHorizon(f)

	points := make([]model.SchedulePoint, 8)
	for i := range points {
		points[i] = model.SchedulePoint{Mode: model.ModeIdle, SoCWh: 5000, BuyPriceEUR: f.BuyPriceEUR[i]}
	}
	points[2] = model.SchedulePoint{PowerW: 2000, Mode: model.ModeCharging, BuyPriceEUR: 0.20}
	points[5] = model.SchedulePoint{PowerW: -2000, Mode: model.ModeDischarging, BuyPriceEUR: 0.22}

	// Spread 0.02 is far under (2*0.03+0.05)/sqrt(0.90): both legs idle
	// and the SoC trajectory flattens out.
	got := o.filterOscillations(points, h, 5000)
	for i, p := range got {
		assert.Equalf(t, model.ModeIdle, p.Mode, "step %d not idled", i)
		assert.InDelta(t, 5000, p.SoCWh, 1e-9)
	}
}

func TestFilterOscillationsKeepsWidePairs(t *testing.T) {
	o := testOptimizer(t)
	f := flatForecast(0.25, 0.07, 8)
	f.BuyPriceEUR[2] = 0.05
	f.BuyPriceEUR[5] = 0.45
	h := newHorizon(f)

	points := make([]model.SchedulePoint, 8)
	for i := range points {
		points[i] = model.SchedulePoint{Mode: model.ModeIdle, SoCWh: 5000, BuyPriceEUR: f.BuyPriceEUR[i]}
	}
	points[2] = model.SchedulePoint{PowerW: 2000, Mode: model.ModeCharging, BuyPriceEUR: 0.05}
	points[5] = model.SchedulePoint{PowerW: -2000, Mode: model.ModeDischarging, BuyPriceEUR: 0.45}

	got := o.filterOscillations(points, h, 5000)
	assert.Equal(t, model.ModeCharging, got[2].Mode)
	assert.Equal(t, model.ModeDischarging, got[5].Mode)
}

func TestFilterOscillationsPricesSurplusChargeAtFeedIn(t *testing.T) {
	o := testOptimizer(t)
	f := flatForecast(0.25, 0.07, 8)
	f.BuyPriceEUR[2] = 0.05
	f.BuyPriceEUR[5] = 0.45
	// A PV surplus at the charge step means the energy would otherwise be
	// exported: the charge leg costs the feed-in price, not the buy price.
	f.FeedInPriceEUR[2] = 0.40
	f.PV = []model.PVArray{{Coupling: model.ACCoupled, PowerW: []float64{0, 0, 3000, 0, 0, 0, 0, 0}}}
	h := newHorizon(f)

	points := make([]model.SchedulePoint, 8)
	for i := range points {
		points[i] = model.SchedulePoint{Mode: model.ModeIdle, SoCWh: 5000, BuyPriceEUR: f.BuyPriceEUR[i]}
	}
	points[2] = model.SchedulePoint{PowerW: 2000, Mode: model.ModeCharging, BuyPriceEUR: 0.05}
	points[5] = model.SchedulePoint{PowerW: -2000, Mode: model.ModeDischarging, BuyPriceEUR: 0.45}

	// 0.45 - 0.40 is under the profitability threshold even though the
	// nominal buy spread of 0.40 is far over it.
	got := o.filterOscillations(points, h, 5000)
	assert.Equal(t, model.ModeIdle, got[2].Mode)
	assert.Equal(t, model.ModeIdle, got[5].Mode)
}

func TestFilterOscillationsWindowBound(t *testing.T) {
	o := testOptimizer(t)
	f := flatForecast(0.25, 0.07, 16)
	f.BuyPriceEUR[0] = 0.20
	f.BuyPriceEUR[12] = 0.21
	h := newHorizon(f)

	points := make([]model.SchedulePoint, 16)
	for i := range points {
		points[i] = model.SchedulePoint{Mode: model.ModeIdle, SoCWh: 5000, BuyPriceEUR: f.BuyPriceEUR[i]}
	}
	points[0] = model.SchedulePoint{PowerW: 2000, Mode: model.ModeCharging, BuyPriceEUR: 0.20}
	points[12] = model.SchedulePoint{PowerW: -2000, Mode: model.ModeDischarging, BuyPriceEUR: 0.21}

	// Twelve 15-minute steps apart is outside the two-hour window, so the
	// thin pair survives.
	got := o.filterOscillations(points, h, 5000)
	assert.Equal(t, model.ModeCharging, got[0].Mode)
	assert.Equal(t, model.ModeDischarging, got[12].Mode)
}

func TestStepCostRoutesDCCoupledPVToBattery(t *testing.T) {
	o := testOptimizer(t)
	f := flatForecast(0.25, 0.07, 4)
	f.PV = []model.PVArray{{Coupling: model.DCCoupled, PowerW: repeat(4000, 4)}}
	h := newHorizon(f)

	// The battery absorbs the charge power entirely from the DC bus; no
	// grid import, the remainder exported through the inverter.
	batterySideW := 2000 * math.Sqrt(0.90)
	excessW := 4000 - batterySideW/0.97
	exportEUR := -excessW * 0.96 * 0.25 / 1000 * 0.07
	wearEUR := batterySideW * 0.25 / 1000 * 0.03
	assert.InDelta(t, exportEUR+wearEUR, o.stepCost(0, 2000, h), 1e-9)

	// While idle the full array spills over to AC.
	assert.InDelta(t, -4000*0.96*0.25/1000*0.07, o.stepCost(0, 0, h), 1e-9)
}

func TestStepCostACCoupledPVOffsetsConsumption(t *testing.T) {
	o := testOptimizer(t)
	f := flatForecast(0.25, 0.07, 4)
	f.PV = []model.PVArray{{Coupling: model.ACCoupled, PowerW: repeat(1500, 4)}}
	f.ConsumptionW = repeat(2500, 4)
	h := newHorizon(f)

	assert.InDelta(t, 1000*0.25/1000*0.25, o.stepCost(0, 0, h), 1e-9)
}

func TestNewActionSetStaysInsideRatedLimits(t *testing.T) {
	actions := NewActionSet(5200, 4700, 500)
	assert.Equal(t, -4500.0, actions[0])
	assert.Equal(t, 5000.0, actions[len(actions)-1])
	assert.Contains(t, actions, 0.0)
	for _, a := range actions {
		assert.LessOrEqual(t, a, 5200.0)
		assert.GreaterOrEqual(t, a, -4700.0)
	}
}

func TestSoCLatticeIndex(t *testing.T) {
	lat := NewSoCLattice(1000, 9000, 100)
	require.Equal(t, 81, lat.Len())

	cases := map[string]struct {
		soc  float64
		want int
	}{
		"exact level": {5000, 40},
		"rounds down": {5049, 40},
		"rounds up":   {5051, 41},
		"clamps low":  {200, 0},
		"clamps high": {12000, 80},
		"lower bound": {1000, 0},
		"upper bound": {9000, 80},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, lat.Index(tc.soc))
		})
	}
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]Config{
		"negative resolution": {SoCResolutionWh: -1},
		"negative power step": {PowerStepW: -500},
		"negative spread":     {MinPriceSpreadEUR: -0.01},
		"negative window":     {OscillationWindow: -time.Hour},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(testBattery(t), cfg, logger.NopLogger{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrConfig))
		})
	}
}
