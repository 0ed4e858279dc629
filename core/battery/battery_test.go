package battery

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bvweerd/battery-controller/core/model"
)

func validConfig() Config {
	return Config{
		CapacityWh:            10000,
		MinSoCWh:              1000,
		MaxSoCWh:              9000,
		MaxChargeW:            5000,
		MaxDischargeW:         5000,
		RoundTripEfficiency:   0.90,
		DegradationCostPerKWh: 0.03,
	}
}

func TestEfficiencySplit(t *testing.T) {
	for _, rte := range []float64{0.5, 0.81, 0.90, 0.95, 1.0} {
		cfg := validConfig()
		cfg.RoundTripEfficiency = rte
		m, err := New(cfg)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		product := m.ChargeEfficiency() * m.DischargeEfficiency()
		if math.Abs(product-rte) > 1e-9 {
			t.Fatalf("rte %v: efficiency product %v", rte, product)
		}
	}
}

func TestValidateRejectsBadParams(t *testing.T) {
	cases := map[string]func(*Config){
		"zero capacity":     func(c *Config) { c.CapacityWh = 0 },
		"negative capacity": func(c *Config) { c.CapacityWh = -1 },
		"rte zero":          func(c *Config) { c.RoundTripEfficiency = -0.1 },
		"rte above one":     func(c *Config) { c.RoundTripEfficiency = 1.2 },
		"inverted bounds":   func(c *Config) { c.MinSoCWh = 9000; c.MaxSoCWh = 1000 },
		"zero charge power": func(c *Config) { c.MaxChargeW = 0 },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if _, err := New(cfg); !errors.Is(err, model.ErrConfig) {
			t.Fatalf("%s: expected ErrConfig, got %v", name, err)
		}
	}
}

func TestSoCDelta(t *testing.T) {
	m, err := New(validConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	step := 15 * time.Minute
	eff := math.Sqrt(0.90)

	charge := m.SoCDelta(4000, step)
	if math.Abs(charge-4000*0.25*eff) > 1e-9 {
		t.Fatalf("charge delta %v", charge)
	}
	discharge := m.SoCDelta(-4000, step)
	if math.Abs(discharge-(-4000*0.25/eff)) > 1e-9 {
		t.Fatalf("discharge delta %v", discharge)
	}
	if m.SoCDelta(0, step) != 0 {
		t.Fatalf("idle must not move soc")
	}
}

func TestApplyFeasibility(t *testing.T) {
	m, err := New(validConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	step := 15 * time.Minute

	if _, ok := m.Apply(8900, 5000, step); ok {
		t.Fatalf("charge past max soc must be infeasible")
	}
	if _, ok := m.Apply(1100, -5000, step); ok {
		t.Fatalf("discharge past min soc must be infeasible")
	}
	if _, ok := m.Apply(5000, 6000, step); ok {
		t.Fatalf("power above rated limit must be infeasible")
	}
	next, ok := m.Apply(5000, 0, step)
	if !ok || next != 5000 {
		t.Fatalf("idle must always be feasible, got %v %v", next, ok)
	}
}

func TestGuardSoC(t *testing.T) {
	m, err := New(validConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := m.GuardSoC(-2000, 1000); got != 0 {
		t.Fatalf("discharge at floor: got %v", got)
	}
	if got := m.GuardSoC(2000, 9000); got != 0 {
		t.Fatalf("charge at ceiling: got %v", got)
	}
	if got := m.GuardSoC(2000, 5000); got != 2000 {
		t.Fatalf("mid-range request altered: got %v", got)
	}
}

func TestDegradationCostPerKWh(t *testing.T) {
	// 500 EUR/kWh over 6000 cycles at 80% DoD.
	got := DegradationCostPerKWh(500, 6000, 0.8)
	want := 500.0 / 6000 / (2 * 0.8)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %v want %v", got, want)
	}
	if DegradationCostPerKWh(500, 0, 0.8) != 0 {
		t.Fatalf("zero cycles must yield zero cost")
	}
}

func TestProfitableCycle(t *testing.T) {
	// buy 0.10, rte 0.90, degradation 0.03: need sell > 0.171.
	if ProfitableCycle(0.10, 0.17, 0.90, 0.03) {
		t.Fatalf("0.17 should not be profitable")
	}
	if !ProfitableCycle(0.10, 0.18, 0.90, 0.03) {
		t.Fatalf("0.18 should be profitable")
	}
}
