package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/bvweerd/battery-controller/core/metrics"
)

// PromSink records controller activity in Prometheus metrics.
type PromSink struct {
	cycles  *prometheus.CounterVec
	savings prometheus.Gauge
	shadow  prometheus.Gauge
	target  prometheus.Gauge
	grid    prometheus.Gauge
	battery prometheus.Gauge
	soc     prometheus.Gauge
}

// NewPromSink registers the controller metrics on the default Prometheus
// registerer. The scrape server is started separately.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planning_cycles_total",
		Help: "Total number of planning cycles by outcome",
	}, []string{"succeeded"})
	if err := reg.Register(cycles); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			cycles = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}

	s := &PromSink{cycles: cycles}
	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&s.savings, "schedule_expected_savings_eur", "Expected savings of the active schedule versus leaving the battery idle"},
		{&s.shadow, "stored_energy_shadow_price_eur_per_kwh", "Marginal value of one additional kWh in the battery"},
		{&s.target, "battery_target_power_w", "Battery setpoint requested by the tactical loop, positive for charging"},
		{&s.grid, "grid_power_w", "Last measured grid exchange, positive for import"},
		{&s.battery, "battery_power_w", "Last measured battery power, positive for charging"},
		{&s.soc, "battery_soc_wh", "Last known battery state of charge"},
	}
	for _, g := range gauges {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help})
		if err := reg.Register(gauge); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				gauge = are.ExistingCollector.(prometheus.Gauge)
			} else {
				return nil, err
			}
		}
		*g.dst = gauge
	}
	return s, nil
}

// RecordCycle counts the cycle and updates the schedule gauges on success.
func (s *PromSink) RecordCycle(r coremetrics.CycleResult) error {
	s.cycles.WithLabelValues(strconv.FormatBool(r.Succeeded)).Inc()
	if r.Succeeded {
		s.savings.Set(r.SavingsEUR)
		s.shadow.Set(r.ShadowPriceEUR)
	}
	return nil
}

// RecordSetpoint updates the tactical gauges.
func (s *PromSink) RecordSetpoint(sp coremetrics.SetpointSample) error {
	s.target.Set(sp.TargetPowerW)
	s.grid.Set(sp.GridPowerW)
	s.battery.Set(sp.BatteryPowerW)
	s.soc.Set(sp.SoCWh)
	return nil
}
