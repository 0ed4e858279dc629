package optimizer

import "github.com/bvweerd/battery-controller/core/model"

// pvSurplusThresholdW is the minimum PV surplus under which a charge leg
// is still priced at the grid tariff.
const pvSurplusThresholdW = 50

// chargeCost is the effective price of charging at step t. With a PV
// surplus the energy would otherwise be exported, so charging forgoes the
// feed-in revenue instead of buying from the grid.
func (h horizon) chargeCost(t int) float64 {
	if h.acPVW[t]+h.dcPVW[t]-h.consW[t] > pvSurplusThresholdW {
		return h.feedIn[t]
	}
	return h.buy[t]
}

// filterOscillations removes charge/discharge pairs whose price spread
// does not cover the round-trip losses and wear. Each charging or
// discharging step is paired with the first opposite step inside the
// lookahead window; when the pair is unprofitable both steps are set to
// idle. The SoC trajectory is recomputed afterwards.
func (o *Optimizer) filterOscillations(points []model.SchedulePoint, h horizon, startSoCWh float64) []model.SchedulePoint {
	window := int(o.cfg.OscillationWindow / h.dt)
	if window <= 0 || len(points) == 0 {
		return points
	}
	// The spread must cover wear on both legs plus the configured margin,
	// inflated by the efficiency lost on the way through the battery.
	bc := o.batt.Config()
	threshold := (2*bc.DegradationCostPerKWh + o.cfg.MinPriceSpreadEUR) / o.batt.DischargeEfficiency()

	changed := false
	for i := range points {
		if points[i].Mode == model.ModeIdle {
			continue
		}
		for j := i + 1; j <= i+window && j < len(points); j++ {
			if points[j].Mode == model.ModeIdle || points[j].Mode == points[i].Mode {
				continue
			}
			var spread float64
			if points[i].Mode == model.ModeCharging {
				spread = points[j].BuyPriceEUR - h.chargeCost(i)
			} else {
				spread = points[i].BuyPriceEUR - h.chargeCost(j)
			}
			if spread < threshold {
				points[i].PowerW, points[i].Mode, points[i].ProfitLossEUR = 0, model.ModeIdle, 0
				points[j].PowerW, points[j].Mode, points[j].ProfitLossEUR = 0, model.ModeIdle, 0
				changed = true
			}
			break
		}
	}
	if !changed {
		return points
	}

	soc := startSoCWh
	for t := range points {
		next, ok := o.batt.Apply(soc, points[t].PowerW, h.dt)
		if !ok {
			points[t].PowerW, points[t].Mode, points[t].ProfitLossEUR = 0, model.ModeIdle, 0
			next = soc
		}
		if points[t].Mode != model.ModeIdle {
			points[t].ProfitLossEUR = o.stepCost(t, 0, h) - o.stepCost(t, points[t].PowerW, h)
		}
		points[t].SoCWh = next
		soc = next
	}
	return points
}
