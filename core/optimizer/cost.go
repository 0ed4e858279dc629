package optimizer

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/bvweerd/battery-controller/core/model"
)

// dcSpilloverEfficiency converts DC-coupled PV that the battery cannot
// absorb to AC through the inverter.
const dcSpilloverEfficiency = 0.96

// horizon carries the per-step series of one planning cycle with the PV
// arrays collapsed by coupling type.
type horizon struct {
	dt     time.Duration
	buy    []float64
	feedIn []float64
	acPVW  []float64
	dcPVW  []float64
	consW  []float64
}

func newHorizon(f model.HorizonForecast) horizon {
	n := f.Steps()
	h := horizon{
		dt:     f.StepDuration,
		buy:    f.BuyPriceEUR[:n],
		feedIn: f.FeedInPriceEUR[:n],
		acPVW:  make([]float64, n),
		dcPVW:  make([]float64, n),
		consW:  f.ConsumptionW[:n],
	}
	for _, arr := range f.PV {
		switch arr.Coupling {
		case model.DCCoupled:
			floats.Add(h.dcPVW, arr.PowerW[:n])
		default:
			floats.Add(h.acPVW, arr.PowerW[:n])
		}
	}
	return h
}

func (h horizon) steps() int { return len(h.buy) }

// stepCost prices one step of holding powerW against the grid tariffs,
// including battery wear. DC-coupled PV is routed to the battery first when
// charging; only the remainder passes the inverter.
func (o *Optimizer) stepCost(t int, powerW float64, h horizon) float64 {
	hours := h.dt.Hours()
	dcEff := o.batt.Config().DCCoupledEfficiency

	var gridDrawW, dcExcessW float64
	switch {
	case powerW > 0:
		// The battery absorbs powerW*chargeEff on its DC side. PV on the
		// DC bus covers as much of that as it can before the grid does.
		batterySideW := powerW * o.batt.ChargeEfficiency()
		dcToBattW := math.Min(batterySideW, h.dcPVW[t]*dcEff)
		gridDrawW = (batterySideW - dcToBattW) / o.batt.ChargeEfficiency()
		dcExcessW = h.dcPVW[t] - dcToBattW/dcEff
	case powerW < 0:
		gridDrawW = powerW
		dcExcessW = h.dcPVW[t]
	default:
		dcExcessW = h.dcPVW[t]
	}

	netGridW := h.consW[t] - h.acPVW[t] - dcExcessW*dcSpilloverEfficiency + gridDrawW
	energyKWh := math.Abs(netGridW) * hours / 1000

	var gridCost float64
	if netGridW > 0 {
		gridCost = energyKWh * h.buy[t]
	} else {
		gridCost = -energyKWh * h.feedIn[t]
	}
	wear := o.batt.ThroughputKWh(powerW, h.dt) * o.batt.Config().DegradationCostPerKWh
	return gridCost + wear
}

// baselineCost prices the horizon with the battery held idle throughout.
func (o *Optimizer) baselineCost(h horizon) float64 {
	var total float64
	for t := 0; t < h.steps(); t++ {
		total += o.stepCost(t, 0, h)
	}
	return total
}
