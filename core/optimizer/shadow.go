package optimizer

import "github.com/bvweerd/battery-controller/core/model"

// shadowPrice derives the marginal value of stored energy from the value
// function at the current level: the central difference of cost over one
// lattice step, one-sided at the lattice edges. The decision thresholds
// fold the one-way efficiency back in.
func (o *Optimizer) shadowPrice(v0 []float64, s0 int, lat SoCLattice) model.ShadowPrice {
	step := lat.StepKWh()
	var lambda float64
	switch {
	case lat.Len() < 2:
		lambda = 0
	case s0 == 0:
		lambda = (v0[0] - v0[1]) / step
	case s0 == lat.Len()-1:
		lambda = (v0[s0-1] - v0[s0]) / step
	default:
		lambda = (v0[s0-1] - v0[s0+1]) / (2 * step)
	}
	return model.ShadowPrice{
		EURPerKWh:             lambda,
		ChargeThresholdEUR:    lambda / o.batt.ChargeEfficiency(),
		DischargeThresholdEUR: lambda * o.batt.DischargeEfficiency(),
	}
}
