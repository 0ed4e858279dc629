package optimizer

import "math"

// SoCLattice discretizes the usable state-of-charge window into evenly
// spaced levels from the minimum bound upward.
type SoCLattice struct {
	minWh  float64
	stepWh float64
	n      int
}

// NewSoCLattice builds a lattice covering [minWh, maxWh] at the given
// resolution. The top level never exceeds maxWh.
func NewSoCLattice(minWh, maxWh, resolutionWh float64) SoCLattice {
	n := int(math.Floor((maxWh-minWh)/resolutionWh)) + 1
	if n < 1 {
		n = 1
	}
	return SoCLattice{minWh: minWh, stepWh: resolutionWh, n: n}
}

// Len returns the number of lattice levels.
func (l SoCLattice) Len() int { return l.n }

// StepKWh returns the lattice spacing in kWh.
func (l SoCLattice) StepKWh() float64 { return l.stepWh / 1000 }

// Energy returns the stored energy at level i in Wh.
func (l SoCLattice) Energy(i int) float64 { return l.minWh + float64(i)*l.stepWh }

// UsableKWh returns the energy above the minimum bound at level i in kWh.
func (l SoCLattice) UsableKWh(i int) float64 { return float64(i) * l.stepWh / 1000 }

// Index snaps an arbitrary SoC to the nearest lattice level, clamping to
// the lattice bounds.
func (l SoCLattice) Index(socWh float64) int {
	i := int(math.Round((socWh - l.minWh) / l.stepWh))
	if i < 0 {
		return 0
	}
	if i >= l.n {
		return l.n - 1
	}
	return i
}

// ActionSet is the discrete set of AC-side battery powers the planner may
// choose from, ordered from maximum discharge to maximum charge. Positive
// values charge. Zero is always a member.
type ActionSet []float64

// NewActionSet enumerates integer multiples of stepW inside the rated
// limits. Generated actions never exceed the limits: a limit that is not a
// multiple of stepW is rounded down, not up.
func NewActionSet(maxChargeW, maxDischargeW, stepW float64) ActionSet {
	down := int(math.Floor(maxDischargeW / stepW))
	up := int(math.Floor(maxChargeW / stepW))
	actions := make(ActionSet, 0, down+up+1)
	for k := -down; k <= up; k++ {
		actions = append(actions, float64(k)*stepW)
	}
	return actions
}
