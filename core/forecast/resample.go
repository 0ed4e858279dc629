package forecast

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/bvweerd/battery-controller/core/model"
)

// Resample converts a per-step series between cadences. Refining repeats
// each value over its sub-steps; coarsening averages whole groups. The
// cadences must divide evenly into each other.
func Resample(series []float64, from, to time.Duration) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("%w: resample cadences must be positive", model.ErrConfig)
	}
	if from == to {
		out := make([]float64, len(series))
		copy(out, series)
		return out, nil
	}
	if from > to {
		if from%to != 0 {
			return nil, fmt.Errorf("%w: cadence %s does not divide %s", model.ErrConfig, to, from)
		}
		factor := int(from / to)
		out := make([]float64, 0, len(series)*factor)
		for _, v := range series {
			for i := 0; i < factor; i++ {
				out = append(out, v)
			}
		}
		return out, nil
	}
	if to%from != 0 {
		return nil, fmt.Errorf("%w: cadence %s does not divide %s", model.ErrConfig, from, to)
	}
	factor := int(to / from)
	n := len(series) / factor
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		group := series[i*factor : (i+1)*factor]
		out[i] = floats.Sum(group) / float64(factor)
	}
	return out, nil
}

// PadTo extends a series to n entries by repeating its last value. A series
// already at or beyond n is returned truncated to n.
func PadTo(series []float64, n int) []float64 {
	out := make([]float64, n)
	m := copy(out, series)
	if m == 0 || m == n {
		return out
	}
	last := series[m-1]
	for i := m; i < n; i++ {
		out[i] = last
	}
	return out
}

// Fill builds a series of n copies of v.
func Fill(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
