package engine

import "sdl/pkg/core/ast"

// defaultSensitivity is the coefficient applied to a parameter's relative
// delta from baseline when a variable doesn't declare its own sensitivity
// block for that dependency.
const defaultSensitivity = 0.30

// rampStart/rampEnd bound the linear ramp applied to parameter modulation
// across the scenario window: a parameter override's effect is damped to
// 30% at the first timestep and reaches full strength by the last.
const (
	rampStart = 0.3
	rampEnd   = 1.0
)

func ramp(t, t0, tN int) float64 {
	if tN == t0 {
		return rampEnd
	}
	frac := float64(t-t0) / float64(tN-t0)
	return rampStart + (rampEnd-rampStart)*frac
}

// modulate scales baseline by the product of (1 + sensitivity*delta*ramp)
// over every parameter v depends on, where delta is the relative
// displacement of the parameter's current value from its configured
// baseline (spec.md §4.5 "parameter modulation").
func modulate(v *ast.Variable, baseline float64, t, t0, tN int, paramCurrent, paramBaseline map[string]float64) float64 {
	if len(v.DependsOn) == 0 {
		return baseline
	}
	r := ramp(t, t0, tN)
	result := baseline
	for _, dep := range v.DependsOn {
		cur, ok1 := paramCurrent[dep]
		base, ok2 := paramBaseline[dep]
		if !ok1 || !ok2 || base == 0 {
			continue
		}
		delta := (cur - base) / base
		s := defaultSensitivity
		if v.Sensitivity != nil {
			if override, ok := v.Sensitivity[dep]; ok {
				s = override
			}
		}
		result *= 1 + s*delta*r
	}
	return result
}
