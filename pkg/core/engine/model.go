package engine

import (
	"fmt"
	"math"
	"sort"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/eval"
)

// evalModelParams resolves a ModelExpression's named parameters to float64,
// evaluating each against env (named params are ordinarily literals but may
// reference an assumption or parameter).
func evalModelParams(m *ast.ModelExpression, env eval.Env) (map[string]float64, error) {
	out := make(map[string]float64, len(m.NamedParams))
	for k, e := range m.NamedParams {
		v, err := eval.Eval(e, env)
		if err != nil {
			return nil, fmt.Errorf("model parameter %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func evalModelAt(m *ast.ModelExpression, params map[string]float64, t, t0 int, env eval.Env) (float64, error) {
	dt := float64(t - t0)
	switch m.Kind {
	case ast.ModelLinear:
		return params["intercept"] + params["slope"]*dt, nil
	case ast.ModelExponential:
		return params["base"] * math.Exp(params["rate"]*dt), nil
	case ast.ModelLogistic:
		max := params["max"]
		if max == 0 {
			max = 1
		}
		return max / (1 + math.Exp(-params["k"]*(dt-params["midpoint"]))), nil
	case ast.ModelSigmoid:
		max := params["max"]
		if max == 0 {
			max = 1
		}
		return max / (1 + math.Exp(-params["k"]*(dt-params["midpoint"]))), nil
	case ast.ModelPolynomial:
		coeffs := make([]float64, len(m.Coefficients))
		for i, c := range m.Coefficients {
			v, err := eval.Eval(c, env)
			if err != nil {
				return 0, err
			}
			coeffs[i] = v
		}
		return hornerEval(coeffs, dt), nil
	}
	return 0, fmt.Errorf("unknown model kind %q", m.Kind)
}

// hornerEval evaluates a polynomial with coefficients ordered from the
// constant term to the highest-degree term, using Horner's method.
func hornerEval(coeffs []float64, x float64) float64 {
	if len(coeffs) == 0 {
		return 0
	}
	result := coeffs[len(coeffs)-1]
	for i := len(coeffs) - 2; i >= 0; i-- {
		result = result*x + coeffs[i]
	}
	return result
}

// anchorPoint is a resolved (year, value) pair.
type anchorPoint struct {
	Year  int
	Value float64
}

func resolveAnchors(v *ast.Variable, env eval.Env) ([]anchorPoint, error) {
	pts := make([]anchorPoint, len(v.Timeseries))
	for i, a := range v.Timeseries {
		val, err := eval.Eval(a.Value, env)
		if err != nil {
			return nil, fmt.Errorf("variable %q anchor %d: %w", v.Name, a.Year, err)
		}
		pts[i] = anchorPoint{Year: a.Year, Value: val}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].Year < pts[j].Year })
	return pts, nil
}

// interpolate evaluates a sparse anchor series at year t using linear or
// natural-cubic-spline interpolation. Outside the convex hull of anchors,
// linear interpolation extends the end-slope; spline interpolation holds
// the nearest anchor (spec.md §4.5).
func interpolate(pts []anchorPoint, kind string, t int) float64 {
	if len(pts) == 0 {
		return 0
	}
	if len(pts) == 1 {
		return pts[0].Value
	}
	if t <= pts[0].Year {
		if kind == "spline" {
			return pts[0].Value
		}
		return extendSlope(pts[0], pts[1], t)
	}
	if t >= pts[len(pts)-1].Year {
		if kind == "spline" {
			return pts[len(pts)-1].Value
		}
		last, prev := pts[len(pts)-1], pts[len(pts)-2]
		return extendSlope(prev, last, t)
	}

	i := 0
	for i < len(pts)-1 && pts[i+1].Year < t {
		i++
	}
	for i < len(pts)-1 && pts[i].Year == pts[i+1].Year {
		i++
	}
	left, right := pts[i], pts[i+1]
	if t == left.Year {
		return left.Value
	}
	if t == right.Year {
		return right.Value
	}

	if kind == "spline" {
		return splineEval(pts, t)
	}
	return linearAt(left, right, t)
}

func linearAt(left, right anchorPoint, t int) float64 {
	if right.Year == left.Year {
		return left.Value
	}
	frac := float64(t-left.Year) / float64(right.Year-left.Year)
	return left.Value + frac*(right.Value-left.Value)
}

func extendSlope(a, b anchorPoint, t int) float64 {
	if b.Year == a.Year {
		return a.Value
	}
	slope := (b.Value - a.Value) / float64(b.Year-a.Year)
	if t <= a.Year {
		return a.Value + slope*float64(t-a.Year)
	}
	return b.Value + slope*float64(t-b.Year)
}

// splineEval evaluates a natural cubic spline through pts at year t.
// Small, dense-enough anchor sets are typical for SDL scenarios so a
// straightforward tridiagonal solve (no external numerics library) is
// sufficient.
func splineEval(pts []anchorPoint, t int) float64 {
	n := len(pts)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range pts {
		xs[i] = float64(p.Year)
		ys[i] = p.Value
	}

	h := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = xs[i+1] - xs[i]
	}

	alpha := make([]float64, n)
	for i := 1; i < n-1; i++ {
		alpha[i] = (3/h[i])*(ys[i+1]-ys[i]) - (3/h[i-1])*(ys[i]-ys[i-1])
	}

	l := make([]float64, n)
	mu := make([]float64, n)
	z := make([]float64, n)
	l[0] = 1
	for i := 1; i < n-1; i++ {
		l[i] = 2*(xs[i+1]-xs[i-1]) - h[i-1]*mu[i-1]
		mu[i] = h[i] / l[i]
		z[i] = (alpha[i] - h[i-1]*z[i-1]) / l[i]
	}
	l[n-1] = 1

	c := make([]float64, n)
	b := make([]float64, n)
	d := make([]float64, n)
	for j := n - 2; j >= 0; j-- {
		c[j] = z[j] - mu[j]*c[j+1]
		b[j] = (ys[j+1]-ys[j])/h[j] - h[j]*(c[j+1]+2*c[j])/3
		d[j] = (c[j+1] - c[j]) / (3 * h[j])
	}

	ft := float64(t)
	i := 0
	for i < n-2 && xs[i+1] < ft {
		i++
	}
	dx := ft - xs[i]
	return ys[i] + b[i]*dx + c[i]*dx*dx + d[i]*dx*dx*dx
}
