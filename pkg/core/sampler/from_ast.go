package sampler

import (
	"fmt"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/eval"
)

// FromAST builds a Distribution from a parsed DistributionExpression,
// evaluating each parameter against env (parameters may themselves
// reference assumptions/parameters, e.g. `normal(p_mean, p_sigma)`).
func FromAST(d *ast.DistributionExpression, env eval.Env) (Distribution, error) {
	if d == nil {
		return nil, fmt.Errorf("nil distribution expression")
	}
	vals := make([]float64, len(d.Params))
	for i, p := range d.Params {
		if rel, ok := p.(*ast.RelativeStdDevLiteral); ok {
			vals[i] = rel.Percent
			continue
		}
		v, err := eval.Eval(p, env)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	switch d.Kind {
	case ast.DistNormal:
		if len(d.Params) == 1 {
			if _, ok := d.Params[0].(*ast.RelativeStdDevLiteral); ok {
				return NormalRelative{Percent: vals[0]}, nil
			}
			return nil, fmt.Errorf("normal() with one argument requires ±percent")
		}
		return NormalAbsolute{Mu: vals[0], Sigma: vals[1]}, nil
	case ast.DistLognormal:
		return LognormalDist{Mu: vals[0], Sigma: vals[1]}, nil
	case ast.DistBeta:
		return BetaDist{Alpha: vals[0], Beta: vals[1]}, nil
	case ast.DistUniform:
		return UniformDist{A: vals[0], B: vals[1]}, nil
	case ast.DistTriangular:
		return TriangularDist{A: vals[0], B: vals[1], C: vals[2]}, nil
	}
	return nil, fmt.Errorf("unknown distribution kind %q", d.Kind)
}
