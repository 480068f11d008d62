// Package eval evaluates SDL expression ASTs against a sampled
// environment of name -> value bindings.
//
// Grounded on the teacher's projection.ProjectionStrategy.Calculate
// pattern: resolve named values from a context map, then compute.
package eval

import (
	"fmt"
	"math"

	"sdl/pkg/core/ast"
)

// Env maps identifier names to their current numeric value for this
// run/timestep (variables, assumption samples, parameter values).
type Env map[string]float64

// UnresolvedNameError is returned when an expression references a name not
// present in the environment. The engine converts this into a per-run
// failure diagnostic rather than aborting the whole simulation.
type UnresolvedNameError struct {
	Name string
}

func (e *UnresolvedNameError) Error() string {
	return fmt.Sprintf("unresolved identifier %q", e.Name)
}

// Eval evaluates expr against env. Comparisons yield 0.0/1.0 so they
// compose with arithmetic contexts. Division by zero yields zero (mirrors
// spec.md §4.6; impacts should be authored to avoid it).
func Eval(expr ast.Expression, env Env) (float64, error) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		return e.Value, nil
	case *ast.PercentageLiteral:
		return e.Value / 100, nil
	case *ast.CurrencyLiteral:
		return e.Value * magnitudeScale(e.Magnitude), nil
	case *ast.BooleanLiteral:
		if e.Value {
			return 1, nil
		}
		return 0, nil
	case *ast.StringLiteral:
		return 0, nil
	case *ast.Identifier:
		v, ok := env[e.Name]
		if !ok {
			return 0, &UnresolvedNameError{Name: e.Name}
		}
		return v, nil
	case *ast.UnaryExpression:
		v, err := Eval(e.Operand, env)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case ast.OpNeg:
			return -v, nil
		case ast.OpNot:
			if v == 0 {
				return 1, nil
			}
			return 0, nil
		}
		return 0, fmt.Errorf("unknown unary operator %q", e.Op)
	case *ast.BinaryExpression:
		return evalBinary(e, env)
	case *ast.ConditionalExpression:
		c, err := Eval(e.Condition, env)
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return Eval(e.Then, env)
		}
		return Eval(e.Else, env)
	case *ast.RelativeStdDevLiteral:
		return e.Percent / 100, nil
	}
	return 0, fmt.Errorf("cannot evaluate expression of type %T", expr)
}

func evalBinary(e *ast.BinaryExpression, env Env) (float64, error) {
	// Logical operators short-circuit.
	if e.Op == ast.OpAnd {
		l, err := Eval(e.Left, env)
		if err != nil {
			return 0, err
		}
		if l == 0 {
			return 0, nil
		}
		r, err := Eval(e.Right, env)
		if err != nil {
			return 0, err
		}
		return boolToF(r != 0), nil
	}
	if e.Op == ast.OpOr {
		l, err := Eval(e.Left, env)
		if err != nil {
			return 0, err
		}
		if l != 0 {
			return 1, nil
		}
		r, err := Eval(e.Right, env)
		if err != nil {
			return 0, err
		}
		return boolToF(r != 0), nil
	}

	l, err := Eval(e.Left, env)
	if err != nil {
		return 0, err
	}
	r, err := Eval(e.Right, env)
	if err != nil {
		return 0, err
	}

	switch e.Op {
	case ast.OpAdd:
		return l + r, nil
	case ast.OpSub:
		return l - r, nil
	case ast.OpMul:
		return l * r, nil
	case ast.OpDiv:
		if r == 0 {
			return 0, nil
		}
		return l / r, nil
	case ast.OpPow:
		return math.Pow(l, r), nil
	case ast.OpLt:
		return boolToF(l < r), nil
	case ast.OpGt:
		return boolToF(l > r), nil
	case ast.OpLe:
		return boolToF(l <= r), nil
	case ast.OpGe:
		return boolToF(l >= r), nil
	case ast.OpEq:
		return boolToF(l == r), nil
	case ast.OpNeq:
		return boolToF(l != r), nil
	}
	return 0, fmt.Errorf("unknown binary operator %q", e.Op)
}

func boolToF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func magnitudeScale(m ast.Magnitude) float64 {
	switch m {
	case ast.MagnitudeThousand:
		return 1e3
	case ast.MagnitudeMillion:
		return 1e6
	case ast.MagnitudeBillion:
		return 1e9
	case ast.MagnitudeTrillion:
		return 1e12
	}
	return 1
}
