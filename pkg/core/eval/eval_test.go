package eval

import (
	"testing"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/parser"
)

func formulaExpr(t *testing.T, formula string) ast.Expression {
	t.Helper()
	src := `scenario "S" { timeframe: 2025 -> 2026 impact i { formula: ` + formula + ` } simulate { runs:1 seed:1 } }`
	scenario, diags := parser.ParseString(src)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	imp := scenario.Decls[0].(*ast.Impact)
	return imp.Formula
}

func evalFormula(t *testing.T, formula string, env Env) float64 {
	t.Helper()
	v, err := Eval(formulaExpr(t, formula), env)
	if err != nil {
		t.Fatalf("unexpected eval error: %v", err)
	}
	return v
}

func TestEval_Arithmetic(t *testing.T) {
	cases := []struct {
		formula string
		want    float64
	}{
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"2 ^ 3 ^ 2", 512}, // right-associative: 2^(3^2) = 2^9
		{"10 / 0", 0},
		{"-5 + 2", -3},
	}
	for _, c := range cases {
		got := evalFormula(t, c.formula, Env{})
		if got != c.want {
			t.Errorf("%s = %v, want %v", c.formula, got, c.want)
		}
	}
}

func TestEval_Comparisons(t *testing.T) {
	cases := []struct {
		formula string
		want    float64
	}{
		{"3 > 2", 1},
		{"3 < 2", 0},
		{"3 == 3", 1},
		{"3 != 3", 0},
		{"1 && 1", 1},
		{"0 && 1", 0},
		{"0 || 1", 1},
		{"0 || 0", 0},
	}
	for _, c := range cases {
		got := evalFormula(t, c.formula, Env{})
		if got != c.want {
			t.Errorf("%s = %v, want %v", c.formula, got, c.want)
		}
	}
}

func TestEval_Identifiers(t *testing.T) {
	got := evalFormula(t, "x + y", Env{"x": 3, "y": 4})
	if got != 7 {
		t.Errorf("x + y = %v, want 7", got)
	}
}

func TestEval_UnresolvedIdentifier(t *testing.T) {
	_, err := Eval(formulaExpr(t, "missing_name"), Env{})
	if err == nil {
		t.Fatal("expected unresolved identifier error")
	}
	if _, ok := err.(*UnresolvedNameError); !ok {
		t.Fatalf("expected *UnresolvedNameError, got %T", err)
	}
}

func TestEval_PercentageLiteralDividesAtInterpretationSite(t *testing.T) {
	got := evalFormula(t, "50%", Env{})
	if got != 0.5 {
		t.Errorf("50%% = %v, want 0.5", got)
	}
}

func TestEval_ShortCircuit(t *testing.T) {
	// missing_name would error if evaluated; && must short-circuit on a
	// falsy left operand and || on a truthy one.
	got := evalFormula(t, "0 && missing_name", Env{})
	if got != 0 {
		t.Errorf("expected short-circuited 0, got %v", got)
	}
	got = evalFormula(t, "1 || missing_name", Env{})
	if got != 1 {
		t.Errorf("expected short-circuited 1, got %v", got)
	}
}
