package watchdog

import (
	"testing"
	"time"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/fetcher"
)

func assumptionWithWatch(declared float64) *ast.Assumption {
	return &ast.Assumption{
		Name:  "gdp_growth",
		Value: &ast.NumberLiteral{Value: declared},
		Watch: &ast.Watch{
			Rules: []ast.WatchRule{
				{
					Severity: ast.SeverityWarn,
					Condition: &ast.BinaryExpression{
						Op:   ast.OpLt,
						Left: &ast.Identifier{Name: "actual"},
						Right: &ast.BinaryExpression{
							Op:    ast.OpMul,
							Left:  &ast.Identifier{Name: "assumed"},
							Right: &ast.NumberLiteral{Value: 0.8},
						},
					},
				},
			},
		},
	}
}

func observedAt(value float64) map[string][]fetcher.ObservedPoint {
	return map[string][]fetcher.ObservedPoint{
		"gdp_growth": {{Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Value: value, Source: "test"}},
	}
}

func TestEvaluate_FiresWarnWhenBelowThreshold(t *testing.T) {
	scenario := &ast.Scenario{Name: "S", Decls: []ast.Declaration{assumptionWithWatch(100)}}
	alerts, err := Evaluate(scenario, observedAt(70))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert for observed=70, got %d", len(alerts))
	}
	if alerts[0].Severity != ast.SeverityWarn {
		t.Errorf("expected warn severity, got %s", alerts[0].Severity)
	}
}

func TestEvaluate_NoAlertAboveThreshold(t *testing.T) {
	scenario := &ast.Scenario{Name: "S", Decls: []ast.Declaration{assumptionWithWatch(100)}}
	alerts, err := Evaluate(scenario, observedAt(85))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts for observed=85, got %d", len(alerts))
	}
}

func TestEvaluate_SkipsAssumptionWithoutObservedData(t *testing.T) {
	scenario := &ast.Scenario{Name: "S", Decls: []ast.Declaration{assumptionWithWatch(100)}}
	alerts, err := Evaluate(scenario, map[string][]fetcher.ObservedPoint{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts when no observed data is available, got %d", len(alerts))
	}
}

func TestEvaluate_WarnAndErrorRulesAreIndependent(t *testing.T) {
	a := assumptionWithWatch(100)
	a.Watch.Rules = append(a.Watch.Rules, ast.WatchRule{
		Severity: ast.SeverityError,
		Condition: &ast.BinaryExpression{
			Op:   ast.OpLt,
			Left: &ast.Identifier{Name: "actual"},
			Right: &ast.BinaryExpression{
				Op:    ast.OpMul,
				Left:  &ast.Identifier{Name: "assumed"},
				Right: &ast.NumberLiteral{Value: 0.5},
			},
		},
	})
	scenario := &ast.Scenario{Name: "S", Decls: []ast.Declaration{a}}
	alerts, err := Evaluate(scenario, observedAt(40))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected both warn and error rules to fire independently, got %d alerts", len(alerts))
	}
}
