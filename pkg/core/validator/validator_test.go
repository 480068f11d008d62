package validator

import (
	"testing"

	"sdl/pkg/core/parser"
)

func TestValidate_ValidScenario(t *testing.T) {
	src := `
scenario "S" {
	timeframe: 2025 -> 2030
	variable x {
		2025: 100
		2030: 200
	}
	impact total {
		derives_from: [x]
		formula: x * 2
	}
	simulate { runs: 10 seed: 1 }
}`
	scenario, diags := parser.ParseString(src)
	if len(diags) != 0 {
		t.Fatalf("unexpected parse diagnostics: %v", diags)
	}
	res := Validate(scenario)
	if !res.Valid {
		t.Fatalf("expected valid scenario, got diagnostics: %v", res.Diagnostics)
	}
	order := res.CausalGraph.TopologicalOrder()
	xIdx, totalIdx := -1, -1
	for i, n := range order {
		switch n {
		case "x":
			xIdx = i
		case "total":
			totalIdx = i
		}
	}
	if xIdx == -1 || totalIdx == -1 || xIdx > totalIdx {
		t.Fatalf("expected x before total in topological order, got %v", order)
	}
}

func TestValidate_CyclicDependency(t *testing.T) {
	src := `
scenario "S" {
	timeframe: 2025 -> 2026
	variable a {
		2025: 1
		depends_on: [b]
	}
	variable b {
		2025: 1
		depends_on: [a]
	}
	simulate { runs: 1 seed: 1 }
}`
	scenario, diags := parser.ParseString(src)
	if len(diags) != 0 {
		t.Fatalf("unexpected parse diagnostics: %v", diags)
	}
	res := Validate(scenario)
	if res.Valid {
		t.Fatal("expected cyclic dependency to invalidate the scenario")
	}
}

func TestValidate_UnknownReference(t *testing.T) {
	src := `
scenario "S" {
	timeframe: 2025 -> 2026
	impact total {
		formula: missing_var * 2
	}
	simulate { runs: 1 seed: 1 }
}`
	scenario, diags := parser.ParseString(src)
	if len(diags) != 0 {
		t.Fatalf("unexpected parse diagnostics: %v", diags)
	}
	res := Validate(scenario)
	if res.Valid {
		t.Fatal("expected unknown reference to invalidate the scenario")
	}
}

func TestValidate_OutOfWindowAnchor(t *testing.T) {
	src := `
scenario "S" {
	timeframe: 2025 -> 2026
	variable x {
		2030: 100
	}
	simulate { runs: 1 seed: 1 }
}`
	scenario, diags := parser.ParseString(src)
	if len(diags) != 0 {
		t.Fatalf("unexpected parse diagnostics: %v", diags)
	}
	res := Validate(scenario)
	if res.Valid {
		t.Fatal("expected out-of-window anchor to invalidate the scenario")
	}
}

func TestValidate_DuplicateName(t *testing.T) {
	src := `
scenario "S" {
	timeframe: 2025 -> 2026
	variable x { 2025: 1 }
	impact x {
		formula: 1
	}
	simulate { runs: 1 seed: 1 }
}`
	scenario, diags := parser.ParseString(src)
	if len(diags) != 0 {
		t.Fatalf("unexpected parse diagnostics: %v", diags)
	}
	res := Validate(scenario)
	if res.Valid {
		t.Fatal("expected duplicate declaration name to invalidate the scenario")
	}
}
