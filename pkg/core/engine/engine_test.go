package engine

import (
	"context"
	"math"
	"testing"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/diagnostic"
	"sdl/pkg/core/parser"
	"sdl/pkg/core/validator"
)

func mustValidate(t *testing.T, src string) (*ast.Scenario, *validator.Result) {
	t.Helper()
	scenario, diags := parser.ParseString(src)
	for _, d := range diags {
		if d.Severity == diagnostic.SeverityError {
			t.Fatalf("parse error: %v", d)
		}
	}
	res := validator.Validate(scenario)
	if !res.Valid {
		t.Fatalf("scenario failed validation: %v", res.Diagnostics)
	}
	return scenario, res
}

func TestRun_DeterministicVariableHasZeroSpread(t *testing.T) {
	src := `
scenario "det" {
	timeframe: 2025 -> 2030
	variable x {
		2025: 100
		2030: 200
	}
	simulate { runs: 50 seed: 7 }
}`
	scenario, res := mustValidate(t, src)
	cfg := Config{Runs: 50, Seed: 7, Percentiles: []float64{50}}
	out, err := Run(context.Background(), scenario, res, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, t2 := range out.Timesteps {
		stat := out.Variables["x"][t2]
		if stat.Std != 0 {
			t.Errorf("expected zero spread for deterministic variable at year %d, got std=%v", t2, stat.Std)
		}
	}
	mid := out.Variables["x"][2027]
	want := linearAt(anchorPoint{2025, 100}, anchorPoint{2030, 200}, 2027)
	if math.Abs(mid.Mean-want) > 1e-9 {
		t.Errorf("interpolated mean = %v, want %v", mid.Mean, want)
	}
}

func TestRun_LinearModelTrajectory(t *testing.T) {
	src := `
scenario "model" {
	timeframe: 2025 -> 2030
	variable y {
		model: linear(slope: 10, intercept: 100)
	}
	simulate { runs: 20 seed: 3 }
}`
	scenario, res := mustValidate(t, src)
	cfg := Config{Runs: 20, Seed: 3, Percentiles: []float64{50}}
	out, err := Run(context.Background(), scenario, res, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := out.Variables["y"][2028].Mean
	want := 100.0 + 10.0*float64(2028-2025)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("linear model at 2028 = %v, want %v", got, want)
	}
}

func TestRun_ParameterModulationShiftsVariable(t *testing.T) {
	src := `
scenario "mod" {
	timeframe: 2025 -> 2026
	parameter p {
		value: 50
	}
	variable x {
		2025: 100
		2026: 100
		depends_on: [p]
	}
	simulate { runs: 5 seed: 1 }
}`
	scenario, res := mustValidate(t, src)

	base := Config{Runs: 5, Seed: 1, Percentiles: []float64{50}}
	baseOut, err := Run(context.Background(), scenario, res, base)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if baseOut.Variables["x"][2026].Mean != 100 {
		t.Fatalf("expected no modulation with no override, got %v", baseOut.Variables["x"][2026].Mean)
	}

	overridden := Config{Runs: 5, Seed: 1, Percentiles: []float64{50}, ParameterDefaults: map[string]float64{"p": 25}}
	out, err := Run(context.Background(), scenario, res, overridden)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// delta = (50-25)/25 = 1.0, sensitivity default 0.30, ramp at final timestep = 1.0
	want := 100 * (1 + 0.30*1.0*1.0)
	got := out.Variables["x"][2026].Mean
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("modulated value = %v, want %v", got, want)
	}
}

func TestRun_BranchActivationRateAlwaysTrue(t *testing.T) {
	src := `
scenario "branch" {
	timeframe: 2025 -> 2026
	variable x {
		2025: 10
		2026: 10
	}
	branch "always" when x > 0 {
		probability: 1.0
	}
	simulate { runs: 10 seed: 1 }
}`
	scenario, res := mustValidate(t, src)
	cfg := Config{Runs: 10, Seed: 1, Percentiles: []float64{50}}
	out, err := Run(context.Background(), scenario, res, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	summary := out.Branches["always"]
	if summary.ActivationRate != 1.0 {
		t.Errorf("expected activation rate 1.0, got %v", summary.ActivationRate)
	}

	srcNever := `
scenario "branch2" {
	timeframe: 2025 -> 2026
	variable x {
		2025: 10
		2026: 10
	}
	branch "never" when x > 1000 {
		probability: 0.1
	}
	simulate { runs: 10 seed: 1 }
}`
	scenario2, res2 := mustValidate(t, srcNever)
	out2, err := Run(context.Background(), scenario2, res2, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out2.Branches["never"].ActivationRate != 0.0 {
		t.Errorf("expected activation rate 0.0, got %v", out2.Branches["never"].ActivationRate)
	}
}

func TestRun_SameSeedIsBitIdenticalAcrossInvocations(t *testing.T) {
	src := `
scenario "seeded" {
	timeframe: 2025 -> 2030
	variable x {
		2025: 50
		2030: 150
		uncertainty: normal(±10%)
	}
	simulate { runs: 30 seed: 99 }
}`
	scenario, res := mustValidate(t, src)
	cfg := Config{Runs: 30, Seed: 99, Percentiles: []float64{50}}

	out1, err := Run(context.Background(), scenario, res, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	out2, err := Run(context.Background(), scenario, res, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, yr := range out1.Timesteps {
		if out1.Variables["x"][yr].Mean != out2.Variables["x"][yr].Mean {
			t.Fatalf("same seed produced divergent means at year %d: %v vs %v",
				yr, out1.Variables["x"][yr].Mean, out2.Variables["x"][yr].Mean)
		}
	}
}

func TestRun_DifferentSeedsDiverge(t *testing.T) {
	src := `
scenario "seeded2" {
	timeframe: 2025 -> 2030
	variable x {
		2025: 50
		2030: 150
		uncertainty: normal(±10%)
	}
	simulate { runs: 30 seed: 1 }
}`
	scenario, res := mustValidate(t, src)
	cfgA := Config{Runs: 30, Seed: 1, Percentiles: []float64{50}}
	cfgB := Config{Runs: 30, Seed: 2, Percentiles: []float64{50}}

	outA, err := Run(context.Background(), scenario, res, cfgA)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	outB, err := Run(context.Background(), scenario, res, cfgB)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outA.Variables["x"][2030].Mean == outB.Variables["x"][2030].Mean {
		t.Fatal("distinct seeds should (overwhelmingly likely) diverge")
	}
}

func TestRun_ImpactDerivesFromVariable(t *testing.T) {
	src := `
scenario "impact" {
	timeframe: 2025 -> 2026
	variable x {
		2025: 10
		2026: 20
	}
	impact total {
		derives_from: [x]
		formula: x * 2
	}
	simulate { runs: 5 seed: 1 }
}`
	scenario, res := mustValidate(t, src)
	cfg := Config{Runs: 5, Seed: 1, Percentiles: []float64{50}}
	out, err := Run(context.Background(), scenario, res, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Impacts["total"][2026].Mean != 40 {
		t.Errorf("expected impact = 40, got %v", out.Impacts["total"][2026].Mean)
	}
}

func TestRun_CancelledContextFailsEveryRunAndIsFatal(t *testing.T) {
	src := `
scenario "cancel" {
	timeframe: 2025 -> 2026
	variable x {
		2025: 10
		2026: 20
	}
	simulate { runs: 8 seed: 1 }
}`
	scenario, res := mustValidate(t, src)
	cfg := Config{Runs: 8, Seed: 1, Percentiles: []float64{50}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, scenario, res, cfg)
	if err == nil {
		t.Fatal("expected a fatal error when every run is cancelled")
	}
}

func TestComputeStat_PercentilesAndBounds(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	stat := computeStat(vals, []float64{25, 50, 75})
	if stat.Min != 1 || stat.Max != 10 {
		t.Errorf("unexpected bounds: %+v", stat)
	}
	if stat.Median != 5 {
		t.Errorf("expected median 5 (nearest-rank), got %v", stat.Median)
	}
}

func TestCheckConvergence_StableHalvesConverge(t *testing.T) {
	first := []float64{100, 101, 99, 100}
	second := []float64{100, 100, 101, 99}
	diag := checkConvergence(first, second, 0.05)
	if !diag.Converged {
		t.Errorf("expected convergence for near-identical halves, got %+v", diag)
	}
}
