package calibrate

import (
	"testing"
	"time"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/fetcher"
)

func points(vals ...float64) []fetcher.ObservedPoint {
	out := make([]fetcher.ObservedPoint, len(vals))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range vals {
		out[i] = fetcher.ObservedPoint{Date: base.AddDate(0, 0, i), Value: v, Source: "test"}
	}
	return out
}

func scenarioWithCalibratedAssumption(priorPercent float64) *ast.Scenario {
	assumption := &ast.Assumption{
		Name:  "inflation",
		Value: &ast.NumberLiteral{Value: 100},
		Uncertainty: &ast.DistributionExpression{
			Kind:   ast.DistNormal,
			Params: []ast.Expression{&ast.RelativeStdDevLiteral{Percent: priorPercent}},
		},
	}
	calibrate := &ast.Calibrate{
		Name:   "calibrate_inflation",
		Target: "inflation",
		URL:    "https://ec.europa.eu/eurostat/x",
		Method: ast.MethodBayesianUpdate,
	}
	return &ast.Scenario{
		Name:      "S",
		StartYear: 2025,
		EndYear:   2030,
		Decls:     []ast.Declaration{assumption, calibrate},
	}
}

func TestCalibrate_BayesianUpdate_ObservedAtPriorMean(t *testing.T) {
	scenario := scenarioWithCalibratedAssumption(15)
	observed := map[string][]fetcher.ObservedPoint{
		"inflation": points(100, 100, 100, 100),
	}
	_, results := Calibrate(scenario, observed)
	if len(results) != 1 {
		t.Fatalf("expected 1 calibration result, got %d", len(results))
	}
	res := results[0]
	if res.Skipped {
		t.Fatalf("expected calibration to run, got skipped: %s", res.SkipReason)
	}
	if res.PosteriorMean != 100 {
		t.Errorf("expected posterior mean to equal prior mean exactly when observed == prior mean, got %v", res.PosteriorMean)
	}
	priorSigma := 100 * 15.0 / 100
	if res.PosteriorStd >= priorSigma {
		t.Errorf("expected posterior std (%v) < prior std (%v)", res.PosteriorStd, priorSigma)
	}
}

func TestCalibrate_BayesianUpdate_MovesTowardObservedMean(t *testing.T) {
	scenario := scenarioWithCalibratedAssumption(15)
	observed := map[string][]fetcher.ObservedPoint{
		"inflation": points(95, 98, 103, 105),
	}
	newAST, results := Calibrate(scenario, observed)
	res := results[0]
	if res.Skipped {
		t.Fatalf("expected calibration to run, got skipped: %s", res.SkipReason)
	}
	priorMean := 100.0
	obsMean := (95.0 + 98.0 + 103.0 + 105.0) / 4
	distToObs := abs(res.PosteriorMean - obsMean)
	distToPrior := abs(res.PosteriorMean - priorMean)
	if distToObs >= distToPrior {
		t.Errorf("expected posterior mean %v closer to observed mean %v than to prior mean %v", res.PosteriorMean, obsMean, priorMean)
	}

	// original AST must not be mutated
	origAssumption := scenario.Decls[0].(*ast.Assumption)
	origDist := origAssumption.Uncertainty.Params[0].(*ast.RelativeStdDevLiteral)
	if origDist.Percent != 15 {
		t.Errorf("original AST was mutated: prior percent is now %v", origDist.Percent)
	}

	newAssumption := newAST.Decls[0].(*ast.Assumption)
	if newAssumption.Uncertainty == origAssumption.Uncertainty {
		t.Error("expected calibrated AST to hold a new Uncertainty node, not the original pointer")
	}
}

func TestCalibrate_SkipsNonNormalPrior(t *testing.T) {
	scenario := &ast.Scenario{
		Name: "S",
		Decls: []ast.Declaration{
			&ast.Assumption{
				Name:  "x",
				Value: &ast.NumberLiteral{Value: 10},
				Uncertainty: &ast.DistributionExpression{
					Kind:   ast.DistUniform,
					Params: []ast.Expression{&ast.NumberLiteral{Value: 5}, &ast.NumberLiteral{Value: 15}},
				},
			},
			&ast.Calibrate{Name: "c", Target: "x", URL: "https://example.com", Method: ast.MethodBayesianUpdate},
		},
	}
	_, results := Calibrate(scenario, map[string][]fetcher.ObservedPoint{"x": points(10, 11, 9)})
	if !results[0].Skipped {
		t.Fatal("expected a uniform prior to be skipped, not calibrated")
	}
}

func TestCalibrate_SkipsWhenNoObservedData(t *testing.T) {
	scenario := scenarioWithCalibratedAssumption(15)
	_, results := Calibrate(scenario, map[string][]fetcher.ObservedPoint{})
	if !results[0].Skipped {
		t.Fatal("expected calibration to skip when no observed data is present")
	}
}

func TestUpdate_MaximumLikelihood_ReturnsSampleStats(t *testing.T) {
	mu, sigma := Update(ast.MethodMaximumLikelihood, 100, 15, 3, 90, 5)
	if mu != 90 || sigma != 5 {
		t.Errorf("expected MLE to return observed mean/std verbatim, got (%v, %v)", mu, sigma)
	}
}

func TestUpdate_Ensemble_WeightCapsAtPoint7(t *testing.T) {
	mu, _ := Update(ast.MethodEnsemble, 100, 15, 1000, 50, 5)
	// w caps at 0.7, so posterior mean must stay within [50,100] but never
	// reach pure observed mean.
	if mu <= 50 || mu >= 100 {
		t.Errorf("expected capped-weight ensemble posterior between prior and observed means, got %v", mu)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
