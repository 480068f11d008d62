// Package calibrate implements the Bayesian calibrator (spec.md §4.8): it
// applies conjugate normal-normal updates (or maximum-likelihood/ensemble
// alternatives) to a scenario's `normal` uncertainty priors using observed
// historical data, returning a new AST with the calibrated declarations
// replaced. The original AST is never mutated.
//
// Grounded directly on the closed-form update formulas in spec.md §4.8; the
// pack carries no Bayesian-updating analogue, so the math is implemented
// from the spec rather than adapted from an existing file.
package calibrate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/fetcher"
)

// Result records one target's calibration outcome, whether or not the
// update was actually applied.
type Result struct {
	Target                string
	OriginalDistribution  *ast.DistributionExpression
	CalibratedDistribution *ast.DistributionExpression
	DataPointsUsed        int
	PosteriorMean         float64
	PosteriorStd          float64
	Skipped               bool
	SkipReason            string
}

// parseWindow parses a duration literal like "5y" (years) or "6m" (months,
// approximated as 30 days) falling back to 0 (no trim) when unparseable.
func parseWindow(window string) time.Duration {
	if window == "" {
		return 0
	}
	n := len(window)
	unit := window[n-1]
	var mult time.Duration
	switch unit {
	case 'y', 'Y':
		mult = 365 * 24 * time.Hour
	case 'm', 'M':
		mult = 30 * 24 * time.Hour
	case 'd', 'D':
		mult = 24 * time.Hour
	default:
		return 0
	}
	var num float64
	if _, err := fmt.Sscanf(window[:n-1], "%f", &num); err != nil {
		return 0
	}
	return time.Duration(num * float64(mult))
}

// trimWindow returns the points at or after (latest - window), sorted by
// date ascending.
func trimWindow(points []fetcher.ObservedPoint, window time.Duration) []fetcher.ObservedPoint {
	if len(points) == 0 {
		return nil
	}
	sorted := make([]fetcher.ObservedPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	if window <= 0 {
		return sorted
	}
	latest := sorted[len(sorted)-1].Date
	cutoff := latest.Add(-window)
	var out []fetcher.ObservedPoint
	for _, p := range sorted {
		if !p.Date.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	std = math.Sqrt(ss / (n - 1))
	return mean, std
}

// priorMeanStd extracts (mu, sigma) from a normal prior distribution,
// resolving a relative `±p%` standard deviation against declaredValue.
func priorMeanStd(prior *ast.DistributionExpression, declaredValue float64) (mu, sigma float64, relative bool, err error) {
	if prior == nil || prior.Kind != ast.DistNormal {
		return 0, 0, false, fmt.Errorf("calibration requires a normal prior, got %v", prior)
	}
	if len(prior.Params) == 1 {
		rel, ok := prior.Params[0].(*ast.RelativeStdDevLiteral)
		if !ok {
			return 0, 0, false, fmt.Errorf("normal() with one argument must be a relative ±percent")
		}
		return declaredValue, math.Abs(declaredValue) * rel.Percent / 100, true, nil
	}
	if len(prior.Params) == 2 {
		mu, ok1 := numberOf(prior.Params[0])
		sigma, ok2 := numberOf(prior.Params[1])
		if !ok1 || !ok2 {
			return 0, 0, false, fmt.Errorf("normal(mu, sigma) requires numeric literals")
		}
		return mu, sigma, false, nil
	}
	return 0, 0, false, fmt.Errorf("malformed normal() prior")
}

func numberOf(e ast.Expression) (float64, bool) {
	switch n := e.(type) {
	case *ast.NumberLiteral:
		return n.Value, true
	case *ast.PercentageLiteral:
		return n.Value, true
	}
	return 0, false
}

// Update applies method to (priorMu, priorSigma) given n observations with
// sample mean/std, returning the posterior mean and std.
func Update(method ast.CalibrationMethod, priorMu, priorSigma float64, n int, obsMean, obsStd float64) (postMu, postSigma float64) {
	switch method {
	case ast.MethodMaximumLikelihood:
		return obsMean, obsStd
	case ast.MethodEnsemble:
		w := float64(n) / 20
		if w > 0.7 {
			w = 0.7
		}
		postMu = (1-w)*priorMu + w*obsMean
		postSigma = (1 - w*0.5) * priorSigma
		return postMu, postSigma
	default: // bayesian_update
		if priorSigma <= 0 || n == 0 {
			return priorMu, priorSigma
		}
		if obsStd <= 0 {
			// Observations with no spread carry no variance estimate of
			// their own; the prior's variance stands in for it.
			postMu = (priorMu + float64(n)*obsMean) / float64(n+1)
			postSigma = priorSigma / math.Sqrt(float64(n+1))
			return postMu, postSigma
		}
		tau := 1/(priorSigma*priorSigma) + float64(n)/(obsStd*obsStd)
		postMu = (priorMu/(priorSigma*priorSigma) + float64(n)*obsMean/(obsStd*obsStd)) / tau
		postSigma = math.Sqrt(1 / tau)
		return postMu, postSigma
	}
}

// rebuildDistribution rewrites a calibrated (mu, sigma) back into a
// DistributionExpression, preserving the prior's relative-vs-absolute
// encoding (spec.md §4.8 step 4).
func rebuildDistribution(original *ast.DistributionExpression, postMu, postSigma float64, relative bool) *ast.DistributionExpression {
	if relative {
		pct := 0.0
		if postMu != 0 {
			pct = 100 * postSigma / math.Abs(postMu)
		}
		return &ast.DistributionExpression{
			Header: original.Header,
			Kind:   ast.DistNormal,
			Params: []ast.Expression{&ast.RelativeStdDevLiteral{Header: original.Header, Percent: pct}},
		}
	}
	return &ast.DistributionExpression{
		Header: original.Header,
		Kind:   ast.DistNormal,
		Params: []ast.Expression{
			&ast.NumberLiteral{Header: original.Header, Value: postMu},
			&ast.NumberLiteral{Header: original.Header, Value: postSigma},
		},
	}
}

// declaredValue evaluates the target declaration's numeric "Value" field
// with no environment (assumptions' declared values are constant literals
// in every scenario the corpus exercises).
func declaredValue(target ast.Declaration) (float64, error) {
	var expr ast.Expression
	switch d := target.(type) {
	case *ast.Assumption:
		expr = d.Value
	default:
		return 0, fmt.Errorf("calibration target %q is not an assumption", target.DeclName())
	}
	switch n := expr.(type) {
	case *ast.NumberLiteral:
		return n.Value, nil
	case *ast.PercentageLiteral:
		return n.Value, nil
	case *ast.CurrencyLiteral:
		return n.Value, nil
	}
	return 0, fmt.Errorf("calibration target %q has a non-literal declared value", target.DeclName())
}

// Calibrate applies every `calibrate` declaration in scenario whose target
// has observed data in observed (keyed by target name). It returns a
// shallow copy of scenario with the calibrated declarations' Uncertainty
// fields replaced, plus one Result per calibrate directive in declaration
// order (spec.md §5: "calibrator applies targets in declaration order").
// Targets whose prior is not `normal`, or that have no observed data, are
// skipped (Result.Skipped == true) and left unchanged.
func Calibrate(scenario *ast.Scenario, observed map[string][]fetcher.ObservedPoint) (*ast.Scenario, []Result) {
	out := &ast.Scenario{
		Header:     scenario.Header,
		Name:       scenario.Name,
		StartYear:  scenario.StartYear,
		EndYear:    scenario.EndYear,
		Resolution: scenario.Resolution,
		Confidence: scenario.Confidence,
		Metadata:   scenario.Metadata,
		Decls:      append([]ast.Declaration{}, scenario.Decls...),
	}

	var results []Result
	for _, d := range scenario.Decls {
		cal, ok := d.(*ast.Calibrate)
		if !ok {
			continue
		}
		res := Result{Target: cal.Target}

		points, haveData := observed[cal.Target]
		if !haveData || len(points) == 0 {
			res.Skipped = true
			res.SkipReason = "no observed data for target"
			results = append(results, res)
			continue
		}

		targetIdx, targetDecl := findDeclaration(out.Decls, cal.Target)
		if targetDecl == nil {
			res.Skipped = true
			res.SkipReason = "target declaration not found"
			results = append(results, res)
			continue
		}
		assumption, ok := targetDecl.(*ast.Assumption)
		if !ok || assumption.Uncertainty == nil {
			res.Skipped = true
			res.SkipReason = "target has no uncertainty distribution to calibrate"
			results = append(results, res)
			continue
		}
		if assumption.Uncertainty.Kind != ast.DistNormal {
			res.Skipped = true
			res.SkipReason = fmt.Sprintf("only normal priors are calibrated, got %s", assumption.Uncertainty.Kind)
			res.OriginalDistribution = assumption.Uncertainty
			results = append(results, res)
			continue
		}

		declVal, err := declaredValue(assumption)
		if err != nil {
			res.Skipped = true
			res.SkipReason = err.Error()
			results = append(results, res)
			continue
		}

		priorMu, priorSigma, relative, err := priorMeanStd(assumption.Uncertainty, declVal)
		if err != nil {
			res.Skipped = true
			res.SkipReason = err.Error()
			results = append(results, res)
			continue
		}

		window := parseWindow(cal.Window)
		trimmed := trimWindow(points, window)
		xs := make([]float64, len(trimmed))
		for i, p := range trimmed {
			xs[i] = p.Value
		}
		obsMean, obsStd := meanStd(xs)

		postMu, postSigma := Update(cal.Method, priorMu, priorSigma, len(xs), obsMean, obsStd)

		calibrated := rebuildDistribution(assumption.Uncertainty, postMu, postSigma, relative)

		newAssumption := *assumption
		newAssumption.Uncertainty = calibrated
		out.Decls[targetIdx] = &newAssumption

		res.OriginalDistribution = assumption.Uncertainty
		res.CalibratedDistribution = calibrated
		res.DataPointsUsed = len(xs)
		res.PosteriorMean = postMu
		res.PosteriorStd = postSigma
		results = append(results, res)
	}

	return out, results
}

func findDeclaration(decls []ast.Declaration, name string) (int, ast.Declaration) {
	for i, d := range decls {
		if d.DeclName() == name {
			return i, d
		}
	}
	return -1, nil
}
