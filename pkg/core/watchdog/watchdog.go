// Package watchdog evaluates watch-rule conditions against observed vs.
// declared assumption values, emitting severity-tagged alerts (spec.md
// §4.9).
//
// Grounded on the teacher's calc/verifier.go pattern (compare an actual
// value against an expected one, collect a flagged result per rule)
// generalized from fixed balance-sheet/cash-flow checks to arbitrary
// boolean rule expressions over `actual`/`assumed`.
package watchdog

import (
	"fmt"
	"time"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/eval"
	"sdl/pkg/core/fetcher"
)

// Alert is one fired watch rule.
type Alert struct {
	Target    string
	Severity  ast.WatchSeverity
	Observed  float64
	Assumed   float64
	Rule      string
	Message   string
	Timestamp time.Time
}

// declaredValue resolves an assumption's literal declared value (same
// convention as pkg/core/calibrate).
func declaredValue(a *ast.Assumption) (float64, error) {
	switch n := a.Value.(type) {
	case *ast.NumberLiteral:
		return n.Value, nil
	case *ast.PercentageLiteral:
		return n.Value, nil
	case *ast.CurrencyLiteral:
		return n.Value, nil
	}
	return 0, fmt.Errorf("assumption %q has a non-literal declared value", a.Name)
}

// latestObserved returns the most recent point's value in points, and its
// timestamp.
func latestObserved(points []fetcher.ObservedPoint) (value float64, ts time.Time, ok bool) {
	if len(points) == 0 {
		return 0, time.Time{}, false
	}
	latest := points[0]
	for _, p := range points[1:] {
		if p.Date.After(latest.Date) {
			latest = p
		}
	}
	return latest.Value, latest.Date, true
}

func ruleString(cond ast.Expression) string {
	if be, ok := cond.(*ast.BinaryExpression); ok {
		return fmt.Sprintf("actual %s assumed", be.Op)
	}
	return "custom condition"
}

func evalRule(r ast.WatchRule, actual, assumed float64) (bool, error) {
	env := eval.Env{"actual": actual, "assumed": assumed}
	v, err := eval.Eval(r.Condition, env)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Evaluate walks every watch block in scenario (nested in an assumption;
// top-level watch blocks are skipped — spec.md's grammar gives them no
// target name to bind an `actual` series to, see DESIGN.md) and fires an
// Alert for every rule whose condition evaluates true against the target
// assumption's latest observed value and declared value. `warn` and
// `error` rules are independent; both may fire for the same target.
func Evaluate(scenario *ast.Scenario, observed map[string][]fetcher.ObservedPoint) ([]Alert, error) {
	var alerts []Alert
	for _, d := range scenario.Decls {
		a, ok := d.(*ast.Assumption)
		if !ok || a.Watch == nil {
			continue
		}
		points := observed[a.Name]
		observedVal, ts, ok := latestObserved(points)
		if !ok {
			continue
		}
		assumed, err := declaredValue(a)
		if err != nil {
			return nil, err
		}
		for _, rule := range a.Watch.Rules {
			fired, err := evalRule(rule, observedVal, assumed)
			if err != nil {
				return nil, fmt.Errorf("watch rule on %q: %w", a.Name, err)
			}
			if !fired {
				continue
			}
			alerts = append(alerts, Alert{
				Target:    a.Name,
				Severity:  rule.Severity,
				Observed:  observedVal,
				Assumed:   assumed,
				Rule:      ruleString(rule.Condition),
				Message:   fmt.Sprintf("%s: observed %.4g vs assumed %.4g (%s)", a.Name, observedVal, assumed, rule.Severity),
				Timestamp: ts,
			})
		}
	}
	return alerts, nil
}
