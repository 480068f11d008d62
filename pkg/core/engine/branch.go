package engine

import (
	"sdl/pkg/core/ast"
	"sdl/pkg/core/eval"
)

// BranchSummary aggregates one branch's activation across all completed runs.
type BranchSummary struct {
	DeclaredProbability float64
	ActivationRate      float64
	ActivatedRuns       int
	TotalRuns           int
}

// evalBranchActive evaluates a branch's `when` condition against the final
// timestep's environment. Branches are activation-rate reporting only: a
// branch's Overrides are parsed and validated but not substituted into the
// run's variable series.
//
// TODO: apply Overrides to the evolving environment for runs where the
// branch activates, once a documented precedence rule exists for branches
// that overlap on the same variable.
func evalBranchActive(b *ast.Branch, env eval.Env) (bool, error) {
	if b.When == nil {
		return false, nil
	}
	v, err := eval.Eval(b.When, env)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
