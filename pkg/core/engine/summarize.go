package engine

import "sdl/pkg/core/ast"

// aggregate reduces per-run results into cross-run statistics, per variable
// and impact series, per assumption, and per branch, plus an optional
// split-halves convergence check on each variable's final-timestep mean.
func aggregate(scenario *ast.Scenario, timesteps []int, runs []RunResult, cfg Config) *Result {
	res := &Result{
		Timesteps:   timesteps,
		Variables:   map[string]map[int]Stat{},
		Impacts:     map[string]map[int]Stat{},
		Assumptions: map[string]Stat{},
		Branches:    map[string]BranchSummary{},
		Convergence: map[string]ConvergenceDiagnostic{},
		Runs:        runs,
	}

	var variableNames, impactNames, assumptionNames, branchNames []string
	for _, d := range scenario.Decls {
		switch v := d.(type) {
		case *ast.Variable:
			variableNames = append(variableNames, v.Name)
		case *ast.Impact:
			impactNames = append(impactNames, v.Name)
		case *ast.Assumption:
			assumptionNames = append(assumptionNames, v.Name)
		case *ast.Branch:
			branchNames = append(branchNames, v.Name)
		}
	}

	for _, name := range variableNames {
		res.Variables[name] = map[int]Stat{}
		for _, t := range timesteps {
			vals := make([]float64, 0, len(runs))
			for _, r := range runs {
				if v, ok := r.Variables[name][t]; ok {
					vals = append(vals, v)
				}
			}
			res.Variables[name][t] = computeStat(vals, cfg.Percentiles)
		}
		if cfg.CheckConvergence && len(timesteps) > 0 {
			res.Convergence[name] = convergenceForVariable(runs, name, timesteps[len(timesteps)-1], cfg.ConvergenceDelta)
		}
	}

	for _, name := range impactNames {
		res.Impacts[name] = map[int]Stat{}
		for _, t := range timesteps {
			vals := make([]float64, 0, len(runs))
			for _, r := range runs {
				if v, ok := r.Impacts[name][t]; ok {
					vals = append(vals, v)
				}
			}
			res.Impacts[name][t] = computeStat(vals, cfg.Percentiles)
		}
	}

	for _, name := range assumptionNames {
		vals := make([]float64, 0, len(runs))
		for _, r := range runs {
			if v, ok := r.Assumptions[name]; ok {
				vals = append(vals, v)
			}
		}
		res.Assumptions[name] = computeStat(vals, cfg.Percentiles)
	}

	for _, d := range scenario.Decls {
		b, ok := d.(*ast.Branch)
		if !ok {
			continue
		}
		activated := 0
		for _, r := range runs {
			if r.BranchActive[b.Name] {
				activated++
			}
		}
		total := len(runs)
		rate := 0.0
		if total > 0 {
			rate = float64(activated) / float64(total)
		}
		res.Branches[b.Name] = BranchSummary{
			DeclaredProbability: b.Probability,
			ActivationRate:      rate,
			ActivatedRuns:       activated,
			TotalRuns:           total,
		}
	}

	return res
}

func convergenceForVariable(runs []RunResult, name string, finalT int, threshold float64) ConvergenceDiagnostic {
	n := len(runs)
	mid := n / 2
	first := make([]float64, 0, mid)
	second := make([]float64, 0, n-mid)
	for i, r := range runs {
		v, ok := r.Variables[name][finalT]
		if !ok {
			continue
		}
		if i < mid {
			first = append(first, v)
		} else {
			second = append(second, v)
		}
	}
	return checkConvergence(first, second, threshold)
}
