// Package engine implements the deterministic, seeded Monte Carlo
// simulation engine: per-run sampling of assumptions and variable
// uncertainty, parameter-sensitivity modulation of variable trajectories,
// topologically-ordered impact derivation, branch activation tracking, and
// cross-run aggregation with optional convergence diagnostics.
//
// Grounded on the teacher's pkg/core/projection engine's multi-stage
// ProjectYear pipeline (resolve inputs -> apply strategy -> clamp -> record)
// and pkg/core/calc/aggregation.go's percentile/summary style, generalized
// from a single deterministic projection to many independently-seeded
// stochastic runs executed across a worker pool.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/eval"
	"sdl/pkg/core/sampler"
	"sdl/pkg/core/validator"
)

// ProgressFunc is invoked as runs complete, for CLI/UI progress reporting.
type ProgressFunc func(completedRuns, totalRuns int)

// Config configures a simulation.
type Config struct {
	Runs              int
	Seed              int64
	Percentiles       []float64
	ConvergenceDelta   float64
	CheckConvergence  bool
	ParameterDefaults map[string]float64
	Workers           int
	OnProgress        ProgressFunc
}

// ConfigFromSimulate builds a Config from a parsed `simulate` block,
// layering in any parameter-default overrides supplied by the caller
// (e.g. from CLI flags or a saved scenario session).
func ConfigFromSimulate(s *ast.Simulate, parameterDefaults map[string]float64) Config {
	cfg := Config{
		Runs:              100,
		Seed:              0,
		Percentiles:       []float64{5, 25, 50, 75, 95},
		ParameterDefaults: parameterDefaults,
	}
	if s != nil {
		if s.Runs > 0 {
			cfg.Runs = s.Runs
		}
		cfg.Seed = s.Seed
		if len(s.Percentiles) > 0 {
			cfg.Percentiles = s.Percentiles
		}
		if s.HasConvergence {
			cfg.CheckConvergence = true
			cfg.ConvergenceDelta = s.Convergence
		}
	}
	return cfg
}

// RunResult is one Monte Carlo path's outcome.
type RunResult struct {
	RunID       string
	Assumptions map[string]float64
	Variables   map[string]map[int]float64
	Impacts     map[string]map[int]float64
	BranchActive map[string]bool
}

// Result is the aggregated outcome of a full simulation.
type Result struct {
	Timesteps   []int
	Variables   map[string]map[int]Stat
	Impacts     map[string]map[int]Stat
	Assumptions map[string]Stat
	Branches    map[string]BranchSummary
	Convergence map[string]ConvergenceDiagnostic
	Runs        []RunResult
}

type paramResolution struct {
	current  map[string]float64
	baseline map[string]float64
}

func resolveParameters(scenario *ast.Scenario, defaults map[string]float64) (paramResolution, error) {
	current := map[string]float64{}
	baseline := map[string]float64{}
	env := eval.Env{}
	for _, d := range scenario.Decls {
		p, ok := d.(*ast.Parameter)
		if !ok {
			continue
		}
		v, err := eval.Eval(p.Value, env)
		if err != nil {
			return paramResolution{}, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		current[p.Name] = v
		if override, ok := defaults[p.Name]; ok {
			baseline[p.Name] = override
		} else {
			baseline[p.Name] = v
		}
	}
	return paramResolution{current: current, baseline: baseline}, nil
}

// Run executes cfg.Runs independent Monte Carlo paths over scenario and
// returns the cross-run aggregate. valResult must be a successful
// validator.Validate(scenario) result (valResult.Valid == true).
func Run(ctx context.Context, scenario *ast.Scenario, valResult *validator.Result, cfg Config) (*Result, error) {
	if !valResult.Valid {
		return nil, fmt.Errorf("cannot simulate an invalid scenario")
	}
	if cfg.Runs <= 0 {
		return nil, fmt.Errorf("runs must be positive, got %d", cfg.Runs)
	}

	timesteps := scenario.Timesteps()
	if len(timesteps) == 0 {
		return nil, fmt.Errorf("scenario has an empty timeframe")
	}
	t0, tN := timesteps[0], timesteps[len(timesteps)-1]

	params, err := resolveParameters(scenario, cfg.ParameterDefaults)
	if err != nil {
		return nil, err
	}
	order := valResult.CausalGraph.TopologicalOrder()

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > cfg.Runs {
		workers = cfg.Runs
	}

	results := make([]RunResult, cfg.Runs)
	errs := make([]error, cfg.Runs)

	jobs := make(chan int)
	var wg sync.WaitGroup
	var completed int
	var mu sync.Mutex

	worker := func() {
		defer wg.Done()
		for idx := range jobs {
			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				continue
			default:
			}
			rr, err := executeRun(scenario, valResult, order, params, timesteps, t0, tN, idx, cfg.Seed)
			results[idx] = rr
			errs[idx] = err

			mu.Lock()
			completed++
			n := completed
			mu.Unlock()
			if cfg.OnProgress != nil {
				cfg.OnProgress(n, cfg.Runs)
			}
		}
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}
	for i := 0; i < cfg.Runs; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	succeeded := make([]RunResult, 0, cfg.Runs)
	failures := 0
	for i, e := range errs {
		if e != nil {
			failures++
			continue
		}
		succeeded = append(succeeded, results[i])
	}
	if failures > cfg.Runs/2 {
		return nil, fmt.Errorf("simulation aborted: %d of %d runs failed", failures, cfg.Runs)
	}

	return aggregate(scenario, timesteps, succeeded, cfg), nil
}

func executeRun(
	scenario *ast.Scenario,
	valResult *validator.Result,
	order []string,
	params paramResolution,
	timesteps []int,
	t0, tN int,
	runIndex int,
	seed int64,
) (RunResult, error) {
	rootRNG := sampler.RootSeedForRun(seed, runIndex)
	env := eval.Env{}

	rr := RunResult{
		RunID:        uuid.NewString(),
		Assumptions:  map[string]float64{},
		Variables:    map[string]map[int]float64{},
		Impacts:      map[string]map[int]float64{},
		BranchActive: map[string]bool{},
	}

	// Assumptions and parameters are time-invariant: resolve them once,
	// ahead of the per-timestep evolution loop.
	for _, name := range order {
		sym, ok := valResult.SymbolTable.Lookup(name)
		if !ok {
			continue
		}
		switch d := sym.Decl.(type) {
		case *ast.Assumption:
			base, err := eval.Eval(d.Value, env)
			if err != nil {
				return rr, fmt.Errorf("assumption %q: %w", d.Name, err)
			}
			val := base
			if d.Uncertainty != nil {
				dist, err := sampler.FromAST(d.Uncertainty, env)
				if err != nil {
					return rr, fmt.Errorf("assumption %q uncertainty: %w", d.Name, err)
				}
				rng := rootRNG.SubNamed("assumption:" + d.Name)
				val = dist.Sample(rng, base)
			}
			env[name] = val
			rr.Assumptions[name] = val
		case *ast.Parameter:
			env[name] = params.current[name]
		}
	}

	for _, t := range timesteps {
		for _, name := range order {
			sym, ok := valResult.SymbolTable.Lookup(name)
			if !ok {
				continue
			}
			switch d := sym.Decl.(type) {
			case *ast.Variable:
				baseline, err := variableBaseline(d, env, t, t0)
				if err != nil {
					return rr, fmt.Errorf("variable %q at year %d: %w", d.Name, t, err)
				}
				baseline = modulate(d, baseline, t, t0, tN, params.current, params.baseline)

				val := baseline
				if d.Uncertainty != nil {
					dist, err := sampler.FromAST(d.Uncertainty, env)
					if err != nil {
						return rr, fmt.Errorf("variable %q uncertainty: %w", d.Name, err)
					}
					rng := rootRNG.SubNamed(d.Name, int64(t))
					val = dist.Sample(rng, baseline)
				}
				if d.NonNegative && val < 0 {
					val = 0
				}
				env[name] = val
				if rr.Variables[name] == nil {
					rr.Variables[name] = map[int]float64{}
				}
				rr.Variables[name][t] = val

			case *ast.Impact:
				val, err := eval.Eval(d.Formula, env)
				if err != nil {
					return rr, fmt.Errorf("impact %q at year %d: %w", d.Name, t, err)
				}
				env[name] = val
				if rr.Impacts[name] == nil {
					rr.Impacts[name] = map[int]float64{}
				}
				rr.Impacts[name][t] = val

			case *ast.Branch:
				if t != tN {
					continue
				}
				active, err := evalBranchActive(d, env)
				if err != nil {
					return rr, fmt.Errorf("branch %q: %w", d.Name, err)
				}
				rr.BranchActive[name] = active
			}
		}
	}

	return rr, nil
}

func variableBaseline(v *ast.Variable, env eval.Env, t, t0 int) (float64, error) {
	if v.Model != nil {
		params, err := evalModelParams(v.Model, env)
		if err != nil {
			return 0, err
		}
		return evalModelAt(v.Model, params, t, t0, env)
	}
	anchors, err := resolveAnchors(v, env)
	if err != nil {
		return 0, err
	}
	kind := v.Interpolation
	if kind == "" {
		kind = "linear"
	}
	return interpolate(anchors, kind, t), nil
}
