// Command sdl is the SDL toolchain CLI: parse, validate, simulate, and run
// the Pulse data pipeline against an SDL scenario file.
//
// Grounded on the teacher's services/calc-engine/main.go flag.String +
// mode-switch shape, extended to a subcommand dispatch (run, pulse).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/config"
	"sdl/pkg/core/engine"
	"sdl/pkg/core/fetcher"
	"sdl/pkg/core/orchestrator"
	"sdl/pkg/core/parser"
	"sdl/pkg/core/pulsestore"
	"sdl/pkg/core/validator"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "run":
		os.Exit(runCmd(os.Args[2:]))
	case "pulse":
		os.Exit(pulseCmd(os.Args[2:]))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sdl <run|pulse> <file.sdl> [flags]")
}

func loadScenario(path string) (*ast.Scenario, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[error] reading %s: %v\n", path, err)
		return nil, 1
	}
	scenario, diags := parser.ParseString(string(data))
	var hasError bool
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "%s\n", d.String())
		if d.Severity == "error" {
			hasError = true
		}
	}
	if hasError || scenario == nil {
		return nil, 1
	}
	return scenario, 0
}

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "sdl.config.yaml", "path to config file")
	runs := fs.Int("runs", 0, "override number of Monte Carlo runs")
	seed := fs.Int64("seed", 0, "override RNG seed")
	seedSet := false
	reportPath := fs.String("report", "", "write a Markdown percentile/branch-activation report to this path")
	fs.Parse(args)
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seedSet = true
		}
	})
	if fs.NArg() < 1 {
		usage()
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[error] loading config: %v\n", err)
		return 1
	}

	scenario, code := loadScenario(fs.Arg(0))
	if code != 0 {
		return code
	}

	valResult := validator.Validate(scenario)
	for _, d := range valResult.Diagnostics {
		fmt.Fprintf(os.Stderr, "%s\n", d.String())
	}
	if !valResult.Valid {
		return 1
	}

	var simDecl *ast.Simulate
	for _, d := range scenario.Decls {
		if s, ok := d.(*ast.Simulate); ok {
			simDecl = s
			break
		}
	}
	simCfg := engine.ConfigFromSimulate(simDecl, nil)
	if simDecl == nil {
		simCfg.Runs = cfg.Simulation.Runs
		simCfg.Seed = cfg.Simulation.Seed
		simCfg.Percentiles = cfg.Simulation.Percentiles
	}
	if *runs > 0 {
		simCfg.Runs = *runs
	}
	if seedSet {
		simCfg.Seed = *seed
	}

	fmt.Fprintf(os.Stderr, "[run] simulating %q: %d runs, seed=%d\n", scenario.Name, simCfg.Runs, simCfg.Seed)

	result, err := engine.Run(context.Background(), scenario, valResult, simCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[error] simulation failed: %v\n", err)
		return 2
	}

	report := renderReport(scenario, result)
	fmt.Print(report)

	if *reportPath != "" {
		if err := writeMarkdownReport(*reportPath, report); err != nil {
			fmt.Fprintf(os.Stderr, "[error] writing report: %v\n", err)
			return 2
		}
	}
	return 0
}

func pulseCmd(args []string) int {
	fs := flag.NewFlagSet("pulse", flag.ExitOnError)
	configPath := fs.String("config", "sdl.config.yaml", "path to config file")
	skipFetch := fs.Bool("skip-fetch", false, "skip the fetch stage")
	skipCalibrate := fs.Bool("skip-calibrate", false, "skip the calibrate stage")
	skipWatch := fs.Bool("skip-watch", false, "skip the watch stage")
	fs.Parse(args)
	if fs.NArg() < 1 {
		usage()
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[error] loading config: %v\n", err)
		return 1
	}

	scenario, code := loadScenario(fs.Arg(0))
	if code != 0 {
		return code
	}

	var adapters []fetcher.Adapter
	if cfg.Adapters.Eurostat {
		adapters = append(adapters, fetcher.NewEurostatAdapter())
	}
	if cfg.Adapters.WorldBank {
		adapters = append(adapters, fetcher.NewWorldBankAdapter())
	}
	if cfg.Adapters.Fallback {
		adapters = append(adapters, fetcher.NewFallbackAdapter())
	}
	registry := fetcher.NewRegistry(adapters...).WithTimeout(cfg.Fetcher.Timeout())

	ctx := context.Background()
	var cache orchestrator.Cache
	if err := pulsestore.Init(ctx); err == nil {
		if err := pulsestore.EnsureSchema(ctx); err == nil {
			cache = pulsestore.NewDBCache(ctx)
			defer pulsestore.Close()
		}
	}
	if cache == nil {
		cache = pulsestore.NewMemoryCache()
	}

	res := orchestrator.Pulse(ctx, scenario, registry, orchestrator.Options{
		SkipFetch:     *skipFetch,
		SkipCalibrate: *skipCalibrate,
		SkipWatch:     *skipWatch,
		Cache:         cache,
	})

	fmt.Printf("[pulse] fetch id %s, live=%v, fetched %d series, %d errors\n",
		res.FetchID, res.IsLive, len(res.Observed), len(res.Errors))
	for _, e := range res.Errors {
		fmt.Printf("  [fetch-error] %s (%s): %v\n", e.Target, e.URL, e.Err)
	}
	for _, c := range res.Calibrations {
		if c.Skipped {
			fmt.Printf("  [calibrate] %s skipped: %s\n", c.Target, c.SkipReason)
			continue
		}
		fmt.Printf("  [calibrate] %s: posterior mean=%.4g std=%.4g (n=%d)\n", c.Target, c.PosteriorMean, c.PosteriorStd, c.DataPointsUsed)
	}
	for _, a := range res.Alerts {
		fmt.Printf("  [%s] %s\n", a.Severity, a.Message)
	}
	return 0
}

func renderReport(scenario *ast.Scenario, result *engine.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", scenario.Name)
	fmt.Fprintf(&b, "Runs: %d | Timesteps: %v\n\n", len(result.Runs), result.Timesteps)

	names := make([]string, 0, len(result.Variables))
	for n := range result.Variables {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "## variable %s\n\n", name)
		fmt.Fprintf(&b, "| year | mean | std | p5 | p50 | p95 |\n|---|---|---|---|---|---|\n")
		for _, t := range result.Timesteps {
			s := result.Variables[name][t]
			fmt.Fprintf(&b, "| %d | %.4g | %.4g | %.4g | %.4g | %.4g |\n",
				t, s.Mean, s.Std, s.Percentiles[5], s.Percentiles[50], s.Percentiles[95])
		}
		fmt.Fprintln(&b)
	}

	impactNames := make([]string, 0, len(result.Impacts))
	for n := range result.Impacts {
		impactNames = append(impactNames, n)
	}
	sort.Strings(impactNames)
	for _, name := range impactNames {
		fmt.Fprintf(&b, "## impact %s\n\n", name)
		fmt.Fprintf(&b, "| year | mean | std | p5 | p50 | p95 |\n|---|---|---|---|---|---|\n")
		for _, t := range result.Timesteps {
			s := result.Impacts[name][t]
			fmt.Fprintf(&b, "| %d | %.4g | %.4g | %.4g | %.4g | %.4g |\n",
				t, s.Mean, s.Std, s.Percentiles[5], s.Percentiles[50], s.Percentiles[95])
		}
		fmt.Fprintln(&b)
	}

	branchNames := make([]string, 0, len(result.Branches))
	for n := range result.Branches {
		branchNames = append(branchNames, n)
	}
	sort.Strings(branchNames)
	if len(branchNames) > 0 {
		fmt.Fprintf(&b, "## branch activation\n\n")
		fmt.Fprintf(&b, "| branch | declared p | activation rate |\n|---|---|---|\n")
		for _, name := range branchNames {
			s := result.Branches[name]
			fmt.Fprintf(&b, "| %s | %.2f | %.2f |\n", name, s.DeclaredProbability, s.ActivationRate)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintf(&b, "_generated %s_\n", time.Now().UTC().Format(time.RFC3339))
	return b.String()
}

// writeMarkdownReport validates report is well-formed Markdown by round-
// tripping it through goldmark before writing it to disk.
func writeMarkdownReport(path, report string) error {
	var discard strings.Builder
	if err := goldmark.Convert([]byte(report), &discard); err != nil {
		return fmt.Errorf("report failed markdown validation: %w", err)
	}
	return os.WriteFile(path, []byte(report), 0o644)
}
