// Package orchestrator composes the Pulse pipeline: fetch observed data for
// every bind/calibrate target, calibrate uncertainty priors against it, and
// evaluate watch rules — a single entry point returning a structured
// PulseResult that never aborts on partial failure (spec.md §4.10, §7).
//
// Grounded on the teacher's pkg/core/debate/manager.go composition style:
// run several phases, collect per-phase state into one struct rather than
// returning early on the first failure.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/calibrate"
	"sdl/pkg/core/fetcher"
	"sdl/pkg/core/watchdog"
)

// Cache is consulted for each target before it is fetched over the network,
// and updated after a successful fetch — the same read-through/write-through
// shape as the teacher's pkg/core/edgar/adapter.go consulting edgar/cache.go
// before hitting EDGAR. Both pulsestore.MemoryCache and pulsestore.DBCache
// satisfy this interface.
type Cache interface {
	Get(target, sourceURL string) ([]fetcher.ObservedPoint, bool)
	Put(target, sourceURL string, points []fetcher.ObservedPoint)
}

// Options configures one Pulse run. Each stage is individually skippable.
// Cache is optional; when nil every target is fetched over the network.
type Options struct {
	SkipFetch     bool
	SkipCalibrate bool
	SkipWatch     bool
	Cache         Cache
}

// FetchError records a single target's fetch failure without aborting the
// others (spec.md §7: "Network failure ... per-target error entry; other
// targets unaffected").
type FetchError struct {
	Target string
	URL    string
	Err    error
}

// PulseResult is the outcome of one orchestrator.Pulse invocation.
type PulseResult struct {
	FetchID       string
	Observed      map[string][]fetcher.ObservedPoint
	Errors        []FetchError
	Alerts        []watchdog.Alert
	Calibrations  []calibrate.Result
	CalibratedAST *ast.Scenario
	FetchedAt     time.Time
	IsLive        bool
}

// target pairs a declaration name with the URL to fetch for it, derived
// from either an assumption's `bind` block or a `calibrate` directive.
type target struct {
	name string
	cfg  fetcher.AdapterConfig
}

func extractTargets(scenario *ast.Scenario) []target {
	var out []target
	for _, d := range scenario.Decls {
		switch v := d.(type) {
		case *ast.Assumption:
			if v.Bind == nil {
				continue
			}
			out = append(out, target{
				name: v.Name,
				cfg: fetcher.AdapterConfig{
					SourceURL: v.Bind.URL,
					Field:     v.Bind.Field,
					TargetID:  v.Name,
					Unit:      v.Bind.Unit,
				},
			})
		case *ast.Calibrate:
			if v.URL == "" {
				continue
			}
			out = append(out, target{
				name: v.Target,
				cfg: fetcher.AdapterConfig{
					SourceURL: v.URL,
					TargetID:  v.Target,
				},
			})
		}
	}
	return out
}

// Pulse runs fetch -> calibrate -> watch over scenario. It never returns a
// non-nil error for partial failure; fetch failures land in
// PulseResult.Errors, and the orchestrator always returns a populated
// result. ctx cancellation aborts outstanding fetches and returns an empty
// result (spec.md §5 cancellation model).
func Pulse(ctx context.Context, scenario *ast.Scenario, registry *fetcher.Registry, opts Options) PulseResult {
	result := PulseResult{
		FetchID:   uuid.NewString(),
		Observed:  map[string][]fetcher.ObservedPoint{},
		FetchedAt: time.Now(),
	}

	if opts.SkipFetch {
		return result
	}

	targets := extractTargets(scenario)

	var misses []target
	for _, t := range targets {
		if opts.Cache != nil {
			if pts, ok := opts.Cache.Get(t.name, t.cfg.SourceURL); ok {
				result.Observed[t.name] = pts
				continue
			}
		}
		misses = append(misses, t)
	}

	cfgs := make([]fetcher.AdapterConfig, len(misses))
	for i, t := range misses {
		cfgs[i] = t.cfg
	}

	fetchResults := registry.FetchAll(ctx, cfgs)

	select {
	case <-ctx.Done():
		return PulseResult{FetchID: result.FetchID, Observed: map[string][]fetcher.ObservedPoint{}, FetchedAt: result.FetchedAt}
	default:
	}

	for i, fr := range fetchResults {
		t := misses[i]
		if fr.Err != nil {
			result.Errors = append(result.Errors, FetchError{Target: t.name, URL: t.cfg.SourceURL, Err: fr.Err})
			continue
		}
		result.Observed[t.name] = fr.Points
		if opts.Cache != nil {
			opts.Cache.Put(t.name, t.cfg.SourceURL, fr.Points)
		}
	}
	result.IsLive = len(result.Observed) > 0 && len(result.Errors) == 0

	calibratedAST := scenario
	if !opts.SkipCalibrate {
		newAST, calResults := calibrate.Calibrate(scenario, result.Observed)
		calibratedAST = newAST
		result.Calibrations = calResults
	}
	result.CalibratedAST = calibratedAST

	if !opts.SkipWatch {
		alerts, err := watchdog.Evaluate(scenario, result.Observed)
		if err == nil {
			result.Alerts = alerts
		}
	}

	return result
}
