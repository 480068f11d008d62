// Package ast defines the typed abstract syntax tree produced by the SDL
// parser. Node variants are modelled as a closed set of structs
// implementing a marker interface per category, the same shape the
// teacher's projection.ProjectionStrategy family uses for its pluggable
// calculation strategies (one struct per variant, one shared interface).
package ast

import "sdl/pkg/core/diagnostic"

// Header is embedded in every node and carries its source span.
type Header struct {
	Span diagnostic.Span
}

func (h Header) GetSpan() diagnostic.Span { return h.Span }

// Node is implemented by every AST node.
type Node interface {
	GetSpan() diagnostic.Span
}

// Scenario is the single top-level unit of an SDL document.
type Scenario struct {
	Header
	Name       string
	StartYear  int
	EndYear    int
	Resolution int // years per timestep; spec.md fixes this at 1 (yearly)
	Confidence float64
	Metadata   Metadata
	Decls      []Declaration
}

// Metadata holds descriptive, non-semantic scenario attributes.
type Metadata struct {
	Author      string
	Description string
	Tags        []string
	Category    string
}

// Timesteps returns the sequence [StartYear, StartYear+Resolution, ..., EndYear].
func (s *Scenario) Timesteps() []int {
	if s.Resolution <= 0 {
		return nil
	}
	var out []int
	for y := s.StartYear; y <= s.EndYear; y += s.Resolution {
		out = append(out, y)
	}
	return out
}

// Declaration is implemented by every declaration variant.
type Declaration interface {
	Node
	DeclName() string
	declaration()
}

// Assumption is a named external fact with a declared value and optional
// uncertainty, live data binding, and watch rules.
type Assumption struct {
	Header
	Name        string
	Value       Expression
	Source      string
	Confidence  float64
	Uncertainty *DistributionExpression
	Bind        *Bind
	Watch       *Watch
}

func (a *Assumption) DeclName() string { return a.Name }
func (*Assumption) declaration()       {}

// Bind declares a live data source for an assumption or calibrate target.
type Bind struct {
	Header
	URL   string
	Field string
	Unit  string
}

// Parameter is a user-controllable lever compared against a baseline.
type Parameter struct {
	Header
	Name        string
	Value       Expression
	Min         Expression
	Max         Expression
	Step        Expression
	Unit        string
	Control     string // "slider"
	Label       string
	Format      string
	Description string
}

func (p *Parameter) DeclName() string { return p.Name }
func (*Parameter) declaration()       {}

// Variable is a time-evolving series: either a sparse anchor timeseries
// (optionally interpolated) or a growth Model, perturbed by Uncertainty.
type Variable struct {
	Header
	Name          string
	Description   string
	Unit          string
	Uncertainty   *DistributionExpression
	Interpolation string // "linear" | "spline"
	Model         *ModelExpression
	Timeseries    []Anchor
	DependsOn     []string
	NonNegative   bool // defaults to true unless explicitly disabled (Open Question b)
	NonNegSet     bool // whether non_negative was set explicitly
	Sensitivity   map[string]float64
}

func (v *Variable) DeclName() string { return v.Name }
func (*Variable) declaration()       {}

// Anchor is a single (year, value) point in a variable's sparse timeseries.
type Anchor struct {
	Header
	Year  int
	Value Expression
}

// Impact is a quantity derived from variables/assumptions/parameters via an
// arithmetic Formula, evaluated at every timestep.
type Impact struct {
	Header
	Name        string
	Description string
	Unit        string
	DerivesFrom []string
	Formula     Expression
}

func (i *Impact) DeclName() string { return i.Name }
func (*Impact) declaration()       {}

// Branch is an alternative trajectory that activates in a run iff When
// evaluates true at the final timestep.
type Branch struct {
	Header
	Name        string
	When        Expression
	Probability float64
	Overrides   []Declaration // nested overriding declarations (typically Variable anchor overrides)
}

func (b *Branch) DeclName() string { return b.Name }
func (*Branch) declaration()       {}

// CalibrationMethod enumerates supported posterior-update strategies.
type CalibrationMethod string

const (
	MethodBayesianUpdate   CalibrationMethod = "bayesian_update"
	MethodMaximumLikelihood CalibrationMethod = "maximum_likelihood"
	MethodEnsemble         CalibrationMethod = "ensemble"
)

// Calibrate directs the calibrator to update a target's prior distribution
// using observed historical data.
type Calibrate struct {
	Header
	Name      string // directive name (also the Target when no `target:` key is given)
	Target    string
	URL       string
	Method    CalibrationMethod
	Window    string // duration literal, e.g. "5y"
	Prior     *DistributionExpression
	Frequency string
}

func (c *Calibrate) DeclName() string { return c.Name }
func (*Calibrate) declaration()       {}

// WatchSeverity classifies a watch rule.
type WatchSeverity string

const (
	SeverityWarn  WatchSeverity = "warn"
	SeverityError WatchSeverity = "error"
)

// WatchRule pairs a severity with a boolean condition over `actual`/`assumed`.
type WatchRule struct {
	Header
	Severity  WatchSeverity
	Condition Expression
}

// Watch is a rule set, nested in an assumption or declared at top level.
type Watch struct {
	Header
	Name  string // empty for assumption-nested watch blocks
	Rules []WatchRule
}

func (w *Watch) DeclName() string { return w.Name }
func (*Watch) declaration()       {}

// Simulate configures a Monte Carlo run.
type Simulate struct {
	Header
	Runs        int
	Seed        int64
	Percentiles []float64
	Convergence float64
	HasConvergence bool
}

func (s *Simulate) DeclName() string { return "simulate" }
func (*Simulate) declaration()       {}
