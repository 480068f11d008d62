// Package validator performs semantic analysis over a parsed ast.Scenario:
// symbol-table construction, reference resolution, time-window checks,
// cycle detection over the causal graph, and distribution/type sanity
// checks.
//
// Grounded on the teacher's pkg/core/projection/selector.go dependency
// resolution pattern (walk declared driver references, fail loudly on an
// unresolved one), generalized into a full topological sort.
package validator

import (
	"sort"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/diagnostic"
)

// SymbolKind classifies a resolved symbol-table entry.
type SymbolKind string

const (
	SymAssumption SymbolKind = "assumption"
	SymParameter  SymbolKind = "parameter"
	SymVariable   SymbolKind = "variable"
	SymImpact     SymbolKind = "impact"
	SymBranch     SymbolKind = "branch"
)

// Symbol is one resolved declaration entry.
type Symbol struct {
	Name string
	Kind SymbolKind
	Decl ast.Declaration
}

// SymbolTable maps declaration names to their resolved Symbol.
type SymbolTable struct {
	byName map[string]Symbol
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{byName: map[string]Symbol{}}
}

// Lookup returns the Symbol named name, or ok=false.
func (st *SymbolTable) Lookup(name string) (Symbol, bool) {
	s, ok := st.byName[name]
	return s, ok
}

// Names returns every declared symbol name.
func (st *SymbolTable) Names() []string {
	out := make([]string, 0, len(st.byName))
	for n := range st.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// CausalGraph is the dependency DAG induced by depends_on/derives_from/
// branch-when/impact-formula references.
type CausalGraph struct {
	edges map[string][]string // name -> names it depends on
	order []string            // topological order, populated on success
}

// DependsOn returns the names node depends on.
func (g *CausalGraph) DependsOn(node string) []string {
	return g.edges[node]
}

// TopologicalOrder returns declaration names ordered so that every name
// appears after everything it depends on. Valid only when validation
// succeeded without a cyclic-dependency diagnostic.
func (g *CausalGraph) TopologicalOrder() []string {
	return g.order
}

// Result is the outcome of validating a Scenario.
type Result struct {
	Valid       bool
	Diagnostics []diagnostic.Diagnostic
	SymbolTable *SymbolTable
	CausalGraph *CausalGraph
}

// Validate performs all semantic checks over scenario and returns a Result.
func Validate(scenario *ast.Scenario) *Result {
	var diags diagnostic.Bag
	st := newSymbolTable()

	buildSymbolTable(scenario, &diags, st)
	checkTimeWindow(scenario, &diags)
	graph := buildCausalGraph(scenario, st, &diags)
	resolveReferences(scenario, st, &diags)
	checkDistributions(scenario, &diags)
	checkBooleanContexts(scenario, st, &diags)

	order, cycle := topoSort(graph)
	if cycle != nil {
		diags.Errorf(scenario.Span, diagnostic.CodeCyclicDependency,
			"cyclic dependency detected among: %v", cycle)
	} else {
		graph.order = order
	}

	return &Result{
		Valid:       !diags.HasErrors(),
		Diagnostics: diags.All(),
		SymbolTable: st,
		CausalGraph: graph,
	}
}

func buildSymbolTable(scenario *ast.Scenario, diags *diagnostic.Bag, st *SymbolTable) {
	register := func(name string, kind SymbolKind, decl ast.Declaration, span diagnostic.Span) {
		if name == "" {
			return
		}
		if _, exists := st.byName[name]; exists {
			diags.Errorf(span, diagnostic.CodeDuplicateName, "declaration %q is already defined", name)
			return
		}
		st.byName[name] = Symbol{Name: name, Kind: kind, Decl: decl}
	}

	for _, d := range scenario.Decls {
		switch v := d.(type) {
		case *ast.Assumption:
			register(v.Name, SymAssumption, v, v.Span)
		case *ast.Parameter:
			register(v.Name, SymParameter, v, v.Span)
		case *ast.Variable:
			register(v.Name, SymVariable, v, v.Span)
		case *ast.Impact:
			register(v.Name, SymImpact, v, v.Span)
		case *ast.Branch:
			register(v.Name, SymBranch, v, v.Span)
		}
	}
}

func checkTimeWindow(scenario *ast.Scenario, diags *diagnostic.Bag) {
	if scenario.StartYear > scenario.EndYear {
		diags.Errorf(scenario.Span, diagnostic.CodeTypeMismatch,
			"timeframe start year %d is after end year %d", scenario.StartYear, scenario.EndYear)
		return
	}
	for _, d := range scenario.Decls {
		v, ok := d.(*ast.Variable)
		if !ok {
			continue
		}
		for _, a := range v.Timeseries {
			if a.Year < scenario.StartYear || a.Year > scenario.EndYear {
				diags.Errorf(a.Span, diagnostic.CodeOutOfWindowAnchor,
					"variable %q has an anchor at year %d outside the scenario window [%d, %d]",
					v.Name, a.Year, scenario.StartYear, scenario.EndYear)
			}
		}
	}
}

// identifiersIn walks expr collecting every free Identifier name referenced.
func identifiersIn(expr ast.Expression, out map[string]bool) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *ast.Identifier:
		out[e.Name] = true
	case *ast.BinaryExpression:
		identifiersIn(e.Left, out)
		identifiersIn(e.Right, out)
	case *ast.UnaryExpression:
		identifiersIn(e.Operand, out)
	case *ast.ConditionalExpression:
		identifiersIn(e.Condition, out)
		identifiersIn(e.Then, out)
		identifiersIn(e.Else, out)
	case *ast.DistributionExpression:
		for _, p := range e.Params {
			identifiersIn(p, out)
		}
	case *ast.ModelExpression:
		for _, p := range e.NamedParams {
			identifiersIn(p, out)
		}
		for _, c := range e.Coefficients {
			identifiersIn(c, out)
		}
	}
}

func buildCausalGraph(scenario *ast.Scenario, st *SymbolTable, diags *diagnostic.Bag) *CausalGraph {
	g := &CausalGraph{edges: map[string][]string{}}
	for _, d := range scenario.Decls {
		switch v := d.(type) {
		case *ast.Variable:
			g.edges[v.Name] = append(g.edges[v.Name], v.DependsOn...)
		case *ast.Impact:
			deps := map[string]bool{}
			for _, n := range v.DerivesFrom {
				deps[n] = true
			}
			identifiersIn(v.Formula, deps)
			names := make([]string, 0, len(deps))
			for n := range deps {
				names = append(names, n)
			}
			g.edges[v.Name] = names
		case *ast.Branch:
			deps := map[string]bool{}
			identifiersIn(v.When, deps)
			names := make([]string, 0, len(deps))
			for n := range deps {
				names = append(names, n)
			}
			g.edges[v.Name] = names
		}
	}
	// Ensure every symbol-table entry has a (possibly empty) adjacency so
	// topoSort visits every node.
	for _, name := range st.Names() {
		if _, ok := g.edges[name]; !ok {
			g.edges[name] = nil
		}
	}
	return g
}

// topoSort returns a deterministic topological order, or the first cycle
// found (as a slice of member names) if the graph is not acyclic.
func topoSort(g *CausalGraph) (order []string, cycle []string) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var names []string
	for n := range g.edges {
		names = append(names, n)
	}
	sort.Strings(names)

	var path []string
	var visit func(n string) []string
	visit = func(n string) []string {
		color[n] = gray
		path = append(path, n)
		deps := append([]string{}, g.edges[n]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, known := g.edges[dep]; !known {
				continue // unresolved reference; reported separately
			}
			switch color[dep] {
			case white:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			case gray:
				// found a cycle; slice path from dep's first occurrence
				for i, p := range path {
					if p == dep {
						return append(append([]string{}, path[i:]...), dep)
					}
				}
				return []string{dep}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		order = append(order, n)
		return nil
	}

	for _, n := range names {
		if color[n] == white {
			if cyc := visit(n); cyc != nil {
				return nil, cyc
			}
		}
	}
	return order, nil
}

func resolveReferences(scenario *ast.Scenario, st *SymbolTable, diags *diagnostic.Bag) {
	checkName := func(name string, span diagnostic.Span) {
		if _, ok := st.Lookup(name); !ok {
			diags.Errorf(span, diagnostic.CodeUnknownName, "undefined reference %q", name)
		}
	}
	checkExprIdents := func(expr ast.Expression, span diagnostic.Span) {
		ids := map[string]bool{}
		identifiersIn(expr, ids)
		for name := range ids {
			checkName(name, span)
		}
	}

	for _, d := range scenario.Decls {
		switch v := d.(type) {
		case *ast.Variable:
			for _, dep := range v.DependsOn {
				checkName(dep, v.Span)
			}
		case *ast.Impact:
			for _, dep := range v.DerivesFrom {
				checkName(dep, v.Span)
			}
			checkExprIdents(v.Formula, v.Span)
		case *ast.Branch:
			checkExprIdents(v.When, v.Span)
		case *ast.Calibrate:
			checkName(v.Target, v.Span)
		}
	}
}

// numericLiteral returns the value of e when it is a bare number literal,
// so distribution-parameter checks can catch obviously-bad constants without
// having to evaluate arbitrary expressions.
func numericLiteral(e ast.Expression) (float64, bool) {
	n, ok := e.(*ast.NumberLiteral)
	if !ok {
		return 0, false
	}
	return n.Value, true
}

func checkDistributions(scenario *ast.Scenario, diags *diagnostic.Bag) {
	check := func(d *ast.DistributionExpression) {
		if d == nil {
			return
		}
		switch d.Kind {
		case ast.DistNormal:
			if len(d.Params) == 1 {
				if _, ok := d.Params[0].(*ast.RelativeStdDevLiteral); !ok {
					diags.Errorf(d.Span, diagnostic.CodeInvalidDistribution,
						"normal() with one argument requires a relative ±percent standard deviation")
				}
			} else if len(d.Params) != 2 {
				diags.Errorf(d.Span, diagnostic.CodeInvalidDistribution,
					"normal() requires either (±percent) or (mean, stddev)")
			}
		case ast.DistLognormal:
			if len(d.Params) != 2 {
				diags.Errorf(d.Span, diagnostic.CodeInvalidDistribution, "lognormal(mu, sigma) requires two arguments")
			} else if sigma, ok := numericLiteral(d.Params[1]); ok && sigma <= 0 {
				diags.Errorf(d.Span, diagnostic.CodeInvalidDistribution, "lognormal(mu, sigma) requires sigma > 0")
			}
		case ast.DistBeta:
			if len(d.Params) != 2 {
				diags.Errorf(d.Span, diagnostic.CodeInvalidDistribution, "beta(alpha, beta) requires two positive arguments")
			} else {
				alpha, alphaOK := numericLiteral(d.Params[0])
				beta, betaOK := numericLiteral(d.Params[1])
				if (alphaOK && alpha <= 0) || (betaOK && beta <= 0) {
					diags.Errorf(d.Span, diagnostic.CodeInvalidDistribution, "beta(alpha, beta) requires two positive arguments")
				}
			}
		case ast.DistUniform:
			if len(d.Params) != 2 {
				diags.Errorf(d.Span, diagnostic.CodeInvalidDistribution, "uniform(a, b) requires two arguments")
			} else {
				a, aOK := numericLiteral(d.Params[0])
				b, bOK := numericLiteral(d.Params[1])
				if aOK && bOK && b <= a {
					diags.Errorf(d.Span, diagnostic.CodeInvalidDistribution, "uniform(a, b) requires b > a")
				}
			}
		case ast.DistTriangular:
			if len(d.Params) != 3 {
				diags.Errorf(d.Span, diagnostic.CodeInvalidDistribution, "triangular(a, b, c) requires three arguments")
			}
		default:
			diags.Errorf(d.Span, diagnostic.CodeInvalidDistribution, "unknown distribution %q", d.Kind)
		}
	}
	for _, d := range scenario.Decls {
		switch v := d.(type) {
		case *ast.Assumption:
			check(v.Uncertainty)
		case *ast.Variable:
			check(v.Uncertainty)
		case *ast.Calibrate:
			check(v.Prior)
		}
	}
}

// checkBooleanContexts ensures branch `when` conditions and watch-rule
// conditions are boolean-producing expressions (comparisons/logical ops),
// not bare arithmetic.
func checkBooleanContexts(scenario *ast.Scenario, st *SymbolTable, diags *diagnostic.Bag) {
	var checkBool func(e ast.Expression)
	checkBool = func(e ast.Expression) {
		switch v := e.(type) {
		case *ast.BinaryExpression:
			switch v.Op {
			case ast.OpLt, ast.OpGt, ast.OpLe, ast.OpGe, ast.OpEq, ast.OpNeq, ast.OpAnd, ast.OpOr:
				return
			}
		case *ast.UnaryExpression:
			if v.Op == ast.OpNot {
				return
			}
		case *ast.BooleanLiteral:
			return
		}
		diags.Errorf(e.GetSpan(), diagnostic.CodeTypeMismatch,
			"expected a boolean-producing expression, got %T", e)
	}

	var walkWatch func(w *ast.Watch)
	walkWatch = func(w *ast.Watch) {
		if w == nil {
			return
		}
		for _, r := range w.Rules {
			checkBool(r.Condition)
		}
	}

	for _, d := range scenario.Decls {
		switch v := d.(type) {
		case *ast.Branch:
			if v.When != nil {
				checkBool(v.When)
			}
		case *ast.Watch:
			walkWatch(v)
		case *ast.Assumption:
			walkWatch(v.Watch)
		}
	}
}
