// Package parser implements a recursive-descent parser over the SDL token
// stream, producing a typed ast.Scenario and a diagnostic.Bag of
// best-effort error recovery diagnostics.
//
// Grounded on the pack's scenario-text-to-struct control flow
// (jhkimqd-chaos-utils/pkg/scenario/parser): collect diagnostics instead of
// aborting, resynchronise, and always return a usable (if partial) result.
package parser

import (
	"strconv"
	"strings"

	"sdl/pkg/core/ast"
	"sdl/pkg/core/diagnostic"
	"sdl/pkg/core/lexer"
	"sdl/pkg/core/token"
)

// Parser consumes a pre-lexed token stream and builds an ast.Scenario.
type Parser struct {
	toks  []token.Token
	pos   int
	diags *diagnostic.Bag
}

// ParseString lexes and parses src in one step.
func ParseString(src string) (*ast.Scenario, []diagnostic.Diagnostic) {
	var diags diagnostic.Bag
	l := lexer.New(src, &diags)
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	p := &Parser{toks: toks, diags: &diags}
	scenario := p.parseScenario()
	return scenario, diags.All()
}

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) peekAt(n int) token.Token {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[idx]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k token.Kind) (token.Token, bool) {
	if p.cur().Kind == k {
		return p.advance(), true
	}
	p.errUnexpected(k)
	return p.cur(), false
}

func (p *Parser) errUnexpected(want token.Kind) {
	t := p.cur()
	p.diags.Errorf(t.Span, diagnostic.CodeUnexpectedToken, "unexpected token %q, expected %s", t.Literal, want.String())
}

// syncToBraceOrTopLevel resynchronises on parse error: skip tokens until a
// closing '}' or a top-level declaration keyword is reached.
func (p *Parser) syncToBraceOrTopLevel() {
	depth := 0
	for {
		t := p.cur()
		if t.Kind == token.EOF {
			return
		}
		if t.Kind == token.LBrace {
			depth++
			p.advance()
			continue
		}
		if t.Kind == token.RBrace {
			if depth == 0 {
				return
			}
			depth--
			p.advance()
			continue
		}
		if depth == 0 && isTopLevelStart(t.Kind) {
			return
		}
		p.advance()
	}
}

func isTopLevelStart(k token.Kind) bool {
	switch k {
	case token.KwAssumption, token.KwParameter, token.KwVariable, token.KwImpact,
		token.KwBranch, token.KwCalibrate, token.KwWatch, token.KwSimulate, token.KwTimeframe:
		return true
	}
	return false
}

// ---------------------------------------------------------------------
// Scenario
// ---------------------------------------------------------------------

func (p *Parser) parseScenario() *ast.Scenario {
	start := p.cur().Span.Start
	if _, ok := p.expect(token.KwScenario); !ok {
		return nil
	}
	nameTok, _ := p.expect(token.String)
	scenario := &ast.Scenario{
		Name:       nameTok.Literal,
		Resolution: 1,
	}
	if _, ok := p.expect(token.LBrace); !ok {
		return scenario
	}

	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		switch p.cur().Kind {
		case token.KwTimeframe:
			p.parseTimeframe(scenario)
		case token.KwAssumption:
			scenario.Decls = append(scenario.Decls, p.parseAssumption())
		case token.KwParameter:
			scenario.Decls = append(scenario.Decls, p.parseParameter())
		case token.KwVariable:
			scenario.Decls = append(scenario.Decls, p.parseVariable())
		case token.KwImpact:
			scenario.Decls = append(scenario.Decls, p.parseImpact())
		case token.KwBranch:
			scenario.Decls = append(scenario.Decls, p.parseBranch())
		case token.KwCalibrate:
			scenario.Decls = append(scenario.Decls, p.parseCalibrate())
		case token.KwWatch:
			scenario.Decls = append(scenario.Decls, p.parseWatch(""))
		case token.KwSimulate:
			scenario.Decls = append(scenario.Decls, p.parseSimulate())
		case token.Ident:
			p.parseScenarioMetadataKV(scenario)
		default:
			p.errUnexpected(token.RBrace)
			p.syncToBraceOrTopLevel()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RBrace)
	scenario.Span = diagnostic.Span{Start: start, End: end}
	return scenario
}

func (p *Parser) parseTimeframe(scenario *ast.Scenario) {
	p.advance() // 'timeframe'
	p.expect(token.Colon)
	startTok, _ := p.expect(token.Int)
	p.expect(token.Arrow)
	endTok, _ := p.expect(token.Int)
	scenario.StartYear, _ = strconv.Atoi(startTok.Literal)
	scenario.EndYear, _ = strconv.Atoi(endTok.Literal)
}

func (p *Parser) parseScenarioMetadataKV(scenario *ast.Scenario) {
	key := p.advance().Literal
	p.expect(token.Colon)
	switch key {
	case "description":
		t, _ := p.expect(token.String)
		scenario.Metadata.Description = t.Literal
	case "author":
		t, _ := p.expect(token.String)
		scenario.Metadata.Author = t.Literal
	case "category":
		t, _ := p.expect(token.String)
		scenario.Metadata.Category = t.Literal
	case "tags":
		scenario.Metadata.Tags = p.parseStringList()
	case "confidence":
		scenario.Confidence = p.parseNumberValue()
	case "resolution":
		scenario.Resolution = int(p.parseNumberValue())
	default:
		// Unknown metadata key: consume the value expression and move on.
		p.parseExpr()
	}
}

// ---------------------------------------------------------------------
// Assumption
// ---------------------------------------------------------------------

func (p *Parser) parseAssumption() ast.Declaration {
	start := p.cur().Span.Start
	p.advance() // 'assumption'
	nameTok, _ := p.expect(token.Ident)
	a := &ast.Assumption{Name: nameTok.Literal}
	if _, ok := p.expect(token.LBrace); !ok {
		a.Span = diagnostic.Span{Start: start, End: p.cur().Span.End}
		return a
	}
	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		switch p.cur().Kind {
		case token.KwBind:
			a.Bind = p.parseBind()
		case token.KwWatch:
			w := p.parseWatch("")
			a.Watch = w
		case token.Ident:
			key := p.advance().Literal
			p.expect(token.Colon)
			switch key {
			case "value":
				a.Value = p.parseExpr()
			case "source":
				t, _ := p.expect(token.String)
				a.Source = t.Literal
			case "confidence":
				a.Confidence = p.parseNumberValue()
			case "uncertainty":
				a.Uncertainty = p.parseDistributionValue()
			default:
				p.parseExpr()
			}
		default:
			p.errUnexpected(token.RBrace)
			p.syncToBraceOrTopLevel()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RBrace)
	a.Span = diagnostic.Span{Start: start, End: end}
	return a
}

func (p *Parser) parseBind() *ast.Bind {
	start := p.cur().Span.Start
	p.advance() // 'bind'
	b := &ast.Bind{}
	if _, ok := p.expect(token.LBrace); !ok {
		return b
	}
	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		if p.cur().Kind != token.Ident {
			p.errUnexpected(token.RBrace)
			p.syncToBraceOrTopLevel()
			continue
		}
		key := p.advance().Literal
		p.expect(token.Colon)
		switch key {
		case "url":
			t, _ := p.expect(token.String)
			b.URL = t.Literal
		case "field":
			t, _ := p.expect(token.String)
			b.Field = t.Literal
		case "unit":
			t, _ := p.expect(token.String)
			b.Unit = t.Literal
		default:
			p.parseExpr()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RBrace)
	b.Span = diagnostic.Span{Start: start, End: end}
	return b
}

// ---------------------------------------------------------------------
// Parameter
// ---------------------------------------------------------------------

func (p *Parser) parseParameter() ast.Declaration {
	start := p.cur().Span.Start
	p.advance() // 'parameter'
	nameTok, _ := p.expect(token.Ident)
	param := &ast.Parameter{Name: nameTok.Literal, Control: "slider"}
	if _, ok := p.expect(token.LBrace); !ok {
		param.Span = diagnostic.Span{Start: start, End: p.cur().Span.End}
		return param
	}
	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		if p.cur().Kind != token.Ident {
			p.errUnexpected(token.RBrace)
			p.syncToBraceOrTopLevel()
			continue
		}
		key := p.advance().Literal
		p.expect(token.Colon)
		switch key {
		case "value":
			param.Value = p.parseExpr()
		case "min":
			param.Min = p.parseExpr()
		case "max":
			param.Max = p.parseExpr()
		case "step":
			param.Step = p.parseExpr()
		case "unit":
			t, _ := p.expect(token.String)
			param.Unit = t.Literal
		case "control":
			t, _ := p.expect(token.Ident)
			param.Control = t.Literal
		case "label":
			t, _ := p.expect(token.String)
			param.Label = t.Literal
		case "format":
			t, _ := p.expect(token.String)
			param.Format = t.Literal
		case "description":
			t, _ := p.expect(token.String)
			param.Description = t.Literal
		default:
			p.parseExpr()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RBrace)
	param.Span = diagnostic.Span{Start: start, End: end}
	return param
}

// ---------------------------------------------------------------------
// Variable
// ---------------------------------------------------------------------

func (p *Parser) parseVariable() ast.Declaration {
	start := p.cur().Span.Start
	p.advance() // 'variable'
	nameTok, _ := p.expect(token.Ident)
	v := &ast.Variable{Name: nameTok.Literal, NonNegative: true}
	if _, ok := p.expect(token.LBrace); !ok {
		v.Span = diagnostic.Span{Start: start, End: p.cur().Span.End}
		return v
	}
	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		switch p.cur().Kind {
		case token.Int:
			v.Timeseries = append(v.Timeseries, p.parseAnchor())
		case token.KwNonNegative:
			p.advance()
			p.expect(token.Colon)
			v.NonNegative = p.parseBoolValue()
			v.NonNegSet = true
		case token.Ident:
			key := p.advance().Literal
			p.expect(token.Colon)
			switch key {
			case "description":
				t, _ := p.expect(token.String)
				v.Description = t.Literal
			case "unit":
				t, _ := p.expect(token.String)
				v.Unit = t.Literal
			case "uncertainty":
				v.Uncertainty = p.parseDistributionValue()
			case "interpolation":
				t, _ := p.expect(token.Ident)
				v.Interpolation = t.Literal
			case "model":
				v.Model = p.parseModelValue()
			case "depends_on":
				v.DependsOn = p.parseStringList()
			case "sensitivity":
				v.Sensitivity = p.parseFloatObject()
			default:
				p.parseExpr()
			}
		default:
			p.errUnexpected(token.RBrace)
			p.syncToBraceOrTopLevel()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RBrace)
	v.Span = diagnostic.Span{Start: start, End: end}
	return v
}

func (p *Parser) parseAnchor() ast.Anchor {
	start := p.cur().Span.Start
	yearTok, _ := p.expect(token.Int)
	year, _ := strconv.Atoi(yearTok.Literal)
	p.expect(token.Colon)
	val := p.parseExpr()
	return ast.Anchor{
		Header: ast.Header{Span: diagnostic.Span{Start: start, End: p.cur().Span.Start}},
		Year:   year,
		Value:  val,
	}
}

// ---------------------------------------------------------------------
// Impact
// ---------------------------------------------------------------------

func (p *Parser) parseImpact() ast.Declaration {
	start := p.cur().Span.Start
	p.advance() // 'impact'
	nameTok, _ := p.expect(token.Ident)
	im := &ast.Impact{Name: nameTok.Literal}
	if _, ok := p.expect(token.LBrace); !ok {
		im.Span = diagnostic.Span{Start: start, End: p.cur().Span.End}
		return im
	}
	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		if p.cur().Kind != token.Ident {
			p.errUnexpected(token.RBrace)
			p.syncToBraceOrTopLevel()
			continue
		}
		key := p.advance().Literal
		p.expect(token.Colon)
		switch key {
		case "description":
			t, _ := p.expect(token.String)
			im.Description = t.Literal
		case "unit":
			t, _ := p.expect(token.String)
			im.Unit = t.Literal
		case "derives_from":
			im.DerivesFrom = p.parseStringList()
		case "formula":
			im.Formula = p.parseExpr()
		default:
			p.parseExpr()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RBrace)
	im.Span = diagnostic.Span{Start: start, End: end}
	if im.Formula == nil {
		p.diags.Errorf(im.Span, diagnostic.CodeMissingFormula, "impact %q is missing a required 'formula' field", im.Name)
	}
	return im
}

// ---------------------------------------------------------------------
// Branch
// ---------------------------------------------------------------------

func (p *Parser) parseBranch() ast.Declaration {
	start := p.cur().Span.Start
	p.advance() // 'branch'
	nameTok, _ := p.expect(token.String)
	b := &ast.Branch{Name: nameTok.Literal}
	if _, ok := p.expect(token.KwWhen); ok {
		b.When = p.parseExpr()
	}
	if _, ok := p.expect(token.LBrace); !ok {
		b.Span = diagnostic.Span{Start: start, End: p.cur().Span.End}
		return b
	}
	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		switch p.cur().Kind {
		case token.KwVariable:
			b.Overrides = append(b.Overrides, p.parseVariable())
		case token.Ident:
			key := p.advance().Literal
			p.expect(token.Colon)
			if key == "probability" {
				b.Probability = p.parseNumberValue()
			} else {
				p.parseExpr()
			}
		default:
			p.errUnexpected(token.RBrace)
			p.syncToBraceOrTopLevel()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RBrace)
	b.Span = diagnostic.Span{Start: start, End: end}
	return b
}

// ---------------------------------------------------------------------
// Calibrate
// ---------------------------------------------------------------------

func (p *Parser) parseCalibrate() ast.Declaration {
	start := p.cur().Span.Start
	p.advance() // 'calibrate'
	nameTok, _ := p.expect(token.Ident)
	c := &ast.Calibrate{Name: nameTok.Literal, Target: nameTok.Literal, Method: ast.MethodBayesianUpdate}
	if _, ok := p.expect(token.LBrace); !ok {
		c.Span = diagnostic.Span{Start: start, End: p.cur().Span.End}
		return c
	}
	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		if p.cur().Kind != token.Ident {
			p.errUnexpected(token.RBrace)
			p.syncToBraceOrTopLevel()
			continue
		}
		key := p.advance().Literal
		p.expect(token.Colon)
		switch key {
		case "target":
			t, _ := p.expect(token.Ident)
			c.Target = t.Literal
		case "url":
			t, _ := p.expect(token.String)
			c.URL = t.Literal
		case "method":
			t, _ := p.expect(token.Ident)
			c.Method = ast.CalibrationMethod(t.Literal)
		case "window":
			t, _ := p.expect(token.String)
			c.Window = t.Literal
		case "prior":
			c.Prior = p.parseDistributionValue()
		case "frequency":
			t, _ := p.expect(token.String)
			c.Frequency = t.Literal
		default:
			p.parseExpr()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RBrace)
	c.Span = diagnostic.Span{Start: start, End: end}
	return c
}

// ---------------------------------------------------------------------
// Watch
// ---------------------------------------------------------------------

func (p *Parser) parseWatch(name string) *ast.Watch {
	start := p.cur().Span.Start
	p.advance() // 'watch'
	w := &ast.Watch{Name: name}
	if _, ok := p.expect(token.LBrace); !ok {
		w.Span = diagnostic.Span{Start: start, End: p.cur().Span.End}
		return w
	}
	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		var sev ast.WatchSeverity
		switch p.cur().Kind {
		case token.KwWarn:
			sev = ast.SeverityWarn
		case token.KwError:
			sev = ast.SeverityError
		default:
			p.errUnexpected(token.RBrace)
			p.syncToBraceOrTopLevel()
			continue
		}
		ruleStart := p.cur().Span.Start
		p.advance()
		p.expect(token.KwWhen)
		p.expect(token.Colon)
		cond := p.parseExpr()
		w.Rules = append(w.Rules, ast.WatchRule{
			Header:    ast.Header{Span: diagnostic.Span{Start: ruleStart, End: p.cur().Span.Start}},
			Severity:  sev,
			Condition: cond,
		})
	}
	end := p.cur().Span.End
	p.expect(token.RBrace)
	w.Span = diagnostic.Span{Start: start, End: end}
	return w
}

// ---------------------------------------------------------------------
// Simulate
// ---------------------------------------------------------------------

func (p *Parser) parseSimulate() ast.Declaration {
	start := p.cur().Span.Start
	p.advance() // 'simulate'
	s := &ast.Simulate{Percentiles: []float64{5, 25, 50, 75, 95}}
	if _, ok := p.expect(token.LBrace); !ok {
		s.Span = diagnostic.Span{Start: start, End: p.cur().Span.End}
		return s
	}
	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		if p.cur().Kind != token.Ident {
			p.errUnexpected(token.RBrace)
			p.syncToBraceOrTopLevel()
			continue
		}
		key := p.advance().Literal
		p.expect(token.Colon)
		switch key {
		case "runs":
			s.Runs = int(p.parseNumberValue())
		case "seed":
			s.Seed = int64(p.parseNumberValue())
		case "percentiles":
			s.Percentiles = p.parseFloatList()
		case "convergence":
			s.Convergence = p.parseNumberValue()
			s.HasConvergence = true
		default:
			p.parseExpr()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RBrace)
	s.Span = diagnostic.Span{Start: start, End: end}
	return s
}

// ---------------------------------------------------------------------
// Shared value helpers
// ---------------------------------------------------------------------

func (p *Parser) parseNumberValue() float64 {
	expr := p.parseExpr()
	return literalNumber(expr)
}

func literalNumber(e ast.Expression) float64 {
	switch v := e.(type) {
	case *ast.NumberLiteral:
		return v.Value
	case *ast.PercentageLiteral:
		return v.Value
	case *ast.CurrencyLiteral:
		return v.Value
	case *ast.UnaryExpression:
		if v.Op == ast.OpNeg {
			return -literalNumber(v.Operand)
		}
	}
	return 0
}

func (p *Parser) parseBoolValue() bool {
	switch p.cur().Kind {
	case token.KwTrue:
		p.advance()
		return true
	case token.KwFalse:
		p.advance()
		return false
	}
	p.errUnexpected(token.KwTrue)
	return false
}

func (p *Parser) parseStringList() []string {
	var out []string
	if _, ok := p.expect(token.LBracket); !ok {
		return out
	}
	for p.cur().Kind != token.RBracket && p.cur().Kind != token.EOF {
		switch p.cur().Kind {
		case token.String:
			out = append(out, p.advance().Literal)
		case token.Ident:
			out = append(out, p.advance().Literal)
		default:
			p.advance()
		}
		if p.cur().Kind == token.Comma {
			p.advance()
		}
	}
	p.expect(token.RBracket)
	return out
}

func (p *Parser) parseFloatList() []float64 {
	var out []float64
	if _, ok := p.expect(token.LBracket); !ok {
		return out
	}
	for p.cur().Kind != token.RBracket && p.cur().Kind != token.EOF {
		out = append(out, literalNumber(p.parseExpr()))
		if p.cur().Kind == token.Comma {
			p.advance()
		}
	}
	p.expect(token.RBracket)
	return out
}

// parseFloatObject parses `{ ident: number, ... }` used by the
// per-dependency sensitivity-coefficient override (spec.md §4.5 /
// SPEC_FULL's supplemented `sensitivity` block).
func (p *Parser) parseFloatObject() map[string]float64 {
	out := map[string]float64{}
	if _, ok := p.expect(token.LBrace); !ok {
		return out
	}
	for p.cur().Kind != token.RBrace && p.cur().Kind != token.EOF {
		if p.cur().Kind != token.Ident {
			p.advance()
			continue
		}
		key := p.advance().Literal
		p.expect(token.Colon)
		out[key] = literalNumber(p.parseExpr())
		if p.cur().Kind == token.Comma {
			p.advance()
		}
	}
	p.expect(token.RBrace)
	return out
}

func (p *Parser) parseDistributionValue() *ast.DistributionExpression {
	expr := p.parseExpr()
	if d, ok := expr.(*ast.DistributionExpression); ok {
		return d
	}
	p.diags.Errorf(expr.GetSpan(), diagnostic.CodeInvalidDistribution, "expected a distribution expression")
	return nil
}

func (p *Parser) parseModelValue() *ast.ModelExpression {
	expr := p.parseExpr()
	if m, ok := expr.(*ast.ModelExpression); ok {
		return m
	}
	p.diags.Errorf(expr.GetSpan(), diagnostic.CodeInvalidDistribution, "expected a model expression")
	return nil
}

// ---------------------------------------------------------------------
// Expression parsing: precedence climbing.
// unary > ^ > * / > + - > comparisons > && > ||
// ---------------------------------------------------------------------

func (p *Parser) parseExpr() ast.Expression {
	return p.parseOr()
}

func (p *Parser) parseOr() ast.Expression {
	left := p.parseAnd()
	for p.cur().Kind == token.OrOr {
		start := left.GetSpan().Start
		p.advance()
		right := p.parseAnd()
		left = &ast.BinaryExpression{Header: ast.Header{Span: diagnostic.Span{Start: start, End: right.GetSpan().End}}, Op: ast.OpOr, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expression {
	left := p.parseComparison()
	for p.cur().Kind == token.AndAnd {
		start := left.GetSpan().Start
		p.advance()
		right := p.parseComparison()
		left = &ast.BinaryExpression{Header: ast.Header{Span: diagnostic.Span{Start: start, End: right.GetSpan().End}}, Op: ast.OpAnd, Left: left, Right: right}
	}
	return left
}

var comparisonOps = map[token.Kind]ast.BinaryOp{
	token.Lt: ast.OpLt, token.Gt: ast.OpGt, token.Le: ast.OpLe, token.Ge: ast.OpGe,
	token.EqEq: ast.OpEq, token.NotEq: ast.OpNeq,
}

func (p *Parser) parseComparison() ast.Expression {
	left := p.parseAdditive()
	if op, ok := comparisonOps[p.cur().Kind]; ok {
		start := left.GetSpan().Start
		p.advance()
		right := p.parseAdditive()
		left = &ast.BinaryExpression{Header: ast.Header{Span: diagnostic.Span{Start: start, End: right.GetSpan().End}}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expression {
	left := p.parseMultiplicative()
	for p.cur().Kind == token.Plus || p.cur().Kind == token.Minus {
		start := left.GetSpan().Start
		op := ast.OpAdd
		if p.cur().Kind == token.Minus {
			op = ast.OpSub
		}
		p.advance()
		right := p.parseMultiplicative()
		left = &ast.BinaryExpression{Header: ast.Header{Span: diagnostic.Span{Start: start, End: right.GetSpan().End}}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expression {
	left := p.parsePow()
	for p.cur().Kind == token.Star || p.cur().Kind == token.Slash {
		start := left.GetSpan().Start
		op := ast.OpMul
		if p.cur().Kind == token.Slash {
			op = ast.OpDiv
		}
		p.advance()
		right := p.parsePow()
		left = &ast.BinaryExpression{Header: ast.Header{Span: diagnostic.Span{Start: start, End: right.GetSpan().End}}, Op: op, Left: left, Right: right}
	}
	return left
}

// parsePow is right-associative: a^b^c == a^(b^c).
func (p *Parser) parsePow() ast.Expression {
	left := p.parseUnary()
	if p.cur().Kind == token.Caret {
		start := left.GetSpan().Start
		p.advance()
		right := p.parsePow()
		return &ast.BinaryExpression{Header: ast.Header{Span: diagnostic.Span{Start: start, End: right.GetSpan().End}}, Op: ast.OpPow, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expression {
	start := p.cur().Span.Start
	switch p.cur().Kind {
	case token.Minus:
		p.advance()
		operand := p.parseUnary()
		return &ast.UnaryExpression{Header: ast.Header{Span: diagnostic.Span{Start: start, End: operand.GetSpan().End}}, Op: ast.OpNeg, Operand: operand}
	case token.Bang:
		p.advance()
		operand := p.parseUnary()
		return &ast.UnaryExpression{Header: ast.Header{Span: diagnostic.Span{Start: start, End: operand.GetSpan().End}}, Op: ast.OpNot, Operand: operand}
	case token.PlusMinus:
		p.advance()
		percentTok, _ := p.expect(token.Percent)
		val, _ := strconv.ParseFloat(percentTok.Literal, 64)
		return &ast.RelativeStdDevLiteral{Header: ast.Header{Span: diagnostic.Span{Start: start, End: percentTok.Span.End}}, Percent: val}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() ast.Expression {
	t := p.cur()
	switch t.Kind {
	case token.Int:
		p.advance()
		v, _ := strconv.ParseFloat(t.Literal, 64)
		return &ast.NumberLiteral{Header: ast.Header{Span: t.Span}, Value: v}
	case token.Float:
		p.advance()
		v, _ := strconv.ParseFloat(t.Literal, 64)
		return &ast.NumberLiteral{Header: ast.Header{Span: t.Span}, Value: v}
	case token.Percent:
		p.advance()
		v, _ := strconv.ParseFloat(t.Literal, 64)
		return &ast.PercentageLiteral{Header: ast.Header{Span: t.Span}, Value: v}
	case token.Magnitude:
		p.advance()
		return parseMagnitudeLiteral(t)
	case token.String:
		p.advance()
		return &ast.StringLiteral{Header: ast.Header{Span: t.Span}, Value: t.Literal}
	case token.KwTrue:
		p.advance()
		return &ast.BooleanLiteral{Header: ast.Header{Span: t.Span}, Value: true}
	case token.KwFalse:
		p.advance()
		return &ast.BooleanLiteral{Header: ast.Header{Span: t.Span}, Value: false}
	case token.LParen:
		p.advance()
		inner := p.parseExpr()
		p.expect(token.RParen)
		return inner
	case token.Ident:
		name := t.Literal
		if token.DistributionNames[name] && p.peekAt(1).Kind == token.LParen {
			p.advance()
			return p.parseDistributionCall(name, t.Span.Start)
		}
		if token.ModelNames[name] && p.peekAt(1).Kind == token.LParen {
			p.advance()
			return p.parseModelCall(name, t.Span.Start)
		}
		p.advance()
		return &ast.Identifier{Header: ast.Header{Span: t.Span}, Name: name}
	}
	p.diags.Errorf(t.Span, diagnostic.CodeUnexpectedToken, "unexpected token %q in expression", t.Literal)
	p.advance()
	return &ast.NumberLiteral{Header: ast.Header{Span: t.Span}, Value: 0}
}

func parseMagnitudeLiteral(t token.Token) *ast.CurrencyLiteral {
	parts := strings.SplitN(t.Literal, "|", 3)
	v, _ := strconv.ParseFloat(parts[0], 64)
	mag := ast.Magnitude("")
	cur := ""
	if len(parts) > 1 {
		mag = ast.Magnitude(parts[1])
	}
	if len(parts) > 2 {
		cur = parts[2]
	}
	return &ast.CurrencyLiteral{Header: ast.Header{Span: t.Span}, Value: v, Magnitude: mag, Currency: cur}
}

func (p *Parser) parseDistributionCall(name string, start diagnostic.Position) ast.Expression {
	p.expect(token.LParen)
	var params []ast.Expression
	for p.cur().Kind != token.RParen && p.cur().Kind != token.EOF {
		params = append(params, p.parseExpr())
		if p.cur().Kind == token.Comma {
			p.advance()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RParen)
	return &ast.DistributionExpression{
		Header: ast.Header{Span: diagnostic.Span{Start: start, End: end}},
		Kind:   ast.DistributionKind(name),
		Params: params,
	}
}

func (p *Parser) parseModelCall(name string, start diagnostic.Position) ast.Expression {
	p.expect(token.LParen)
	named := map[string]ast.Expression{}
	var coeffs []ast.Expression
	for p.cur().Kind != token.RParen && p.cur().Kind != token.EOF {
		if p.cur().Kind == token.LBracket {
			coeffs = p.parseNumericBracketList()
		} else if p.cur().Kind == token.Ident && p.peekAt(1).Kind == token.Colon {
			key := p.advance().Literal
			p.advance() // ':'
			named[key] = p.parseExpr()
		} else {
			coeffs = append(coeffs, p.parseExpr())
		}
		if p.cur().Kind == token.Comma {
			p.advance()
		}
	}
	end := p.cur().Span.End
	p.expect(token.RParen)
	return &ast.ModelExpression{
		Header:       ast.Header{Span: diagnostic.Span{Start: start, End: end}},
		Kind:         ast.ModelKind(name),
		NamedParams:  named,
		Coefficients: coeffs,
	}
}

func (p *Parser) parseNumericBracketList() []ast.Expression {
	var out []ast.Expression
	p.expect(token.LBracket)
	for p.cur().Kind != token.RBracket && p.cur().Kind != token.EOF {
		out = append(out, p.parseExpr())
		if p.cur().Kind == token.Comma {
			p.advance()
		}
	}
	p.expect(token.RBracket)
	return out
}
