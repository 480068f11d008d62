package lexer

import (
	"testing"

	"sdl/pkg/core/diagnostic"
	"sdl/pkg/core/token"
)

func scanAll(src string) ([]token.Token, *diagnostic.Bag) {
	var diags diagnostic.Bag
	l := New(src, &diags)
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return toks, &diags
}

func TestLexer_Keywords(t *testing.T) {
	toks, diags := scanAll(`scenario variable impact branch when simulate`)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	want := []token.Kind{token.KwScenario, token.KwVariable, token.KwImpact, token.KwBranch, token.KwWhen, token.KwSimulate, token.EOF}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(toks))
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: expected %v, got %v", i, k, toks[i].Kind)
		}
	}
}

func TestLexer_Numbers(t *testing.T) {
	toks, diags := scanAll(`100 2.5 10% 5M 3MUSD`)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	if toks[0].Kind != token.Int || toks[0].Literal != "100" {
		t.Errorf("expected Int 100, got %v %q", toks[0].Kind, toks[0].Literal)
	}
	if toks[1].Kind != token.Float || toks[1].Literal != "2.5" {
		t.Errorf("expected Float 2.5, got %v %q", toks[1].Kind, toks[1].Literal)
	}
	if toks[2].Kind != token.Percent || toks[2].Literal != "10" {
		t.Errorf("expected Percent 10, got %v %q", toks[2].Kind, toks[2].Literal)
	}
	if toks[3].Kind != token.Magnitude || toks[3].Literal != "5|M|" {
		t.Errorf("expected Magnitude 5|M|, got %v %q", toks[3].Kind, toks[3].Literal)
	}
	if toks[4].Kind != token.Magnitude || toks[4].Literal != "3|M|USD" {
		t.Errorf("expected Magnitude 3|M|USD, got %v %q", toks[4].Kind, toks[4].Literal)
	}
}

func TestLexer_StringEscapes(t *testing.T) {
	toks, diags := scanAll(`"hello \"world\"\n"`)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	if toks[0].Literal != "hello \"world\"\n" {
		t.Errorf("unexpected literal: %q", toks[0].Literal)
	}
}

func TestLexer_UnterminatedString(t *testing.T) {
	_, diags := scanAll(`"unterminated`)
	if !diags.HasErrors() {
		t.Fatal("expected unterminated-string diagnostic")
	}
	if diags.All()[0].Code != diagnostic.CodeUnterminatedString {
		t.Errorf("expected CodeUnterminatedString, got %v", diags.All()[0].Code)
	}
}

func TestLexer_Operators(t *testing.T) {
	toks, diags := scanAll(`+ - * / ^ < > <= >= == != && || ! -> ±`)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	want := []token.Kind{
		token.Plus, token.Minus, token.Star, token.Slash, token.Caret,
		token.Lt, token.Gt, token.Le, token.Ge, token.EqEq, token.NotEq,
		token.AndAnd, token.OrOr, token.Bang, token.Arrow, token.PlusMinus, token.EOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(toks))
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: expected %v, got %v", i, k, toks[i].Kind)
		}
	}
}

func TestLexer_CommentsElided(t *testing.T) {
	toks, diags := scanAll("variable // a comment\n x /* block */ y")
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	want := []token.Kind{token.KwVariable, token.Ident, token.Ident, token.EOF}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(toks), toks)
	}
}

func TestLexer_SpanOffsetsRecoverSource(t *testing.T) {
	src := `scenario "x"`
	toks, _ := scanAll(src)
	for _, tk := range toks {
		if tk.Kind == token.EOF {
			continue
		}
		got := src[tk.Span.Start.Offset:tk.Span.End.Offset]
		if tk.Kind == token.String {
			if got != `"x"` {
				t.Errorf("string token span mismatch: got %q", got)
			}
			continue
		}
		if got != tk.Literal && token.LookupIdent(tk.Literal) == token.Ident {
			t.Errorf("span mismatch for %v: src=%q literal=%q", tk.Kind, got, tk.Literal)
		}
	}
}
