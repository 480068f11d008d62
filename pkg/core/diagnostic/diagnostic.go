// Package diagnostic defines the span and diagnostic types shared by the
// lexer, parser and validator.
package diagnostic

import "fmt"

// Position is a single point in source text.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

// Span is a half-open range [Start, End) in source text.
type Span struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Severity classifies a Diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Code identifies the kind of diagnostic, stable across versions.
type Code string

const (
	CodeUnterminatedString  Code = "lex/unterminated-string"
	CodeInvalidNumericSfx   Code = "lex/invalid-numeric-suffix"
	CodeStrayCharacter      Code = "lex/stray-character"
	CodeUnexpectedToken     Code = "parse/unexpected-token"
	CodeMissingFormula      Code = "parse/missing-formula"
	CodeDuplicateName       Code = "validate/duplicate-name"
	CodeUnknownName         Code = "validate/unknown-name"
	CodeCyclicDependency    Code = "validate/cyclic-dependency"
	CodeOutOfWindowAnchor   Code = "validate/out-of-window-anchor"
	CodeTypeMismatch        Code = "validate/type-mismatch"
	CodeInvalidDistribution Code = "validate/invalid-distribution"
)

// Diagnostic is a single error, warning or informational message tied to a
// location in source text.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Span     Span     `json:"span"`
	Hint     string   `json:"hint,omitempty"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s[%s] %d:%d: %s", d.Severity, d.Code, d.Span.Start.Line, d.Span.Start.Column, d.Message)
}

// Bag accumulates diagnostics during lexing, parsing and validation.
type Bag struct {
	items []Diagnostic
}

func (b *Bag) Add(d Diagnostic) {
	b.items = append(b.items, d)
}

func (b *Bag) Errorf(span Span, code Code, format string, args ...any) {
	b.Add(Diagnostic{Severity: SeverityError, Code: code, Message: fmt.Sprintf(format, args...), Span: span})
}

func (b *Bag) Warnf(span Span, code Code, format string, args ...any) {
	b.Add(Diagnostic{Severity: SeverityWarning, Code: code, Message: fmt.Sprintf(format, args...), Span: span})
}

// HasErrors reports whether any diagnostic at SeverityError was recorded.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// All returns the accumulated diagnostics in recorded order.
func (b *Bag) All() []Diagnostic {
	return b.items
}
