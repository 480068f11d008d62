package ast

// Expression is implemented by every expression-node variant.
type Expression interface {
	Node
	expression()
}

// Magnitude scales a CurrencyLiteral.
type Magnitude string

const (
	MagnitudeNone      Magnitude = ""
	MagnitudeThousand  Magnitude = "K"
	MagnitudeMillion   Magnitude = "M"
	MagnitudeBillion   Magnitude = "B"
	MagnitudeTrillion  Magnitude = "T"
)

// NumberLiteral is a bare numeric literal.
type NumberLiteral struct {
	Header
	Value float64
}

func (*NumberLiteral) expression() {}

// PercentageLiteral is a numeric literal written with a trailing '%'.
// The stored Value is the raw percent number (10 for "10%"); conversion to
// a fraction happens exactly at interpretation sites (Open Question a).
type PercentageLiteral struct {
	Header
	Value float64
}

func (*PercentageLiteral) expression() {}

// CurrencyLiteral is a numeric literal with an optional magnitude suffix
// and optional ISO currency code.
type CurrencyLiteral struct {
	Header
	Value     float64
	Magnitude Magnitude
	Currency  string
}

func (*CurrencyLiteral) expression() {}

// StringLiteral is a double-quoted string literal.
type StringLiteral struct {
	Header
	Value string
}

func (*StringLiteral) expression() {}

// BooleanLiteral is `true` or `false`.
type BooleanLiteral struct {
	Header
	Value bool
}

func (*BooleanLiteral) expression() {}

// Identifier references a declaration by name.
type Identifier struct {
	Header
	Name string
}

func (*Identifier) expression() {}

// BinaryOp enumerates binary operators.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpPow BinaryOp = "^"
	OpLt  BinaryOp = "<"
	OpGt  BinaryOp = ">"
	OpLe  BinaryOp = "<="
	OpGe  BinaryOp = ">="
	OpEq  BinaryOp = "=="
	OpNeq BinaryOp = "!="
	OpAnd BinaryOp = "&&"
	OpOr  BinaryOp = "||"
)

// BinaryExpression combines two operands with a binary operator.
type BinaryExpression struct {
	Header
	Op    BinaryOp
	Left  Expression
	Right Expression
}

func (*BinaryExpression) expression() {}

// UnaryOp enumerates unary operators.
type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpNot UnaryOp = "!"
)

// UnaryExpression applies a unary operator to a single operand.
type UnaryExpression struct {
	Header
	Op      UnaryOp
	Operand Expression
}

func (*UnaryExpression) expression() {}

// RelativeStdDevLiteral is `±N%` as it appears as a distribution
// parameter: a standard deviation expressed as a percentage of the base
// mean, rather than an absolute value (spec.md §4.2).
type RelativeStdDevLiteral struct {
	Header
	Percent float64
}

func (*RelativeStdDevLiteral) expression() {}

// DistributionKind enumerates the closed set of sampleable distributions.
type DistributionKind string

const (
	DistNormal     DistributionKind = "normal"
	DistLognormal  DistributionKind = "lognormal"
	DistBeta       DistributionKind = "beta"
	DistUniform    DistributionKind = "uniform"
	DistTriangular DistributionKind = "triangular"
)

// DistributionExpression is a distribution constructor call, e.g.
// `normal(±10%)` or `beta(2, 5)`.
type DistributionExpression struct {
	Header
	Kind   DistributionKind
	Params []Expression
}

func (*DistributionExpression) expression() {}

// ModelKind enumerates the closed set of growth models.
type ModelKind string

const (
	ModelLinear      ModelKind = "linear"
	ModelExponential ModelKind = "exponential"
	ModelLogistic    ModelKind = "logistic"
	ModelSigmoid     ModelKind = "sigmoid"
	ModelPolynomial  ModelKind = "polynomial"
)

// ModelExpression is a growth-model constructor call with named parameters,
// e.g. `linear(slope: 10, intercept: 100)`.
type ModelExpression struct {
	Header
	Kind         ModelKind
	NamedParams  map[string]Expression
	Coefficients []Expression // used by ModelPolynomial only
}

func (*ModelExpression) expression() {}

// ConditionalExpression is `cond ? then : else`-shaped (SDL spells it via
// branch `when` clauses and watch-rule conditions rather than a ternary
// token, but the node models the general if/then/else case for reuse in
// guarded impact formulas).
type ConditionalExpression struct {
	Header
	Condition Expression
	Then      Expression
	Else      Expression
}

func (*ConditionalExpression) expression() {}
