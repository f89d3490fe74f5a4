package syntax

import (
	"strconv"
	"strings"
)

// Node is a node of the PPL AST. The set of implementations is closed: every
// node is one of the expression or command types declared in this package.
type Node interface {
	// Type is the grammar production the node stands for.
	Type() string
	// Children returns the child nodes in source order.
	Children() []Node
	// Tokens extracts the node into the mapping consumed by the
	// visualization configuration.
	Tokens() Tokens
	// String returns the canonical PPL text of the node. Parsing it back
	// yields an equal tree.
	String() string
	Accept(RootVisitor)
	Walkable
	node()
}

// Expr is an expression node.
type Expr interface {
	Node
	expr()
}

// GroupExpr is an expression allowed in a stats `by` clause.
type GroupExpr interface {
	Expr
	groupExpr()
}

// Command is one stage of the query pipeline.
type Command interface {
	Node
	command()
}

const (
	NodeQuery       = "query"
	NodeSource      = "source"
	NodeWhere       = "where"
	NodeStats       = "stats"
	NodeSort        = "sort"
	NodeHead        = "head"
	NodeFields      = "fields"
	NodeEval        = "eval"
	NodeRename      = "rename"
	NodeLiteral     = "literal"
	NodeField       = "field"
	NodeFunction    = "function"
	NodeBinary      = "binary"
	NodeUnary       = "unary"
	NodeSpanExpr    = "span_expression"
	NodeSpan        = "span"
	NodeAggregation = "aggregation"
)

// Binary and unary operators.
const (
	OpOr  = "or"
	OpAnd = "and"
	OpEq  = "="
	OpNeq = "!="
	OpLt  = "<"
	OpLte = "<="
	OpGt  = ">"
	OpGte = ">="
	OpAdd = "+"
	OpSub = "-"
	OpMul = "*"
	OpDiv = "/"
	OpMod = "%"

	OpNot = "not"
	OpNeg = "-"
)

// DefaultHeadSize is the number of rows `head` returns when no size is given.
const DefaultHeadSize = 10

const (
	precOr = iota + 1
	precAnd
	precNot
	precCmp
	precAdd
	precMul
	precNeg
	precPrimary
)

var binaryPrecedence = map[string]int{
	OpOr:  precOr,
	OpAnd: precAnd,
	OpEq:  precCmp,
	OpNeq: precCmp,
	OpLt:  precCmp,
	OpLte: precCmp,
	OpGt:  precCmp,
	OpGte: precCmp,
	OpAdd: precAdd,
	OpSub: precAdd,
	OpMul: precMul,
	OpDiv: precMul,
	OpMod: precMul,
}

func precedence(e Expr) int {
	switch e := e.(type) {
	case *BinaryExpr:
		return binaryPrecedence[e.Op]
	case *UnaryExpr:
		if e.Op == OpNot {
			return precNot
		}
		return precNeg
	default:
		return precPrimary
	}
}

// Query is the root of the AST: the ordered pipe sequence of commands. The
// first command is always a SourceCommand.
type Query struct {
	Commands []Command
}

func (*Query) node()                  {}
func (*Query) Type() string           { return NodeQuery }
func (q *Query) Accept(v RootVisitor) { v.VisitQuery(q) }

func (q *Query) Children() []Node {
	res := make([]Node, 0, len(q.Commands))
	for _, c := range q.Commands {
		res = append(res, c)
	}
	return res
}

func (q *Query) String() string {
	parts := make([]string, 0, len(q.Commands))
	for _, c := range q.Commands {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " | ")
}

// Source returns the leading source command.
func (q *Query) Source() *SourceCommand {
	if len(q.Commands) == 0 {
		return nil
	}
	src, _ := q.Commands[0].(*SourceCommand)
	return src
}

// Stats returns the last stats command of the query and its index, or nil
// and -1 when there is none.
func (q *Query) Stats() (*StatsCommand, int) {
	for i := len(q.Commands) - 1; i >= 0; i-- {
		if s, ok := q.Commands[i].(*StatsCommand); ok {
			return s, i
		}
	}
	return nil, -1
}

// SourceCommand selects the indices to search: `source=logs, other`.
type SourceCommand struct {
	Indices []string
}

func (*SourceCommand) node()                  {}
func (*SourceCommand) command()               {}
func (*SourceCommand) Type() string           { return NodeSource }
func (*SourceCommand) Children() []Node       { return nil }
func (c *SourceCommand) Accept(v RootVisitor) { v.VisitSource(c) }

func (c *SourceCommand) String() string {
	parts := make([]string, 0, len(c.Indices))
	for _, idx := range c.Indices {
		parts = append(parts, quoteIndex(idx))
	}
	return "source=" + strings.Join(parts, ", ")
}

// WhereCommand filters rows with a predicate: `where a > 1`.
type WhereCommand struct {
	Predicate Expr
}

func (*WhereCommand) node()                  {}
func (*WhereCommand) command()               {}
func (*WhereCommand) Type() string           { return NodeWhere }
func (c *WhereCommand) Children() []Node     { return []Node{c.Predicate} }
func (c *WhereCommand) Accept(v RootVisitor) { v.VisitWhere(c) }
func (c *WhereCommand) String() string       { return "where " + c.Predicate.String() }

// StatsOptions are the optional settings of a stats command.
type StatsOptions struct {
	Partitions       int
	AllNum           bool
	Delim            string
	DedupSplitValues bool
}

// StatsCommand aggregates rows: `stats count() by span(timestamp, 1h), host`.
type StatsCommand struct {
	Options      StatsOptions
	Aggregations []*AggregateFunction
	GroupBy      []GroupExpr
}

func (*StatsCommand) node()                  {}
func (*StatsCommand) command()               {}
func (*StatsCommand) Type() string           { return NodeStats }
func (c *StatsCommand) Accept(v RootVisitor) { v.VisitStats(c) }

func (c *StatsCommand) Children() []Node {
	res := make([]Node, 0, len(c.Aggregations)+len(c.GroupBy))
	for _, a := range c.Aggregations {
		res = append(res, a)
	}
	for _, g := range c.GroupBy {
		res = append(res, g)
	}
	return res
}

func (c *StatsCommand) String() string {
	var sb strings.Builder
	sb.WriteString("stats")
	if c.Options.Partitions > 0 {
		sb.WriteString(" partitions=")
		sb.WriteString(strconv.Itoa(c.Options.Partitions))
	}
	if c.Options.AllNum {
		sb.WriteString(" allnum=true")
	}
	if c.Options.Delim != "" {
		sb.WriteString(" delim=")
		sb.WriteString(quoteString(c.Options.Delim))
	}
	for i, a := range c.Aggregations {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	for i, g := range c.GroupBy {
		if i == 0 {
			sb.WriteString(" by ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(g.String())
	}
	if c.Options.DedupSplitValues {
		sb.WriteString(" dedup_splitvalues=true")
	}
	return sb.String()
}

// SortField is one sort key.
type SortField struct {
	Field *FieldExpr
	Desc  bool
}

// SortCommand orders rows: `sort - bytes, host`.
type SortCommand struct {
	Fields []SortField
}

func (*SortCommand) node()                  {}
func (*SortCommand) command()               {}
func (*SortCommand) Type() string           { return NodeSort }
func (c *SortCommand) Accept(v RootVisitor) { v.VisitSort(c) }

func (c *SortCommand) Children() []Node {
	res := make([]Node, 0, len(c.Fields))
	for _, f := range c.Fields {
		res = append(res, f.Field)
	}
	return res
}

func (c *SortCommand) String() string {
	parts := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Desc {
			parts = append(parts, "- "+f.Field.String())
			continue
		}
		parts = append(parts, f.Field.String())
	}
	return "sort " + strings.Join(parts, ", ")
}

// HeadCommand keeps the first Size rows after skipping From rows.
type HeadCommand struct {
	Size int
	From int
}

func (*HeadCommand) node()                  {}
func (*HeadCommand) command()               {}
func (*HeadCommand) Type() string           { return NodeHead }
func (*HeadCommand) Children() []Node       { return nil }
func (c *HeadCommand) Accept(v RootVisitor) { v.VisitHead(c) }

func (c *HeadCommand) String() string {
	s := "head " + strconv.Itoa(c.Size)
	if c.From > 0 {
		s += " from " + strconv.Itoa(c.From)
	}
	return s
}

// FieldsCommand keeps, or with Exclude drops, the listed fields.
type FieldsCommand struct {
	Exclude bool
	Fields  []*FieldExpr
}

func (*FieldsCommand) node()                  {}
func (*FieldsCommand) command()               {}
func (*FieldsCommand) Type() string           { return NodeFields }
func (c *FieldsCommand) Accept(v RootVisitor) { v.VisitFields(c) }

func (c *FieldsCommand) Children() []Node {
	res := make([]Node, 0, len(c.Fields))
	for _, f := range c.Fields {
		res = append(res, f)
	}
	return res
}

func (c *FieldsCommand) String() string {
	parts := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		parts = append(parts, f.String())
	}
	prefix := "fields "
	if c.Exclude {
		prefix = "fields - "
	}
	return prefix + strings.Join(parts, ", ")
}

// Assignment is a single `field = expr` of an eval command.
type Assignment struct {
	Field *FieldExpr
	Expr  Expr
}

// EvalCommand computes new fields: `eval kb = bytes / 1024`.
type EvalCommand struct {
	Assignments []Assignment
}

func (*EvalCommand) node()                  {}
func (*EvalCommand) command()               {}
func (*EvalCommand) Type() string           { return NodeEval }
func (c *EvalCommand) Accept(v RootVisitor) { v.VisitEval(c) }

func (c *EvalCommand) Children() []Node {
	res := make([]Node, 0, 2*len(c.Assignments))
	for _, a := range c.Assignments {
		res = append(res, a.Field, a.Expr)
	}
	return res
}

func (c *EvalCommand) String() string {
	parts := make([]string, 0, len(c.Assignments))
	for _, a := range c.Assignments {
		parts = append(parts, a.Field.String()+" = "+a.Expr.String())
	}
	return "eval " + strings.Join(parts, ", ")
}

// Rename is a single `field as name` of a rename command.
type Rename struct {
	From *FieldExpr
	To   string
}

// RenameCommand renames fields: `rename host as hostname`.
type RenameCommand struct {
	Renames []Rename
}

func (*RenameCommand) node()                  {}
func (*RenameCommand) command()               {}
func (*RenameCommand) Type() string           { return NodeRename }
func (c *RenameCommand) Accept(v RootVisitor) { v.VisitRename(c) }

func (c *RenameCommand) Children() []Node {
	res := make([]Node, 0, len(c.Renames))
	for _, r := range c.Renames {
		res = append(res, r.From)
	}
	return res
}

func (c *RenameCommand) String() string {
	parts := make([]string, 0, len(c.Renames))
	for _, r := range c.Renames {
		parts = append(parts, r.From.String()+" as "+quoteIdent(r.To))
	}
	return "rename " + strings.Join(parts, ", ")
}

// LiteralKind is the type of a literal value.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBoolean
	LiteralDate
	LiteralNull
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralString:
		return "string"
	case LiteralNumber:
		return "number"
	case LiteralBoolean:
		return "boolean"
	case LiteralDate:
		return "date"
	case LiteralNull:
		return "null"
	default:
		return "unknown"
	}
}

// LiteralExpr is a typed scalar. Value holds the literal as written for
// numbers, unquoted for strings and dates, and lowercase for booleans.
type LiteralExpr struct {
	Kind  LiteralKind
	Value string
}

func (*LiteralExpr) node()                  {}
func (*LiteralExpr) expr()                  {}
func (*LiteralExpr) Type() string           { return NodeLiteral }
func (*LiteralExpr) Children() []Node       { return nil }
func (e *LiteralExpr) Accept(v RootVisitor) { v.VisitLiteral(e) }

func (e *LiteralExpr) String() string {
	switch e.Kind {
	case LiteralString, LiteralDate:
		return quoteString(e.Value)
	case LiteralNull:
		return "null"
	default:
		return e.Value
	}
}

// FieldExpr references a field, optionally qualified: `request.headers.host`
// has Qualifier `request.headers` and Name `host`.
type FieldExpr struct {
	Qualifier string
	Name      string
}

func (*FieldExpr) node()                  {}
func (*FieldExpr) expr()                  {}
func (*FieldExpr) groupExpr()             {}
func (*FieldExpr) Type() string           { return NodeField }
func (*FieldExpr) Children() []Node       { return nil }
func (e *FieldExpr) Accept(v RootVisitor) { v.VisitField(e) }

// FullName is the unquoted, fully qualified name of the field.
func (e *FieldExpr) FullName() string {
	if e.Qualifier == "" {
		return e.Name
	}
	return e.Qualifier + "." + e.Name
}

func (e *FieldExpr) String() string {
	if e.Qualifier != "" {
		return e.Qualifier + "." + e.Name
	}
	return quoteIdent(e.Name)
}

// FunctionCallExpr is a scalar function call: `abs(bytes)`.
type FunctionCallExpr struct {
	Function string
	Args     []Expr
}

func (*FunctionCallExpr) node()                  {}
func (*FunctionCallExpr) expr()                  {}
func (*FunctionCallExpr) Type() string           { return NodeFunction }
func (e *FunctionCallExpr) Accept(v RootVisitor) { v.VisitFunctionCall(e) }

func (e *FunctionCallExpr) Children() []Node {
	return exprNodes(e.Args)
}

func (e *FunctionCallExpr) String() string {
	return e.Function + "(" + joinExprs(e.Args) + ")"
}

// BinaryExpr is `Left Op Right`.
type BinaryExpr struct {
	Op          string
	Left, Right Expr
}

func (*BinaryExpr) node()                  {}
func (*BinaryExpr) expr()                  {}
func (*BinaryExpr) Type() string           { return NodeBinary }
func (e *BinaryExpr) Children() []Node     { return []Node{e.Left, e.Right} }
func (e *BinaryExpr) Accept(v RootVisitor) { v.VisitBinary(e) }

func (e *BinaryExpr) String() string {
	p := binaryPrecedence[e.Op]

	left := e.Left.String()
	if lp := precedence(e.Left); lp < p || (p == precCmp && lp == precCmp) {
		left = "(" + left + ")"
	}
	// operators are left associative, so an equal precedence right hand side
	// needs parentheses too.
	right := e.Right.String()
	if precedence(e.Right) <= p {
		right = "(" + right + ")"
	}
	return left + " " + e.Op + " " + right
}

// UnaryExpr is a logical negation (`not x`) or an arithmetic one (`-x`).
type UnaryExpr struct {
	Op   string
	Expr Expr
}

func (*UnaryExpr) node()                  {}
func (*UnaryExpr) expr()                  {}
func (*UnaryExpr) Type() string           { return NodeUnary }
func (e *UnaryExpr) Children() []Node     { return []Node{e.Expr} }
func (e *UnaryExpr) Accept(v RootVisitor) { v.VisitUnary(e) }

func (e *UnaryExpr) String() string {
	inner := e.Expr.String()
	if e.Op == OpNot {
		if precedence(e.Expr) < precNot {
			inner = "(" + inner + ")"
		}
		return "not " + inner
	}
	// -5 would read back as a negative literal.
	if lit, ok := e.Expr.(*LiteralExpr); (ok && lit.Kind == LiteralNumber) || precedence(e.Expr) < precPrimary {
		inner = "(" + inner + ")"
	}
	return "-" + inner
}

// SpanExpr buckets a field into fixed size intervals: `span(timestamp, 1h)`.
// Unit is empty for numeric buckets.
type SpanExpr struct {
	Field    *FieldExpr
	Interval *LiteralExpr
	Unit     string
}

func (*SpanExpr) node()                  {}
func (*SpanExpr) expr()                  {}
func (*SpanExpr) Type() string           { return NodeSpanExpr }
func (e *SpanExpr) Children() []Node     { return []Node{e.Field, e.Interval} }
func (e *SpanExpr) Accept(v RootVisitor) { v.VisitSpanExpr(e) }

func (e *SpanExpr) String() string {
	return "span(" + e.Field.String() + ", " + e.Interval.String() + e.Unit + ")"
}

// Span is a group-by bucket with an optional user supplied label.
type Span struct {
	Expr        *SpanExpr
	CustomLabel string
}

func (*Span) node()                  {}
func (*Span) expr()                  {}
func (*Span) groupExpr()             {}
func (*Span) Type() string           { return NodeSpan }
func (e *Span) Children() []Node     { return []Node{e.Expr} }
func (e *Span) Accept(v RootVisitor) { v.VisitSpan(e) }

func (e *Span) String() string {
	if e.CustomLabel == "" {
		return e.Expr.String()
	}
	return e.Expr.String() + " as " + quoteIdent(e.CustomLabel)
}

// AggregateFunction is a stats aggregation: `avg(bytes) as avg_bytes`.
type AggregateFunction struct {
	Function string
	Args     []Expr
	Alias    string
}

func (*AggregateFunction) node()                  {}
func (*AggregateFunction) expr()                  {}
func (*AggregateFunction) Type() string           { return NodeAggregation }
func (e *AggregateFunction) Accept(v RootVisitor) { v.VisitAggregateFunction(e) }

func (e *AggregateFunction) Children() []Node {
	return exprNodes(e.Args)
}

func (e *AggregateFunction) String() string {
	s := e.Function + "(" + joinExprs(e.Args) + ")"
	if e.Alias != "" {
		s += " as " + quoteIdent(e.Alias)
	}
	return s
}

func exprNodes(exprs []Expr) []Node {
	res := make([]Node, 0, len(exprs))
	for _, e := range exprs {
		res = append(res, e)
	}
	return res
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, ", ")
}
