package syntax

import (
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/grafana/regexp"

	"github.com/grafana/ppl/pkg/pplmodel"
)

// The constructors below build nodes from user supplied parts. They reject
// anything the parser could not have produced, so that every tree they
// return prints to text that parses back into an equal tree.

var numberLiteral = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// NewLiteral returns a literal of the given kind.
func NewLiteral(kind LiteralKind, value string) (*LiteralExpr, error) {
	switch kind {
	case LiteralString:
	case LiteralNumber:
		if !numberLiteral.MatchString(value) {
			return nil, pplmodel.NewValidationError(NodeLiteral, KeyValue, "%q is not a number", value)
		}
	case LiteralBoolean:
		value = strings.ToLower(value)
		if value != "true" && value != "false" {
			return nil, pplmodel.NewValidationError(NodeLiteral, KeyValue, "%q is not a boolean", value)
		}
	case LiteralDate:
		if !isDate(value) {
			return nil, pplmodel.NewValidationError(NodeLiteral, KeyValue, "%q is not a date, expected layout %q", value, dateLayout)
		}
	case LiteralNull:
		if value != "" {
			return nil, pplmodel.NewValidationError(NodeLiteral, KeyValue, "null literal cannot have a value")
		}
	default:
		return nil, pplmodel.NewValidationError(NodeLiteral, KeyType, "unknown literal kind %d", kind)
	}
	if kind == LiteralString && isDate(value) {
		kind = LiteralDate
	}
	return &LiteralExpr{Kind: kind, Value: value}, nil
}

// NewField returns a field reference. Dotted names are split into a
// qualifier and a name.
func NewField(name string) (*FieldExpr, error) {
	if name == "" {
		return nil, pplmodel.NewValidationError(NodeField, KeyName, "field name is empty")
	}
	if strings.ContainsRune(name, '`') {
		return nil, pplmodel.NewValidationError(NodeField, KeyName, "field name %q contains a backtick", name)
	}
	if !strings.Contains(name, ".") {
		return &FieldExpr{Name: name}, nil
	}
	qualifier, last, ok := splitQualifiedName(name)
	if !ok {
		return nil, pplmodel.NewValidationError(NodeField, KeyName, "field name %q has an empty segment", name)
	}
	for i, ch := range name {
		if ch != '.' && !isIdentRune(ch, i) {
			// not a dotted path, keep it as one quoted name.
			return &FieldExpr{Name: name}, nil
		}
	}
	return &FieldExpr{Qualifier: qualifier, Name: last}, nil
}

// NewFunctionCall returns a scalar function call.
func NewFunctionCall(name string, args ...Expr) (*FunctionCallExpr, error) {
	if !isFunctionName(name) {
		return nil, pplmodel.NewValidationError(NodeFunction, KeyFunctionName, "invalid function name %q", name)
	}
	if err := checkExprs(NodeFunction, KeyArguments, args); err != nil {
		return nil, err
	}
	return &FunctionCallExpr{Function: name, Args: cloneExprs(args)}, nil
}

func isFunctionName(name string) bool {
	if name == "" {
		return false
	}
	for i, ch := range name {
		if ch == '.' || ch == '@' || !isIdentRune(ch, i) {
			return false
		}
	}
	return true
}

// NewBinary returns `left op right`.
func NewBinary(op string, left, right Expr) (*BinaryExpr, error) {
	if _, ok := binaryPrecedence[op]; !ok {
		return nil, pplmodel.NewValidationError(NodeBinary, KeyOperator, "unknown operator %q", op)
	}
	if err := checkExpr(NodeBinary, KeyLeft, left, true); err != nil {
		return nil, err
	}
	if err := checkExpr(NodeBinary, KeyRight, right, true); err != nil {
		return nil, err
	}
	return &BinaryExpr{Op: op, Left: CloneExpr(left), Right: CloneExpr(right)}, nil
}

// NewUnary returns `not e` or `-e`.
func NewUnary(op string, e Expr) (*UnaryExpr, error) {
	if op != OpNot && op != OpNeg {
		return nil, pplmodel.NewValidationError(NodeUnary, KeyOperator, "unknown operator %q", op)
	}
	if err := checkExpr(NodeUnary, KeyExpression, e, true); err != nil {
		return nil, err
	}
	return &UnaryExpr{Op: op, Expr: CloneExpr(e)}, nil
}

// NewSpanExpr returns `span(field, <interval><unit>)`. An empty unit makes a
// numeric span.
func NewSpanExpr(field *FieldExpr, interval *LiteralExpr, unit string) (*SpanExpr, error) {
	if field == nil {
		return nil, pplmodel.NewValidationError(NodeSpanExpr, KeyField, "missing field")
	}
	if err := checkExpr(NodeSpanExpr, KeyField, field, true); err != nil {
		return nil, err
	}
	if interval == nil {
		return nil, pplmodel.NewValidationError(NodeSpanExpr, KeyLiteralValue, "missing interval")
	}
	if interval.Kind != LiteralNumber {
		return nil, pplmodel.NewValidationError(NodeSpanExpr, KeyLiteralValue, "interval must be a number, got %s", interval.Kind)
	}
	if !numberLiteral.MatchString(interval.Value) || strings.HasPrefix(interval.Value, "-") || strings.Trim(interval.Value, "0.") == "" {
		return nil, pplmodel.NewValidationError(NodeSpanExpr, KeyLiteralValue, "interval %q must be a positive number", interval.Value)
	}
	if unit != "" && !IsTimeUnit(unit) {
		return nil, pplmodel.NewValidationError(NodeSpanExpr, KeyTimeUnit, "unknown time unit %q", unit)
	}
	return &SpanExpr{
		Field:    cloneField(field),
		Interval: &LiteralExpr{Kind: interval.Kind, Value: interval.Value},
		Unit:     unit,
	}, nil
}

// NewSpan returns a group-by span. An empty label means the span has no
// custom label. expr is validated as by NewSpanExpr.
func NewSpan(expr *SpanExpr, label string) (*Span, error) {
	if expr == nil {
		return nil, pplmodel.NewValidationError(NodeSpan, KeySpanExpression, "missing span expression")
	}
	if err := checkName(NodeSpan, KeyLabel, label); err != nil {
		return nil, err
	}
	e, err := NewSpanExpr(expr.Field, expr.Interval, expr.Unit)
	if err != nil {
		return nil, err
	}
	return &Span{Expr: e, CustomLabel: label}, nil
}

// NewAggregateFunction returns a stats aggregation.
func NewAggregateFunction(name, alias string, args ...Expr) (*AggregateFunction, error) {
	if !isFunctionName(name) {
		return nil, pplmodel.NewValidationError(NodeAggregation, KeyFunctionName, "invalid function name %q", name)
	}
	if err := checkExprs(NodeAggregation, KeyArguments, args); err != nil {
		return nil, err
	}
	if err := checkName(NodeAggregation, KeyAlias, alias); err != nil {
		return nil, err
	}
	return &AggregateFunction{Function: name, Args: cloneExprs(args), Alias: alias}, nil
}

// NewSourceCommand returns `source=<indices>`.
func NewSourceCommand(indices ...string) (*SourceCommand, error) {
	if len(indices) == 0 {
		return nil, pplmodel.NewValidationError(NodeSource, KeyIndices, "at least one index is required")
	}
	for _, idx := range indices {
		if idx == "" || strings.ContainsRune(idx, '`') {
			return nil, pplmodel.NewValidationError(NodeSource, KeyIndices, "invalid index name %q", idx)
		}
	}
	return &SourceCommand{Indices: append([]string(nil), indices...)}, nil
}

// NewWhereCommand returns `where <predicate>`.
func NewWhereCommand(predicate Expr) (*WhereCommand, error) {
	if isNilExpr(predicate) {
		return nil, pplmodel.NewValidationError(NodeWhere, KeyPredicate, "missing predicate")
	}
	if err := checkExpr(NodeWhere, KeyPredicate, predicate, true); err != nil {
		return nil, err
	}
	return &WhereCommand{Predicate: CloneExpr(predicate)}, nil
}

// NewStatsCommand returns a stats command. At least one aggregation is
// required, group-by expressions are kept in the given order.
func NewStatsCommand(opts StatsOptions, aggs []*AggregateFunction, groups []GroupExpr) (*StatsCommand, error) {
	if len(aggs) == 0 {
		return nil, pplmodel.NewValidationError(NodeStats, KeyAggregations, "at least one aggregation is required")
	}
	if opts.Partitions < 0 {
		return nil, pplmodel.NewValidationError(NodeStats, KeyPartitions, "partitions must not be negative")
	}
	s := &StatsCommand{Options: opts}
	for _, a := range aggs {
		if a == nil {
			return nil, pplmodel.NewValidationError(NodeStats, KeyAggregations, "nil aggregation")
		}
		if err := checkExpr(NodeStats, KeyAggregations, a, false); err != nil {
			return nil, err
		}
		s.Aggregations = append(s.Aggregations, cloneAggregation(a))
	}
	for _, g := range groups {
		if isNilExpr(g) {
			return nil, pplmodel.NewValidationError(NodeStats, KeyGroupBy, "nil group-by expression")
		}
		if err := checkExpr(NodeStats, KeyGroupBy, g, false); err != nil {
			return nil, err
		}
		s.GroupBy = append(s.GroupBy, cloneGroup(g))
	}
	return s, nil
}

// NewSortCommand returns `sort <fields>`.
func NewSortCommand(fields ...SortField) (*SortCommand, error) {
	if len(fields) == 0 {
		return nil, pplmodel.NewValidationError(NodeSort, KeyFields, "at least one field is required")
	}
	s := &SortCommand{}
	for _, f := range fields {
		if err := checkExpr(NodeSort, KeyFields, f.Field, true); err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, SortField{Field: cloneField(f.Field), Desc: f.Desc})
	}
	return s, nil
}

// NewHeadCommand returns `head <size> from <from>`.
func NewHeadCommand(size, from int) (*HeadCommand, error) {
	if size < 0 {
		return nil, pplmodel.NewValidationError(NodeHead, KeySize, "size must not be negative")
	}
	if from < 0 {
		return nil, pplmodel.NewValidationError(NodeHead, KeyFrom, "from must not be negative")
	}
	return &HeadCommand{Size: size, From: from}, nil
}

// NewFieldsCommand returns `fields [-] <fields>`.
func NewFieldsCommand(exclude bool, fields ...*FieldExpr) (*FieldsCommand, error) {
	if len(fields) == 0 {
		return nil, pplmodel.NewValidationError(NodeFields, KeyFields, "at least one field is required")
	}
	c := &FieldsCommand{Exclude: exclude}
	for _, f := range fields {
		if err := checkExpr(NodeFields, KeyFields, f, true); err != nil {
			return nil, err
		}
		c.Fields = append(c.Fields, cloneField(f))
	}
	return c, nil
}

// NewEvalCommand returns `eval <field> = <expr>, ...`.
func NewEvalCommand(assignments ...Assignment) (*EvalCommand, error) {
	if len(assignments) == 0 {
		return nil, pplmodel.NewValidationError(NodeEval, KeyAssignments, "at least one assignment is required")
	}
	c := &EvalCommand{}
	for _, a := range assignments {
		if a.Field == nil || isNilExpr(a.Expr) {
			return nil, pplmodel.NewValidationError(NodeEval, KeyAssignments, "incomplete assignment")
		}
		if err := checkExpr(NodeEval, KeyAssignments, a.Field, true); err != nil {
			return nil, err
		}
		if err := checkExpr(NodeEval, KeyAssignments, a.Expr, true); err != nil {
			return nil, err
		}
		c.Assignments = append(c.Assignments, Assignment{Field: cloneField(a.Field), Expr: CloneExpr(a.Expr)})
	}
	return c, nil
}

// NewRenameCommand returns `rename <field> as <name>, ...`.
func NewRenameCommand(renames ...Rename) (*RenameCommand, error) {
	if len(renames) == 0 {
		return nil, pplmodel.NewValidationError(NodeRename, KeyRenames, "at least one rename is required")
	}
	c := &RenameCommand{}
	for _, r := range renames {
		if r.From == nil || r.To == "" {
			return nil, pplmodel.NewValidationError(NodeRename, KeyRenames, "incomplete rename")
		}
		if err := checkExpr(NodeRename, KeyRenames, r.From, true); err != nil {
			return nil, err
		}
		if err := checkName(NodeRename, KeyTo, r.To); err != nil {
			return nil, err
		}
		c.Renames = append(c.Renames, Rename{From: cloneField(r.From), To: r.To})
	}
	return c, nil
}

// NewQuery returns the pipe sequence of cmds. The first command must be the
// only source command.
func NewQuery(cmds ...Command) (*Query, error) {
	if len(cmds) == 0 {
		return nil, pplmodel.NewValidationError(NodeQuery, KeyCommands, "a query needs at least a source command")
	}
	q := &Query{}
	for i, c := range cmds {
		if isNilCommand(c) {
			return nil, pplmodel.NewValidationError(NodeQuery, KeyCommands, "nil command at position %d", i)
		}
		_, isSource := c.(*SourceCommand)
		if i == 0 && !isSource {
			return nil, pplmodel.NewValidationError(NodeQuery, KeyCommands, "first command must be source, got %s", c.Type())
		}
		if i > 0 && isSource {
			return nil, pplmodel.NewValidationError(NodeQuery, KeyCommands, "source command at position %d", i)
		}
		built, err := rebuildCommand(c)
		if err != nil {
			return nil, err
		}
		q.Commands = append(q.Commands, built)
	}
	return q, nil
}

// rebuildCommand returns a validated deep copy of c.
func rebuildCommand(c Command) (Command, error) {
	switch c := c.(type) {
	case *SourceCommand:
		return NewSourceCommand(c.Indices...)
	case *WhereCommand:
		return NewWhereCommand(c.Predicate)
	case *StatsCommand:
		return NewStatsCommand(c.Options, c.Aggregations, c.GroupBy)
	case *SortCommand:
		return NewSortCommand(c.Fields...)
	case *HeadCommand:
		return NewHeadCommand(c.Size, c.From)
	case *FieldsCommand:
		return NewFieldsCommand(c.Exclude, c.Fields...)
	case *EvalCommand:
		return NewEvalCommand(c.Assignments...)
	case *RenameCommand:
		return NewRenameCommand(c.Renames...)
	default:
		return nil, pplmodel.NewValidationError(NodeQuery, KeyCommands, "unknown command %T", c)
	}
}

func isNilCommand(c Command) bool {
	switch c := c.(type) {
	case nil:
		return true
	case *SourceCommand:
		return c == nil
	case *WhereCommand:
		return c == nil
	case *StatsCommand:
		return c == nil
	case *SortCommand:
		return c == nil
	case *HeadCommand:
		return c == nil
	case *FieldsCommand:
		return c == nil
	case *EvalCommand:
		return c == nil
	case *RenameCommand:
		return c == nil
	}
	return false
}

// WithCommand returns a copy of q with the command at index i replaced.
func (q *Query) WithCommand(i int, c Command) (*Query, error) {
	if i < 0 || i >= len(q.Commands) {
		return nil, pplmodel.NewValidationError(NodeQuery, KeyCommands, "command index %d out of range", i)
	}
	cmds := append([]Command(nil), q.Commands...)
	cmds[i] = c
	return NewQuery(cmds...)
}

// Append returns a copy of q with cmds added at the end of the pipeline.
func (q *Query) Append(cmds ...Command) (*Query, error) {
	return NewQuery(append(append([]Command(nil), q.Commands...), cmds...)...)
}

// WithStats returns a copy of q whose last stats command is replaced by s,
// or with s appended when q has none.
func (q *Query) WithStats(s *StatsCommand) (*Query, error) {
	if _, i := q.Stats(); i >= 0 {
		return q.WithCommand(i, s)
	}
	return q.Append(s)
}

// WithGroupBy returns a copy of s grouped by groups.
func (s *StatsCommand) WithGroupBy(groups ...GroupExpr) (*StatsCommand, error) {
	return NewStatsCommand(s.Options, s.Aggregations, groups)
}

// WithAggregations returns a copy of s computing aggs.
func (s *StatsCommand) WithAggregations(aggs ...*AggregateFunction) (*StatsCommand, error) {
	return NewStatsCommand(s.Options, aggs, s.GroupBy)
}

// WithLabel returns a copy of s with a new custom label.
func (s *Span) WithLabel(label string) (*Span, error) {
	return NewSpan(s.Expr, label)
}

// Equal reports whether a and b are structurally equal trees.
func Equal(a, b Node) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

// Diff returns a human readable difference between two trees, empty when
// they are equal.
func Diff(a, b Node) string {
	return cmp.Diff(a, b, cmpopts.EquateEmpty())
}

func checkExprs(node, field string, exprs []Expr) error {
	for i, e := range exprs {
		if isNilExpr(e) {
			return pplmodel.NewValidationError(node, field, "nil expression at position %d", i)
		}
		if err := checkExpr(node, field, e, true); err != nil {
			return err
		}
	}
	return nil
}

// checkExpr validates the whole tree under e. Nil children are rejected and,
// when scalar is set, so are expressions that only make sense in a stats
// command.
func checkExpr(node, field string, e Expr, scalar bool) error {
	if isNilExpr(e) {
		return pplmodel.NewValidationError(node, field, "missing expression")
	}
	switch e := e.(type) {
	case *LiteralExpr:
		if _, err := NewLiteral(e.Kind, e.Value); err != nil {
			return err
		}
	case *FieldExpr:
		if e.Name == "" || strings.ContainsRune(e.FullName(), '`') {
			return pplmodel.NewValidationError(NodeField, KeyName, "invalid field name %q", e.FullName())
		}
	case *FunctionCallExpr:
		if !isFunctionName(e.Function) {
			return pplmodel.NewValidationError(NodeFunction, KeyFunctionName, "invalid function name %q", e.Function)
		}
		return checkExprs(NodeFunction, KeyArguments, e.Args)
	case *BinaryExpr:
		if _, ok := binaryPrecedence[e.Op]; !ok {
			return pplmodel.NewValidationError(NodeBinary, KeyOperator, "unknown operator %q", e.Op)
		}
		if err := checkExpr(NodeBinary, KeyLeft, e.Left, true); err != nil {
			return err
		}
		return checkExpr(NodeBinary, KeyRight, e.Right, true)
	case *UnaryExpr:
		if e.Op != OpNot && e.Op != OpNeg {
			return pplmodel.NewValidationError(NodeUnary, KeyOperator, "unknown operator %q", e.Op)
		}
		return checkExpr(NodeUnary, KeyExpression, e.Expr, true)
	case *SpanExpr:
		if scalar {
			return notAllowed(node, field, e)
		}
		_, err := NewSpanExpr(e.Field, e.Interval, e.Unit)
		return err
	case *Span:
		if scalar {
			return notAllowed(node, field, e)
		}
		if e.Expr == nil {
			return pplmodel.NewValidationError(NodeSpan, KeySpanExpression, "missing span expression")
		}
		_, err := NewSpan(e.Expr, e.CustomLabel)
		return err
	case *AggregateFunction:
		if scalar {
			return notAllowed(node, field, e)
		}
		if !isFunctionName(e.Function) {
			return pplmodel.NewValidationError(NodeAggregation, KeyFunctionName, "invalid function name %q", e.Function)
		}
		if err := checkName(NodeAggregation, KeyAlias, e.Alias); err != nil {
			return err
		}
		return checkExprs(NodeAggregation, KeyArguments, e.Args)
	}
	return nil
}

func notAllowed(node, field string, e Expr) error {
	return pplmodel.NewValidationError(node, field, "%s is not allowed here", e.Type())
}

// isNilExpr reports whether e is nil, including a nil pointer held by the
// interface.
func isNilExpr(e Expr) bool {
	switch e := e.(type) {
	case nil:
		return true
	case *LiteralExpr:
		return e == nil
	case *FieldExpr:
		return e == nil
	case *FunctionCallExpr:
		return e == nil
	case *BinaryExpr:
		return e == nil
	case *UnaryExpr:
		return e == nil
	case *SpanExpr:
		return e == nil
	case *Span:
		return e == nil
	case *AggregateFunction:
		return e == nil
	}
	return false
}

func checkName(node, field, name string) error {
	if strings.ContainsRune(name, '`') {
		return pplmodel.NewValidationError(node, field, "%q contains a backtick", name)
	}
	return nil
}

// CloneExpr returns a deep copy of e.
func CloneExpr(e Expr) Expr {
	switch e := e.(type) {
	case nil:
		return nil
	case *LiteralExpr:
		c := *e
		return &c
	case *FieldExpr:
		return cloneField(e)
	case *FunctionCallExpr:
		return &FunctionCallExpr{Function: e.Function, Args: cloneExprs(e.Args)}
	case *BinaryExpr:
		return &BinaryExpr{Op: e.Op, Left: CloneExpr(e.Left), Right: CloneExpr(e.Right)}
	case *UnaryExpr:
		return &UnaryExpr{Op: e.Op, Expr: CloneExpr(e.Expr)}
	case *SpanExpr:
		return cloneSpanExpr(e)
	case *Span:
		return &Span{Expr: cloneSpanExpr(e.Expr), CustomLabel: e.CustomLabel}
	case *AggregateFunction:
		return cloneAggregation(e)
	default:
		panic("unknown expression type")
	}
}

// CloneCommand returns a deep copy of c.
func CloneCommand(c Command) Command {
	switch c := c.(type) {
	case *SourceCommand:
		return &SourceCommand{Indices: append([]string(nil), c.Indices...)}
	case *WhereCommand:
		return &WhereCommand{Predicate: CloneExpr(c.Predicate)}
	case *StatsCommand:
		s := &StatsCommand{Options: c.Options}
		for _, a := range c.Aggregations {
			s.Aggregations = append(s.Aggregations, cloneAggregation(a))
		}
		for _, g := range c.GroupBy {
			s.GroupBy = append(s.GroupBy, cloneGroup(g))
		}
		return s
	case *SortCommand:
		s := &SortCommand{}
		for _, f := range c.Fields {
			s.Fields = append(s.Fields, SortField{Field: cloneField(f.Field), Desc: f.Desc})
		}
		return s
	case *HeadCommand:
		h := *c
		return &h
	case *FieldsCommand:
		f := &FieldsCommand{Exclude: c.Exclude}
		for _, field := range c.Fields {
			f.Fields = append(f.Fields, cloneField(field))
		}
		return f
	case *EvalCommand:
		e := &EvalCommand{}
		for _, a := range c.Assignments {
			e.Assignments = append(e.Assignments, Assignment{Field: cloneField(a.Field), Expr: CloneExpr(a.Expr)})
		}
		return e
	case *RenameCommand:
		r := &RenameCommand{}
		for _, rn := range c.Renames {
			r.Renames = append(r.Renames, Rename{From: cloneField(rn.From), To: rn.To})
		}
		return r
	default:
		panic("unknown command type")
	}
}

func cloneExprs(exprs []Expr) []Expr {
	var res []Expr
	for _, e := range exprs {
		res = append(res, CloneExpr(e))
	}
	return res
}

func cloneField(f *FieldExpr) *FieldExpr {
	c := *f
	return &c
}

func cloneSpanExpr(e *SpanExpr) *SpanExpr {
	interval := *e.Interval
	return &SpanExpr{Field: cloneField(e.Field), Interval: &interval, Unit: e.Unit}
}

func cloneAggregation(a *AggregateFunction) *AggregateFunction {
	return &AggregateFunction{Function: a.Function, Args: cloneExprs(a.Args), Alias: a.Alias}
}

func cloneGroup(g GroupExpr) GroupExpr {
	return CloneExpr(g).(GroupExpr)
}

// CloneQuery returns a deep copy of q.
func CloneQuery(q *Query) *Query {
	res := &Query{}
	for _, c := range q.Commands {
		res.Commands = append(res.Commands, CloneCommand(c))
	}
	return res
}
