package syntax

// Tokens is the flat key/value extraction of a node. Nested nodes are
// extracted recursively and sequences are always non-nil so that consumers
// can read any key without checking for presence.
type Tokens map[string]any

// Token keys. They are part of the contract with the visualization
// configuration and must not change.
const (
	KeyType           = "type"
	KeyValue          = "value"
	KeyName           = "name"
	KeyFunctionName   = "function_name"
	KeyArguments      = "arguments"
	KeyOperator       = "operator"
	KeyLeft           = "left"
	KeyRight          = "right"
	KeyExpression     = "expression"
	KeyField          = "field"
	KeyLiteralValue   = "literal_value"
	KeyTimeUnit       = "time_unit"
	KeySpanExpression = "span_expression"
	KeyLabel          = "label"
	KeyValueExpr      = "value_expression"
	KeyAlias          = "alias"
	KeyIndices        = "indices"
	KeyPredicate      = "predicate"
	KeyPartitions     = "partitions"
	KeyAllNum         = "all_num"
	KeyDelim          = "delim"
	KeyAggregations   = "aggregations"
	KeyGroupBy        = "groupby"
	KeyDedupSplit     = "dedup_split_value"
	KeyFields         = "fields"
	KeyOrder          = "order"
	KeySize           = "size"
	KeyFrom           = "from"
	KeyExclude        = "exclude"
	KeyAssignments    = "assignments"
	KeyRenames        = "renames"
	KeyTo             = "to"
	KeyCommands       = "commands"
	KeyCommand        = "command"
	KeyTokens         = "tokens"
)

// SpanType is the value of the `type` key of a span expression.
const SpanType = "span"

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

func (q *Query) Tokens() Tokens {
	cmds := make([]Tokens, 0, len(q.Commands))
	for _, c := range q.Commands {
		cmds = append(cmds, Tokens{
			KeyCommand: c.Type(),
			KeyTokens:  c.Tokens(),
		})
	}
	return Tokens{KeyCommands: cmds}
}

func (c *SourceCommand) Tokens() Tokens {
	return Tokens{KeyIndices: append([]string{}, c.Indices...)}
}

func (c *WhereCommand) Tokens() Tokens {
	return Tokens{KeyPredicate: c.Predicate.Tokens()}
}

func (c *StatsCommand) Tokens() Tokens {
	aggs := make([]Tokens, 0, len(c.Aggregations))
	for _, a := range c.Aggregations {
		aggs = append(aggs, a.Tokens())
	}
	groups := make([]Tokens, 0, len(c.GroupBy))
	for _, g := range c.GroupBy {
		groups = append(groups, g.Tokens())
	}
	return Tokens{
		KeyPartitions:   c.Options.Partitions,
		KeyAllNum:       c.Options.AllNum,
		KeyDelim:        c.Options.Delim,
		KeyAggregations: aggs,
		KeyGroupBy:      groups,
		KeyDedupSplit:   c.Options.DedupSplitValues,
	}
}

func (c *SortCommand) Tokens() Tokens {
	fields := make([]Tokens, 0, len(c.Fields))
	for _, f := range c.Fields {
		fields = append(fields, Tokens{
			KeyField: f.Field.FullName(),
			KeyOrder: sortOrder(f.Desc),
		})
	}
	return Tokens{KeyFields: fields}
}

func sortOrder(desc bool) string {
	if desc {
		return OrderDesc
	}
	return OrderAsc
}

func (c *HeadCommand) Tokens() Tokens {
	return Tokens{KeySize: c.Size, KeyFrom: c.From}
}

func (c *FieldsCommand) Tokens() Tokens {
	return Tokens{
		KeyExclude: c.Exclude,
		KeyFields:  fieldNames(c.Fields),
	}
}

func fieldNames(fields []*FieldExpr) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.FullName())
	}
	return names
}

func (c *EvalCommand) Tokens() Tokens {
	assignments := make([]Tokens, 0, len(c.Assignments))
	for _, a := range c.Assignments {
		assignments = append(assignments, Tokens{
			KeyField:      a.Field.FullName(),
			KeyExpression: a.Expr.Tokens(),
		})
	}
	return Tokens{KeyAssignments: assignments}
}

func (c *RenameCommand) Tokens() Tokens {
	renames := make([]Tokens, 0, len(c.Renames))
	for _, r := range c.Renames {
		renames = append(renames, Tokens{
			KeyFrom: r.From.FullName(),
			KeyTo:   r.To,
		})
	}
	return Tokens{KeyRenames: renames}
}

func (e *LiteralExpr) Tokens() Tokens {
	return Tokens{KeyType: e.Kind.String(), KeyValue: e.Value}
}

func (e *FieldExpr) Tokens() Tokens {
	return Tokens{KeyName: e.FullName()}
}

func (e *FunctionCallExpr) Tokens() Tokens {
	return Tokens{
		KeyFunctionName: e.Function,
		KeyArguments:    exprTokens(e.Args),
	}
}

func (e *BinaryExpr) Tokens() Tokens {
	return Tokens{
		KeyOperator: e.Op,
		KeyLeft:     e.Left.Tokens(),
		KeyRight:    e.Right.Tokens(),
	}
}

func (e *UnaryExpr) Tokens() Tokens {
	return Tokens{
		KeyOperator:   e.Op,
		KeyExpression: e.Expr.Tokens(),
	}
}

func (e *SpanExpr) Tokens() Tokens {
	return Tokens{
		KeyType:         SpanType,
		KeyField:        e.Field.FullName(),
		KeyLiteralValue: e.Interval.Value,
		KeyTimeUnit:     e.Unit,
	}
}

// Tokens always carries the label key, empty when no custom label was given.
func (e *Span) Tokens() Tokens {
	return Tokens{
		KeySpanExpression: e.Expr.Tokens(),
		KeyLabel:          e.CustomLabel,
	}
}

func (e *AggregateFunction) Tokens() Tokens {
	return Tokens{
		KeyFunctionName: e.Function,
		KeyValueExpr:    e.ValueExpression(),
		KeyArguments:    exprTokens(e.Args),
		KeyAlias:        e.Alias,
	}
}

// ValueExpression is the text of the aggregated expression, the first
// argument, or empty for argument-less aggregations such as count().
func (e *AggregateFunction) ValueExpression() string {
	if len(e.Args) == 0 {
		return ""
	}
	if f, ok := e.Args[0].(*FieldExpr); ok {
		return f.FullName()
	}
	return e.Args[0].String()
}

func exprTokens(exprs []Expr) []Tokens {
	res := make([]Tokens, 0, len(exprs))
	for _, e := range exprs {
		res = append(res, e.Tokens())
	}
	return res
}
