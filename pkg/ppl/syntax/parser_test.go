package syntax

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/ppl/pkg/pplmodel"
)

func field(name string) *FieldExpr {
	f, err := NewField(name)
	if err != nil {
		panic(err)
	}
	return f
}

func num(v string) *LiteralExpr {
	return &LiteralExpr{Kind: LiteralNumber, Value: v}
}

func str(v string) *LiteralExpr {
	return &LiteralExpr{Kind: LiteralString, Value: v}
}

func bin(op string, l, r Expr) *BinaryExpr {
	return &BinaryExpr{Op: op, Left: l, Right: r}
}

func source(indices ...string) *SourceCommand {
	return &SourceCommand{Indices: indices}
}

func query(cmds ...Command) *Query {
	return &Query{Commands: cmds}
}

var ParseTestCases = []struct {
	in  string
	exp *Query
	err error
}{
	{
		in:  `source=logs`,
		exp: query(source("logs")),
	},
	{
		in:  "search source = logs-2024.01.08, `my index`",
		exp: query(source("logs-2024.01.08", "my index")),
	},
	{
		in: `source=logs | where status >= 500 and not host = 'a'`,
		exp: query(
			source("logs"),
			&WhereCommand{Predicate: bin(OpAnd,
				bin(OpGte, field("status"), num("500")),
				&UnaryExpr{Op: OpNot, Expr: bin(OpEq, field("host"), str("a"))},
			)},
		),
	},
	{
		in: `source=logs | stats count() by span(timestamp, 1h) as hourly`,
		exp: query(
			source("logs"),
			&StatsCommand{
				Aggregations: []*AggregateFunction{{Function: "count"}},
				GroupBy: []GroupExpr{
					&Span{
						Expr:        &SpanExpr{Field: field("timestamp"), Interval: num("1"), Unit: "h"},
						CustomLabel: "hourly",
					},
				},
			},
		),
	},
	{
		in: `source=logs | stats partitions=2 allnum=true delim=',' avg(bytes) as avg_bytes, max(bytes) by host, span(bytes, 100) dedup_splitvalues=true`,
		exp: query(
			source("logs"),
			&StatsCommand{
				Options: StatsOptions{Partitions: 2, AllNum: true, Delim: ",", DedupSplitValues: true},
				Aggregations: []*AggregateFunction{
					{Function: "avg", Args: []Expr{field("bytes")}, Alias: "avg_bytes"},
					{Function: "max", Args: []Expr{field("bytes")}},
				},
				GroupBy: []GroupExpr{
					field("host"),
					&Span{Expr: &SpanExpr{Field: field("bytes"), Interval: num("100")}},
				},
			},
		),
	},
	{
		in: `source=logs | sort - bytes, +host | head 5 from 10 | fields - a, b.c | eval kb = bytes / 1024, neg = -bytes | rename host as hostname`,
		exp: query(
			source("logs"),
			&SortCommand{Fields: []SortField{{Field: field("bytes"), Desc: true}, {Field: field("host")}}},
			&HeadCommand{Size: 5, From: 10},
			&FieldsCommand{Exclude: true, Fields: []*FieldExpr{field("a"), {Qualifier: "b", Name: "c"}}},
			&EvalCommand{Assignments: []Assignment{
				{Field: field("kb"), Expr: bin(OpDiv, field("bytes"), num("1024"))},
				{Field: field("neg"), Expr: &UnaryExpr{Op: OpNeg, Expr: field("bytes")}},
			}},
			&RenameCommand{Renames: []Rename{{From: field("host"), To: "hostname"}}},
		),
	},
	{
		in: `source=logs | where a = 1 or b = 2 and c = 3`,
		exp: query(
			source("logs"),
			&WhereCommand{Predicate: bin(OpOr,
				bin(OpEq, field("a"), num("1")),
				bin(OpAnd, bin(OpEq, field("b"), num("2")), bin(OpEq, field("c"), num("3"))),
			)},
		),
	},
	{
		in: `source=logs | eval x = (a + b) * c - -2`,
		exp: query(
			source("logs"),
			&EvalCommand{Assignments: []Assignment{{
				Field: field("x"),
				Expr:  bin(OpSub, bin(OpMul, bin(OpAdd, field("a"), field("b")), field("c")), num("-2")),
			}}},
		),
	},
	{
		in: `source=logs | where ts > '2024-01-01 00:00:00' and ok = TRUE and x != null`,
		exp: query(
			source("logs"),
			&WhereCommand{Predicate: bin(OpAnd,
				bin(OpAnd,
					bin(OpGt, field("ts"), &LiteralExpr{Kind: LiteralDate, Value: "2024-01-01 00:00:00"}),
					bin(OpEq, field("ok"), &LiteralExpr{Kind: LiteralBoolean, Value: "true"}),
				),
				bin(OpNeq, field("x"), &LiteralExpr{Kind: LiteralNull}),
			)},
		),
	},
	{
		in: `source=logs | where abs(x - 1) < 2`,
		exp: query(
			source("logs"),
			&WhereCommand{Predicate: bin(OpLt,
				&FunctionCallExpr{Function: "abs", Args: []Expr{bin(OpSub, field("x"), num("1"))}},
				num("2"),
			)},
		),
	},
	{
		in: "source=logs | where `weird field` = 'a' and request.headers.host = 'b'",
		exp: query(
			source("logs"),
			&WhereCommand{Predicate: bin(OpAnd,
				bin(OpEq, &FieldExpr{Name: "weird field"}, str("a")),
				bin(OpEq, &FieldExpr{Qualifier: "request.headers", Name: "host"}, str("b")),
			)},
		),
	},
	{
		in:  `source=logs | head`,
		exp: query(source("logs"), &HeadCommand{Size: DefaultHeadSize}),
	},
	{
		in:  ``,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 0, Line: 1, Column: 1}, `"source"`, "end of input", "syntax error"),
	},
	{
		in:  `stats by span(`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 0, Line: 1, Column: 1}, `"source"`, `"stats"`, "syntax error"),
	},
	{
		in:  `source=logs | stats count() by span(`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 36, Line: 1, Column: 37}, "field", "end of input", "syntax error"),
	},
	{
		in:  `source=logs | where`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 19, Line: 1, Column: 20}, "expression", "end of input", "syntax error"),
	},
	{
		in:  `source=logs | foo`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 14, Line: 1, Column: 15}, "command", `"foo"`, "syntax error"),
	},
	{
		in:  `source=logs where x`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 12, Line: 1, Column: 13}, "'|' or end of input", `"where"`, "syntax error"),
	},
	{
		in:  `source=logs | stats count() by span(ts, 1x)`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 41, Line: 1, Column: 42}, "", "", `invalid span time unit "x"`),
	},
	{
		in:  `source=logs | stats count() | source=other`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 30, Line: 1, Column: 31}, "", "", "source command must be the first command of the query"),
	},
	{
		in:  `source=logs | where a = 'x`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 24, Line: 1, Column: 25}, "", "", "literal not terminated"),
	},
	{
		in:  "source=logs\n| where a = 'x",
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 24, Line: 2, Column: 13}, "", "", "literal not terminated"),
	},
	{
		in:  `source=logs | head 0x10`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 19, Line: 1, Column: 20}, "", "", `invalid number "0x10"`),
	},
	{
		in:  `source=logs | stats count() by span(ts, 0h)`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 40, Line: 1, Column: 41}, "", "", `span interval "0" must be a positive number`),
	},
	{
		in:  `source=logs | where a.b(1) = 1`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 20, Line: 1, Column: 21}, "", "", `invalid function name "a.b"`),
	},
	{
		in:  `source=logs | stats by host`,
		err: pplmodel.NewParseError(pplmodel.Position{Offset: 20, Line: 1, Column: 21}, "aggregation function", `"by"`, "syntax error"),
	},
}

func TestParse(t *testing.T) {
	for _, tc := range ParseTestCases {
		t.Run(tc.in, func(t *testing.T) {
			ast, err := ParseQuery(tc.in)
			if tc.err != nil {
				require.Equal(t, tc.err, err)
				require.Nil(t, ast)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.exp, ast)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	for _, tc := range ParseTestCases {
		if tc.err != nil {
			continue
		}
		t.Run(tc.in, func(t *testing.T) {
			ast, err := ParseQuery(tc.in)
			require.NoError(t, err)

			again, err := ParseQuery(ast.String())
			require.NoError(t, err)
			require.True(t, Equal(ast, again), Diff(ast, again))
			require.Equal(t, ast.String(), again.String())
		})
	}
}

func TestParseQuery_String(t *testing.T) {
	for _, tc := range []struct {
		in, exp string
	}{
		{"source = logs | stats count() by span(timestamp,1h) as hourly", "source=logs | stats count() by span(timestamp, 1h) as hourly"},
		{"source=logs|where a=1 or (b=2 and c=3)", "source=logs | where a = 1 or b = 2 and c = 3"},
		{"source=logs | where (a = 1 or b = 2) and c = 3", "source=logs | where (a = 1 or b = 2) and c = 3"},
		{"source=logs | eval x = a - (b - c)", "source=logs | eval x = a - (b - c)"},
		{"source=logs | eval x = (a - b) - c", "source=logs | eval x = a - b - c"},
		{"source=logs | eval x = -(a + b), y = -(-2)", "source=logs | eval x = -(a + b), y = -(-2)"},
		{"source=logs | where not (a = 1 and b = 2)", "source=logs | where not (a = 1 and b = 2)"},
		{"source=logs | where (not a) = b", "source=logs | where (not a) = b"},
		{"source=logs | sort -bytes | head 5", "source=logs | sort - bytes | head 5"},
		{`source=logs | where msg = "it's"`, `source=logs | where msg = 'it\'s'`},
		{"search source=logs-2024.01.08,`my index`", "source=logs-2024.01.08, `my index`"},
		{"source=logs | fields + a, b", "source=logs | fields a, b"},
		{"source=logs | rename a as `new name`", "source=logs | rename a as `new name`"},
		{"source=logs | where `by` = 1", "source=logs | where `by` = 1"},
		{"SOURCE=logs | WHERE x = True | STATS COUNT() BY host", "source=logs | where x = true | stats COUNT() by host"},
		{"source=logs | stats allnum=false count()", "source=logs | stats count()"},
	} {
		t.Run(tc.in, func(t *testing.T) {
			ast, err := ParseQuery(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.exp, ast.String())

			again, err := ParseQuery(ast.String())
			require.NoError(t, err)
			require.True(t, Equal(ast, again), Diff(ast, again))
		})
	}
}

func TestParseExpr(t *testing.T) {
	e, err := ParseExpr(`a > 1 and b = 'x'`)
	require.NoError(t, err)
	require.Equal(t, bin(OpAnd, bin(OpGt, field("a"), num("1")), bin(OpEq, field("b"), str("x"))), e)

	_, err = ParseExpr(`a > 1 b`)
	require.True(t, pplmodel.IsParseError(err))
}

func TestIsParseError(t *testing.T) {
	for _, in := range []string{
		``,
		`source=`,
		`source=logs |`,
		`source=logs | stats count( by host`,
		`source=logs | eval x`,
		`source=logs | rename a b`,
		`source=logs | head -1`,
		`source=logs | stats partitions=x count()`,
		`source=logs | where a = 'x`,
		`source=logs | where a = b = c`,
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseQuery(in)
			require.Error(t, err)
			require.True(t, pplmodel.IsParseError(err))
		})
	}
}
