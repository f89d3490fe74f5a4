package syntax

import (
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestSpan_StringLabel(t *testing.T) {
	field, err := NewField("timestamp")
	require.NoError(t, err)
	interval, err := NewLiteral(LiteralNumber, "1")
	require.NoError(t, err)
	expr, err := NewSpanExpr(field, interval, "h")
	require.NoError(t, err)

	for _, tc := range []struct {
		label string
		want  string
	}{
		{"", expr.String()},
		{"hourly", expr.String() + " as hourly"},
		{"by hour", expr.String() + " as `by hour`"},
	} {
		t.Run(tc.label, func(t *testing.T) {
			span, err := NewSpan(expr, tc.label)
			require.NoError(t, err)
			require.Equal(t, tc.want, span.String())

			q, err := ParseQuery("source=logs | stats count() by " + span.String())
			require.NoError(t, err)
			spans := Spans(q)
			require.Len(t, spans, 1)
			require.True(t, Equal(span, spans[0]), Diff(span, spans[0]))
		})
	}
}

// builtQuery is a random query assembled only through the New* constructors.
type builtQuery struct {
	q   *Query
	err error
}

func (builtQuery) Generate(r *rand.Rand, size int) (v reflect.Value) {
	defer func() {
		if e := recover(); e != nil {
			ge, ok := e.(genError)
			if !ok {
				panic(e)
			}
			v = reflect.ValueOf(builtQuery{err: ge.err})
		}
	}()

	g := &queryGen{r: r}
	cmds := []Command{keep(NewSourceCommand(g.indices()...))}
	for i := 0; i < 1+r.Intn(1+size%6); i++ {
		cmds = append(cmds, g.command())
	}
	return reflect.ValueOf(builtQuery{q: keep(NewQuery(cmds...))})
}

type queryGen struct {
	r *rand.Rand
}

type genError struct{ err error }

// keep returns v, aborting generation on a construction error.
func keep[T any](v T, err error) T {
	if err != nil {
		panic(genError{err})
	}
	return v
}

func (g *queryGen) pick(xs ...string) string { return xs[g.r.Intn(len(xs))] }

func (g *queryGen) indices() []string {
	out := []string{g.pick("logs", "logs-*", "app.events")}
	if g.r.Intn(3) == 0 {
		out = append(out, g.pick("metrics", "my index"))
	}
	return out
}

func (g *queryGen) field() *FieldExpr {
	return keep(NewField(g.pick("host", "status", "latency", "request.host", "@timestamp", "my field", "user-agent")))
}

func (g *queryGen) literal() *LiteralExpr {
	switch g.r.Intn(5) {
	case 0:
		return keep(NewLiteral(LiteralNumber, g.pick("0", "1", "42", "-3", "1.5", "2.5e3")))
	case 1:
		return keep(NewLiteral(LiteralString, g.pick("localhost", "it's", "a b", `back\slash`)))
	case 2:
		return keep(NewLiteral(LiteralBoolean, g.pick("true", "false")))
	case 3:
		return keep(NewLiteral(LiteralDate, "2024-03-01 10:00:00"))
	default:
		return keep(NewLiteral(LiteralNull, ""))
	}
}

func (g *queryGen) scalar(depth int) Expr {
	if depth <= 0 {
		if g.r.Intn(2) == 0 {
			return g.field()
		}
		return g.literal()
	}
	switch g.r.Intn(6) {
	case 0:
		return g.field()
	case 1:
		return g.literal()
	case 2:
		args := make([]Expr, g.r.Intn(3))
		for i := range args {
			args[i] = g.scalar(depth - 1)
		}
		return keep(NewFunctionCall(g.pick("abs", "lower", "concat", "coalesce"), args...))
	case 3:
		return keep(NewUnary(g.pick(OpNot, OpNeg), g.scalar(depth-1)))
	default:
		op := g.pick(OpOr, OpAnd, OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpAdd, OpSub, OpMul, OpDiv, OpMod)
		return keep(NewBinary(op, g.scalar(depth-1), g.scalar(depth-1)))
	}
}

func (g *queryGen) span() *Span {
	interval := keep(NewLiteral(LiteralNumber, g.pick("1", "5", "15", "0.5")))
	expr := keep(NewSpanExpr(g.field(), interval, g.pick("", "ms", "s", "m", "h", "d", "w", "M", "minute")))
	return keep(NewSpan(expr, g.pick("", "hourly", "by hour")))
}

func (g *queryGen) aggregation() *AggregateFunction {
	alias := g.pick("", "total", "avg latency")
	switch name := g.pick("count", "avg", "sum", "max", "percentile"); name {
	case "count":
		return keep(NewAggregateFunction(name, alias))
	case "percentile":
		return keep(NewAggregateFunction(name, alias, g.field(), keep(NewLiteral(LiteralNumber, "95"))))
	default:
		return keep(NewAggregateFunction(name, alias, g.field()))
	}
}

func (g *queryGen) stats() *StatsCommand {
	opts := StatsOptions{
		Partitions:       g.r.Intn(3),
		AllNum:           g.r.Intn(2) == 0,
		Delim:            g.pick("", ",", ";"),
		DedupSplitValues: g.r.Intn(2) == 0,
	}
	aggs := make([]*AggregateFunction, 1+g.r.Intn(2))
	for i := range aggs {
		aggs[i] = g.aggregation()
	}
	groups := make([]GroupExpr, g.r.Intn(3))
	for i := range groups {
		if g.r.Intn(2) == 0 {
			groups[i] = g.span()
		} else {
			groups[i] = g.field()
		}
	}
	return keep(NewStatsCommand(opts, aggs, groups))
}

func (g *queryGen) command() Command {
	switch g.r.Intn(7) {
	case 0:
		return keep(NewWhereCommand(g.scalar(3)))
	case 1:
		return g.stats()
	case 2:
		fields := make([]SortField, 1+g.r.Intn(2))
		for i := range fields {
			fields[i] = SortField{Field: g.field(), Desc: g.r.Intn(2) == 0}
		}
		return keep(NewSortCommand(fields...))
	case 3:
		return keep(NewHeadCommand(g.r.Intn(20), 5*g.r.Intn(3)))
	case 4:
		return keep(NewFieldsCommand(g.r.Intn(2) == 0, g.field(), g.field()))
	case 5:
		return keep(NewEvalCommand(
			Assignment{Field: g.field(), Expr: g.scalar(2)},
			Assignment{Field: g.field(), Expr: g.literal()},
		))
	default:
		return keep(NewRenameCommand(Rename{From: g.field(), To: g.pick("new_name", "new name")}))
	}
}

func TestQuery_GeneratedRoundTrip(t *testing.T) {
	f := func(b builtQuery) bool {
		if b.err != nil {
			t.Log(b.err)
			return false
		}
		text := b.q.String()
		parsed, err := ParseQuery(text)
		if err != nil {
			t.Logf("%s: %v", text, err)
			return false
		}
		if !Equal(b.q, parsed) {
			t.Logf("%s:\n%s", text, Diff(b.q, parsed))
			return false
		}
		return parsed.String() == text
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}
