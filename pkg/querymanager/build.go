package querymanager

import (
	"github.com/go-kit/log/level"

	"github.com/grafana/ppl/pkg/ppl/syntax"
	"github.com/grafana/ppl/pkg/pplmodel"
)

// LiteralParams describes a literal. Type is one of string, number, boolean,
// date or null.
type LiteralParams struct {
	Type  string `json:"type" yaml:"type"`
	Value string `json:"value" yaml:"value"`
}

// FunctionParams describes a scalar function call. Args are expressions in
// PPL syntax.
type FunctionParams struct {
	Name string   `json:"name" yaml:"name"`
	Args []string `json:"args" yaml:"args"`
}

// SpanParams describes `span(Field, <Interval><Unit>) [as Label]`.
type SpanParams struct {
	Field    string `json:"field" yaml:"field"`
	Interval string `json:"interval" yaml:"interval"`
	Unit     string `json:"unit" yaml:"unit"`
	Label    string `json:"label" yaml:"label"`
}

// AggregationParams describes a stats aggregation. Field, when set, is the
// first argument, followed by Args.
type AggregationParams struct {
	Function string   `json:"function" yaml:"function"`
	Field    string   `json:"field" yaml:"field"`
	Args     []string `json:"args" yaml:"args"`
	Alias    string   `json:"alias" yaml:"alias"`
}

// GroupParams describes one group-by entry, either a field or a span.
type GroupParams struct {
	Field string      `json:"field,omitempty" yaml:"field,omitempty"`
	Span  *SpanParams `json:"span,omitempty" yaml:"span,omitempty"`
}

// StatsParams describes a stats command.
type StatsParams struct {
	Partitions       int                 `json:"partitions" yaml:"partitions"`
	AllNum           bool                `json:"allnum" yaml:"allnum"`
	Delim            string              `json:"delim" yaml:"delim"`
	DedupSplitValues bool                `json:"dedup_splitvalues" yaml:"dedup_splitvalues"`
	Aggregations     []AggregationParams `json:"aggregations" yaml:"aggregations"`
	GroupBy          []GroupParams       `json:"groupby" yaml:"groupby"`
}

// SortParams describes one sort key.
type SortParams struct {
	Field string `json:"field" yaml:"field"`
	Desc  bool   `json:"desc" yaml:"desc"`
}

// HeadParams describes a head command. A nil Size means the default size,
// zero is a valid size.
type HeadParams struct {
	Size *int `json:"size,omitempty" yaml:"size,omitempty"`
	From int  `json:"from" yaml:"from"`
}

var literalKinds = map[string]syntax.LiteralKind{
	syntax.LiteralString.String():  syntax.LiteralString,
	syntax.LiteralNumber.String():  syntax.LiteralNumber,
	syntax.LiteralBoolean.String(): syntax.LiteralBoolean,
	syntax.LiteralDate.String():    syntax.LiteralDate,
	syntax.LiteralNull.String():    syntax.LiteralNull,
}

// BuildLiteral returns a literal from p.
func (m *Manager) BuildLiteral(p LiteralParams) (*syntax.LiteralExpr, error) {
	kind, ok := literalKinds[p.Type]
	if !ok {
		return nil, m.built(syntax.NodeLiteral, pplmodel.NewValidationError(syntax.NodeLiteral, syntax.KeyType, "unknown literal type %q", p.Type))
	}
	lit, err := syntax.NewLiteral(kind, p.Value)
	return lit, m.built(syntax.NodeLiteral, err)
}

// BuildField returns a reference to the field name.
func (m *Manager) BuildField(name string) (*syntax.FieldExpr, error) {
	f, err := syntax.NewField(name)
	return f, m.built(syntax.NodeField, err)
}

// BuildFunction returns a scalar function call from p.
func (m *Manager) BuildFunction(p FunctionParams) (*syntax.FunctionCallExpr, error) {
	args, err := parseArgs(syntax.NodeFunction, p.Args)
	if err != nil {
		return nil, m.built(syntax.NodeFunction, err)
	}
	fn, err := syntax.NewFunctionCall(p.Name, args...)
	return fn, m.built(syntax.NodeFunction, err)
}

// BuildSpan returns a group-by span from p.
func (m *Manager) BuildSpan(p SpanParams) (*syntax.Span, error) {
	span, err := buildSpan(p)
	return span, m.built(syntax.NodeSpan, err)
}

func buildSpan(p SpanParams) (*syntax.Span, error) {
	field, err := syntax.NewField(p.Field)
	if err != nil {
		return nil, err
	}
	interval, err := syntax.NewLiteral(syntax.LiteralNumber, p.Interval)
	if err != nil {
		return nil, pplmodel.NewValidationError(syntax.NodeSpanExpr, syntax.KeyLiteralValue, "interval %q is not a number", p.Interval)
	}
	expr, err := syntax.NewSpanExpr(field, interval, p.Unit)
	if err != nil {
		return nil, err
	}
	return syntax.NewSpan(expr, p.Label)
}

// BuildAggregation returns a stats aggregation from p.
func (m *Manager) BuildAggregation(p AggregationParams) (*syntax.AggregateFunction, error) {
	agg, err := buildAggregation(p)
	return agg, m.built(syntax.NodeAggregation, err)
}

func buildAggregation(p AggregationParams) (*syntax.AggregateFunction, error) {
	var args []syntax.Expr
	if p.Field != "" {
		f, err := syntax.NewField(p.Field)
		if err != nil {
			return nil, err
		}
		args = append(args, f)
	}
	rest, err := parseArgs(syntax.NodeAggregation, p.Args)
	if err != nil {
		return nil, err
	}
	return syntax.NewAggregateFunction(p.Function, p.Alias, append(args, rest...)...)
}

// BuildSource returns a source command over indices.
func (m *Manager) BuildSource(indices ...string) (*syntax.SourceCommand, error) {
	c, err := syntax.NewSourceCommand(indices...)
	return c, m.built(syntax.NodeSource, err)
}

// BuildWhere returns a where command filtering on predicate, written in PPL
// syntax.
func (m *Manager) BuildWhere(predicate string) (*syntax.WhereCommand, error) {
	e, err := parseArg(syntax.NodeWhere, syntax.KeyPredicate, predicate)
	if err != nil {
		return nil, m.built(syntax.NodeWhere, err)
	}
	c, err := syntax.NewWhereCommand(e)
	return c, m.built(syntax.NodeWhere, err)
}

// BuildStats returns a stats command from p.
func (m *Manager) BuildStats(p StatsParams) (*syntax.StatsCommand, error) {
	c, err := buildStats(p)
	return c, m.built(syntax.NodeStats, err)
}

func buildStats(p StatsParams) (*syntax.StatsCommand, error) {
	aggs := make([]*syntax.AggregateFunction, 0, len(p.Aggregations))
	for _, ap := range p.Aggregations {
		agg, err := buildAggregation(ap)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, agg)
	}

	groups := make([]syntax.GroupExpr, 0, len(p.GroupBy))
	for _, gp := range p.GroupBy {
		switch {
		case gp.Span != nil && gp.Field != "":
			return nil, pplmodel.NewValidationError(syntax.NodeStats, syntax.KeyGroupBy, "group %q cannot be both a field and a span", gp.Field)
		case gp.Span != nil:
			span, err := buildSpan(*gp.Span)
			if err != nil {
				return nil, err
			}
			groups = append(groups, span)
		default:
			f, err := syntax.NewField(gp.Field)
			if err != nil {
				return nil, err
			}
			groups = append(groups, f)
		}
	}

	opts := syntax.StatsOptions{
		Partitions:       p.Partitions,
		AllNum:           p.AllNum,
		Delim:            p.Delim,
		DedupSplitValues: p.DedupSplitValues,
	}
	return syntax.NewStatsCommand(opts, aggs, groups)
}

// BuildSort returns a sort command over keys.
func (m *Manager) BuildSort(keys ...SortParams) (*syntax.SortCommand, error) {
	fields := make([]syntax.SortField, 0, len(keys))
	for _, k := range keys {
		f, err := syntax.NewField(k.Field)
		if err != nil {
			return nil, m.built(syntax.NodeSort, err)
		}
		fields = append(fields, syntax.SortField{Field: f, Desc: k.Desc})
	}
	c, err := syntax.NewSortCommand(fields...)
	return c, m.built(syntax.NodeSort, err)
}

// BuildHead returns `head size from from`.
func (m *Manager) BuildHead(p HeadParams) (*syntax.HeadCommand, error) {
	size := syntax.DefaultHeadSize
	if p.Size != nil {
		size = *p.Size
	}
	c, err := syntax.NewHeadCommand(size, p.From)
	return c, m.built(syntax.NodeHead, err)
}

// BuildQuery assembles commands into a query. The first command must be a
// source command.
func (m *Manager) BuildQuery(cmds ...syntax.Command) (*syntax.Query, error) {
	q, err := syntax.NewQuery(cmds...)
	return q, m.built(syntax.NodeQuery, err)
}

// built records the outcome of building a node and returns err unchanged.
func (m *Manager) built(node string, err error) error {
	if err != nil {
		m.metrics.builds.WithLabelValues(node, statusFailure).Inc()
		level.Debug(m.logger).Log("msg", "failed to build node", "node", node, "err", err)
		return err
	}
	m.metrics.builds.WithLabelValues(node, statusSuccess).Inc()
	return nil
}

func parseArgs(node string, args []string) ([]syntax.Expr, error) {
	res := make([]syntax.Expr, 0, len(args))
	for _, a := range args {
		e, err := parseArg(node, syntax.KeyArguments, a)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

func parseArg(node, field, text string) (syntax.Expr, error) {
	e, err := syntax.ParseExpr(text)
	if err != nil {
		return nil, pplmodel.NewValidationError(node, field, "%s", err)
	}
	return e, nil
}
