package syntax

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

type JSONSerializer struct {
	*jsoniter.Stream
}

func NewJSONSerializer(s *jsoniter.Stream) *JSONSerializer {
	return &JSONSerializer{
		Stream: s,
	}
}

// EncodeJSON writes the query as {"ppl":{"raw":...,"tokens":...}}. The
// tokens object has the same shape as Query.Tokens with keys in a stable
// order.
func EncodeJSON(q *Query, w io.Writer) error {
	s := jsoniter.ConfigFastest.BorrowStream(w)
	defer jsoniter.ConfigFastest.ReturnStream(s)
	v := NewJSONSerializer(s)
	q.Accept(v)
	return s.Flush()
}

// DecodeJSON reads back a query written by EncodeJSON. The tree is rebuilt
// from the raw text, tokens are informational only.
func DecodeJSON(raw string) (*Query, error) {
	iter := jsoniter.ParseString(jsoniter.ConfigFastest, raw)

	key := iter.ReadObject()
	if key != "ppl" {
		if iter.Error != nil {
			return nil, iter.Error
		}
		return nil, fmt.Errorf("unknown expression type: %s", key)
	}

	var q *Query
	var err error
	for f := iter.ReadObject(); f != ""; f = iter.ReadObject() {
		switch f {
		case "raw":
			q, err = ParseQuery(iter.ReadString())
			if err != nil {
				return nil, err
			}
		default:
			iter.Skip()
		}
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, iter.Error
	}
	if q == nil {
		return nil, fmt.Errorf("missing raw query")
	}
	return q, nil
}

var _ RootVisitor = &JSONSerializer{}

func (v *JSONSerializer) VisitQuery(q *Query) {
	v.WriteObjectStart()

	v.WriteObjectField("ppl")
	v.WriteObjectStart()

	v.WriteObjectField("raw")
	v.WriteString(q.String())

	v.WriteMore()
	v.WriteObjectField(KeyTokens)
	v.WriteObjectStart()
	v.WriteObjectField(KeyCommands)
	v.WriteArrayStart()
	for i, c := range q.Commands {
		if i > 0 {
			v.WriteMore()
		}
		v.WriteObjectStart()
		v.WriteObjectField(KeyCommand)
		v.WriteString(c.Type())
		v.WriteMore()
		v.WriteObjectField(KeyTokens)
		c.Accept(v)
		v.WriteObjectEnd()
	}
	v.WriteArrayEnd()
	v.WriteObjectEnd()

	v.WriteObjectEnd()
	v.WriteObjectEnd()
	v.Flush()
}

func (v *JSONSerializer) VisitSource(c *SourceCommand) {
	v.WriteObjectStart()
	v.WriteObjectField(KeyIndices)
	encodeStrings(v.Stream, c.Indices)
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitWhere(c *WhereCommand) {
	v.WriteObjectStart()
	v.WriteObjectField(KeyPredicate)
	c.Predicate.Accept(v)
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitStats(c *StatsCommand) {
	v.WriteObjectStart()

	v.WriteObjectField(KeyPartitions)
	v.WriteInt(c.Options.Partitions)

	v.WriteMore()
	v.WriteObjectField(KeyAllNum)
	v.WriteBool(c.Options.AllNum)

	v.WriteMore()
	v.WriteObjectField(KeyDelim)
	v.WriteString(c.Options.Delim)

	v.WriteMore()
	v.WriteObjectField(KeyAggregations)
	v.WriteArrayStart()
	for i, a := range c.Aggregations {
		if i > 0 {
			v.WriteMore()
		}
		a.Accept(v)
	}
	v.WriteArrayEnd()

	v.WriteMore()
	v.WriteObjectField(KeyGroupBy)
	v.WriteArrayStart()
	for i, g := range c.GroupBy {
		if i > 0 {
			v.WriteMore()
		}
		g.Accept(v)
	}
	v.WriteArrayEnd()

	v.WriteMore()
	v.WriteObjectField(KeyDedupSplit)
	v.WriteBool(c.Options.DedupSplitValues)

	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitSort(c *SortCommand) {
	v.WriteObjectStart()
	v.WriteObjectField(KeyFields)
	v.WriteArrayStart()
	for i, f := range c.Fields {
		if i > 0 {
			v.WriteMore()
		}
		v.WriteObjectStart()
		v.WriteObjectField(KeyField)
		v.WriteString(f.Field.FullName())
		v.WriteMore()
		v.WriteObjectField(KeyOrder)
		v.WriteString(sortOrder(f.Desc))
		v.WriteObjectEnd()
	}
	v.WriteArrayEnd()
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitHead(c *HeadCommand) {
	v.WriteObjectStart()
	v.WriteObjectField(KeySize)
	v.WriteInt(c.Size)
	v.WriteMore()
	v.WriteObjectField(KeyFrom)
	v.WriteInt(c.From)
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitFields(c *FieldsCommand) {
	v.WriteObjectStart()
	v.WriteObjectField(KeyExclude)
	v.WriteBool(c.Exclude)
	v.WriteMore()
	v.WriteObjectField(KeyFields)
	encodeStrings(v.Stream, fieldNames(c.Fields))
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitEval(c *EvalCommand) {
	v.WriteObjectStart()
	v.WriteObjectField(KeyAssignments)
	v.WriteArrayStart()
	for i, a := range c.Assignments {
		if i > 0 {
			v.WriteMore()
		}
		v.WriteObjectStart()
		v.WriteObjectField(KeyField)
		v.WriteString(a.Field.FullName())
		v.WriteMore()
		v.WriteObjectField(KeyExpression)
		a.Expr.Accept(v)
		v.WriteObjectEnd()
	}
	v.WriteArrayEnd()
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitRename(c *RenameCommand) {
	v.WriteObjectStart()
	v.WriteObjectField(KeyRenames)
	v.WriteArrayStart()
	for i, r := range c.Renames {
		if i > 0 {
			v.WriteMore()
		}
		v.WriteObjectStart()
		v.WriteObjectField(KeyFrom)
		v.WriteString(r.From.FullName())
		v.WriteMore()
		v.WriteObjectField(KeyTo)
		v.WriteString(r.To)
		v.WriteObjectEnd()
	}
	v.WriteArrayEnd()
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitLiteral(e *LiteralExpr) {
	v.WriteObjectStart()
	v.WriteObjectField(KeyType)
	v.WriteString(e.Kind.String())
	v.WriteMore()
	v.WriteObjectField(KeyValue)
	v.WriteString(e.Value)
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitField(e *FieldExpr) {
	v.WriteObjectStart()
	v.WriteObjectField(KeyName)
	v.WriteString(e.FullName())
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitFunctionCall(e *FunctionCallExpr) {
	v.WriteObjectStart()
	v.WriteObjectField(KeyFunctionName)
	v.WriteString(e.Function)
	v.WriteMore()
	v.WriteObjectField(KeyArguments)
	v.encodeExprs(e.Args)
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitBinary(e *BinaryExpr) {
	v.WriteObjectStart()

	v.WriteObjectField(KeyOperator)
	v.WriteString(e.Op)

	v.WriteMore()
	v.WriteObjectField(KeyLeft)
	e.Left.Accept(v)

	v.WriteMore()
	v.WriteObjectField(KeyRight)
	e.Right.Accept(v)

	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitUnary(e *UnaryExpr) {
	v.WriteObjectStart()
	v.WriteObjectField(KeyOperator)
	v.WriteString(e.Op)
	v.WriteMore()
	v.WriteObjectField(KeyExpression)
	e.Expr.Accept(v)
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitSpanExpr(e *SpanExpr) {
	v.WriteObjectStart()

	v.WriteObjectField(KeyType)
	v.WriteString(SpanType)

	v.WriteMore()
	v.WriteObjectField(KeyField)
	v.WriteString(e.Field.FullName())

	v.WriteMore()
	v.WriteObjectField(KeyLiteralValue)
	v.WriteString(e.Interval.Value)

	v.WriteMore()
	v.WriteObjectField(KeyTimeUnit)
	v.WriteString(e.Unit)

	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitSpan(e *Span) {
	v.WriteObjectStart()
	v.WriteObjectField(KeySpanExpression)
	e.Expr.Accept(v)
	v.WriteMore()
	v.WriteObjectField(KeyLabel)
	v.WriteString(e.CustomLabel)
	v.WriteObjectEnd()
}

func (v *JSONSerializer) VisitAggregateFunction(e *AggregateFunction) {
	v.WriteObjectStart()

	v.WriteObjectField(KeyFunctionName)
	v.WriteString(e.Function)

	v.WriteMore()
	v.WriteObjectField(KeyValueExpr)
	v.WriteString(e.ValueExpression())

	v.WriteMore()
	v.WriteObjectField(KeyArguments)
	v.encodeExprs(e.Args)

	v.WriteMore()
	v.WriteObjectField(KeyAlias)
	v.WriteString(e.Alias)

	v.WriteObjectEnd()
}

func (v *JSONSerializer) encodeExprs(exprs []Expr) {
	v.WriteArrayStart()
	for i, e := range exprs {
		if i > 0 {
			v.WriteMore()
		}
		e.Accept(v)
	}
	v.WriteArrayEnd()
}

func encodeStrings(s *jsoniter.Stream, values []string) {
	s.WriteArrayStart()
	for i, val := range values {
		if i > 0 {
			s.WriteMore()
		}
		s.WriteString(val)
	}
	s.WriteArrayEnd()
}
