package syntax

// WalkFn is the callback function that gets called whenever a node of the AST is visited.
// The return value indicates whether the traversal should continue with the child nodes.
type WalkFn = func(n Node) bool

// Walkable denotes a node of the AST that can be traversed.
type Walkable interface {
	Walk(f WalkFn)
}

func walk(n Node, f WalkFn) {
	if !f(n) {
		return
	}
	for _, c := range n.Children() {
		c.Walk(f)
	}
}

func (q *Query) Walk(f WalkFn)             { walk(q, f) }
func (c *SourceCommand) Walk(f WalkFn)     { walk(c, f) }
func (c *WhereCommand) Walk(f WalkFn)      { walk(c, f) }
func (c *StatsCommand) Walk(f WalkFn)      { walk(c, f) }
func (c *SortCommand) Walk(f WalkFn)       { walk(c, f) }
func (c *HeadCommand) Walk(f WalkFn)       { walk(c, f) }
func (c *FieldsCommand) Walk(f WalkFn)     { walk(c, f) }
func (c *EvalCommand) Walk(f WalkFn)       { walk(c, f) }
func (c *RenameCommand) Walk(f WalkFn)     { walk(c, f) }
func (e *LiteralExpr) Walk(f WalkFn)       { walk(e, f) }
func (e *FieldExpr) Walk(f WalkFn)         { walk(e, f) }
func (e *FunctionCallExpr) Walk(f WalkFn)  { walk(e, f) }
func (e *BinaryExpr) Walk(f WalkFn)        { walk(e, f) }
func (e *UnaryExpr) Walk(f WalkFn)         { walk(e, f) }
func (e *SpanExpr) Walk(f WalkFn)          { walk(e, f) }
func (e *Span) Walk(f WalkFn)              { walk(e, f) }
func (e *AggregateFunction) Walk(f WalkFn) { walk(e, f) }

// Spans returns every span of the query's group-by clauses in source order.
func Spans(n Node) []*Span {
	var spans []*Span
	n.Walk(func(n Node) bool {
		if s, ok := n.(*Span); ok {
			spans = append(spans, s)
			return false
		}
		return true
	})
	return spans
}
