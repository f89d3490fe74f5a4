package syntax

type RootVisitor interface {
	CommandVisitor
	ExprVisitor

	VisitQuery(*Query)
}

type CommandVisitor interface {
	VisitSource(*SourceCommand)
	VisitWhere(*WhereCommand)
	VisitStats(*StatsCommand)
	VisitSort(*SortCommand)
	VisitHead(*HeadCommand)
	VisitFields(*FieldsCommand)
	VisitEval(*EvalCommand)
	VisitRename(*RenameCommand)
}

type ExprVisitor interface {
	VisitLiteral(*LiteralExpr)
	VisitField(*FieldExpr)
	VisitFunctionCall(*FunctionCallExpr)
	VisitBinary(*BinaryExpr)
	VisitUnary(*UnaryExpr)
	VisitSpanExpr(*SpanExpr)
	VisitSpan(*Span)
	VisitAggregateFunction(*AggregateFunction)
}
