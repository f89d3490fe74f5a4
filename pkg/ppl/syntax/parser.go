package syntax

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grafana/ppl/pkg/pplmodel"
)

// dateLayout is the layout of date literals. Fractional seconds are optional.
const dateLayout = "2006-01-02 15:04:05.999999999"

var timeUnits = map[string]struct{}{
	"us": {}, "ms": {}, "s": {}, "m": {}, "h": {}, "d": {}, "w": {}, "M": {}, "q": {}, "y": {},
	"microsecond": {}, "millisecond": {}, "second": {}, "minute": {}, "hour": {},
	"day": {}, "week": {}, "month": {}, "quarter": {}, "year": {},
	"microseconds": {}, "milliseconds": {}, "seconds": {}, "minutes": {}, "hours": {},
	"days": {}, "weeks": {}, "months": {}, "quarters": {}, "years": {},
}

// IsTimeUnit reports whether unit is a valid span time unit.
func IsTimeUnit(unit string) bool {
	if _, ok := timeUnits[unit]; ok {
		return true
	}
	// single letter units are case sensitive, m and M differ.
	if len(unit) > 2 {
		_, ok := timeUnits[strings.ToLower(unit)]
		return ok
	}
	return false
}

// ParseQuery parses a PPL query into its AST.
func ParseQuery(input string) (*Query, error) {
	p, err := newParser(input)
	if err != nil {
		return nil, err
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ParseExpr parses a standalone expression, such as a where predicate.
func ParseExpr(input string) (Expr, error) {
	p, err := newParser(input)
	if err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != EOF {
		return nil, p.unexpected(tok, "end of input")
	}
	return e, nil
}

// MustParseQuery is like ParseQuery but panics on error.
func MustParseQuery(input string) *Query {
	q, err := ParseQuery(input)
	if err != nil {
		panic(err)
	}
	return q
}

type parser struct {
	tokens []token
	pos    int
}

func newParser(input string) (*parser, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	return &parser{tokens: toks}, nil
}

func (p *parser) peek() token {
	return p.peekAt(0)
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *parser) advance() token {
	tok := p.peek()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) acceptKeyword(kw string) bool {
	if isKeyword(p.peek(), kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(typ int, expected string) (token, error) {
	tok := p.peek()
	if tok.typ != typ {
		return tok, p.unexpected(tok, expected)
	}
	return p.advance(), nil
}

func (p *parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		return p.unexpected(p.peek(), strconv.Quote(kw))
	}
	return nil
}

func (p *parser) unexpected(tok token, expected string) *pplmodel.ParseError {
	return pplmodel.NewParseError(tok.pos, expected, describe(tok), "syntax error")
}

func (p *parser) errorf(tok token, format string, args ...interface{}) *pplmodel.ParseError {
	return pplmodel.NewParseError(tok.pos, "", "", fmt.Sprintf(format, args...))
}

func describe(tok token) string {
	switch tok.typ {
	case EOF:
		return "end of input"
	case STRING:
		return quoteString(tok.text)
	case QUOTED_IDENTIFIER:
		return "`" + tok.text + "`"
	default:
		return strconv.Quote(tok.text)
	}
}

func (p *parser) parseQuery() (*Query, error) {
	src, err := p.parseSource()
	if err != nil {
		return nil, err
	}
	q := &Query{Commands: []Command{src}}
	for p.peek().typ == PIPE {
		p.advance()
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		q.Commands = append(q.Commands, cmd)
	}
	if tok := p.peek(); tok.typ != EOF {
		return nil, p.unexpected(tok, "'|' or end of input")
	}
	return q, nil
}

func (p *parser) parseSource() (*SourceCommand, error) {
	p.acceptKeyword("search")
	if err := p.expectKeyword("source"); err != nil {
		return nil, err
	}
	if _, err := p.expect(EQ, "'='"); err != nil {
		return nil, err
	}

	src := &SourceCommand{}
	for {
		tok := p.peek()
		if tok.typ != INDEX && tok.typ != QUOTED_IDENTIFIER {
			return nil, p.unexpected(tok, "index name")
		}
		p.advance()
		src.Indices = append(src.Indices, tok.text)
		if p.peek().typ != COMMA {
			return src, nil
		}
		p.advance()
	}
}

func (p *parser) parseCommand() (Command, error) {
	tok := p.peek()
	if tok.typ != IDENTIFIER {
		return nil, p.unexpected(tok, "command")
	}
	switch strings.ToLower(tok.text) {
	case "where":
		return p.parseWhere()
	case "stats":
		return p.parseStats()
	case "sort":
		return p.parseSort()
	case "head":
		return p.parseHead()
	case "fields":
		return p.parseFields()
	case "eval":
		return p.parseEval()
	case "rename":
		return p.parseRename()
	case "source", "search":
		return nil, p.errorf(tok, "source command must be the first command of the query")
	default:
		return nil, p.unexpected(tok, "command")
	}
}

func (p *parser) parseWhere() (*WhereCommand, error) {
	p.advance()
	pred, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &WhereCommand{Predicate: pred}, nil
}

func (p *parser) parseStats() (*StatsCommand, error) {
	p.advance()
	stats := &StatsCommand{}

	if err := p.parseStatsOptions(&stats.Options); err != nil {
		return nil, err
	}

	for {
		agg, err := p.parseAggregation()
		if err != nil {
			return nil, err
		}
		stats.Aggregations = append(stats.Aggregations, agg)
		if p.peek().typ != COMMA {
			break
		}
		p.advance()
	}

	if p.acceptKeyword("by") {
		for {
			g, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			stats.GroupBy = append(stats.GroupBy, g)
			if p.peek().typ != COMMA {
				break
			}
			p.advance()
		}
	}

	if isKeyword(p.peek(), "dedup_splitvalues") && p.peekAt(1).typ == EQ {
		p.advance()
		p.advance()
		v, err := p.parseBool()
		if err != nil {
			return nil, err
		}
		stats.Options.DedupSplitValues = v
	}
	return stats, nil
}

func (p *parser) parseStatsOptions(opts *StatsOptions) error {
	for {
		tok := p.peek()
		if tok.typ != IDENTIFIER || p.peekAt(1).typ != EQ {
			return nil
		}
		var err error
		switch strings.ToLower(tok.text) {
		case "partitions":
			p.advance()
			p.advance()
			opts.Partitions, err = p.parseInt()
		case "allnum":
			p.advance()
			p.advance()
			opts.AllNum, err = p.parseBool()
		case "delim":
			p.advance()
			p.advance()
			var delim token
			delim, err = p.expect(STRING, "string")
			opts.Delim = delim.text
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *parser) parseAggregation() (*AggregateFunction, error) {
	tok := p.peek()
	if tok.typ != IDENTIFIER || p.peekAt(1).typ != OPEN_PARENTHESIS {
		return nil, p.unexpected(tok, "aggregation function")
	}
	if !isFunctionName(tok.text) {
		return nil, p.errorf(tok, "invalid function name %q", tok.text)
	}
	p.advance()
	p.advance()
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	agg := &AggregateFunction{Function: tok.text, Args: args}
	if p.acceptKeyword("as") {
		if agg.Alias, err = p.parseName("alias"); err != nil {
			return nil, err
		}
	}
	return agg, nil
}

// parseArgs parses a comma separated argument list, the opening parenthesis
// being already consumed.
func (p *parser) parseArgs() ([]Expr, error) {
	if p.peek().typ == CLOSE_PARENTHESIS {
		p.advance()
		return nil, nil
	}
	var args []Expr
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().typ != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(CLOSE_PARENTHESIS, "')'"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parseGroup() (GroupExpr, error) {
	if isKeyword(p.peek(), "span") && p.peekAt(1).typ == OPEN_PARENTHESIS {
		return p.parseSpan()
	}
	return p.parseField()
}

func (p *parser) parseSpan() (*Span, error) {
	p.advance()
	p.advance()
	field, err := p.parseField()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COMMA, "','"); err != nil {
		return nil, err
	}
	num, err := p.expect(NUMBER, "span interval")
	if err != nil {
		return nil, err
	}
	var unit string
	if tok := p.peek(); tok.typ == IDENTIFIER {
		if !IsTimeUnit(tok.text) {
			return nil, p.errorf(tok, "invalid span time unit %q", tok.text)
		}
		unit = tok.text
		p.advance()
	}
	if _, err := p.expect(CLOSE_PARENTHESIS, "')'"); err != nil {
		return nil, err
	}
	expr, err := NewSpanExpr(field, &LiteralExpr{Kind: LiteralNumber, Value: num.text}, unit)
	if err != nil {
		return nil, p.errorf(num, "span interval %q must be a positive number", num.text)
	}

	span := &Span{Expr: expr}
	if p.acceptKeyword("as") {
		if span.CustomLabel, err = p.parseName("span label"); err != nil {
			return nil, err
		}
	}
	return span, nil
}

func (p *parser) parseField() (*FieldExpr, error) {
	tok := p.peek()
	switch tok.typ {
	case QUOTED_IDENTIFIER:
		p.advance()
		return &FieldExpr{Name: tok.text}, nil
	case IDENTIFIER:
		qualifier, name, ok := splitQualifiedName(tok.text)
		if !ok {
			return nil, p.errorf(tok, "invalid field name %q", tok.text)
		}
		p.advance()
		return &FieldExpr{Qualifier: qualifier, Name: name}, nil
	default:
		return nil, p.unexpected(tok, "field")
	}
}

// splitQualifiedName splits a dotted name at its last dot.
func splitQualifiedName(s string) (qualifier, name string, ok bool) {
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return "", "", false
		}
	}
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return "", s, true
	}
	return s[:i], s[i+1:], true
}

func (p *parser) parseName(expected string) (string, error) {
	tok := p.peek()
	if tok.typ != IDENTIFIER && tok.typ != QUOTED_IDENTIFIER {
		return "", p.unexpected(tok, expected)
	}
	p.advance()
	return tok.text, nil
}

func (p *parser) parseInt() (int, error) {
	tok, err := p.expect(NUMBER, "integer")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok.text)
	if err != nil || n < 0 {
		return 0, p.unexpected(tok, "integer")
	}
	return n, nil
}

func (p *parser) parseBool() (bool, error) {
	tok := p.peek()
	switch {
	case isKeyword(tok, "true"):
		p.advance()
		return true, nil
	case isKeyword(tok, "false"):
		p.advance()
		return false, nil
	}
	return false, p.unexpected(tok, "boolean")
}

func (p *parser) parseSort() (*SortCommand, error) {
	p.advance()
	sort := &SortCommand{}
	for {
		desc := false
		switch p.peek().typ {
		case SUB:
			desc = true
			p.advance()
		case ADD:
			p.advance()
		}
		field, err := p.parseField()
		if err != nil {
			return nil, err
		}
		sort.Fields = append(sort.Fields, SortField{Field: field, Desc: desc})
		if p.peek().typ != COMMA {
			return sort, nil
		}
		p.advance()
	}
}

func (p *parser) parseHead() (*HeadCommand, error) {
	p.advance()
	head := &HeadCommand{Size: DefaultHeadSize}
	var err error
	if p.peek().typ == NUMBER {
		if head.Size, err = p.parseInt(); err != nil {
			return nil, err
		}
	}
	if p.acceptKeyword("from") {
		if head.From, err = p.parseInt(); err != nil {
			return nil, err
		}
	}
	return head, nil
}

func (p *parser) parseFields() (*FieldsCommand, error) {
	p.advance()
	fields := &FieldsCommand{}
	switch p.peek().typ {
	case SUB:
		fields.Exclude = true
		p.advance()
	case ADD:
		p.advance()
	}
	for {
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields.Fields = append(fields.Fields, f)
		if p.peek().typ != COMMA {
			return fields, nil
		}
		p.advance()
	}
}

func (p *parser) parseEval() (*EvalCommand, error) {
	p.advance()
	eval := &EvalCommand{}
	for {
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(EQ, "'='"); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		eval.Assignments = append(eval.Assignments, Assignment{Field: f, Expr: e})
		if p.peek().typ != COMMA {
			return eval, nil
		}
		p.advance()
	}
}

func (p *parser) parseRename() (*RenameCommand, error) {
	p.advance()
	rename := &RenameCommand{}
	for {
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("as"); err != nil {
			return nil, err
		}
		to, err := p.parseName("field")
		if err != nil {
			return nil, err
		}
		rename.Renames = append(rename.Renames, Rename{From: f, To: to})
		if p.peek().typ != COMMA {
			return rename, nil
		}
		p.advance()
	}
}

// Expressions, lowest precedence first:
//
//	or
//	and
//	not
//	= != < <= > >=
//	+ -
//	* / %
//	unary -
func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.acceptKeyword("not") {
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: OpNot, Expr: e}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[int]string{
	EQ:  OpEq,
	NEQ: OpNeq,
	LT:  OpLt,
	LTE: OpLte,
	GT:  OpGt,
	GTE: OpGte,
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOps[p.peek().typ]
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().typ {
		case ADD:
			op = OpAdd
		case SUB:
			op = OpSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().typ {
		case MUL:
			op = OpMul
		case DIV:
			op = OpDiv
		case MOD:
			op = OpMod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().typ != SUB {
		return p.parsePrimary()
	}
	p.advance()
	if tok := p.peek(); tok.typ == NUMBER {
		p.advance()
		return &LiteralExpr{Kind: LiteralNumber, Value: "-" + tok.text}, nil
	}
	e, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &UnaryExpr{Op: OpNeg, Expr: e}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.typ {
	case NUMBER:
		p.advance()
		return &LiteralExpr{Kind: LiteralNumber, Value: tok.text}, nil
	case STRING:
		p.advance()
		return stringLiteral(tok.text), nil
	case OPEN_PARENTHESIS:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(CLOSE_PARENTHESIS, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	case QUOTED_IDENTIFIER:
		return p.parseField()
	case IDENTIFIER:
		switch strings.ToLower(tok.text) {
		case "true", "false":
			p.advance()
			return &LiteralExpr{Kind: LiteralBoolean, Value: strings.ToLower(tok.text)}, nil
		case "null":
			p.advance()
			return &LiteralExpr{Kind: LiteralNull}, nil
		}
		if p.peekAt(1).typ == OPEN_PARENTHESIS {
			if !isFunctionName(tok.text) {
				return nil, p.errorf(tok, "invalid function name %q", tok.text)
			}
			p.advance()
			p.advance()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &FunctionCallExpr{Function: tok.text, Args: args}, nil
		}
		return p.parseField()
	default:
		return nil, p.unexpected(tok, "expression")
	}
}

// stringLiteral types a quoted literal, recognizing timestamps as dates.
func stringLiteral(s string) *LiteralExpr {
	if isDate(s) {
		return &LiteralExpr{Kind: LiteralDate, Value: s}
	}
	return &LiteralExpr{Kind: LiteralString, Value: s}
}

func isDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
