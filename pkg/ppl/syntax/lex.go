package syntax

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"
	"unicode"

	"github.com/grafana/regexp"

	"github.com/grafana/ppl/pkg/pplmodel"
)

// Token types produced by the lexer.
const (
	EOF = iota
	IDENTIFIER
	QUOTED_IDENTIFIER
	STRING
	NUMBER
	INDEX
	PIPE
	COMMA
	EQ
	NEQ
	LT
	LTE
	GT
	GTE
	ADD
	SUB
	MUL
	DIV
	MOD
	OPEN_PARENTHESIS
	CLOSE_PARENTHESIS
)

var tokens = map[string]int{
	"|":  PIPE,
	",":  COMMA,
	"=":  EQ,
	"==": EQ,
	"!=": NEQ,
	"<":  LT,
	"<=": LTE,
	">":  GT,
	">=": GTE,
	"+":  ADD,
	"-":  SUB,
	"*":  MUL,
	"/":  DIV,
	"%":  MOD,
	"(":  OPEN_PARENTHESIS,
	")":  CLOSE_PARENTHESIS,
}

// keywords are never printed as bare field names or aliases.
var keywords = map[string]struct{}{
	"source":            {},
	"search":            {},
	"where":             {},
	"stats":             {},
	"sort":              {},
	"head":              {},
	"fields":            {},
	"eval":              {},
	"rename":            {},
	"by":                {},
	"as":                {},
	"and":               {},
	"or":                {},
	"not":               {},
	"from":              {},
	"span":              {},
	"true":              {},
	"false":             {},
	"null":              {},
	"partitions":        {},
	"allnum":            {},
	"delim":             {},
	"dedup_splitvalues": {},
}

type token struct {
	typ int
	// text is the raw token text, unquoted for strings and quoted identifiers.
	text string
	pos  pplmodel.Position
	// end is the byte offset right after the token.
	end int
}

type lexer struct {
	scanner.Scanner
	err *pplmodel.ParseError
}

func lex(input string) ([]token, error) {
	var l lexer
	l.Init(strings.NewReader(input))
	l.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings | scanner.ScanRawStrings
	l.IsIdentRune = isIdentRune
	l.Scanner.Error = func(_ *scanner.Scanner, msg string) {
		l.Error(msg)
	}

	var (
		toks      []token
		inIndices bool
	)
	for {
		var tok token
		if inIndices && (toks[len(toks)-1].typ == EQ || toks[len(toks)-1].typ == COMMA) {
			tok = l.nextIndex()
		} else {
			tok = l.next()
		}
		if l.err != nil {
			return nil, l.err
		}
		toks = append(toks, tok)
		if tok.typ == EOF {
			return toks, nil
		}

		switch tok.typ {
		case EQ:
			inIndices = isSourceKeyword(toks[:len(toks)-1])
		case INDEX, QUOTED_IDENTIFIER, COMMA:
		default:
			inIndices = false
		}
	}
}

// isSourceKeyword reports whether toks is the `source` or `search source`
// prefix of a query.
func isSourceKeyword(toks []token) bool {
	switch len(toks) {
	case 1:
		return isKeyword(toks[0], "source")
	case 2:
		return isKeyword(toks[0], "search") && isKeyword(toks[1], "source")
	}
	return false
}

func isKeyword(tok token, kw string) bool {
	return tok.typ == IDENTIFIER && strings.EqualFold(tok.text, kw)
}

func isIdentRune(ch rune, i int) bool {
	switch {
	case ch == '_' || unicode.IsLetter(ch):
		return true
	case ch == '@':
		return i == 0
	case ch == '.' || unicode.IsDigit(ch):
		return i > 0
	}
	return false
}

func (l *lexer) next() token {
	r := l.Scan()
	tok := token{pos: position(l.Position)}

	switch r {
	case scanner.EOF:
		tok.typ = EOF
		if tok.pos.Line == 0 {
			// empty input
			tok.pos.Line, tok.pos.Column = 1, 1
		}
	case scanner.Ident:
		tok.typ = IDENTIFIER
		tok.text = l.TokenText()
	case scanner.Int, scanner.Float:
		tok.typ = NUMBER
		tok.text = l.TokenText()
		// hex, octal and underscored forms are not PPL numbers.
		if !numberLiteral.MatchString(tok.text) {
			l.Error(fmt.Sprintf("invalid number %q", tok.text))
		}
	case scanner.String:
		var err error
		tok.typ = STRING
		tok.text, err = strconv.Unquote(l.TokenText())
		if err != nil {
			l.Error(err.Error())
		}
	case scanner.RawString:
		tok.typ = QUOTED_IDENTIFIER
		tok.text = strings.Trim(l.TokenText(), "`")
		if tok.text == "" {
			l.Error("empty quoted identifier")
		}
	case '\'':
		tok.typ = STRING
		tok.text = l.scanSingleQuoted(tok.pos)
	default:
		text := l.TokenText()
		if typ, ok := tokens[text+string(l.Peek())]; ok {
			tok.typ = typ
			tok.text = text + string(l.Next())
			break
		}
		typ, ok := tokens[text]
		if !ok {
			l.Error(fmt.Sprintf("unexpected character %q", r))
			break
		}
		tok.typ = typ
		tok.text = text
	}
	tok.end = l.Pos().Offset
	return tok
}

// nextIndex reads an index name verbatim. Index names such as logs-2024.01.08
// or logs-* are not made of regular tokens.
func (l *lexer) nextIndex() token {
	for unicode.IsSpace(l.Peek()) {
		l.Next()
	}
	if ch := l.Peek(); ch == scanner.EOF || isIndexDelimiter(ch) {
		return l.next()
	}

	tok := token{typ: INDEX, pos: position(l.Pos())}
	var sb strings.Builder
	for ch := l.Peek(); ch != scanner.EOF && !isIndexDelimiter(ch); ch = l.Peek() {
		sb.WriteRune(l.Next())
	}
	tok.text = sb.String()
	tok.end = l.Pos().Offset
	return tok
}

func isIndexDelimiter(ch rune) bool {
	return ch == ',' || ch == '|' || ch == '`' || unicode.IsSpace(ch)
}

// scanSingleQuoted reads the rest of a single quoted string starting at
// start, the opening quote being already consumed.
func (l *lexer) scanSingleQuoted(start pplmodel.Position) string {
	var sb strings.Builder
	for {
		ch := l.Next()
		switch ch {
		case scanner.EOF:
			l.errorAt(start, "literal not terminated")
			return ""
		case '\'':
			return sb.String()
		case '\\':
			esc := l.Next()
			switch esc {
			case scanner.EOF:
				l.errorAt(start, "literal not terminated")
				return ""
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '\\', '\'', '"':
				sb.WriteRune(esc)
			default:
				sb.WriteRune('\\')
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(ch)
		}
	}
}

func (l *lexer) Error(msg string) {
	// Next invalidates the token position.
	pos := l.Position
	if !pos.IsValid() {
		pos = l.Pos()
	}
	l.errorAt(position(pos), msg)
}

func (l *lexer) errorAt(pos pplmodel.Position, msg string) {
	// We want to return the first error (from the lexer), and ignore subsequent ones.
	if l.err != nil {
		return
	}
	l.err = pplmodel.NewParseError(pos, "", "", msg)
}

func position(p scanner.Position) pplmodel.Position {
	return pplmodel.Position{Offset: p.Offset, Line: p.Line, Column: p.Column}
}

var plainIndex = regexp.MustCompile("^[^\\s,|`]+$")

// isPlainIdent reports whether s reads back as a single unqualified
// identifier.
func isPlainIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, ch := range s {
		if ch == '.' || !isIdentRune(ch, i) {
			return false
		}
	}
	_, reserved := keywords[strings.ToLower(s)]
	return !reserved
}

func quoteIdent(s string) string {
	if isPlainIdent(s) {
		return s
	}
	return "`" + s + "`"
}

func quoteIndex(s string) string {
	if plainIndex.MatchString(s) {
		return s
	}
	return "`" + s + "`"
}

var stringEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quoteString(s string) string {
	return "'" + stringEscaper.Replace(s) + "'"
}
