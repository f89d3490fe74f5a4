package syntax

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/ppl/pkg/pplmodel"
)

func TestLex(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected []int
	}{
		{`source=logs`, []int{IDENTIFIER, EQ, INDEX}},
		{`source = logs-2024.01.08, other*`, []int{IDENTIFIER, EQ, INDEX, COMMA, INDEX}},
		{"search source=`my index`", []int{IDENTIFIER, IDENTIFIER, EQ, QUOTED_IDENTIFIER}},
		{`source=logs|where a=="b"`, []int{IDENTIFIER, EQ, INDEX, PIPE, IDENTIFIER, IDENTIFIER, EQ, STRING}},
		{
			`source=logs | where a >= 1.5 and b != 'x'`,
			[]int{IDENTIFIER, EQ, INDEX, PIPE, IDENTIFIER, IDENTIFIER, GTE, NUMBER, IDENTIFIER, IDENTIFIER, NEQ, STRING},
		},
		{
			`source=logs | stats count() by span(@timestamp, 1h) as hourly`,
			[]int{
				IDENTIFIER, EQ, INDEX, PIPE,
				IDENTIFIER, IDENTIFIER, OPEN_PARENTHESIS, CLOSE_PARENTHESIS,
				IDENTIFIER, IDENTIFIER, OPEN_PARENTHESIS, IDENTIFIER, COMMA, NUMBER, IDENTIFIER, CLOSE_PARENTHESIS,
				IDENTIFIER, IDENTIFIER,
			},
		},
		{
			`source=logs | eval x = (a + b) * -2 % 3 / c - d`,
			[]int{
				IDENTIFIER, EQ, INDEX, PIPE,
				IDENTIFIER, IDENTIFIER, EQ, OPEN_PARENTHESIS, IDENTIFIER, ADD, IDENTIFIER, CLOSE_PARENTHESIS,
				MUL, SUB, NUMBER, MOD, NUMBER, DIV, IDENTIFIER, SUB, IDENTIFIER,
			},
		},
		{`source=a | where x < 1 or y <= 2 or z > 3`, []int{IDENTIFIER, EQ, INDEX, PIPE, IDENTIFIER, IDENTIFIER, LT, NUMBER, IDENTIFIER, IDENTIFIER, LTE, NUMBER, IDENTIFIER, IDENTIFIER, GT, NUMBER}},
		// source is only a keyword at the start of a query.
		{`where source = 'x'`, []int{IDENTIFIER, IDENTIFIER, EQ, STRING}},
		{`source=logs | sort - bytes`, []int{IDENTIFIER, EQ, INDEX, PIPE, IDENTIFIER, SUB, IDENTIFIER}},
	} {
		t.Run(tc.input, func(t *testing.T) {
			toks, err := lex(tc.input)
			require.NoError(t, err)

			actual := []int{}
			for _, tok := range toks {
				if tok.typ == EOF {
					break
				}
				actual = append(actual, tok.typ)
			}
			require.Equal(t, tc.expected, actual)
		})
	}
}

func TestLex_Text(t *testing.T) {
	toks, err := lex("source=logs-* | where request.host = \"a\\\"b\" and msg = 'it\\'s' and `weird name` = 1h")
	require.NoError(t, err)

	var texts []string
	for _, tok := range toks[:len(toks)-1] {
		texts = append(texts, tok.text)
	}
	require.Equal(t, []string{
		"source", "=", "logs-*", "|",
		"where", "request.host", "=", `a"b`,
		"and", "msg", "=", "it's",
		"and", "weird name", "=", "1", "h",
	}, texts)
}

func TestLex_Positions(t *testing.T) {
	toks, err := lex("source=logs\n  | where x")
	require.NoError(t, err)

	require.Equal(t, pplmodel.Position{Offset: 0, Line: 1, Column: 1}, toks[0].pos)
	require.Equal(t, pplmodel.Position{Offset: 7, Line: 1, Column: 8}, toks[2].pos)
	require.Equal(t, 11, toks[2].end)
	require.Equal(t, pplmodel.Position{Offset: 14, Line: 2, Column: 3}, toks[3].pos)
	require.Equal(t, pplmodel.Position{Offset: 16, Line: 2, Column: 5}, toks[4].pos)
}

func TestLex_Errors(t *testing.T) {
	for _, tc := range []struct {
		input string
		err   string
	}{
		{`source=logs | where a = #`, `parse error at line 1, col 25: unexpected character '#'`},
		{`source=logs | where a = 'abc`, `parse error at line 1, col 25: literal not terminated`},
		{"source=logs | where `` = 1", `parse error at line 1, col 21: empty quoted identifier`},
		{`source=logs | where a = 'abc\`, `parse error at line 1, col 25: literal not terminated`},
		{"source=logs\n| where a = 'abc", `parse error at line 2, col 13: literal not terminated`},
		{`source=logs | head 0x10`, `parse error at line 1, col 20: invalid number "0x10"`},
		{`source=logs | head 007`, `parse error at line 1, col 20: invalid number "007"`},
		{`source=logs | head 1_000`, `parse error at line 1, col 20: invalid number "1_000"`},
	} {
		t.Run(tc.input, func(t *testing.T) {
			_, err := lex(tc.input)
			require.Error(t, err)
			require.True(t, pplmodel.IsParseError(err))
			require.EqualError(t, err, tc.err)
		})
	}
}

func TestQuoting(t *testing.T) {
	require.Equal(t, "host", quoteIdent("host"))
	require.Equal(t, "@timestamp", quoteIdent("@timestamp"))
	require.Equal(t, "`by`", quoteIdent("by"))
	require.Equal(t, "`a b`", quoteIdent("a b"))
	require.Equal(t, "`a.b`", quoteIdent("a.b"))

	require.Equal(t, "logs-2024.*", quoteIndex("logs-2024.*"))
	require.Equal(t, "`my index`", quoteIndex("my index"))

	require.Equal(t, `'it\'s'`, quoteString("it's"))
	require.Equal(t, `'a\\b'`, quoteString(`a\b`))
}
