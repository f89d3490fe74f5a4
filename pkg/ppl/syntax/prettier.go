package syntax

import "strings"

var (
	// maxCharsPerLine is used to decide whether a query fits on a single line.
	maxCharsPerLine = 100

	indent = "  "
)

// Prettify formats q for humans. Queries that fit on one line are returned
// in canonical form, longer ones get one command per line:
//
//	source=logs
//	  | where status >= 500
//	  | stats count() by host
//
// The result parses back into a tree equal to q.
func Prettify(q *Query) string {
	s := q.String()
	if len(s) <= maxCharsPerLine || len(q.Commands) < 2 {
		return s
	}

	var sb strings.Builder
	for i, c := range q.Commands {
		if i > 0 {
			sb.WriteString("\n")
			sb.WriteString(indent)
			sb.WriteString("| ")
		}
		sb.WriteString(c.String())
	}
	return sb.String()
}
