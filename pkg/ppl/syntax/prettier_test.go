package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	maxCharsPerLine = 20
	defer func() { maxCharsPerLine = 100 }()

	cases := []struct {
		name string
		in   string
		exp  string
	}{
		{
			name: "source only",
			in:   `source = logs-2024.01.08, other`,
			exp:  `source=logs-2024.01.08, other`,
		},
		{
			name: "short",
			in:   `source=a|head 5`,
			exp:  `source=a | head 5`,
		},
		{
			name: "pipeline",
			in:   `source=logs|where status>=500|stats count() by span(timestamp,1h) as hourly,host|sort -host`,
			exp: `source=logs
  | where status >= 500
  | stats count() by span(timestamp, 1h) as hourly, host
  | sort - host`,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			q, err := ParseQuery(c.in)
			require.NoError(t, err)
			got := Prettify(q)
			assert.Equal(t, c.exp, got)

			again, err := ParseQuery(got)
			require.NoError(t, err)
			require.True(t, Equal(q, again))
		})
	}
}
