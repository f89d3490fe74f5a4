package pplanalyzer

import (
	"flag"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/log"
	dslog "github.com/grafana/dskit/log"
	json "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/grafana/ppl/pkg/querymanager"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	var cfg querymanager.Config
	cfg.RegisterFlags(flag.NewFlagSet("test", flag.PanicOnError))
	reg := prometheus.NewRegistry()
	m, err := querymanager.New(cfg, log.NewNopLogger(), reg)
	require.NoError(t, err)

	var lvl dslog.Level
	require.NoError(t, lvl.Set("info"))
	return NewRouter(m, log.NewNopLogger(), &lvl, reg)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAnalyze(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/ppl/analyze", `{"query": "source=logs | stats count() by span(timestamp,1h) as hourly"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	var res struct {
		Query    string   `json:"query"`
		Commands []string `json:"commands"`
		Tokens   struct {
			Commands []struct {
				Command string `json:"command"`
				Tokens  struct {
					GroupBy []map[string]interface{} `json:"groupby"`
				} `json:"tokens"`
			} `json:"commands"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, "source=logs | stats count() by span(timestamp, 1h) as hourly", res.Query)
	require.Equal(t, []string{"source=logs", "stats count() by span(timestamp, 1h) as hourly"}, res.Commands)
	require.Equal(t, "stats", res.Tokens.Commands[1].Command)
	require.Equal(t, "hourly", res.Tokens.Commands[1].Tokens.GroupBy[0]["label"])
}

func TestAnalyze_Errors(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/ppl/analyze", `{"query": "stats by span("}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{
		"message": "parse error at line 1, col 1: syntax error: expected \"source\", found \"stats\"",
		"line": 1,
		"column": 1,
		"expected": "\"source\"",
		"found": "\"stats\""
	}`, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/ppl/analyze", `not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/ppl/analyze", ``)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = do(t, h, http.MethodOptions, "/ppl/analyze", ``)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestApplyStats(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/ppl/stats", `{
		"query": "source=logs | where status >= 500 | stats count()",
		"stats": {
			"aggregations": [{"function": "count", "alias": "errors"}],
			"groupby": [{"span": {"field": "timestamp", "interval": "5", "unit": "m", "label": "bucket"}}, {"field": "host"}]
		}
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, "source=logs | where status >= 500 | stats count() as errors by span(timestamp, 5m) as bucket, host", res.Query)

	rr = do(t, h, http.MethodPost, "/ppl/stats", `{"query": "source=logs", "stats": {}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_Metrics(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodPost, "/ppl/analyze", `{"query": "source=logs"}`)

	rr := do(t, h, http.MethodGet, "/metrics", ``)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `ppl_query_manager_parses_total{status="success"} 1`)
}

func TestRouter_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer otel.SetTracerProvider(prev)

	h := newTestRouter(t)
	rr := do(t, h, http.MethodPost, "/ppl/analyze", `{"query": "source=logs"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
}
