package log

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelHandler(t *testing.T) {
	var lvl dslog.Level
	err := lvl.Set("info")
	assert.NoError(t, err)
	plogger = &prometheusLogger{
		baseLogger: log.NewLogfmtLogger(io.Discard),
	}

	testCases := []struct {
		testName           string
		targetLogLevel     string
		expectedResponse   string
		expectedLogLevel   string
		expectedStatusCode int
	}{
		{"GetLogLevel", "", `{"message":"Current log level is info"}`, "info", 200},
		{"PostLogLevelInvalid", "invalid", `{"message":"unrecognized log level \"invalid\"", "status":"failed"}`, "info", 400},
		{"PostLogLevelEmpty", "", `{"message":"unrecognized log level \"\"", "status":"failed"}`, "info", 400},
		{"PostLogLevelDebug", "debug", `{"status": "success", "message":"Log level set to debug"}`, "debug", 200},
	}

	for _, testCase := range testCases {
		t.Run(testCase.testName, func(t *testing.T) {
			var (
				req *http.Request
				err error
			)

			if strings.HasPrefix(testCase.testName, "Get") {
				req, err = http.NewRequest("GET", "/", nil)
			} else if strings.HasPrefix(testCase.testName, "Post") {
				form := url.Values{"log_level": {testCase.targetLogLevel}}
				req, err = http.NewRequest("POST", "/", strings.NewReader(form.Encode()))
				req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
			}
			assert.NoError(t, err)

			rr := httptest.NewRecorder()
			handler := LevelHandler(&lvl)
			handler.ServeHTTP(rr, req)

			assert.JSONEq(t, testCase.expectedResponse, rr.Body.String())
			assert.Equal(t, testCase.expectedStatusCode, rr.Code)
			assert.Equal(t, testCase.expectedLogLevel, lvl.String())
		})
	}
}

func TestLevelHandler_Concurrent(t *testing.T) {
	var lvl dslog.Level
	require.NoError(t, lvl.Set("info"))
	plogger = &prometheusLogger{
		baseLogger: log.NewLogfmtLogger(io.Discard),
	}
	handler := LevelHandler(&lvl)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusOK, rr.Code)
		}()
		go func(target string) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(url.Values{"log_level": {target}}.Encode()))
			req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusOK, rr.Code)
		}([]string{"debug", "warn"}[i%2])
	}
	wg.Wait()

	require.Contains(t, []string{"debug", "warn"}, lvl.String())
}

func TestInitLogger(t *testing.T) {
	var lvl dslog.Level
	require.NoError(t, lvl.Set("warn"))

	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	logger := InitLogger(&buf, "json", lvl, reg)

	level.Debug(logger).Log("msg", "hidden")
	level.Warn(logger).Log("msg", "shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Equal(t, 1.0, testutil.ToFloat64(plogger.logMessages.WithLabelValues("warn")))
	require.Equal(t, 1.0, testutil.ToFloat64(plogger.logMessages.WithLabelValues("debug")))

	require.NoError(t, lvl.Set("debug"))
	plogger.Set(lvl)
	level.Debug(logger).Log("msg", "now visible")
	require.Contains(t, buf.String(), "now visible")
}

func TestSetLevel(t *testing.T) {
	var current, lvl dslog.Level
	require.NoError(t, current.Set("info"))
	require.NoError(t, lvl.Set("error"))

	var buf bytes.Buffer
	logger := InitLogger(&buf, "logfmt", current, prometheus.NewRegistry())

	SetLevel(&current, lvl)
	require.Equal(t, "error", current.String())

	level.Info(logger).Log("msg", "dropped")
	level.Error(logger).Log("msg", "kept")
	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "kept")
}
