package log

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Logger is a shared go-kit logger.
	// TODO: Change all components to take a non-global logger via their constructors.
	Logger = log.NewNopLogger()

	plogger *prometheusLogger

	// levelMtx guards the level shared by SetLevel and LevelHandler.
	levelMtx sync.RWMutex
)

// InitLogger initialises the global logger. format is logfmt or json.
func InitLogger(w io.Writer, format string, lvl dslog.Level, reg prometheus.Registerer) log.Logger {
	var base log.Logger
	if format == "json" {
		base = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		base = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}

	plogger = newPrometheusLogger(lvl, base, reg)
	Logger = log.With(plogger, "ts", log.DefaultTimestampUTC, "caller", log.Caller(5))
	return Logger
}

type prometheusLogger struct {
	mtx         sync.RWMutex
	baseLogger  log.Logger
	logger      log.Logger
	logMessages *prometheus.CounterVec
}

func newPrometheusLogger(lvl dslog.Level, base log.Logger, reg prometheus.Registerer) *prometheusLogger {
	logMessages := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "ppl_log_messages_total",
		Help: "Total number of log messages by level.",
	}, []string{"level"})
	for _, l := range []level.Value{level.DebugValue(), level.InfoValue(), level.WarnValue(), level.ErrorValue()} {
		logMessages.WithLabelValues(l.String())
	}

	pl := &prometheusLogger{
		baseLogger:  base,
		logMessages: logMessages,
	}
	pl.Set(lvl)
	return pl
}

// Set swaps the level filter of the logger.
func (pl *prometheusLogger) Set(lvl dslog.Level) {
	pl.mtx.Lock()
	defer pl.mtx.Unlock()
	pl.logger = level.NewFilter(pl.baseLogger, lvl.Option)
}

// Log increments the appropriate Prometheus counter depending on the log level.
func (pl *prometheusLogger) Log(kv ...interface{}) error {
	pl.mtx.RLock()
	logger := pl.logger
	pl.mtx.RUnlock()

	if logger == nil {
		logger = pl.baseLogger
	}
	err := logger.Log(kv...)

	if pl.logMessages != nil {
		l := "unknown"
		for i := 1; i < len(kv); i += 2 {
			if v, ok := kv[i].(level.Value); ok {
				l = v.String()
				break
			}
		}
		pl.logMessages.WithLabelValues(l).Inc()
	}
	return err
}

// SetLevel changes the level of the global logger and records it in
// currentLogLevel.
func SetLevel(currentLogLevel *dslog.Level, lvl dslog.Level) {
	levelMtx.Lock()
	defer levelMtx.Unlock()
	if plogger != nil {
		plogger.Set(lvl)
	}
	*currentLogLevel = lvl
}

// LevelHandler returns the current log level on GET and changes it on POST
// with a log_level form value.
func LevelHandler(currentLogLevel *dslog.Level) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			levelMtx.RLock()
			current := currentLogLevel.String()
			levelMtx.RUnlock()
			writeJSON(w, http.StatusOK, map[string]string{
				"message": fmt.Sprintf("Current log level is %s", current),
			})
		case http.MethodPost:
			var lvl dslog.Level
			if err := lvl.Set(r.FormValue("log_level")); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"status":  "failed",
					"message": err.Error(),
				})
				return
			}
			SetLevel(currentLogLevel, lvl)
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "success",
				"message": fmt.Sprintf("Log level set to %s", lvl.String()),
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = jsoniter.ConfigFastest.NewEncoder(w).Encode(v)
}

// CheckFatal prints an error and exits with error code 1 if err is non-nil.
func CheckFatal(location string, err error, logger log.Logger) {
	if err == nil {
		return
	}
	logger = level.Error(logger)
	if location != "" {
		logger = log.With(logger, "msg", "error "+location)
	}
	// %+v gets the stack trace from errors using github.com/pkg/errors
	logger.Log("err", fmt.Sprintf("%+v", err))
	os.Exit(1)
}
