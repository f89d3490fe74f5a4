package pplanalyzer

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	dslog "github.com/grafana/dskit/log"
	json "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/grafana/ppl/pkg/ppl/syntax"
	"github.com/grafana/ppl/pkg/pplmodel"
	"github.com/grafana/ppl/pkg/querymanager"
	util_log "github.com/grafana/ppl/pkg/util/log"
)

func CorsMiddleware() mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(200)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

// NewRouter returns the routes of the analyzer server.
func NewRouter(m *querymanager.Manager, logger log.Logger, lvl *dslog.Level, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Use(CorsMiddleware(), otelhttp.NewMiddleware("pplanalyzer"))

	h := &PPLAnalyzeHandler{manager: m, logger: logger}
	r.Handle("/ppl/analyze", http.HandlerFunc(h.analyze)).Methods(http.MethodPost, http.MethodOptions)
	r.Handle("/ppl/stats", http.HandlerFunc(h.applyStats)).Methods(http.MethodPost, http.MethodOptions)
	r.Handle("/log_level", util_log.LevelHandler(lvl)).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// PPLAnalyzeHandler breaks queries down for the configuration UI.
type PPLAnalyzeHandler struct {
	manager *querymanager.Manager
	logger  log.Logger
}

func (s *PPLAnalyzeHandler) analyze(w http.ResponseWriter, req *http.Request) {
	requestBody := &Request{}
	if !s.readBody(w, req, requestBody) {
		return
	}
	q, err := s.manager.Parse(requestBody.Query)
	if err != nil {
		s.writeError(w, err, http.StatusBadRequest, "unable to parse query")
		return
	}
	s.writeResult(w, q)
}

func (s *PPLAnalyzeHandler) applyStats(w http.ResponseWriter, req *http.Request) {
	requestBody := &StatsRequest{}
	if !s.readBody(w, req, requestBody) {
		return
	}
	base, err := s.manager.Parse(requestBody.Query)
	if err != nil {
		s.writeError(w, err, http.StatusBadRequest, "unable to parse query")
		return
	}
	q, err := s.manager.ApplyStats(base, requestBody.Stats)
	if err != nil {
		s.writeError(w, err, http.StatusBadRequest, "unable to apply stats")
		return
	}
	s.writeResult(w, q)
}

func (s *PPLAnalyzeHandler) readBody(w http.ResponseWriter, req *http.Request, v interface{}) bool {
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		s.writeError(w, err, http.StatusBadRequest, "unable to read request body")
		return false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		s.writeError(w, err, http.StatusBadRequest, "unable unmarshal request body")
		return false
	}
	return true
}

func (s *PPLAnalyzeHandler) writeResult(w http.ResponseWriter, q *syntax.Query) {
	result := Result{
		Query:    s.manager.Serialize(q),
		Pretty:   s.manager.Format(q),
		Commands: make([]string, 0, len(q.Commands)),
		Tokens:   s.manager.ExtractTokens(q),
	}
	for _, c := range q.Commands {
		result.Commands = append(result.Commands, c.String())
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *PPLAnalyzeHandler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	responseBody, err := json.Marshal(v)
	if err != nil {
		s.writeError(w, err, http.StatusInternalServerError, "can not marshal the response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if n, err := w.Write(responseBody); err != nil {
		level.Error(s.logger).Log("msg", "error writing response", "bytesWritten", n, "err", err)
	}
}

func (s *PPLAnalyzeHandler) writeError(w http.ResponseWriter, err error, statusCode int, msg string) {
	level.Warn(s.logger).Log("msg", msg, "err", err)

	body := ErrorResponse{Message: err.Error()}
	var perr *pplmodel.ParseError
	if errors.As(err, &perr) {
		body.Line = perr.Pos.Line
		body.Column = perr.Pos.Column
		body.Expected = perr.Expected
		body.Found = perr.Found
	}
	responseBody, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(responseBody)
}

type Request struct {
	Query string `json:"query"`
}

type StatsRequest struct {
	Query string                   `json:"query"`
	Stats querymanager.StatsParams `json:"stats"`
}

type Result struct {
	Query    string        `json:"query"`
	Pretty   string        `json:"pretty"`
	Commands []string      `json:"commands"`
	Tokens   syntax.Tokens `json:"tokens"`
}

type ErrorResponse struct {
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Expected string `json:"expected,omitempty"`
	Found    string `json:"found,omitempty"`
}
