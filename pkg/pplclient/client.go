package pplclient

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	json "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/config"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/grafana/ppl/pkg/pplmodel"
)

const queryPath = "/_plugins/_ppl"

var userAgent = "ppl-client"

// Client executes PPL queries. It's an interface to allow multiple
// implementations.
type Client interface {
	Query(ctx context.Context, query string) (*pplmodel.Result, error)
}

// Config configures a DefaultClient.
type Config struct {
	Address   string           `yaml:"address"`
	Username  string           `yaml:"username"`
	Password  config.Secret    `yaml:"password"`
	OrgID     string           `yaml:"org_id"`
	TLSConfig config.TLSConfig `yaml:"tls_config"`
	Timeout   time.Duration    `yaml:"timeout"`

	// The breaker opens after BreakerFailures consecutive failed requests
	// and stays open for BreakerTimeout.
	BreakerFailures uint          `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`

	MaxQPS float64 `yaml:"max_qps"`
}

// RegisterFlags registers flags.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("client.", f)
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Address, prefix+"address", "http://localhost:9200", "Address of the server answering PPL queries.")
	f.StringVar(&cfg.Username, prefix+"username", "", "Username for basic authentication.")
	f.StringVar((*string)(&cfg.Password), prefix+"password", "", "Password for basic authentication.")
	f.StringVar(&cfg.OrgID, prefix+"org-id", "", "Tenant sent in the X-Scope-OrgID header.")
	f.StringVar(&cfg.TLSConfig.CAFile, prefix+"tls.ca-path", "", "Path to the server CA certificate.")
	f.StringVar(&cfg.TLSConfig.CertFile, prefix+"tls.cert-path", "", "Path to the client certificate.")
	f.StringVar(&cfg.TLSConfig.KeyFile, prefix+"tls.key-path", "", "Path to the client certificate key.")
	f.BoolVar(&cfg.TLSConfig.InsecureSkipVerify, prefix+"tls.insecure-skip-verify", false, "Skip server certificate verification.")
	f.DurationVar(&cfg.Timeout, prefix+"timeout", 30*time.Second, "Timeout of a single query.")
	f.UintVar(&cfg.BreakerFailures, prefix+"breaker-failures", 5, "Consecutive failures after which queries fail fast. 0 disables the breaker.")
	f.DurationVar(&cfg.BreakerTimeout, prefix+"breaker-timeout", 30*time.Second, "How long queries fail fast once the breaker is open.")
	f.Float64Var(&cfg.MaxQPS, prefix+"max-qps", 0, "Maximum number of queries sent per second. 0 means no limit.")
}

// Validate validates the Config.
func (cfg *Config) Validate() error {
	if cfg.Address == "" {
		return errors.New("address is required")
	}
	if _, err := url.Parse(cfg.Address); err != nil {
		return errors.Wrap(err, "invalid address")
	}
	if cfg.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if cfg.MaxQPS < 0 {
		return errors.New("max qps must not be negative")
	}
	return nil
}

// StatusError is returned when the server answers with a non 2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("error response from server: %s (%d)", e.Body, e.Code)
}

// DefaultClient queries a server over HTTP.
type DefaultClient struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*pplmodel.Result]
	limiter *rate.Limiter
	logger  log.Logger
	clock   quartz.Clock
	tracer  trace.Tracer

	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

// New returns a DefaultClient.
func New(cfg Config, logger log.Logger, reg prometheus.Registerer) (*DefaultClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientConfig := config.HTTPClientConfig{
		TLSConfig: cfg.TLSConfig,
	}
	if cfg.Username != "" {
		clientConfig.BasicAuth = &config.BasicAuth{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	client, err := config.NewClientFromConfig(clientConfig, "pplclient")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create http client")
	}
	client.Timeout = cfg.Timeout

	limit := rate.Inf
	if cfg.MaxQPS > 0 {
		limit = rate.Limit(cfg.MaxQPS)
	}

	c := &DefaultClient{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  log.With(logger, "component", "ppl-client"),
		clock:   quartz.NewReal(),
		tracer:  otel.Tracer("github.com/grafana/ppl/pkg/pplclient"),
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ppl_client_requests_total",
			Help: "Total number of queries sent by status code.",
		}, []string{"status_code"}),
		duration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "ppl_client_request_duration_seconds",
			Help:    "Time taken by queries.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	c.breaker = gobreaker.NewCircuitBreaker[*pplmodel.Result](gobreaker.Settings{
		Name:    "ppl-client",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.BreakerFailures > 0 && counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			level.Warn(c.logger).Log("msg", "circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// Client errors and cancellations say nothing about the server health.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < 500
	}
	return false
}

// Query sends query to the server and returns its tabular result.
func (c *DefaultClient) Query(ctx context.Context, query string) (*pplmodel.Result, error) {
	ctx, span := c.tracer.Start(ctx, "ppl.query", trace.WithAttributes(attribute.String("ppl.query", query)))
	defer span.End()

	res, err := c.query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("ppl.rows", res.Lines()))
	return res, nil
}

func (c *DefaultClient) query(ctx context.Context, query string) (*pplmodel.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limited")
	}
	res, err := c.breaker.Execute(func() (*pplmodel.Result, error) {
		return c.doQuery(ctx, query)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	return res, nil
}

func (c *DefaultClient) doQuery(ctx context.Context, query string) (*pplmodel.Result, error) {
	us, err := buildURL(c.cfg.Address, queryPath, "format=jdbc")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	ctx = httptrace.WithClientTrace(ctx, otelhttptrace.NewClientTrace(ctx))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, us, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.cfg.OrgID != "" {
		req.Header.Set("X-Scope-OrgID", c.cfg.OrgID)
	}

	level.Debug(c.logger).Log("msg", "sending query", "url", us, "query", query)

	start := c.clock.Now()
	resp, err := c.client.Do(req)
	c.duration.Observe(c.clock.Since(start).Seconds())
	if err != nil {
		c.requests.WithLabelValues("error").Inc()
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			level.Warn(c.logger).Log("msg", "error closing body", "err", err)
		}
	}()
	c.requests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode/100 != 2 {
		buf, _ := io.ReadAll(resp.Body) // nolint
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(buf))}
	}

	var r pplmodel.Result
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}
	return &r, nil
}

// buildURL concats a url `http://foo/bar` with a path `/buzz`.
func buildURL(u, p, q string) (string, error) {
	url, err := url.Parse(u)
	if err != nil {
		return "", err
	}
	url.Path = path.Join(url.Path, p)
	url.RawQuery = q
	return url.String(), nil
}
