// Package querymanager is the entry point used by the visualization layer to
// turn PPL text into an AST, build ASTs from UI parameters and serialize them
// back to text.
package querymanager

import (
	"errors"
	"flag"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/grafana/ppl/pkg/ppl/syntax"
	"github.com/grafana/ppl/pkg/pplmodel"
)

// Config configures a [Manager].
type Config struct {
	// CacheSize is the number of parsed queries kept in memory. Zero disables
	// the cache.
	CacheSize int `yaml:"cache_size"`

	// MaxQuerySize rejects longer query texts before parsing them.
	MaxQuerySize flagext.Bytes `yaml:"max_query_size"`
}

// RegisterFlags registers flags.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("query-manager.", f)
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	_ = cfg.MaxQuerySize.Set("64KB")

	f.IntVar(&cfg.CacheSize, prefix+"cache-size", 512, "Number of parsed queries to keep in memory. 0 disables the cache.")
	f.Var(&cfg.MaxQuerySize, prefix+"max-query-size", "Maximum size of a query text. 0 means no limit.")
}

// Validate validates the Config.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.CacheSize < 0 {
		errs = append(errs, errors.New("CacheSize must not be negative"))
	}
	return errors.Join(errs...)
}

type cachedQuery struct {
	text  string
	query *syntax.Query
}

// Manager parses, builds and serializes PPL queries. It is safe for
// concurrent use.
type Manager struct {
	cfg     Config
	logger  log.Logger
	metrics *metrics

	// cache is nil when disabled.
	cache    *lru.Cache[uint64, cachedQuery]
	// inflight dedupes concurrent parses of the same text.
	inflight singleflight.Group
}

// New returns a Manager. It returns an error if cfg is invalid.
func New(cfg Config, logger log.Logger, reg prometheus.Registerer) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:     cfg,
		logger:  log.With(logger, "component", "query-manager"),
		metrics: newMetrics(reg),
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[uint64, cachedQuery](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create parse cache: %w", err)
		}
		m.cache = cache
	}
	return m, nil
}

// Parse parses text into a query. On failure the returned error is a
// *pplmodel.ParseError locating the problem. The returned tree belongs to
// the caller.
func (m *Manager) Parse(text string) (*syntax.Query, error) {
	if limit := int(m.cfg.MaxQuerySize); limit > 0 && len(text) > limit {
		m.metrics.parses.WithLabelValues(statusFailure).Inc()
		return nil, pplmodel.NewParseError(pplmodel.Position{}, "", "", fmt.Sprintf("query size %d exceeds the limit of %d bytes", len(text), limit))
	}

	key := xxhash.Sum64String(text)
	if m.cache != nil {
		if cached, ok := m.cache.Get(key); ok && cached.text == text {
			m.metrics.cacheHits.Inc()
			m.metrics.parses.WithLabelValues(statusSuccess).Inc()
			return syntax.CloneQuery(cached.query), nil
		}
		m.metrics.cacheMisses.Inc()
	}

	v, err, _ := m.inflight.Do(text, func() (interface{}, error) {
		timer := prometheus.NewTimer(m.metrics.parseDuration)
		defer timer.ObserveDuration()
		return syntax.ParseQuery(text)
	})
	if err != nil {
		m.metrics.parses.WithLabelValues(statusFailure).Inc()
		level.Debug(m.logger).Log("msg", "failed to parse query", "query", text, "err", err)
		return nil, err
	}
	m.metrics.parses.WithLabelValues(statusSuccess).Inc()

	q := v.(*syntax.Query)
	if m.cache != nil {
		m.cache.Add(key, cachedQuery{text: text, query: q})
	}
	// the parsed tree may be shared with concurrent callers.
	return syntax.CloneQuery(q), nil
}

// Serialize returns the canonical text of q.
func (m *Manager) Serialize(q *syntax.Query) string {
	return q.String()
}

// ExtractTokens returns the token mapping of q consumed by the
// visualization configuration.
func (m *Manager) ExtractTokens(q *syntax.Query) syntax.Tokens {
	return q.Tokens()
}

// Format returns q formatted for display, one command per line when it does
// not fit on one.
func (m *Manager) Format(q *syntax.Query) string {
	return syntax.Prettify(q)
}

// ApplyStats returns a copy of base whose stats command is built from p. The
// last stats command of base is replaced, or the new one is appended when
// base has none.
func (m *Manager) ApplyStats(base *syntax.Query, p StatsParams) (*syntax.Query, error) {
	if base == nil {
		return nil, pplmodel.NewValidationError(syntax.NodeQuery, "", "missing base query")
	}
	stats, err := m.BuildStats(p)
	if err != nil {
		return nil, err
	}
	q, err := base.WithStats(stats)
	if err != nil {
		return nil, err
	}
	level.Debug(m.logger).Log("msg", "applied stats", "query", q.String())
	return q, nil
}
