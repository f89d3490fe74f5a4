package pplclient

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/grafana/ppl/pkg/ppl/syntax"
	"github.com/grafana/ppl/pkg/pplmodel"
)

// ErrSuperseded is returned by a search that a newer search replaced before
// it completed.
var ErrSuperseded = errors.New("search superseded by a newer one")

// Searcher runs the searches of a single view. Starting a search cancels the
// one still in flight, so only the latest query's result is ever returned.
type Searcher struct {
	client Client

	gen    atomic.Uint64
	mtx    sync.Mutex
	cancel context.CancelFunc
}

// NewSearcher returns a Searcher sending queries through c.
func NewSearcher(c Client) *Searcher {
	return &Searcher{client: c}
}

// Search executes the canonical text of q.
func (s *Searcher) Search(ctx context.Context, q *syntax.Query) (*pplmodel.Result, error) {
	ctx, cancel := context.WithCancel(ctx)

	// the generation is taken under the lock so that the latest search is
	// always the one whose cancel func stays installed.
	s.mtx.Lock()
	gen := s.gen.Inc()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mtx.Unlock()

	defer func() {
		s.mtx.Lock()
		if s.gen.Load() == gen {
			s.cancel = nil
		}
		s.mtx.Unlock()
		cancel()
	}()

	res, err := s.client.Query(ctx, q.String())
	if s.gen.Load() != gen {
		return nil, ErrSuperseded
	}
	return res, err
}

// Cancel cancels the search in flight, if any.
func (s *Searcher) Cancel() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.gen.Inc()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
