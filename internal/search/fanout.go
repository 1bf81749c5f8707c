package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultSourceTimeout = 15 * time.Second

// Searcher runs one per-source query. Implementations absorb their own
// failures and return an empty slice instead.
type Searcher interface {
	Search(ctx context.Context, query string, src Source, mode Mode) []Result
}

// FanOut queries several sources concurrently and joins on all of them.
type FanOut struct {
	searcher Searcher
	timeout  time.Duration
}

// NewFanOut wraps searcher. Each per-source call is bounded by timeout
// (default 15s if <= 0) so one slow source cannot stall the join forever.
func NewFanOut(searcher Searcher, timeout time.Duration) *FanOut {
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	return &FanOut{searcher: searcher, timeout: timeout}
}

// SearchAll launches one search per source and returns the flattened results
// in source order. Siblings are never cancelled by a failing source; an empty
// return means no source produced anything.
func (f *FanOut) SearchAll(ctx context.Context, query string, sources []Source, mode Mode) []Result {
	slots := make([][]Result, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			slots[i] = f.searcher.Search(callCtx, query, src, mode)
			return nil
		})
	}
	_ = g.Wait()

	var total int
	for _, s := range slots {
		total += len(s)
	}
	out := make([]Result, 0, total)
	for _, s := range slots {
		out = append(out, s...)
	}

	slog.Debug("search fan-out complete", "sources", len(sources), "results", len(out))
	return out
}
