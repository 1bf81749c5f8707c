package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/gapscout/internal/pipeline"
	"github.com/kalambet/gapscout/internal/storage"
)

// SearchStore abstracts the saved-search operations the worker needs.
type SearchStore interface {
	ListAlertingSearches(ctx context.Context) ([]storage.SavedSearch, error)
	TouchSearch(ctx context.Context, id string, at time.Time) error
}

// Runner executes one analysis pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Worker re-runs saved searches whose alert is due.
type Worker struct {
	store    SearchStore
	runner   Runner
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If interval is <= 0, it defaults to one hour.
func NewWorker(store SearchStore, runner Runner, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Worker{
		store:    store,
		runner:   runner,
		interval: interval,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// Run checks for due searches every interval until ctx is cancelled. The
// first check happens immediately.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("alert worker iteration failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

// RunOnce runs every due search once and returns how many succeeded.
// A failed run is logged and left unstamped so the next tick retries it.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	searches, err := w.store.ListAlertingSearches(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing alerting searches: %w", err)
	}

	now := w.now()
	ran := 0
	for _, s := range searches {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		if !s.Due(now) {
			continue
		}

		res, err := w.runner.Run(ctx, pipeline.Request{
			Query:   s.Query,
			Mode:    s.SearchType,
			Sources: s.Sources,
		})
		if err != nil {
			kind, _ := pipeline.Describe(err)
			w.logger.Warn("saved search run failed", "search_id", s.ID, "kind", kind, "error", err)
			continue
		}

		if err := w.store.TouchSearch(ctx, s.ID, w.now()); err != nil {
			w.logger.Error("failed to stamp saved search", "search_id", s.ID, "error", err)
			continue
		}
		w.logger.Info("saved search alert ran",
			"search_id", s.ID,
			"user_id", s.UserID,
			"frequency", s.AlertFrequency,
			"records", len(res.Problems),
		)
		ran++
	}
	return ran, nil
}
