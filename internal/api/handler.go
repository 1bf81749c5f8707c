package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/gapscout/internal/pipeline"
	"github.com/kalambet/gapscout/internal/storage"
)

// Runner executes one analysis pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type AppDeps struct {
	Analyzer      Runner
	Store         storage.Repository
	Token         string
	AllowedOrigin string
	// Now is the clock used to stamp saved-search runs. Nil means time.Now.
	Now func() time.Time
}

func (d AppDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// NewAppHandler returns the HTTP API. /health is open; every other route
// goes through BearerAuth.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(CORS(deps.AllowedOrigin))

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/", handleAnalyze(deps))
		r.Post("/analyze", handleAnalyze(deps))

		r.Get("/problems", handleListProblems(deps))
		r.Get("/problems/subreddits", handleSubreddits(deps))
		r.Get("/problems/{id}", handleGetProblem(deps))

		r.Post("/searches", handleSaveSearch(deps))
		r.Get("/searches", handleListSearches(deps))
		r.Get("/searches/{id}", handleGetSearch(deps))
		r.Patch("/searches/{id}", handleUpdateSearch(deps))
		r.Delete("/searches/{id}", handleDeleteSearch(deps))
		r.Post("/searches/{id}/run", handleRunSearch(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		if deps.Store != nil {
			if err := deps.Store.Ping(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, map[string]string{"status": status})
	}
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.Request
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := deps.Analyzer.Run(r.Context(), req)
		if err != nil {
			pipelineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: res.Problems, Sources: res.Sources})
	}
}
