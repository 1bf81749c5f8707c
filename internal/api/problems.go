package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/gapscout/internal/analysis"
	"github.com/kalambet/gapscout/internal/search"
	"github.com/kalambet/gapscout/internal/storage"
)

// topSubreddits is how many communities /problems/subreddits reports.
const topSubreddits = 5

func handleListProblems(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, ok := parseSourceParam(r)
		if !ok {
			httpError(w, http.StatusBadRequest, "Invalid source (want reddit, twitter, quora or all)")
			return
		}
		f := storage.ProblemFilter{
			Source: source,
			Limit:  parseIntParam(r, "limit", storage.MaxListLimit, storage.MaxListLimit),
		}

		problems, err := deps.Store.ListProblems(r.Context(), f)
		if err != nil {
			slog.Error("api: listing problems", "error", err)
			httpError(w, http.StatusInternalServerError, "Failed to list problems")
			return
		}
		if problems == nil {
			problems = []storage.Problem{}
		}
		writeData(w, http.StatusOK, problems)
	}
}

func handleGetProblem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Store.GetProblem(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Problem not found")
			return
		}
		if err != nil {
			slog.Error("api: getting problem", "error", err)
			httpError(w, http.StatusInternalServerError, "Failed to get problem")
			return
		}
		writeData(w, http.StatusOK, p)
	}
}

func handleSubreddits(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problems, err := deps.Store.ListProblems(r.Context(), storage.ProblemFilter{Source: string(search.SourceReddit)})
		if err != nil {
			slog.Error("api: listing reddit problems", "error", err)
			httpError(w, http.StatusInternalServerError, "Failed to list problems")
			return
		}
		urls := make([]string, len(problems))
		for i, p := range problems {
			urls[i] = p.SourceURL
		}
		counts := analysis.TopSubreddits(urls, topSubreddits)
		if counts == nil {
			counts = []analysis.SubredditCount{}
		}
		writeData(w, http.StatusOK, counts)
	}
}

// parseSourceParam reads ?source=. Empty and "all" mean no filter.
func parseSourceParam(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("source"))
	if raw == "" || strings.EqualFold(raw, "all") {
		return "", true
	}
	src, ok := search.ParseSource(raw)
	return string(src), ok
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
