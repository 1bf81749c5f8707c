package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/gapscout/internal/pipeline"
	"github.com/kalambet/gapscout/internal/search"
	"github.com/kalambet/gapscout/internal/storage"
)

type saveSearchRequest struct {
	UserID         string            `json:"user_id"`
	SearchType     string            `json:"search_type"`
	Query          string            `json:"query"`
	Sources        search.SourceList `json:"sources"`
	AlertEnabled   bool              `json:"alert_enabled"`
	AlertFrequency string            `json:"alert_frequency"`
}

func handleSaveSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveSearchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		userID := strings.TrimSpace(req.UserID)
		if userID == "" {
			httpError(w, http.StatusBadRequest, "user_id required")
			return
		}
		query, mode, err := pipeline.Request{Query: req.Query, Mode: req.SearchType}.Validate()
		if err != nil {
			pipelineError(w, r, err)
			return
		}
		freq, err := storage.ParseFrequency(req.AlertFrequency)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}

		saved, err := deps.Store.SaveSearch(r.Context(), storage.SavedSearch{
			UserID:         userID,
			SearchType:     string(mode),
			Query:          query,
			Sources:        sourceNames(search.FilterSources(req.Sources)),
			AlertEnabled:   req.AlertEnabled,
			AlertFrequency: freq,
		})
		if err != nil {
			slog.Error("api: saving search", "error", err)
			httpError(w, http.StatusInternalServerError, pipeline.MsgSaveFailed)
			return
		}
		writeData(w, http.StatusCreated, saved)
	}
}

func handleListSearches(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userID == "" {
			httpError(w, http.StatusBadRequest, "user_id required")
			return
		}
		searches, err := deps.Store.ListSearches(r.Context(), userID)
		if err != nil {
			slog.Error("api: listing searches", "error", err)
			httpError(w, http.StatusInternalServerError, "Failed to list searches")
			return
		}
		if searches == nil {
			searches = []storage.SavedSearch{}
		}
		writeData(w, http.StatusOK, searches)
	}
}

func handleGetSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := loadSearch(w, r, deps)
		if !ok {
			return
		}
		writeData(w, http.StatusOK, s)
	}
}

func handleUpdateSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u storage.SearchUpdate
		if !decodeBody(w, r, &u) {
			return
		}
		if u.Query != nil {
			query, err := pipeline.ValidateQuery(*u.Query)
			if err != nil {
				pipelineError(w, r, err)
				return
			}
			u.Query = &query
		}
		if u.SearchType != nil {
			mode, ok := search.ParseMode(*u.SearchType)
			if !ok {
				httpError(w, http.StatusBadRequest, pipeline.MsgInvalidMode)
				return
			}
			m := string(mode)
			u.SearchType = &m
		}
		if u.Sources != nil {
			names := search.SourceList(sourceNames(search.FilterSources(*u.Sources)))
			u.Sources = &names
		}
		if u.AlertFrequency != nil {
			if _, err := storage.ParseFrequency(*u.AlertFrequency); err != nil {
				httpError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		s, err := deps.Store.UpdateSearch(r.Context(), chi.URLParam(r, "id"), u)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Saved search not found")
			return
		}
		if err != nil {
			slog.Error("api: updating search", "error", err)
			httpError(w, http.StatusInternalServerError, pipeline.MsgSaveFailed)
			return
		}
		writeData(w, http.StatusOK, s)
	}
}

func handleDeleteSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteSearch(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Saved search not found")
			return
		}
		if err != nil {
			slog.Error("api: deleting search", "error", err)
			httpError(w, http.StatusInternalServerError, "Failed to delete search")
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// handleRunSearch runs the pipeline with a saved search's parameters and
// stamps last_run_at when the run succeeds.
func handleRunSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := loadSearch(w, r, deps)
		if !ok {
			return
		}

		res, err := deps.Analyzer.Run(r.Context(), pipeline.Request{
			Query:   s.Query,
			Mode:    s.SearchType,
			Sources: s.Sources,
		})
		if err != nil {
			pipelineError(w, r, err)
			return
		}
		if err := deps.Store.TouchSearch(r.Context(), s.ID, deps.now()); err != nil {
			slog.Warn("api: stamping saved search", "id", s.ID, "error", err)
		}
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: res.Problems, Sources: res.Sources})
	}
}

func loadSearch(w http.ResponseWriter, r *http.Request, deps AppDeps) (storage.SavedSearch, bool) {
	s, err := deps.Store.GetSearch(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "Saved search not found")
		return storage.SavedSearch{}, false
	}
	if err != nil {
		slog.Error("api: getting search", "error", err)
		httpError(w, http.StatusInternalServerError, "Failed to get search")
		return storage.SavedSearch{}, false
	}
	return s, true
}

func sourceNames(sources []search.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}
