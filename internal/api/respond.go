package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kalambet/gapscout/internal/pipeline"
	"github.com/kalambet/gapscout/internal/search"
)

const maxRequestBodySize = 1 << 20 // 1MB

// envelope is the response shape shared by every JSON route.
type envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Sources []search.Citation `json:"sources,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: writing response", "error", err)
	}
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Success: false, Error: msg})
}

// pipelineError logs a failed run and writes the caller-safe message with
// the status for its kind.
func pipelineError(w http.ResponseWriter, r *http.Request, err error) {
	kind, msg := pipeline.Describe(err)
	status := kind.Status()
	if status >= http.StatusInternalServerError {
		slog.Error("api: pipeline failed", "path", r.URL.Path, "kind", kind, "error", err)
	} else {
		slog.Info("api: pipeline rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}
	httpError(w, status, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
