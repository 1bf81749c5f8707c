package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/gapscout/internal/analysis"
	"github.com/kalambet/gapscout/internal/search"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// MaxListLimit caps how many problems a single listing returns.
const MaxListLimit = 50

// Problem is a persisted analysis record. It serializes flat: the record
// fields sit next to id, search_query and created_at.
type Problem struct {
	ID string `json:"id"`
	analysis.Record
	SearchQuery string    `json:"search_query"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProblemFilter narrows ListProblems. Zero Limit means MaxListLimit.
type ProblemFilter struct {
	Source string
	Limit  int
}

func (f ProblemFilter) limit() int {
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		return MaxListLimit
	}
	return f.Limit
}

// Alert frequencies for saved searches.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
	FrequencyNever  = "never"
)

// ParseFrequency validates an alert frequency. Empty means never.
func ParseFrequency(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyNever:
		return f, nil
	case "":
		return FrequencyNever, nil
	default:
		return "", fmt.Errorf("invalid alert frequency %q (want daily, weekly or never)", s)
	}
}

// SavedSearch is a query a user wants to re-run, optionally on a schedule.
type SavedSearch struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	SearchType     string     `json:"search_type"`
	Query          string     `json:"query"`
	Sources        []string   `json:"sources"`
	AlertEnabled   bool       `json:"alert_enabled"`
	AlertFrequency string     `json:"alert_frequency"`
	LastRunAt      *time.Time `json:"last_run_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Interval returns the re-run period for the search's alert frequency, or
// zero when it never re-runs.
func (s SavedSearch) Interval() time.Duration {
	switch s.AlertFrequency {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Due reports whether an alerting search should run at now. A search that
// has never run is due immediately.
func (s SavedSearch) Due(now time.Time) bool {
	interval := s.Interval()
	if !s.AlertEnabled || interval == 0 {
		return false
	}
	if s.LastRunAt == nil {
		return true
	}
	return !now.Before(s.LastRunAt.Add(interval))
}

// SearchUpdate carries the fields a PATCH may change. Nil fields are left alone.
type SearchUpdate struct {
	SearchType     *string            `json:"search_type"`
	Query          *string            `json:"query"`
	Sources        *search.SourceList `json:"sources"`
	AlertEnabled   *bool              `json:"alert_enabled"`
	AlertFrequency *string            `json:"alert_frequency"`
}

func (u SearchUpdate) apply(s *SavedSearch) error {
	if u.SearchType != nil {
		s.SearchType = *u.SearchType
	}
	if u.Query != nil {
		s.Query = *u.Query
	}
	if u.Sources != nil {
		s.Sources = *u.Sources
	}
	if u.AlertEnabled != nil {
		s.AlertEnabled = *u.AlertEnabled
	}
	if u.AlertFrequency != nil {
		f, err := ParseFrequency(*u.AlertFrequency)
		if err != nil {
			return err
		}
		s.AlertFrequency = f
	}
	return nil
}

// Repository is the persistence surface shared by the SQLite and Postgres stores.
type Repository interface {
	// InsertProblems stores the batch atomically and returns it with IDs and
	// timestamps assigned.
	InsertProblems(ctx context.Context, problems []Problem) ([]Problem, error)
	ListProblems(ctx context.Context, f ProblemFilter) ([]Problem, error)
	GetProblem(ctx context.Context, id string) (Problem, error)

	SaveSearch(ctx context.Context, s SavedSearch) (SavedSearch, error)
	ListSearches(ctx context.Context, userID string) ([]SavedSearch, error)
	GetSearch(ctx context.Context, id string) (SavedSearch, error)
	UpdateSearch(ctx context.Context, id string, u SearchUpdate) (SavedSearch, error)
	DeleteSearch(ctx context.Context, id string) error
	// ListAlertingSearches returns searches with alerts enabled and a
	// non-never frequency. Callers decide which are due.
	ListAlertingSearches(ctx context.Context) ([]SavedSearch, error)
	TouchSearch(ctx context.Context, id string, at time.Time) error

	Ping(ctx context.Context) error
	Close() error
}
