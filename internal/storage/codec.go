package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by older builds used plain RFC3339.
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

// problemJSON holds the JSON-encoded columns of a problem row.
type problemJSON struct {
	action    []byte
	sentiment []byte
	warnings  []byte
}

func encodeProblem(p Problem) (problemJSON, error) {
	var out problemJSON
	var err error
	if out.action, err = json.Marshal(p.Action); err != nil {
		return out, fmt.Errorf("encoding action: %w", err)
	}
	if out.sentiment, err = json.Marshal(p.Sentiment); err != nil {
		return out, fmt.Errorf("encoding sentiment: %w", err)
	}
	warnings := p.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	if out.warnings, err = json.Marshal(warnings); err != nil {
		return out, fmt.Errorf("encoding quality warnings: %w", err)
	}
	return out, nil
}

func (j problemJSON) decodeInto(p *Problem) error {
	if len(j.action) > 0 {
		if err := json.Unmarshal(j.action, &p.Action); err != nil {
			return fmt.Errorf("decoding action for %s: %w", p.ID, err)
		}
	}
	if len(j.sentiment) > 0 {
		if err := json.Unmarshal(j.sentiment, &p.Sentiment); err != nil {
			return fmt.Errorf("decoding sentiment for %s: %w", p.ID, err)
		}
	}
	if len(j.warnings) > 0 {
		if err := json.Unmarshal(j.warnings, &p.Warnings); err != nil {
			return fmt.Errorf("decoding quality warnings for %s: %w", p.ID, err)
		}
	}
	if len(p.Warnings) == 0 {
		p.Warnings = nil
	}
	return nil
}

// prepareBatch assigns IDs and a shared creation time to new problems.
func prepareBatch(problems []Problem, now time.Time) []Problem {
	now = now.Truncate(time.Microsecond)
	out := make([]Problem, len(problems))
	for i, p := range problems {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		out[i] = p
	}
	return out
}

// prepareSearch fills defaults on a new saved search.
func prepareSearch(s SavedSearch, now time.Time) (SavedSearch, error) {
	now = now.Truncate(time.Microsecond)
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.SearchType == "" {
		s.SearchType = "solver"
	}
	if len(s.Sources) == 0 {
		s.Sources = []string{"reddit"}
	}
	f, err := ParseFrequency(s.AlertFrequency)
	if err != nil {
		return s, err
	}
	s.AlertFrequency = f
	return s, nil
}
