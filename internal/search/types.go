package search

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Source is a discussion platform used to ground an analysis.
type Source string

const (
	SourceReddit  Source = "reddit"
	SourceTwitter Source = "twitter"
	SourceQuora   Source = "quora"
)

// AllSources lists every supported source in a stable order.
var AllSources = []Source{SourceReddit, SourceTwitter, SourceQuora}

// ParseSource reports whether s names a supported source.
func ParseSource(s string) (Source, bool) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceReddit:
		return SourceReddit, true
	case SourceTwitter:
		return SourceTwitter, true
	case SourceQuora:
		return SourceQuora, true
	}
	return "", false
}

// FilterSources drops unrecognized values and duplicates. An empty result
// falls back to reddit only.
func FilterSources(raw []string) []Source {
	seen := make(map[Source]bool, len(raw))
	var out []Source
	for _, r := range raw {
		src, ok := ParseSource(r)
		if !ok || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	if len(out) == 0 {
		return []Source{SourceReddit}
	}
	return out
}

// SourceList is a sources field decoded from client JSON. Entries that
// are not strings are dropped rather than failing the request, and a bare
// string is read as a one-element list; FilterSources handles the rest.
type SourceList []string

func (l *SourceList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		var one string
		if json.Unmarshal(data, &one) == nil && one != "" {
			*l = SourceList{one}
		} else {
			*l = nil
		}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(SourceList, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// Mode selects how a pipeline run searches, prompts and interprets output.
type Mode string

const (
	// ModeSolver is a single deep-dive analysis of one described problem.
	ModeSolver Mode = "solver"
	// ModeBuilder discovers several distinct problems around a topic.
	ModeBuilder Mode = "builder"
)

// ParseMode maps the request value to a Mode. Empty input means solver.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSolver:
		return ModeSolver, true
	case ModeBuilder:
		return ModeBuilder, true
	}
	return "", false
}

// Result is one normalized hit from the search provider.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  Source `json:"source"`
}

// Citation is the public attribution shape returned to callers.
type Citation struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Source Source `json:"source"`
}

// Citations converts the first n results into citations.
func Citations(results []Result, n int) []Citation {
	if n > len(results) {
		n = len(results)
	}
	out := make([]Citation, n)
	for i := range n {
		out[i] = Citation{URL: results[i].URL, Title: results[i].Title, Source: results[i].Source}
	}
	return out
}
