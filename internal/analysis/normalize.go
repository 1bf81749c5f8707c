package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kalambet/gapscout/internal/search"
)

// ErrParse is returned when the model output is not JSON after fence stripping.
var ErrParse = errors.New("unparseable model response")

var fencePattern = regexp.MustCompile("(?i)```(?:json)?[ \t]*\r?\n?")

func stripFences(s string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(s, ""))
}

// Normalize parses raw model text into records attributed to the fetched
// search results. A single object yields one record; an array yields one
// record per object element, in order. Cardinality is not enforced.
func Normalize(raw string, results []search.Result) ([]Record, error) {
	items, err := splitRecords(stripFences(raw))
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(items))
	for i, fields := range items {
		records = append(records, normalizeRecord(i, fields, results))
	}
	return records, nil
}

func splitRecords(cleaned string) ([]map[string]json.RawMessage, error) {
	var top json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	top = bytes.TrimSpace(top)

	switch top[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(top, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return []map[string]json.RawMessage{obj}, nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(top, &elems); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		out := make([]map[string]json.RawMessage, 0, len(elems))
		for i, e := range elems {
			e = bytes.TrimSpace(e)
			if len(e) == 0 || e[0] != '{' {
				slog.Warn("skipping non-object element in model output", "index", i)
				continue
			}
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(e, &obj); err != nil {
				return nil, fmt.Errorf("%w: element %d: %v", ErrParse, i, err)
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected a JSON object or array", ErrParse)
	}
}

func normalizeRecord(index int, fields map[string]json.RawMessage, results []search.Result) Record {
	q := newQuality()
	q.carry(fields["quality_warnings"])

	rec := Record{
		Title:      stringField(fields["title"]),
		Domain:     stringField(fields["domain"]),
		Role:       stringField(fields["role"]),
		Overview:   stringField(fields["overview"]),
		Gap:        stringField(fields["gap"]),
		Automation: stringField(fields["automation"]),
	}
	if rec.Role == "" {
		rec.Role = DefaultRole
	}

	rec.Action = actionField(fields["action"], q)
	rec.Sentiment = sentimentField(fields["sentiment"], q)
	rec.SourceURL, rec.SourceType = attribute(index, stringField(fields["source_url"]), results, q)

	q.inspect(rec)
	rec.Warnings = q.list()
	rec.Completeness = completeness(rec)
	return rec
}

// attribute resolves the record's source: exact URL match against the
// fetched results first, then the result at the same index, then the first
// result. Claimed URLs that match nothing are replaced and flagged.
func attribute(index int, claimed string, results []search.Result, q *quality) (string, search.Source) {
	if claimed != "" {
		for _, r := range results {
			if r.URL == claimed {
				return r.URL, r.Source
			}
		}
	}
	if len(results) == 0 {
		if claimed != "" {
			q.add("source_url %q could not be verified against fetched discussions", claimed)
		}
		return claimed, search.SourceReddit
	}

	fallback := results[0]
	if index < len(results) {
		fallback = results[index]
	}
	if claimed != "" {
		q.add("source_url %q not among fetched discussions; attributed to %s", claimed, fallback.URL)
	}
	return fallback.URL, fallback.Source
}

// stringField renders any JSON value as text. Models occasionally emit
// numbers, lists or objects where prose was requested.
func stringField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}

func actionField(raw json.RawMessage, q *quality) Action {
	action, err := parseAction(raw)
	if err != nil {
		q.add("action has an unexpected shape; kept as text")
		return TextAction(stringField(raw))
	}
	return action
}

func sentimentField(raw json.RawMessage, q *quality) *Sentiment {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var obj map[string]json.RawMessage
	if raw[0] != '{' || json.Unmarshal(raw, &obj) != nil {
		q.add("sentiment is not an object; dropped")
		return nil
	}

	var s Sentiment
	targets := []struct {
		key string
		dst *int
	}{
		{"frustration_level", &s.FrustrationLevel},
		{"urgency_score", &s.UrgencyScore},
		{"willingness_to_pay", &s.WillingnessToPay},
	}
	for _, t := range targets {
		v, ok := scoreValue(obj[t.key])
		if !ok {
			q.add("sentiment.%s missing or not numeric; sentiment dropped", t.key)
			return nil
		}
		if v < 1 || v > 10 {
			clamped := min(max(v, 1), 10)
			q.add("sentiment.%s=%d outside 1-10; clamped to %d", t.key, v, clamped)
			v = clamped
		}
		*t.dst = v
	}
	return &s
}

func scoreValue(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}
