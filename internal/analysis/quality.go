package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// Hosts and paths lifted from prompt examples or commonly hallucinated as
// stand-ins for real links.
var placeholderHosts = []string{"example.com", "example.org", "example.net", "real-url.com", "actualtool.com"}

type quality struct {
	seen     map[string]bool
	warnings []string
}

func newQuality() *quality {
	return &quality{seen: make(map[string]bool)}
}

func (q *quality) add(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if q.seen[msg] {
		return
	}
	q.seen[msg] = true
	q.warnings = append(q.warnings, msg)
}

// carry keeps warnings from a previously normalized record so they survive
// a round trip even when the condition that raised them was repaired.
func (q *quality) carry(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var prior []string
	if err := json.Unmarshal(raw, &prior); err != nil {
		return
	}
	for _, w := range prior {
		if w != "" {
			q.add("%s", w)
		}
	}
}

func (q *quality) list() []string {
	if len(q.warnings) == 0 {
		return nil
	}
	return q.warnings
}

func (q *quality) inspect(rec Record) {
	if rec.Title == "" {
		q.add("title missing")
	}
	if rec.Domain == "" {
		q.add("domain missing")
	}
	if rec.Overview == "" {
		q.add("overview missing")
	}
	if rec.Action.IsEmpty() {
		q.add("action missing")
	}

	plan, ok := rec.Action.Plan()
	if !ok {
		return
	}
	for i, r := range plan.DIY.Resources {
		if IsPlaceholderURL(r.URL) {
			q.add("action.diy.resources[%d].url looks like a placeholder: %q", i, r.URL)
		}
	}
	for i, s := range plan.ExistingSolutions {
		if IsPlaceholderURL(s.URL) {
			q.add("action.existing_solutions[%d].url looks like a placeholder: %q", i, s.URL)
		}
	}
}

// IsPlaceholderURL reports whether u is empty, malformed, elided ("https://...")
// or points at a known stand-in host.
func IsPlaceholderURL(u string) bool {
	s := strings.TrimSpace(u)
	if s == "" || strings.Contains(s, "...") {
		return true
	}
	parsed, err := url.Parse(s)
	if err != nil || parsed.Host == "" {
		return true
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return true
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	for _, h := range placeholderHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return host == "youtube.com" && parsed.Path == "/specific-video"
}

// completeness is the share of the six content fields that are filled,
// rounded to two decimals.
func completeness(rec Record) float64 {
	filled := 0
	for _, s := range []string{rec.Title, rec.Domain, rec.Overview, rec.Gap, rec.Automation} {
		if s != "" {
			filled++
		}
	}
	if !rec.Action.IsEmpty() {
		filled++
	}
	return math.Round(float64(filled)/6*100) / 100
}
