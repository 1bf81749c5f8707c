package analysis

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/gapscout/internal/search"
)

var fetched = []search.Result{
	{URL: "https://reddit.com/r/accounting/comments/a1", Title: "Expense reports", Snippet: "I wish there was a tool", Source: search.SourceReddit},
	{URL: "https://x.com/someone/status/2", Title: "Receipts", Snippet: "still manual", Source: search.SourceTwitter},
	{URL: "https://quora.com/How-do-I-automate-expenses", Title: "Automate", Snippet: "how do I automate", Source: search.SourceQuora},
}

const solverJSON = `{
  "title": "Manual expense reports",
  "domain": "Finance",
  "role": "Accountant",
  "overview": "Staff retype receipts into spreadsheets.",
  "gap": "Card feeds do not capture itemized receipts.",
  "automation": "OCR receipts and match them to card transactions.",
  "action": {
    "diy": {"description": "Wire an OCR API to a sheet.", "resources": [{"type": "tutorial", "title": "OCR basics", "url": "https://docs.mindee.com/"}]},
    "existing_solutions": [{"name": "Expensify", "url": "https://www.expensify.com", "cost": "$5/mo", "description": "Receipt scanning"}],
    "build_opportunity": {"viable": false, "reason": "Crowded market", "search_query": "expense automation"}
  },
  "source_url": "https://x.com/someone/status/2",
  "sentiment": {"frustration_level": 8, "urgency_score": 6, "willingness_to_pay": 7}
}`

func TestNormalizeFencedEqualsBare(t *testing.T) {
	bare, err := Normalize(solverJSON, fetched)
	if err != nil {
		t.Fatalf("Normalize bare: %v", err)
	}
	fenced, err := Normalize("```json\n"+solverJSON+"\n```", fetched)
	if err != nil {
		t.Fatalf("Normalize fenced: %v", err)
	}
	if !reflect.DeepEqual(bare, fenced) {
		t.Fatalf("fenced result differs:\nbare   %+v\nfenced %+v", bare, fenced)
	}

	upper, err := Normalize("```JSON\n"+solverJSON+"```", fetched)
	if err != nil {
		t.Fatalf("Normalize upper-case fence: %v", err)
	}
	if !reflect.DeepEqual(bare, upper) {
		t.Fatal("upper-case fence changed the result")
	}
}

func TestNormalizeSingleObject(t *testing.T) {
	recs, err := Normalize(solverJSON, fetched)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.Title != "Manual expense reports" || r.Role != "Accountant" {
		t.Errorf("unexpected fields: %+v", r)
	}
	if r.SourceType != search.SourceTwitter || r.SourceURL != "https://x.com/someone/status/2" {
		t.Errorf("attribution = %s %s, want twitter match", r.SourceType, r.SourceURL)
	}
	if r.Sentiment == nil || r.Sentiment.FrustrationLevel != 8 {
		t.Errorf("sentiment = %+v", r.Sentiment)
	}
	if r.Completeness != 1 {
		t.Errorf("completeness = %v, want 1", r.Completeness)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings)
	}
	if r.Action.Kind() != ActionStructured {
		t.Errorf("action kind = %s, want structured", r.Action.Kind())
	}
}

func TestNormalizeArrayPreservesOrder(t *testing.T) {
	raw := `[
	  {"title": "A", "domain": "d", "overview": "o", "action": "do a"},
	  {"title": "B", "domain": "d", "overview": "o", "action": "do b"},
	  {"title": "C", "domain": "d", "overview": "o", "action": "do c"}
	]`
	recs, err := Normalize(raw, fetched)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i, want := range []string{"A", "B", "C"} {
		if recs[i].Title != want {
			t.Errorf("recs[%d].Title = %q, want %q", i, recs[i].Title, want)
		}
		if recs[i].SourceURL != fetched[i].URL {
			t.Errorf("recs[%d] positional attribution = %q, want %q", i, recs[i].SourceURL, fetched[i].URL)
		}
	}
}

func TestNormalizeShortArrayAccepted(t *testing.T) {
	raw := `[{"title": "A", "domain": "d"}, {"title": "B", "domain": "d"}]`
	recs, err := Normalize(raw, fetched)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
}

func TestNormalizeSkipsNonObjectElements(t *testing.T) {
	recs, err := Normalize(`[{"title": "A"}, "stray", 3, {"title": "B"}]`, fetched)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(recs) != 2 || recs[0].Title != "A" || recs[1].Title != "B" {
		t.Fatalf("got %+v", recs)
	}
}

func TestNormalizeParseErrors(t *testing.T) {
	for _, raw := range []string{"", "not json at all", "```json\n{broken\n```", `"just a string"`, "42"} {
		_, err := Normalize(raw, fetched)
		if !errors.Is(err, ErrParse) {
			t.Errorf("Normalize(%q) err = %v, want ErrParse", raw, err)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		solverJSON,
		`{"title": "T", "sentiment": {"frustration_level": 14, "urgency_score": "3", "willingness_to_pay": 0}, "source_url": "https://made.up/thread"}`,
		`[{"title": "A", "action": "{\"diy\": {\"description\": \"x\", \"resources\": []}}"}, {"domain": 7, "action": ["step 1", "step 2"]}]`,
		`{"title": "P", "action": {"diy": {"description": "d", "resources": [{"type": "video", "title": "v", "url": "https://youtube.com/specific-video"}]}}}`,
	}
	for _, raw := range inputs {
		first, err := Normalize(raw, fetched)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", raw, err)
		}
		encoded, err := json.Marshal(first)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		second, err := Normalize(string(encoded), fetched)
		if err != nil {
			t.Fatalf("Normalize(re-encoded): %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("not idempotent for %q:\nfirst  %+v\nsecond %+v", raw, first, second)
		}
	}
}

func TestNormalizeAttributionFallbacks(t *testing.T) {
	t.Run("unknown url replaced by positional result", func(t *testing.T) {
		recs, err := Normalize(`[{"title": "a"}, {"title": "b", "source_url": "https://invented.example/post"}]`, fetched)
		if err != nil {
			t.Fatal(err)
		}
		if recs[1].SourceURL != fetched[1].URL || recs[1].SourceType != search.SourceTwitter {
			t.Errorf("got %s %s", recs[1].SourceType, recs[1].SourceURL)
		}
		if !containsWarning(recs[1].Warnings, "not among fetched discussions") {
			t.Errorf("missing replacement warning: %v", recs[1].Warnings)
		}
	})

	t.Run("index beyond results uses first", func(t *testing.T) {
		raw := `[{"title": "1"}, {"title": "2"}, {"title": "3"}]`
		recs, err := Normalize(raw, fetched[:1])
		if err != nil {
			t.Fatal(err)
		}
		for i, r := range recs {
			if r.SourceURL != fetched[0].URL || r.SourceType != search.SourceReddit {
				t.Errorf("recs[%d] = %s %s", i, r.SourceType, r.SourceURL)
			}
		}
	})

	t.Run("no results defaults to reddit", func(t *testing.T) {
		recs, err := Normalize(`{"title": "x"}`, nil)
		if err != nil {
			t.Fatal(err)
		}
		if recs[0].SourceType != search.SourceReddit || recs[0].SourceURL != "" {
			t.Errorf("got %s %q", recs[0].SourceType, recs[0].SourceURL)
		}
	})
}

func TestNormalizeActionVariants(t *testing.T) {
	recs, err := Normalize(`[
	  {"title": "text", "action": "  Start with a spreadsheet template.  "},
	  {"title": "encoded", "action": "{\"diy\": {\"description\": \"Use Zapier\", \"resources\": []}, \"build_opportunity\": {\"viable\": true, \"reason\": \"gap\", \"search_query\": \"q\"}}"},
	  {"title": "plain object", "action": {"existing_solutions": [{"name": "Ramp", "url": "https://ramp.com", "cost": "free", "description": "cards"}]}},
	  {"title": "missing"}
	]`, fetched)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if text, ok := recs[0].Action.Text(); !ok || text != "Start with a spreadsheet template." {
		t.Errorf("text action = %q, %v", text, ok)
	}

	plan, ok := recs[1].Action.Plan()
	if !ok {
		t.Fatalf("encoded action not promoted: kind %s", recs[1].Action.Kind())
	}
	if plan.DIY.Description != "Use Zapier" || !plan.BuildOpportunity.Viable {
		t.Errorf("promoted plan = %+v", plan)
	}

	plan, ok = recs[2].Action.Plan()
	if !ok || len(plan.ExistingSolutions) != 1 || plan.ExistingSolutions[0].Name != "Ramp" {
		t.Errorf("object plan = %+v, %v", plan, ok)
	}

	if !recs[3].Action.IsEmpty() || !containsWarning(recs[3].Warnings, "action missing") {
		t.Errorf("missing action: %+v", recs[3])
	}
}

func TestNormalizeMalformedPlanKeptAsText(t *testing.T) {
	recs, err := Normalize(`{"title": "t", "action": {"diy": "just do it"}}`, fetched)
	if err != nil {
		t.Fatal(err)
	}
	text, ok := recs[0].Action.Text()
	if !ok || text != `{"diy":"just do it"}` {
		t.Errorf("action = %q, %v", text, ok)
	}
	if !containsWarning(recs[0].Warnings, "unexpected shape") {
		t.Errorf("warnings = %v", recs[0].Warnings)
	}
}

func TestNormalizeSentiment(t *testing.T) {
	recs, err := Normalize(`[
	  {"sentiment": {"frustration_level": 12, "urgency_score": "4.6", "willingness_to_pay": -1}},
	  {"sentiment": {"frustration_level": 5}},
	  {"sentiment": "high"},
	  {}
	]`, fetched)
	if err != nil {
		t.Fatal(err)
	}

	s := recs[0].Sentiment
	if s == nil || s.FrustrationLevel != 10 || s.UrgencyScore != 5 || s.WillingnessToPay != 1 {
		t.Errorf("clamped sentiment = %+v", s)
	}
	if !containsWarning(recs[0].Warnings, "clamped to 10") || !containsWarning(recs[0].Warnings, "clamped to 1") {
		t.Errorf("warnings = %v", recs[0].Warnings)
	}
	if recs[1].Sentiment != nil || !containsWarning(recs[1].Warnings, "urgency_score missing") {
		t.Errorf("partial sentiment = %+v %v", recs[1].Sentiment, recs[1].Warnings)
	}
	if recs[2].Sentiment != nil || !containsWarning(recs[2].Warnings, "not an object") {
		t.Errorf("string sentiment = %+v %v", recs[2].Sentiment, recs[2].Warnings)
	}
	if recs[3].Sentiment != nil {
		t.Errorf("absent sentiment = %+v", recs[3].Sentiment)
	}
}

func TestNormalizeCoercesFieldTypes(t *testing.T) {
	recs, err := Normalize(`{"title": 404, "domain": true, "overview": ["a", "b"], "gap": null, "role": "  "}`, fetched)
	if err != nil {
		t.Fatal(err)
	}
	r := recs[0]
	if r.Title != "404" || r.Domain != "true" || r.Overview != `["a","b"]` || r.Gap != "" {
		t.Errorf("coerced = %+v", r)
	}
	if r.Role != DefaultRole {
		t.Errorf("role = %q, want default", r.Role)
	}
	if r.Completeness != 0.5 {
		t.Errorf("completeness = %v, want 0.5", r.Completeness)
	}
}

func TestNormalizeMissingFieldsWarn(t *testing.T) {
	recs, err := Normalize(`{"gap": "g"}`, fetched)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range []string{"title missing", "domain missing", "overview missing"} {
		if !containsWarning(recs[0].Warnings, w) {
			t.Errorf("missing warning %q in %v", w, recs[0].Warnings)
		}
	}
}

func containsWarning(warnings []string, sub string) bool {
	for _, w := range warnings {
		if strings.Contains(w, sub) {
			return true
		}
	}
	return false
}
