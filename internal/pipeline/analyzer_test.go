package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/gapscout/internal/proxy"
	"github.com/kalambet/gapscout/internal/search"
	"github.com/kalambet/gapscout/internal/storage"
)

// --- mocks ---

type mockSearcher struct {
	results []search.Result
	calls   int
	sources []search.Source
	mode    search.Mode
}

func (m *mockSearcher) SearchAll(_ context.Context, _ string, sources []search.Source, mode search.Mode) []search.Result {
	m.calls++
	m.sources = sources
	m.mode = mode
	return m.results
}

type mockCompleter struct {
	reply  string
	err    error
	calls  int
	system string
	user   string
}

func (m *mockCompleter) Complete(_ context.Context, system, user string) (string, error) {
	m.calls++
	m.system, m.user = system, user
	return m.reply, m.err
}

// countingWriter wraps a real store and records whether a write was attempted.
type countingWriter struct {
	inner  ProblemWriter
	writes int
	err    error
}

func (c *countingWriter) InsertProblems(ctx context.Context, p []storage.Problem) ([]storage.Problem, error) {
	c.writes++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.InsertProblems(ctx, p)
}

// --- helpers ---

var creds = Credentials{SearchAPIKey: "fc-key", AIAPIKey: "ai-key"}

var redditResult = search.Result{
	URL:     "https://www.reddit.com/r/accounting/comments/abc/expense_reports",
	Title:   "Expense reports take forever",
	Snippet: "I wish there was a tool that read receipts",
	Source:  search.SourceReddit,
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestAnalyzer(t *testing.T, s Searcher, c Completer) (*Analyzer, *countingWriter, *storage.Store) {
	t.Helper()
	store := openStore(t)
	w := &countingWriter{inner: store}
	return NewAnalyzer(s, c, w, nil, creds), w, store
}

func wantKind(t *testing.T, err error, kind Kind, msg string) {
	t.Helper()
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v (%T), want *pipeline.Error", err, err)
	}
	if pe.Kind != kind {
		t.Errorf("kind = %s, want %s", pe.Kind, kind)
	}
	if msg != "" && pe.Message != msg {
		t.Errorf("message = %q, want %q", pe.Message, msg)
	}
}

// --- tests ---

func TestRunSolverScenario(t *testing.T) {
	searcher := &mockSearcher{results: []search.Result{redditResult}}
	completer := &mockCompleter{reply: `{"title":"Manual Expense Logging","domain":"Finance","role":"Accountant","overview":"...","gap":"...","automation":"...","action":"..."}`}
	a, w, store := newTestAnalyzer(t, searcher, completer)

	res, err := a.Run(context.Background(), Request{
		Query:   "expense report automation",
		Mode:    "solver",
		Sources: []string{"reddit"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.writes != 1 {
		t.Errorf("writes = %d, want 1", w.writes)
	}
	if len(res.Problems) != 1 {
		t.Fatalf("got %d problems, want 1", len(res.Problems))
	}
	p := res.Problems[0]
	if p.SourceType != search.SourceReddit || p.SearchQuery != "expense report automation" {
		t.Errorf("persisted = %s %q", p.SourceType, p.SearchQuery)
	}
	if p.SourceURL != redditResult.URL {
		t.Errorf("source_url = %q", p.SourceURL)
	}

	stored, err := store.GetProblem(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if stored.Title != "Manual Expense Logging" || stored.Role != "Accountant" {
		t.Errorf("stored = %+v", stored)
	}

	if len(res.Sources) != 1 || res.Sources[0].URL != redditResult.URL {
		t.Errorf("citations = %+v", res.Sources)
	}
	if !strings.Contains(completer.user, "expense report automation") || !strings.Contains(completer.user, "[REDDIT 1]") {
		t.Errorf("user prompt missing query or context:\n%s", completer.user)
	}
	if searcher.mode != search.ModeSolver {
		t.Errorf("mode = %s", searcher.mode)
	}
}

func TestRunBuilderUnderCount(t *testing.T) {
	results := []search.Result{
		redditResult,
		{URL: "https://x.com/a/status/1", Title: "t", Snippet: "s", Source: search.SourceTwitter},
	}
	completer := &mockCompleter{reply: "```json\n" + `[
	  {"title":"Invoice chasing","domain":"Finance","overview":"o","gap":"g","automation":"a","action":"call"},
	  {"title":"Timesheet merging","domain":"HR","overview":"o","gap":"g","automation":"a","action":"merge"}
	]` + "\n```"}
	a, _, store := newTestAnalyzer(t, &mockSearcher{results: results}, completer)

	res, err := a.Run(context.Background(), Request{Query: "small business admin", Mode: "builder", Sources: []string{"reddit", "twitter"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Problems) != 2 {
		t.Fatalf("got %d problems, want 2", len(res.Problems))
	}
	if res.Problems[1].SourceType != search.SourceTwitter {
		t.Errorf("second record source = %s, want positional twitter", res.Problems[1].SourceType)
	}

	list, err := store.ListProblems(context.Background(), storage.ProblemFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("stored %d rows, want 2", len(list))
	}
	if !strings.Contains(completer.system, "3 distinct problems") {
		t.Errorf("builder system prompt not used")
	}
}

func TestRunExactURLAttribution(t *testing.T) {
	results := []search.Result{
		redditResult,
		{URL: "https://www.quora.com/How-do-I-automate-receipts", Title: "q", Snippet: "s", Source: search.SourceQuora},
	}
	completer := &mockCompleter{reply: `{"title":"t","domain":"d","source_url":"https://www.quora.com/How-do-I-automate-receipts"}`}
	a, _, _ := newTestAnalyzer(t, &mockSearcher{results: results}, completer)

	res, err := a.Run(context.Background(), Request{Query: "receipts", Sources: []string{"reddit", "quora"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Problems[0].SourceType != search.SourceQuora {
		t.Errorf("source_type = %s, want quora", res.Problems[0].SourceType)
	}
}

func TestRunRateLimitedNoWrite(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer upstream.Close()

	completer := proxy.NewClientWithBaseURL("ai-key", "", upstream.URL)
	a, w, _ := newTestAnalyzer(t, &mockSearcher{results: []search.Result{redditResult}}, completer)

	_, err := a.Run(context.Background(), Request{Query: "expense report automation"})
	wantKind(t, err, KindRateLimited, MsgRateLimited)
	if KindRateLimited.Status() != http.StatusTooManyRequests {
		t.Errorf("status = %d", KindRateLimited.Status())
	}
	if w.writes != 0 {
		t.Errorf("writes = %d, want 0", w.writes)
	}
}

func TestRunUpstreamKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"quota", &proxy.UpstreamError{Status: 402, Body: "pay"}, KindQuotaExhausted},
		{"server", &proxy.UpstreamError{Status: 503, Body: "down"}, KindUpstream},
		{"network", errors.New("connection reset"), KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, w, _ := newTestAnalyzer(t, &mockSearcher{results: []search.Result{redditResult}}, &mockCompleter{err: tt.err})
			_, err := a.Run(context.Background(), Request{Query: "q"})
			wantKind(t, err, tt.kind, "")
			if w.writes != 0 {
				t.Errorf("writes = %d, want 0", w.writes)
			}
		})
	}
}

func TestRunAllSourcesFail(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	fan := search.NewFanOut(search.NewClientWithBaseURL("fc-key", failing.URL), time.Second)
	completer := &mockCompleter{reply: `{"title":"never"}`}
	a, w, _ := newTestAnalyzer(t, fan, completer)

	_, err := a.Run(context.Background(), Request{Query: "expense reports", Sources: []string{"reddit", "twitter", "quora"}})
	wantKind(t, err, KindNoResults, MsgNoDiscussions)
	if KindNoResults.Status() != http.StatusNotFound {
		t.Errorf("status = %d, want 404", KindNoResults.Status())
	}
	if completer.calls != 0 || w.writes != 0 {
		t.Errorf("model calls = %d, writes = %d; want none", completer.calls, w.writes)
	}
}

func TestRunInputValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		msg  string
	}{
		{"empty", Request{Query: "   "}, MsgQueryRequired},
		{"too long", Request{Query: strings.Repeat("a", MaxQueryLength+1)}, MsgQueryTooLong},
		{"bad mode", Request{Query: "q", Mode: "wizard"}, MsgInvalidMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &mockSearcher{results: []search.Result{redditResult}}
			a, _, _ := newTestAnalyzer(t, searcher, &mockCompleter{})
			_, err := a.Run(context.Background(), tt.req)
			wantKind(t, err, KindInput, tt.msg)
			if searcher.calls != 0 {
				t.Error("search ran for invalid input")
			}
		})
	}
}

func TestRunQueryAtLimitAccepted(t *testing.T) {
	a, _, _ := newTestAnalyzer(t, &mockSearcher{results: []search.Result{redditResult}}, &mockCompleter{reply: `{"title":"t"}`})
	if _, err := a.Run(context.Background(), Request{Query: strings.Repeat("é", MaxQueryLength)}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunMissingCredentials(t *testing.T) {
	searcher := &mockSearcher{results: []search.Result{redditResult}}
	a := NewAnalyzer(searcher, &mockCompleter{}, openStore(t), nil, Credentials{SearchAPIKey: "k"})

	_, err := a.Run(context.Background(), Request{Query: "q"})
	wantKind(t, err, KindConfig, MsgNotConfigured)
	if strings.Contains(err.Error(), "ai.api_key") {
		t.Error("config error leaks key names")
	}
	if searcher.calls != 0 {
		t.Error("search ran without credentials")
	}
}

func TestRunSourceFiltering(t *testing.T) {
	searcher := &mockSearcher{results: []search.Result{redditResult}}
	a, _, _ := newTestAnalyzer(t, searcher, &mockCompleter{reply: `{"title":"t"}`})

	if _, err := a.Run(context.Background(), Request{Query: "q", Sources: []string{"facebook", "myspace"}}); err != nil {
		t.Fatal(err)
	}
	if len(searcher.sources) != 1 || searcher.sources[0] != search.SourceReddit {
		t.Errorf("sources = %v, want [reddit]", searcher.sources)
	}
}

func TestRunParseFailure(t *testing.T) {
	for _, reply := range []string{"Sorry, I can't help with that.", "[]", `["a", "b"]`} {
		a, w, _ := newTestAnalyzer(t, &mockSearcher{results: []search.Result{redditResult}}, &mockCompleter{reply: reply})
		_, err := a.Run(context.Background(), Request{Query: "q"})
		wantKind(t, err, KindParse, MsgParseFailed)
		if w.writes != 0 {
			t.Errorf("reply %q: writes = %d", reply, w.writes)
		}
	}
}

func TestRunPersistenceFailure(t *testing.T) {
	store := openStore(t)
	w := &countingWriter{inner: store, err: errors.New("disk full")}
	a := NewAnalyzer(&mockSearcher{results: []search.Result{redditResult}}, &mockCompleter{reply: `{"title":"t"}`}, w, nil, creds)

	_, err := a.Run(context.Background(), Request{Query: "q"})
	wantKind(t, err, KindPersistence, MsgSaveFailed)
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("cause not wrapped: %v", err)
	}
}

func TestRunCitationsCapped(t *testing.T) {
	var results []search.Result
	for i := 0; i < 8; i++ {
		results = append(results, search.Result{URL: "https://reddit.com/r/x/" + string(rune('a'+i)), Title: "t", Source: search.SourceReddit})
	}
	a, _, _ := newTestAnalyzer(t, &mockSearcher{results: results}, &mockCompleter{reply: `{"title":"t"}`})
	res, err := a.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Sources) != CitationCount {
		t.Errorf("citations = %d, want %d", len(res.Sources), CitationCount)
	}
}

func TestDescribe(t *testing.T) {
	kind, msg := Describe(errors.New("raw"))
	if kind != KindInternal || msg != MsgInternal {
		t.Errorf("Describe(raw) = %s %q", kind, msg)
	}
	kind, msg = Describe(newError(KindNoResults, MsgNoDiscussions, nil))
	if kind != KindNoResults || msg != MsgNoDiscussions {
		t.Errorf("Describe(no results) = %s %q", kind, msg)
	}
}
