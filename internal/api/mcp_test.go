package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/gapscout/internal/pipeline"
	"github.com/kalambet/gapscout/internal/search"
	"github.com/kalambet/gapscout/internal/storage"
)

// --- mocks ---

type failingLister struct{}

func (failingLister) ListProblems(context.Context, storage.ProblemFilter) ([]storage.Problem, error) {
	return nil, errors.New("database is locked")
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *mockRunner) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	runner := &mockRunner{}
	return MCPDeps{Analyzer: runner, Store: store}, store, runner
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_AnalyzeProblem(t *testing.T) {
	deps, _, runner := newTestMCPDeps(t)
	runner.result = pipeline.Result{
		Problems: []storage.Problem{{ID: "p1", Record: redditRecord("Manual Expense Logging", "https://reddit.com/r/acc/1")}},
		Sources:  []search.Citation{{URL: "https://reddit.com/r/acc/1", Title: "t", Source: search.SourceReddit}},
	}
	handler := mcpAnalyzeProblem(deps)

	req := makeCallToolRequest("analyze_problem", map[string]interface{}{
		"query":   "expense reports",
		"mode":    "builder",
		"sources": []interface{}{"reddit", "quora"},
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got pipeline.Result
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(got.Problems) != 1 || got.Problems[0].Title != "Manual Expense Logging" || len(got.Sources) != 1 {
		t.Errorf("result = %+v", got)
	}

	call := runner.calls[0]
	if call.Query != "expense reports" || call.Mode != "builder" || len(call.Sources) != 2 {
		t.Errorf("request = %+v", call)
	}
}

func TestMCPTool_AnalyzeProblem_MissingQuery(t *testing.T) {
	deps, _, runner := newTestMCPDeps(t)

	result, err := mcpAnalyzeProblem(deps)(context.Background(), makeCallToolRequest("analyze_problem", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if len(runner.calls) != 0 {
		t.Error("pipeline ran without a query")
	}
}

func TestMCPTool_AnalyzeProblem_PipelineError(t *testing.T) {
	deps, _, runner := newTestMCPDeps(t)
	runner.err = &pipeline.Error{Kind: pipeline.KindRateLimited, Message: pipeline.MsgRateLimited, Err: errors.New("upstream 429")}

	result, err := mcpAnalyzeProblem(deps)(context.Background(), makeCallToolRequest("analyze_problem", map[string]interface{}{"query": "x"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || toolText(t, result) != pipeline.MsgRateLimited {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_ListProblems(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	tw := redditRecord("Tweet", "https://x.com/a/status/1")
	tw.SourceType = search.SourceTwitter
	seedProblems(t, store, redditRecord("A", "https://reddit.com/r/a/1"), tw)

	result, err := mcpListProblems(deps)(context.Background(), makeCallToolRequest("list_problems", map[string]interface{}{
		"source": "twitter",
		"limit":  5,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got []storage.Problem
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Tweet" {
		t.Errorf("got %+v", got)
	}
}

func TestMCPTool_ListProblems_Empty(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	result, err := mcpListProblems(deps)(context.Background(), makeCallToolRequest("list_problems", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toolText(t, result) != "[]" {
		t.Errorf("got %q, want []", toolText(t, result))
	}
}

func TestMCPTool_ListProblems_BadSource(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	result, _ := mcpListProblems(deps)(context.Background(), makeCallToolRequest("list_problems", map[string]interface{}{"source": "myspace"}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}

func TestMCPTool_ListProblems_StoreError(t *testing.T) {
	deps := MCPDeps{Analyzer: &mockRunner{}, Store: failingLister{}}

	result, err := mcpListProblems(deps)(context.Background(), makeCallToolRequest("list_problems", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "database is locked") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	for i := 0; i < 12; i++ {
		seedProblems(t, store, redditRecord("P", "https://reddit.com/r/a/1"))
	}

	contents, err := mcpResourceRecent(deps)(context.Background(), makeReadResourceRequest("problems://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "problems://recent" || tc.MIMEType != "application/json" {
		t.Errorf("uri/mime = %q %q", tc.URI, tc.MIMEType)
	}

	var summaries []map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatal(err)
	}
	if len(summaries) != recentProblems {
		t.Errorf("got %d summaries, want %d", len(summaries), recentProblems)
	}
	if _, ok := summaries[0]["overview"]; ok {
		t.Error("summary should not carry full record fields")
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
