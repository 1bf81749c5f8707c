package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/gapscout/internal/pipeline"
	"github.com/kalambet/gapscout/internal/search"
	"github.com/kalambet/gapscout/internal/storage"
)

// recentProblems is how many records the problems://recent resource lists.
const recentProblems = 10

// ProblemLister is the read path the MCP layer needs.
type ProblemLister interface {
	ListProblems(ctx context.Context, f storage.ProblemFilter) ([]storage.Problem, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Analyzer Runner
	Store    ProblemLister
}

// NewMCPServer creates an MCP server with the gapscout tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"gapscout",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("gapscout finds manual workflows people complain about online and analyses how to automate them."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_problem",
			mcp.WithDescription("Search Reddit, Twitter and Quora discussions for a workflow and return an AI automation analysis grounded in them."),
			mcp.WithString("query", mcp.Description("The manual workflow or topic to analyse"), mcp.Required()),
			mcp.WithString("mode", mcp.Description("solver (one deep analysis, default) or builder (3 distinct problems)")),
			mcp.WithArray("sources", mcp.Description("Sources to search: reddit, twitter, quora (default reddit)")),
		),
		mcpAnalyzeProblem(deps),
	)

	s.AddTool(
		mcp.NewTool("list_problems",
			mcp.WithDescription("List stored problem analyses, newest first."),
			mcp.WithString("source", mcp.Description("Filter by source: reddit, twitter, quora or all")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10, max 50)")),
		),
		mcpListProblems(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"problems://recent",
			"Recent Problems",
			mcp.WithResourceDescription("The 10 most recent problem analyses (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAnalyzeProblem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		res, err := deps.Analyzer.Run(ctx, pipeline.Request{
			Query:   query,
			Mode:    req.GetString("mode", ""),
			Sources: req.GetStringSlice("sources", nil),
		})
		if err != nil {
			_, msg := pipeline.Describe(err)
			return mcpError(msg), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListProblems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var source string
		if raw := req.GetString("source", ""); raw != "" && raw != "all" {
			src, ok := search.ParseSource(raw)
			if !ok {
				return mcpError(fmt.Sprintf("unknown source %q", raw)), nil
			}
			source = string(src)
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		problems, err := deps.Store.ListProblems(ctx, storage.ProblemFilter{Source: source, Limit: limit})
		if err != nil {
			return mcpError(fmt.Sprintf("listing problems failed: %v", err)), nil
		}
		if len(problems) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(problems)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal problems: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		problems, err := deps.Store.ListProblems(ctx, storage.ProblemFilter{Limit: recentProblems})
		if err != nil {
			return nil, fmt.Errorf("failed to list recent problems: %w", err)
		}

		type problemSummary struct {
			ID           string  `json:"id"`
			Title        string  `json:"title"`
			Domain       string  `json:"domain"`
			SourceType   string  `json:"source_type"`
			Completeness float64 `json:"completeness"`
			CreatedAt    string  `json:"created_at"`
		}

		summaries := make([]problemSummary, len(problems))
		for i, p := range problems {
			summaries[i] = problemSummary{
				ID:           p.ID,
				Title:        p.Title,
				Domain:       p.Domain,
				SourceType:   string(p.SourceType),
				Completeness: p.Completeness,
				CreatedAt:    p.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal problems: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
