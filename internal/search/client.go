package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.firecrawl.dev/v1"
	defaultTimeout = 30 * time.Second

	// SnippetLength is the rune budget for a result snippet.
	SnippetLength = 500

	untitled = "Untitled"
)

// Client queries the search-and-scrape provider for one source at a time.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	strict     *bluemonday.Policy
	ugc        *bluemonday.Policy
	markdown   *converter.Converter
}

// NewClient creates a provider client. ratePerSecond bounds outbound calls
// across all sources; values <= 0 disable throttling.
func NewClient(apiKey string, ratePerSecond float64) *Client {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(limit, len(AllSources)),
		strict:     bluemonday.StrictPolicy(),
		ugc:        bluemonday.UGCPolicy(),
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// NewClientAt is NewClient against a provider base URL other than the
// default. An empty baseURL keeps the default.
func NewClientAt(apiKey, baseURL string, ratePerSecond float64) *Client {
	c := NewClient(apiKey, ratePerSecond)
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// NewClientWithBaseURL creates an unthrottled client pointing at a custom base URL.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return NewClientAt(apiKey, baseURL, 0)
}

type searchRequest struct {
	Query         string        `json:"query"`
	Limit         int           `json:"limit"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

type searchResponse struct {
	Success bool           `json:"success"`
	Data    []providerItem `json:"data"`
}

type providerItem struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Markdown    string `json:"markdown"`
	HTML        string `json:"html"`
}

// Search runs one augmented query for src. Any failure is logged and
// absorbed: the caller receives an empty slice, never an error, so a single
// source outage cannot sink a multi-source search.
func (c *Client) Search(ctx context.Context, query string, src Source, mode Mode) []Result {
	results, err := c.search(ctx, query, src, mode)
	if err != nil {
		slog.Warn("source search failed", "source", src, "mode", mode, "error", err)
		return []Result{}
	}
	return results
}

func (c *Client) search(ctx context.Context, query string, src Source, mode Mode) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(searchRequest{
		Query:         BuildQuery(query, src, mode),
		Limit:         Limit(src, mode),
		ScrapeOptions: scrapeOptions{Formats: []string{"markdown"}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	results := make([]Result, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		results = append(results, c.normalize(item, src))
	}
	return results, nil
}

func (c *Client) normalize(item providerItem, src Source) Result {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = untitled
	}
	return Result{
		URL:     item.URL,
		Title:   title,
		Snippet: c.snippet(item),
		Source:  src,
	}
}

// snippet prefers scraped markdown, then converted HTML, then the provider
// description, truncated to SnippetLength runes. Markdown is kept as
// scraped apart from raw HTML paragraphs embedded in it.
func (c *Client) snippet(item providerItem) string {
	var text string
	switch {
	case item.Markdown != "":
		text = c.inlineHTML(item.Markdown)
	case item.HTML != "":
		text = c.toMarkdown(item.HTML, item.URL)
	}
	if strings.TrimSpace(text) == "" {
		text = html.UnescapeString(c.strict.Sanitize(item.Description))
	}
	return Truncate(strings.TrimSpace(text), SnippetLength)
}

// htmlTag matches tags of common HTML elements. Autolinks such as
// <https://...> and angle-bracketed prose like Vec<String> do not match.
var htmlTag = regexp.MustCompile(`(?i)</?(?:a|abbr|b|blockquote|br|center|code|dd|del|details|div|dl|dt|em|figcaption|figure|font|h[1-6]|hr|i|iframe|img|ins|kbd|li|mark|noscript|ol|p|picture|pre|s|script|section|small|source|span|strike|strong|style|sub|summary|sup|svg|table|tbody|td|tfoot|th|thead|tr|u|ul|video)\b[^<>]*>`)

// inlineHTML converts markdown paragraphs that carry raw HTML into
// markdown. Paragraphs without HTML tags, or with code spans, are left
// untouched.
func (c *Client) inlineHTML(md string) string {
	if !htmlTag.MatchString(md) {
		return md
	}
	blocks := strings.Split(md, "\n\n")
	for i, b := range blocks {
		if strings.Contains(b, "`") || !htmlTag.MatchString(b) {
			continue
		}
		if converted := c.toMarkdown(escapeOutsideTags(b), ""); converted != "" {
			blocks[i] = converted
		}
	}
	return strings.Join(blocks, "\n\n")
}

// escapeOutsideTags HTML-escapes everything but the matched element tags,
// so that autolinks and other bracketed text survive HTML parsing.
func escapeOutsideTags(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range htmlTag.FindAllStringIndex(s, -1) {
		b.WriteString(html.EscapeString(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(html.EscapeString(s[last:]))
	return b.String()
}

// toMarkdown sanitizes an HTML fragment and converts it to markdown.
// It returns "" when conversion fails.
func (c *Client) toMarkdown(fragment, pageURL string) string {
	clean := c.ugc.Sanitize(fragment)
	var md string
	var err error
	if pageURL != "" {
		md, err = c.markdown.ConvertString(clean, converter.WithDomain(pageURL))
	} else {
		md, err = c.markdown.ConvertString(clean)
	}
	if err != nil {
		slog.Debug("html to markdown conversion failed", "url", pageURL, "error", err)
		return ""
	}
	return strings.TrimSpace(md)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
