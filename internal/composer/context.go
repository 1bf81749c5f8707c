package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/gapscout/internal/search"
)

const (
	defaultMaxResults    = 5
	defaultSnippetLength = 800

	blockSeparator = "\n\n---\n\n"
)

// Composer renders search results and the user query into model prompts.
type Composer struct {
	MaxResults    int
	SnippetLength int
}

// New creates a Composer that feeds at most maxResults results to the model.
// If maxResults <= 0, the default (5) is used.
func New(maxResults int) *Composer {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Composer{MaxResults: maxResults, SnippetLength: defaultSnippetLength}
}

// Selected returns the prefix of results that BuildContext renders.
func (c *Composer) Selected(results []search.Result) []search.Result {
	if len(results) > c.MaxResults {
		return results[:c.MaxResults]
	}
	return results
}

// BuildContext renders the first MaxResults results as labeled blocks so the
// model can attribute claims to a specific thread. Pure and deterministic.
func (c *Composer) BuildContext(results []search.Result) string {
	selected := c.Selected(results)
	blocks := make([]string, len(selected))
	for i, r := range selected {
		blocks[i] = fmt.Sprintf("[%s %d]\n%s\n%s\n%s",
			strings.ToUpper(string(r.Source)), i+1,
			r.Title,
			r.URL,
			search.Truncate(r.Snippet, c.SnippetLength),
		)
	}
	return strings.Join(blocks, blockSeparator)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
