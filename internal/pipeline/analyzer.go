package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/gapscout/internal/analysis"
	"github.com/kalambet/gapscout/internal/composer"
	"github.com/kalambet/gapscout/internal/proxy"
	"github.com/kalambet/gapscout/internal/search"
	"github.com/kalambet/gapscout/internal/storage"
)

const (
	// MaxQueryLength is the longest accepted query, in characters.
	MaxQueryLength = 500
	// CitationCount is how many search results are echoed back as sources.
	CitationCount = 5
)

// Searcher fans a query out across sources. Per-source failures are
// absorbed and show up as missing results.
type Searcher interface {
	SearchAll(ctx context.Context, query string, sources []search.Source, mode search.Mode) []search.Result
}

// Completer sends one system+user prompt to the model and returns its text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ProblemWriter persists a batch of analysed problems atomically.
type ProblemWriter interface {
	InsertProblems(ctx context.Context, problems []storage.Problem) ([]storage.Problem, error)
}

// Credentials are the provider keys the pipeline needs before doing any work.
type Credentials struct {
	SearchAPIKey string
	AIAPIKey     string
}

func (c Credentials) missing() []string {
	var out []string
	if c.SearchAPIKey == "" {
		out = append(out, "search.api_key")
	}
	if c.AIAPIKey == "" {
		out = append(out, "ai.api_key")
	}
	return out
}

// Request is an analyze call as received from a client.
type Request struct {
	Query   string            `json:"query"`
	Mode    string            `json:"mode,omitempty"`
	Sources search.SourceList `json:"sources,omitempty"`
}

// Validate trims the query and checks its length and mode. It returns
// a KindInput *Error on failure.
func (r Request) Validate() (string, search.Mode, error) {
	query, err := ValidateQuery(r.Query)
	if err != nil {
		return "", "", err
	}
	mode, ok := search.ParseMode(r.Mode)
	if !ok {
		return "", "", newError(KindInput, MsgInvalidMode, nil)
	}
	return query, mode, nil
}

// ValidateQuery trims q and rejects empty or overlong queries.
func ValidateQuery(q string) (string, error) {
	query := strings.TrimSpace(q)
	if query == "" {
		return "", newError(KindInput, MsgQueryRequired, nil)
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return "", newError(KindInput, MsgQueryTooLong, nil)
	}
	return query, nil
}

// Result is a successful analysis: the persisted problems plus citations
// for the discussions they were grounded in.
type Result struct {
	Problems []storage.Problem `json:"data"`
	Sources  []search.Citation `json:"sources"`
}

// Analyzer orchestrates search, prompt composition, the model call,
// normalization and persistence for one request.
type Analyzer struct {
	searcher  Searcher
	completer Completer
	store     ProblemWriter
	composer  *composer.Composer
	creds     Credentials
}

// NewAnalyzer wires an Analyzer. A nil composer uses composer.New(0).
func NewAnalyzer(searcher Searcher, completer Completer, store ProblemWriter, comp *composer.Composer, creds Credentials) *Analyzer {
	if comp == nil {
		comp = composer.New(0)
	}
	return &Analyzer{
		searcher:  searcher,
		completer: completer,
		store:     store,
		composer:  comp,
		creds:     creds,
	}
}

// Run executes the pipeline. Every failure is returned as *Error. Nothing
// is written unless the model output parsed into at least one record.
func (a *Analyzer) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	query, mode, err := req.Validate()
	if err != nil {
		return Result{}, err
	}
	if missing := a.creds.missing(); len(missing) > 0 {
		slog.Error("pipeline: credentials missing", "keys", missing)
		return Result{}, newError(KindConfig, MsgNotConfigured, nil)
	}
	sources := search.FilterSources(req.Sources)

	results := a.searcher.SearchAll(ctx, query, sources, mode)
	if len(results) == 0 {
		return Result{}, newError(KindNoResults, MsgNoDiscussions, nil)
	}

	prompt := composer.BuildPrompt(mode, query, a.composer.BuildContext(results))
	slog.Debug("pipeline: prompt composed",
		"mode", mode,
		"results", len(results),
		"est_tokens", composer.EstimateTokens(prompt.System+prompt.User),
	)

	raw, err := a.completer.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		switch {
		case errors.Is(err, proxy.ErrRateLimited):
			return Result{}, newError(KindRateLimited, MsgRateLimited, err)
		case errors.Is(err, proxy.ErrQuotaExhausted):
			return Result{}, newError(KindQuotaExhausted, MsgQuotaExhausted, err)
		default:
			return Result{}, newError(KindUpstream, MsgAIFailed, err)
		}
	}

	records, err := analysis.Normalize(raw, results)
	if err != nil {
		return Result{}, newError(KindParse, MsgParseFailed, err)
	}
	if len(records) == 0 {
		return Result{}, newError(KindParse, MsgParseFailed, errors.New("model returned no analyses"))
	}

	problems := make([]storage.Problem, len(records))
	for i, rec := range records {
		problems[i] = storage.Problem{Record: rec, SearchQuery: query}
	}
	saved, err := a.store.InsertProblems(ctx, problems)
	if err != nil {
		return Result{}, newError(KindPersistence, MsgSaveFailed, err)
	}

	warnings := 0
	for _, p := range saved {
		warnings += len(p.Warnings)
	}
	slog.Info("analysis complete",
		"mode", mode,
		"sources", len(sources),
		"results", len(results),
		"records", len(saved),
		"quality_warnings", warnings,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Result{Problems: saved, Sources: search.Citations(results, CitationCount)}, nil
}
