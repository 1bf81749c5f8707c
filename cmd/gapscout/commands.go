package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/gapscout/internal/analysis"
	"github.com/kalambet/gapscout/internal/config"
	"github.com/kalambet/gapscout/internal/pipeline"
	"github.com/kalambet/gapscout/internal/search"
	"github.com/kalambet/gapscout/internal/storage"
)

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <query>",
	Short: "Analyse a manual workflow against online discussions",
	Long: `Analyse a manual workflow against online discussions.

Examples:
  gapscout analyze "reconciling expense reports by hand"
  gapscout analyze --mode builder --sources reddit,quora "small law firms"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		sources, _ := cmd.Flags().GetString("sources")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := pipeline.Request{
			Query:   strings.Join(args, " "),
			Mode:    mode,
			Sources: splitList(sources),
		}
		printStep("Searching %s and analysing...", strings.Join(sourceNames(req.Sources), ", "))
		return runAnalyze(cmd.Context(), client, os.Stdout, "/analyze", req, asJSON)
	},
}

func init() {
	analyzeCmd.Flags().String("mode", "solver", "solver (one deep analysis) or builder (3 distinct problems)")
	analyzeCmd.Flags().String("sources", "reddit", "comma-separated sources: reddit, twitter, quora")
	analyzeCmd.Flags().Bool("json", false, "print the raw JSON response")
}

func sourceNames(raw []string) []string {
	sources := search.FilterSources(raw)
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

type analyzeResult struct {
	Data    []storage.Problem `json:"data"`
	Sources []search.Citation `json:"sources"`
}

// runAnalyze posts body to path and renders the analysis the server returns.
func runAnalyze(ctx context.Context, c *apiClient, w io.Writer, path string, body any, asJSON bool) error {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}

	var res analyzeResult
	env, err := decodeEnvelope(resp, &res.Data)
	if err != nil {
		return err
	}
	if len(env.Sources) > 0 {
		if err := json.Unmarshal(env.Sources, &res.Sources); err != nil {
			return fmt.Errorf("decoding sources: %w", err)
		}
	}

	if asJSON {
		return writeIndented(w, res)
	}
	for i, p := range res.Data {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeProblem(w, p)
	}
	if len(res.Sources) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Sources"))
		for _, s := range res.Sources {
			fmt.Fprintf(w, "  [%s] %s\n    %s\n", s.Source, s.Title, s.URL)
		}
	}
	return nil
}

// --- problems ---

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "Browse stored problem analyses",
}

var problemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent problems, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		problems, err := listProblems(cmd.Context(), client, source, limit)
		if err != nil {
			return err
		}
		if len(problems) == 0 {
			fmt.Println("No problems found.")
			return nil
		}
		for _, p := range problems {
			writeProblemLine(os.Stdout, p)
		}
		return nil
	},
}

var problemsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single problem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/problems/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var p storage.Problem
		if _, err := decodeEnvelope(resp, &p); err != nil {
			return err
		}

		if asJSON {
			return writeIndented(os.Stdout, p)
		}
		writeProblem(os.Stdout, p)
		return nil
	},
}

var problemsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recent problems as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		source, _ := cmd.Flags().GetString("source")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var writer io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		n, err := exportProblems(cmd.Context(), client, writer, source)
		if err != nil {
			return err
		}
		if output != "" {
			printSuccess("Exported %d problems to %s", n, output)
		}
		return nil
	},
}

func init() {
	problemsListCmd.Flags().String("source", "all", "filter by source: reddit, twitter, quora or all")
	problemsListCmd.Flags().Int("limit", 20, "maximum number of problems to list (max 50)")
	problemsShowCmd.Flags().Bool("json", false, "print the raw JSON record")
	problemsExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	problemsExportCmd.Flags().String("source", "all", "filter by source: reddit, twitter, quora or all")
	problemsCmd.AddCommand(problemsListCmd)
	problemsCmd.AddCommand(problemsShowCmd)
	problemsCmd.AddCommand(problemsExportCmd)
}

func listProblems(ctx context.Context, c *apiClient, source string, limit int) ([]storage.Problem, error) {
	q := url.Values{}
	if source != "" {
		q.Set("source", source)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/problems"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var problems []storage.Problem
	if _, err := decodeEnvelope(resp, &problems); err != nil {
		return nil, err
	}
	return problems, nil
}

// exportProblems writes one JSON object per line. The server caps listings
// at storage.MaxListLimit, so this exports the most recent page.
func exportProblems(ctx context.Context, c *apiClient, w io.Writer, source string) (int, error) {
	problems, err := listProblems(ctx, c, source, storage.MaxListLimit)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	for _, p := range problems {
		if err := enc.Encode(p); err != nil {
			return 0, fmt.Errorf("writing problem %s: %w", p.ID, err)
		}
	}
	return len(problems), nil
}

// --- subreddits ---

var subredditsCmd = &cobra.Command{
	Use:   "subreddits",
	Short: "Show the subreddits most cited by stored problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/problems/subreddits")
		if err != nil {
			return err
		}
		var counts []analysis.SubredditCount
		if _, err := decodeEnvelope(resp, &counts); err != nil {
			return err
		}
		if len(counts) == 0 {
			fmt.Println("No Reddit sources yet.")
			return nil
		}
		for _, sc := range counts {
			fmt.Printf("  %s %d\n", colorize(colorBold, "r/"+sc.Name), sc.Count)
		}
		return nil
	},
}

// --- searches ---

var searchesCmd = &cobra.Command{
	Use:   "searches",
	Short: "Manage saved searches and alerts",
}

var searchesSaveCmd = &cobra.Command{
	Use:   "save <query>",
	Short: "Save a search, optionally with a recurring alert",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		mode, _ := cmd.Flags().GetString("mode")
		sources, _ := cmd.Flags().GetString("sources")
		alert, _ := cmd.Flags().GetString("alert")

		freq, err := storage.ParseFrequency(alert)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/searches", map[string]any{
			"user_id":         user,
			"search_type":     mode,
			"query":           strings.Join(args, " "),
			"sources":         splitList(sources),
			"alert_enabled":   freq != storage.FrequencyNever,
			"alert_frequency": freq,
		})
		if err != nil {
			return err
		}
		var s storage.SavedSearch
		if _, err := decodeEnvelope(resp, &s); err != nil {
			return err
		}
		printSuccess("Saved search %s", shortID(s.ID))
		return nil
	},
}

var searchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/searches?user_id="+url.QueryEscape(user))
		if err != nil {
			return err
		}
		var searches []storage.SavedSearch
		if _, err := decodeEnvelope(resp, &searches); err != nil {
			return err
		}
		if len(searches) == 0 {
			fmt.Println("No saved searches.")
			return nil
		}
		for _, s := range searches {
			writeSearchLine(os.Stdout, s)
		}
		return nil
	},
}

var searchesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a saved search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := map[string]any{}
		flags := cmd.Flags()
		if flags.Changed("query") {
			v, _ := flags.GetString("query")
			patch["query"] = v
		}
		if flags.Changed("mode") {
			v, _ := flags.GetString("mode")
			patch["search_type"] = v
		}
		if flags.Changed("sources") {
			v, _ := flags.GetString("sources")
			patch["sources"] = splitList(v)
		}
		if flags.Changed("alert") {
			v, _ := flags.GetString("alert")
			freq, err := storage.ParseFrequency(v)
			if err != nil {
				return err
			}
			patch["alert_frequency"] = freq
			patch["alert_enabled"] = freq != storage.FrequencyNever
		}
		if len(patch) == 0 {
			return fmt.Errorf("nothing to update: pass at least one of --query, --mode, --sources or --alert")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/searches/"+url.PathEscape(args[0]), patch)
		if err != nil {
			return err
		}
		var s storage.SavedSearch
		if _, err := decodeEnvelope(resp, &s); err != nil {
			return err
		}
		printSuccess("Updated search %s", shortID(s.ID))
		return nil
	},
}

var searchesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/searches/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if _, err := decodeEnvelope(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted search %s", args[0])
		return nil
	},
}

var searchesRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run a saved search now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runAnalyze(cmd.Context(), client, os.Stdout, "/searches/"+url.PathEscape(args[0])+"/run", nil, asJSON)
	},
}

func writeSearchLine(w io.Writer, s storage.SavedSearch) {
	alert := "off"
	if s.AlertEnabled && s.AlertFrequency != storage.FrequencyNever {
		alert = s.AlertFrequency
	}
	last := "never"
	if s.LastRunAt != nil {
		last = s.LastRunAt.Format("2006-01-02 15:04")
	}
	fmt.Fprintf(w, "%s  %-7s  %-20s  alert=%-6s  last=%s  %s\n",
		colorize(colorCyan, shortID(s.ID)),
		s.SearchType,
		strings.Join(s.Sources, ","),
		alert,
		last,
		truncate(s.Query, 60),
	)
}

func init() {
	defaultUser := os.Getenv("USER")

	searchesSaveCmd.Flags().String("user", defaultUser, "user the search belongs to")
	searchesSaveCmd.Flags().String("mode", "solver", "solver or builder")
	searchesSaveCmd.Flags().String("sources", "reddit", "comma-separated sources: reddit, twitter, quora")
	searchesSaveCmd.Flags().String("alert", "never", "re-run frequency: daily, weekly or never")

	searchesListCmd.Flags().String("user", defaultUser, "user whose searches to list")

	searchesUpdateCmd.Flags().String("query", "", "new query")
	searchesUpdateCmd.Flags().String("mode", "", "solver or builder")
	searchesUpdateCmd.Flags().String("sources", "", "comma-separated sources")
	searchesUpdateCmd.Flags().String("alert", "", "re-run frequency: daily, weekly or never")

	searchesRunCmd.Flags().Bool("json", false, "print the raw JSON response")

	searchesCmd.AddCommand(searchesSaveCmd)
	searchesCmd.AddCommand(searchesListCmd)
	searchesCmd.AddCommand(searchesUpdateCmd)
	searchesCmd.AddCommand(searchesDeleteCmd)
	searchesCmd.AddCommand(searchesRunCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration (secrets are never listed)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a non-secret configuration value. Valid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
