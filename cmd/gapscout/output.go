package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/gapscout/internal/analysis"
	"github.com/kalambet/gapscout/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// writeProblemLine renders one problem as a single list row.
func writeProblemLine(w io.Writer, p storage.Problem) {
	fmt.Fprintf(w, "%s  %-8s  %s  %s\n",
		colorize(colorCyan, shortID(p.ID)),
		p.SourceType,
		p.CreatedAt.Format("2006-01-02"),
		truncate(p.Title, 80),
	)
}

// writeProblem renders a full problem for the terminal.
func writeProblem(w io.Writer, p storage.Problem) {
	fmt.Fprintf(w, "%s\n", colorize(colorBold, p.Title))
	fmt.Fprintf(w, "  %s %s · %s · %s\n", colorize(colorCyan, shortID(p.ID)), p.Domain, p.Role, p.SourceType)
	if p.SourceURL != "" {
		fmt.Fprintf(w, "  Source: %s\n", p.SourceURL)
	}
	fmt.Fprintf(w, "  Completeness: %.0f%%\n", p.Completeness*100)
	if s := p.Sentiment; s != nil {
		fmt.Fprintf(w, "  Frustration %d/10 · Urgency %d/10 · Willingness to pay %d/10\n",
			s.FrustrationLevel, s.UrgencyScore, s.WillingnessToPay)
	}

	writeSection(w, "Overview", p.Overview)
	writeSection(w, "Gap", p.Gap)
	writeSection(w, "Automation", p.Automation)
	writeAction(w, p.Action)

	for _, warn := range p.Warnings {
		fmt.Fprintf(w, "  %s\n", colorize(colorYellow, "⚠ "+warn))
	}
}

func writeSection(w io.Writer, label, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(w, "\n  %s\n  %s\n", colorize(colorBold, label), text)
}

func writeAction(w io.Writer, a analysis.Action) {
	if text, ok := a.Text(); ok {
		writeSection(w, "Action", text)
		return
	}
	plan, ok := a.Plan()
	if !ok {
		return
	}

	fmt.Fprintf(w, "\n  %s\n", colorize(colorBold, "Action"))
	if plan.DIY.Description != "" {
		fmt.Fprintf(w, "  DIY: %s\n", plan.DIY.Description)
	}
	for _, r := range plan.DIY.Resources {
		fmt.Fprintf(w, "    - [%s] %s %s\n", r.Type, r.Title, r.URL)
	}
	for _, s := range plan.ExistingSolutions {
		fmt.Fprintf(w, "  Existing: %s (%s) %s\n", s.Name, s.Cost, s.URL)
	}
	verdict := "not viable"
	if plan.BuildOpportunity.Viable {
		verdict = "viable"
	}
	fmt.Fprintf(w, "  Build opportunity: %s", verdict)
	if plan.BuildOpportunity.Reason != "" {
		fmt.Fprintf(w, " (%s)", plan.BuildOpportunity.Reason)
	}
	fmt.Fprintln(w)
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
