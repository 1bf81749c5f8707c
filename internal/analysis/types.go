// Package analysis turns raw model output into normalized analysis records.
//
// The model is an external, non-deterministic service. The only contract
// between the prompt and this package is natural-language instruction, so
// everything here tolerates drift: code fences, a single object where an
// array was asked for, stringly-typed numbers, and action fields that are
// sometimes text and sometimes a structured plan.
package analysis

import "github.com/kalambet/gapscout/internal/search"

// DefaultRole is used when the model does not name who faces the problem.
const DefaultRole = "General"

// Sentiment holds 1-10 ratings inferred from the source discussions.
type Sentiment struct {
	FrustrationLevel int `json:"frustration_level"`
	UrgencyScore     int `json:"urgency_score"`
	WillingnessToPay int `json:"willingness_to_pay"`
}

// Record is one normalized analysis, ready to be persisted.
type Record struct {
	Title        string        `json:"title"`
	Domain       string        `json:"domain"`
	Role         string        `json:"role"`
	Overview     string        `json:"overview"`
	Gap          string        `json:"gap"`
	Automation   string        `json:"automation"`
	Action       Action        `json:"action"`
	SourceType   search.Source `json:"source_type"`
	SourceURL    string        `json:"source_url"`
	Sentiment    *Sentiment    `json:"sentiment"`
	Warnings     []string      `json:"quality_warnings,omitempty"`
	Completeness float64       `json:"completeness"`
}
