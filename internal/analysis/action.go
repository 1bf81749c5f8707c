package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Resource is a DIY learning or tooling pointer inside an ActionPlan.
type Resource struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Platform string `json:"platform,omitempty"`
	Cost     string `json:"cost,omitempty"`
}

// ExistingSolution is an off-the-shelf product that already covers the problem.
type ExistingSolution struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Cost        string `json:"cost"`
	Description string `json:"description"`
}

// BuildOpportunity is the model's verdict on whether a new product is viable.
type BuildOpportunity struct {
	Viable      bool   `json:"viable"`
	Reason      string `json:"reason"`
	SearchQuery string `json:"search_query"`
}

// DIY describes the build-it-yourself path.
type DIY struct {
	Description string     `json:"description"`
	Resources   []Resource `json:"resources"`
}

// ActionPlan is the structured variant of a record's action.
type ActionPlan struct {
	DIY               DIY                `json:"diy"`
	ExistingSolutions []ExistingSolution `json:"existing_solutions"`
	BuildOpportunity  BuildOpportunity   `json:"build_opportunity"`
}

// ActionKind discriminates the Action union.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionText
	ActionStructured
)

func (k ActionKind) String() string {
	switch k {
	case ActionText:
		return "text"
	case ActionStructured:
		return "structured"
	}
	return "none"
}

// Action is either a plain-text plan or a structured ActionPlan. Model
// releases have emitted both shapes for the same field.
type Action struct {
	kind ActionKind
	text string
	plan *ActionPlan
}

// TextAction wraps a plain-text action.
func TextAction(s string) Action {
	return Action{kind: ActionText, text: s}
}

// StructuredAction wraps a structured plan.
func StructuredAction(p ActionPlan) Action {
	return Action{kind: ActionStructured, plan: &p}
}

// Kind reports which variant is set.
func (a Action) Kind() ActionKind { return a.kind }

// Text returns the plain-text variant.
func (a Action) Text() (string, bool) {
	return a.text, a.kind == ActionText
}

// Plan returns the structured variant.
func (a Action) Plan() (ActionPlan, bool) {
	if a.kind != ActionStructured || a.plan == nil {
		return ActionPlan{}, false
	}
	return *a.plan, true
}

// IsEmpty reports whether the action carries no content.
func (a Action) IsEmpty() bool {
	switch a.kind {
	case ActionText:
		return strings.TrimSpace(a.text) == ""
	case ActionStructured:
		return a.plan == nil
	}
	return true
}

func (a Action) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case ActionText:
		return json.Marshal(a.text)
	case ActionStructured:
		return json.Marshal(a.plan)
	}
	return []byte("null"), nil
}

func (a *Action) UnmarshalJSON(data []byte) error {
	parsed, err := parseAction(data)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// parseAction discriminates on the JSON value type. Strings that hold an
// encoded plan object are promoted to the structured variant; other
// non-object values are kept as their raw text.
func parseAction(data []byte) (Action, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Action{}, nil
	}

	switch trimmed[0] {
	case '{':
		var plan ActionPlan
		if err := json.Unmarshal(trimmed, &plan); err != nil {
			return Action{}, fmt.Errorf("decoding action plan: %w", err)
		}
		return StructuredAction(plan), nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Action{}, fmt.Errorf("decoding action text: %w", err)
		}
		if plan, ok := planFromString(s); ok {
			return StructuredAction(plan), nil
		}
		return TextAction(strings.TrimSpace(s)), nil
	default:
		return TextAction(string(trimmed)), nil
	}
}

var planKeys = []string{"diy", "existing_solutions", "build_opportunity"}

func planFromString(s string) (ActionPlan, bool) {
	s = strings.TrimSpace(stripFences(s))
	if !strings.HasPrefix(s, "{") {
		return ActionPlan{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return ActionPlan{}, false
	}
	found := false
	for _, k := range planKeys {
		if _, ok := fields[k]; ok {
			found = true
			break
		}
	}
	if !found {
		return ActionPlan{}, false
	}
	var plan ActionPlan
	if err := json.Unmarshal([]byte(s), &plan); err != nil {
		return ActionPlan{}, false
	}
	return plan, true
}
