package search

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		src  Source
		mode Mode
		want string
	}{
		{SourceReddit, ModeSolver, `site:reddit.com expense reports ("I wish there was" OR "how do I automate" OR "is there a tool")`},
		{SourceQuora, ModeBuilder, `site:quora.com expense reports ("I wish" OR "automate" OR "tool for" OR "still manual")`},
		{SourceTwitter, ModeSolver, `site:twitter.com OR site:x.com expense reports ("I wish there was" OR "how do I automate" OR "is there a tool")`},
	}
	for _, tt := range tests {
		if got := BuildQuery("  expense reports ", tt.src, tt.mode); got != tt.want {
			t.Errorf("BuildQuery(%s, %s) = %q, want %q", tt.src, tt.mode, got, tt.want)
		}
	}
}

func TestLimit(t *testing.T) {
	tests := []struct {
		src  Source
		mode Mode
		want int
	}{
		{SourceReddit, ModeSolver, 3},
		{SourceTwitter, ModeSolver, 2},
		{SourceQuora, ModeSolver, 2},
		{SourceReddit, ModeBuilder, 5},
		{SourceTwitter, ModeBuilder, 4},
		{SourceQuora, ModeBuilder, 3},
	}
	for _, tt := range tests {
		if got := Limit(tt.src, tt.mode); got != tt.want {
			t.Errorf("Limit(%s, %s) = %d, want %d", tt.src, tt.mode, got, tt.want)
		}
	}
}

func TestFilterSources(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []Source
	}{
		{"nil defaults to reddit", nil, []Source{SourceReddit}},
		{"unknown only defaults to reddit", []string{"myspace", ""}, []Source{SourceReddit}},
		{"keeps order, drops unknown", []string{"quora", "digg", "Twitter"}, []Source{SourceQuora, SourceTwitter}},
		{"dedups", []string{"reddit", "reddit"}, []Source{SourceReddit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterSources(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterSources(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode(""); !ok || m != ModeSolver {
		t.Errorf("ParseMode(\"\") = %q, %v", m, ok)
	}
	if m, ok := ParseMode("builder"); !ok || m != ModeBuilder {
		t.Errorf("ParseMode(builder) = %q, %v", m, ok)
	}
	if _, ok := ParseMode("wizard"); ok {
		t.Error("ParseMode(wizard) should fail")
	}
}

func TestSourceList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want SourceList
	}{
		{`["reddit","quora"]`, SourceList{"reddit", "quora"}},
		{`["reddit",5,true,null,{"a":1},["x"]]`, SourceList{"reddit"}},
		{`[]`, SourceList{}},
		{`"twitter"`, SourceList{"twitter"}},
		{`null`, nil},
		{`42`, nil},
	}
	for _, tt := range tests {
		var got SourceList
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Errorf("Unmarshal(%s) error: %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Unmarshal(%s) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
