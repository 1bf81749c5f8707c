package analysis

import (
	"reflect"
	"testing"
)

func TestTopSubreddits(t *testing.T) {
	urls := []string{
		"https://www.reddit.com/r/smallbusiness/comments/1",
		"https://reddit.com/r/accounting/comments/2",
		"https://x.com/a/status/3",
		"https://www.reddit.com/r/accounting/comments/4",
		"https://www.reddit.com/r/excel?sort=new",
		"https://www.reddit.com/r/smallbusiness/comments/5",
		"https://www.reddit.com/r/accounting/",
		"https://www.reddit.com/r/sysadmin/comments/6",
		"https://www.reddit.com/r/devops/comments/7",
		"https://www.reddit.com/r/selfhosted/comments/8",
	}
	got := TopSubreddits(urls, 5)
	want := []SubredditCount{
		{Name: "accounting", Count: 3},
		{Name: "smallbusiness", Count: 2},
		{Name: "excel", Count: 1},
		{Name: "sysadmin", Count: 1},
		{Name: "devops", Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TopSubreddits = %+v, want %+v", got, want)
	}
}

func TestTopSubredditsEmpty(t *testing.T) {
	if got := TopSubreddits([]string{"https://quora.com/q"}, 5); len(got) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestIsPlaceholderURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"", true},
		{"https://...", true},
		{"https://example.com/tool", true},
		{"https://docs.example.org", true},
		{"https://real-url.com", true},
		{"https://www.actualtool.com/pricing", true},
		{"https://youtube.com/specific-video", true},
		{"not a url", true},
		{"ftp://files.net/x", true},
		{"https://www.expensify.com", false},
		{"https://youtube.com/watch?v=abc", false},
	}
	for _, tt := range tests {
		if got := IsPlaceholderURL(tt.url); got != tt.want {
			t.Errorf("IsPlaceholderURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
