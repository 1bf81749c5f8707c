package analysis

import (
	"regexp"
	"sort"
)

var subredditPattern = regexp.MustCompile(`reddit\.com/r/([^/?#]+)`)

// SubredditCount is how many records cite a subreddit.
type SubredditCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TopSubreddits counts subreddits in reddit source URLs and returns the n
// most cited. Ties keep first-seen order.
func TopSubreddits(urls []string, n int) []SubredditCount {
	index := make(map[string]int)
	var counts []SubredditCount
	for _, u := range urls {
		m := subredditPattern.FindStringSubmatch(u)
		if m == nil {
			continue
		}
		if i, ok := index[m[1]]; ok {
			counts[i].Count++
			continue
		}
		index[m[1]] = len(counts)
		counts = append(counts, SubredditCount{Name: m[1], Count: 1})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	if n >= 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
