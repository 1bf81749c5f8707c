package search

import "strings"

// Friction phrases bias the provider toward complaint and need language
// instead of generic product mentions.
const (
	solverFriction  = `("I wish there was" OR "how do I automate" OR "is there a tool")`
	builderFriction = `("I wish" OR "automate" OR "tool for" OR "still manual")`
)

func siteFilter(src Source) string {
	switch src {
	case SourceReddit:
		return "site:reddit.com"
	case SourceTwitter:
		return "site:twitter.com OR site:x.com"
	case SourceQuora:
		return "site:quora.com"
	}
	return ""
}

func frictionPhrases(mode Mode) string {
	if mode == ModeBuilder {
		return builderFriction
	}
	return solverFriction
}

// BuildQuery returns the site-restricted, friction-boosted provider query.
func BuildQuery(query string, src Source, mode Mode) string {
	parts := []string{siteFilter(src), strings.TrimSpace(query), frictionPhrases(mode)}
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}

// Limit returns the per-source result cap. Builder mode asks for more, and
// reddit is weighted above twitter and quora.
func Limit(src Source, mode Mode) int {
	if mode == ModeBuilder {
		switch src {
		case SourceReddit:
			return 5
		case SourceTwitter:
			return 4
		default:
			return 3
		}
	}
	if src == SourceReddit {
		return 3
	}
	return 2
}
