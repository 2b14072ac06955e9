package review

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// mentionRe matches @user and @*user. The mention must not follow a word
// character so email addresses are skipped.
var mentionRe = regexp.MustCompile(`(?:^|[^\w@.])@(\*?)([A-Za-z0-9_][\w.\-]*)`)

// keywordRe matches #review, #review-N, [review] and [review-N].
var keywordRe = regexp.MustCompile(
	`(?i)[ \t]*(?:#review(?:-(\d+))?\b|\[review(?:-(\d+))?\])`,
)

// Mentions maps mentioned users to whether the mention was required.
type Mentions map[string]bool

// ParseMentions extracts the users mentioned in text. A user mentioned both
// ways is required.
func ParseMentions(text string) Mentions {
	out := make(Mentions)
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		user := strings.TrimRight(m[2], ".-")
		if user == "" {
			continue
		}
		out[user] = out[user] || m[1] == "*"
	}

	return out
}

// Added returns the mentions in m that are new relative to prev, or that
// became required.
func (m Mentions) Added(prev Mentions) Mentions {
	out := make(Mentions)
	for user, required := range m {
		was, ok := prev[user]
		if !ok || (required && !was) {
			out[user] = required
		}
	}

	return out
}

// Users returns the mentioned users sorted.
func (m Mentions) Users() []string {
	users := make([]string, 0, len(m))
	for u := range m {
		users = append(users, u)
	}
	sort.Strings(users)

	return users
}

// Keyword is the outcome of scanning a change description for a review
// keyword.
type Keyword struct {
	// Found is true when any keyword form was present.
	Found bool

	// ReviewID is the id named by #review-N or [review-N], else 0.
	ReviewID int64

	// Description is the text with the keyword removed.
	Description string
}

// ParseKeyword scans description for a review keyword. Only the first
// keyword's id is honoured, but every occurrence is stripped.
func ParseKeyword(description string) Keyword {
	loc := keywordRe.FindStringSubmatch(description)
	if loc == nil {
		return Keyword{Description: strings.TrimSpace(description)}
	}

	kw := Keyword{Found: true}
	for _, g := range loc[1:] {
		if g == "" {
			continue
		}
		kw.ReviewID, _ = strconv.ParseInt(g, 10, 64)
		break
	}
	kw.Description = strings.TrimSpace(
		keywordRe.ReplaceAllString(description, ""),
	)

	return kw
}
