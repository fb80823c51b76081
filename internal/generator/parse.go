package generator

import (
	"regexp"
	"strings"
)

// Candidate is a parsed reply. Exactly one of SQL or Answer is set.
type Candidate struct {
	SQL         string
	Explanation string
	Answer      string
}

// HasSQL reports whether the reply proposed a query.
func (c Candidate) HasSQL() bool {
	return c.SQL != ""
}

var (
	fenceRe     = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\n?(.*?)```")
	bareQueryRe = regexp.MustCompile(`(?m)(?:^|[\s:])(SELECT|WITH)\s`)
	// Any case, but only at a line start or after a colon, and only when the
	// text reads as a query.
	looseQueryRe = regexp.MustCompile(`(?im)(?:^|:)[ \t]*(select\s[^\n]*?\bfrom\b|with\s+(?:recursive\s+)?\w+\s+as\s*\()`)
)

// ParseReply splits generator text into explanation and SQL. A fenced code
// block wins; otherwise the text is split at the first upper-case SELECT or
// WITH, then at a query-shaped clause in any case; otherwise the whole text
// is an answer.
func ParseReply(text string) Candidate {
	text = strings.TrimSpace(text)

	if m := fenceRe.FindStringSubmatchIndex(text); m != nil {
		sql := strings.TrimSpace(text[m[2]:m[3]])
		if sql != "" {
			return Candidate{
				SQL:         sql,
				Explanation: strings.TrimSpace(text[:m[0]]),
			}
		}
	}

	for _, re := range []*regexp.Regexp{bareQueryRe, looseQueryRe} {
		if m := re.FindStringSubmatchIndex(text); m != nil {
			return Candidate{
				SQL:         strings.TrimSpace(text[m[2]:]),
				Explanation: strings.TrimSpace(text[:m[2]]),
			}
		}
	}

	return Candidate{Answer: text}
}
