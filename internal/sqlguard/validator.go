// Package sqlguard gates machine-generated SQL before it reaches the database.
//
// The validator is a deny-list heuristic, not a parser. Comments are located
// with the PostgreSQL scanner; everything after that is whole-word matching.
// It rejects anything it does not positively recognise as a single read-only
// statement.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Reason identifies which rule rejected a statement.
type Reason string

const (
	ReasonEmpty              Reason = "empty"
	ReasonTooLong            Reason = "too_long"
	ReasonUnparseable        Reason = "unparseable"
	ReasonMultipleStatements Reason = "multiple_statements"
	ReasonNotSelect          Reason = "not_select"
	ReasonForbiddenKeyword   Reason = "forbidden_keyword"
	ReasonSelectInto         Reason = "select_into"
	ReasonForbiddenFunction  Reason = "forbidden_function"
)

// Result is the outcome of validating one candidate statement.
type Result struct {
	Valid     bool
	Reason    Reason
	Detail    string
	Sanitized string
}

// Validator checks candidate SQL text.
type Validator interface {
	Validate(sql string) Result
}

// DenyListValidator applies a Policy using whole-word regular expressions.
type DenyListValidator struct {
	policy    Policy
	prefixRe  *regexp.Regexp
	keywordRe *regexp.Regexp
	callRe    *regexp.Regexp
	intoRe    *regexp.Regexp
	selectRe  *regexp.Regexp
	castRe    *regexp.Regexp
}

var defaultValidator = New(PolicyV1)

// Validate runs text through the default PolicyV1 validator.
func Validate(sql string) Result {
	return defaultValidator.Validate(sql)
}

// New compiles a validator for the given policy.
func New(p Policy) *DenyListValidator {
	return &DenyListValidator{
		policy:    p,
		prefixRe:  regexp.MustCompile(`^(?:` + alternation(p.AllowedPrefixes) + `)\b`),
		keywordRe: regexp.MustCompile(`(?i)\b(` + alternation(p.ForbiddenKeywords) + `)\b`),
		callRe:    regexp.MustCompile(`(?i)\b(` + alternation(p.ForbiddenCalls) + `)\s*\(`),
		intoRe:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p.IntoKeyword) + `\b`),
		selectRe:  regexp.MustCompile(`(?i)\bSELECT\b`),
		castRe:    regexp.MustCompile(`(?i)\b(?:` + alternation(p.CastFuncs) + `)\s*\(`),
	}
}

// Policy returns the policy this validator enforces.
func (v *DenyListValidator) Policy() Policy {
	return v.policy
}

// Validate checks sql against the policy. On success Sanitized holds the
// original text with a single trailing statement terminator removed.
func (v *DenyListValidator) Validate(sql string) Result {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return reject(ReasonEmpty, "query is empty")
	}

	if utf8.RuneCountInString(sql) > v.policy.MaxLength {
		return reject(ReasonTooLong, fmt.Sprintf("query exceeds the maximum length of %d characters", v.policy.MaxLength))
	}

	stripped, err := StripComments(sql)
	if err != nil {
		return reject(ReasonUnparseable, "query could not be tokenised: "+err.Error())
	}
	normalized := strings.TrimSpace(stripped)

	statements := 0
	for _, part := range strings.Split(normalized, ";") {
		if strings.TrimSpace(part) != "" {
			statements++
		}
	}
	if statements > 1 {
		return reject(ReasonMultipleStatements, "multiple SQL statements are not allowed")
	}

	upper := strings.ToUpper(normalized)
	if !v.prefixRe.MatchString(upper) {
		return reject(ReasonNotSelect, "only SELECT or WITH queries are allowed")
	}

	if m := v.keywordRe.FindStringSubmatch(normalized); m != nil {
		return reject(ReasonForbiddenKeyword, "forbidden keyword: "+strings.ToUpper(m[1]))
	}

	if v.hasSelectInto(normalized) {
		return reject(ReasonSelectInto, "SELECT INTO is not allowed")
	}

	if m := v.callRe.FindStringSubmatch(normalized); m != nil {
		return reject(ReasonForbiddenFunction, "forbidden function: "+strings.ToLower(m[1]))
	}

	sanitized := strings.TrimSuffix(trimmed, ";")
	return Result{Valid: true, Sanitized: strings.TrimSpace(sanitized)}
}

// hasSelectInto reports whether INTO appears after a SELECT keyword outside
// any cast expression.
func (v *DenyListValidator) hasSelectInto(text string) bool {
	intos := v.intoRe.FindAllStringIndex(text, -1)
	if len(intos) == 0 {
		return false
	}

	casts := castSpans(text, v.castRe)
	for _, loc := range intos {
		if insideAny(loc[0], casts) {
			continue
		}
		if sel := v.selectRe.FindStringIndex(text[:loc[0]]); sel != nil {
			return true
		}
	}
	return false
}

// castSpans returns [start, end) offsets of every cast call including its
// balanced parentheses. An unbalanced call extends to the end of text.
func castSpans(text string, re *regexp.Regexp) [][2]int {
	var spans [][2]int
	for _, loc := range re.FindAllStringIndex(text, -1) {
		depth := 0
		end := len(text)
		for i := loc[1] - 1; i < len(text); i++ {
			switch text[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				end = i + 1
				break
			}
		}
		spans = append(spans, [2]int{loc[0], end})
	}
	return spans
}

func insideAny(pos int, spans [][2]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

// StripComments removes block and line comments using the PostgreSQL
// scanner, so markers inside quoted, dollar-quoted or escape-string literals
// stay put. Text the scanner cannot tokenise is returned as an error.
func StripComments(sql string) (string, error) {
	scan, err := pg_query.Scan(sql)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(sql))
	last := 0
	for _, tok := range scan.GetTokens() {
		switch tok.GetToken() {
		case pg_query.Token_SQL_COMMENT:
			b.WriteString(sql[last:int(tok.GetStart())])
			last = int(tok.GetEnd())
		case pg_query.Token_C_COMMENT:
			b.WriteString(sql[last:int(tok.GetStart())])
			b.WriteByte(' ')
			last = int(tok.GetEnd())
		}
	}
	b.WriteString(sql[last:])
	return b.String(), nil
}

func reject(reason Reason, detail string) Result {
	return Result{Valid: false, Reason: reason, Detail: detail}
}

func alternation(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}
