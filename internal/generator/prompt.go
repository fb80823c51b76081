package generator

import (
	"fmt"
	"strings"
)

const systemPrompt = `You translate business questions into a single read-only PostgreSQL query.
Use only the tables and columns listed in the schema. Never modify data.
Reply with a short explanation of what the query returns, followed by the query in a fenced sql code block.
If the question does not need data (a greeting, a clarification), answer in plain text without any SQL.`

// Messages renders p as chat messages: a system instruction followed by one
// user turn.
func Messages(p Prompt) []Message {
	var b strings.Builder

	b.WriteString("Schema:\n")
	b.WriteString(p.Schema)
	b.WriteString("\n\n")

	if p.ScopeHint != "" {
		fmt.Fprintf(&b, "Scope:\n%s\n\n", p.ScopeHint)
	}
	if len(p.FocusTables) > 0 {
		fmt.Fprintf(&b, "Only use these tables: %s\n\n", strings.Join(p.FocusTables, ", "))
	}
	if p.FileContext != "" {
		fmt.Fprintf(&b, "Attached document:\n%s\n\n", p.FileContext)
	}

	fmt.Fprintf(&b, "Question: %s", p.Question)

	if p.IsRetry() {
		fmt.Fprintf(&b, "\n\nThe previous query failed.\nQuery:\n%s\nError: %s\nReturn a corrected query.",
			p.PreviousSQL, p.RetryError)
	}

	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}
