package nlsql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/generator"
	"github.com/daap14/askdb/internal/sqlguard"
)

// MaxDisplayRows caps the markdown table; the full rows are still returned.
const MaxDisplayRows = 50

// Outcome is the in-band result category of a question.
type Outcome string

const (
	OutcomeResult   Outcome = "result"
	OutcomeAnswer   Outcome = "answer"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Metadata describes how a response was produced.
type Metadata struct {
	TokensUsed int    `json:"tokensUsed"`
	ElapsedMs  int64  `json:"elapsedMs"`
	Model      string `json:"model,omitempty"`
	Retried    bool   `json:"retried"`
}

// Response is the formatted payload for a question.
type Response struct {
	Response      string           `json:"response"`
	Outcome       Outcome          `json:"outcome"`
	Explanation   string           `json:"explanation,omitempty"`
	Table         string           `json:"table,omitempty"`
	SQL           string           `json:"sql,omitempty"`
	Rows          []map[string]any `json:"rows"`
	Fields        []engine.Field   `json:"fields"`
	RowCount      int              `json:"rowCount"`
	FailureReason FailureReason    `json:"failureReason,omitempty"`
	SessionID     string           `json:"sessionId,omitempty"`
	Metadata      Metadata         `json:"metadata"`
}

const (
	connectivityMessage   = "I couldn't reach the data service right now. Please try again in a few minutes."
	timeoutMessage        = "That question took too long to answer. Try narrowing it down, for example to a shorter period or fewer columns."
	misconfiguredMessage  = "The question service is not configured correctly. Please contact an administrator."
	rephraseMessage       = "I couldn't answer that question. Could you rephrase it?"
	technicalIssueMessage = "I ran into a technical issue while running the query for your question."
)

func (p *pipeline) format() {
	p.table = markdownTable(p.result)
	p.state = StateFormatted
}

func (p *pipeline) response() *Response {
	r := &Response{
		Rows:      []map[string]any{},
		Fields:    []engine.Field{},
		SessionID: p.req.SessionID,
		Metadata: Metadata{
			TokensUsed: p.tokens,
			ElapsedMs:  p.o.now().Sub(p.start).Milliseconds(),
			Model:      p.model,
			Retried:    p.retry.retrying(),
		},
	}

	switch {
	case p.state == StateFailed:
		r.Response = p.message
		r.FailureReason = p.failure
		r.Outcome = OutcomeFailed
		if p.failure == FailureSafetyRejected {
			r.Outcome = OutcomeRejected
		}
	case p.result == nil:
		r.Response = p.answer
		r.Outcome = OutcomeAnswer
	default:
		r.Outcome = OutcomeResult
		r.Explanation = p.explanation
		r.Table = p.table
		r.SQL = p.sql
		r.Rows = p.result.Rows
		r.Fields = p.result.Fields
		r.RowCount = p.result.RowCount
		r.Response = strings.TrimSpace(p.explanation + "\n\n" + p.table)
	}
	return r
}

// FriendlyMessage maps a pipeline error to the sentence shown to the caller.
func FriendlyMessage(err error) string {
	var (
		connErr    *engine.ConnectionError
		timeoutErr *engine.TimeoutError
	)
	switch {
	case err == nil:
		return rephraseMessage
	case errors.As(err, &connErr), errors.Is(err, generator.ErrUnavailable):
		return connectivityMessage
	case errors.As(err, &timeoutErr), errors.Is(err, generator.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return timeoutMessage
	case errors.Is(err, generator.ErrAuth):
		return misconfiguredMessage
	default:
		return rephraseMessage
	}
}

func rejectionMessage(reason sqlguard.Reason) string {
	var why string
	switch reason {
	case sqlguard.ReasonMultipleStatements:
		why = "it contained more than one statement"
	case sqlguard.ReasonNotSelect, sqlguard.ReasonForbiddenKeyword, sqlguard.ReasonSelectInto:
		why = "it would have changed data or the database rather than only reading it"
	case sqlguard.ReasonForbiddenFunction:
		why = "it called a function that is not allowed"
	case sqlguard.ReasonTooLong:
		why = "it was too long"
	default:
		why = "it did not pass the safety checks"
	}
	return fmt.Sprintf("I couldn't run the query generated for your question because %s (%s). Please rephrase your question as a request to look up data.", why, reason)
}

// markdownTable renders up to MaxDisplayRows rows of res.
func markdownTable(res *engine.Result) string {
	if res == nil || len(res.Fields) == 0 {
		return ""
	}
	if len(res.Rows) == 0 {
		return "_No rows returned._"
	}

	var b strings.Builder
	b.WriteString("|")
	for _, f := range res.Fields {
		b.WriteString(" " + cell(f.Name) + " |")
	}
	b.WriteString("\n|")
	for range res.Fields {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")

	shown := min(len(res.Rows), MaxDisplayRows)
	for _, row := range res.Rows[:shown] {
		b.WriteString("|")
		for _, f := range res.Fields {
			b.WriteString(" " + cell(row[f.Name]) + " |")
		}
		b.WriteString("\n")
	}

	if total := max(res.RowCount, len(res.Rows)); total > shown {
		fmt.Fprintf(&b, "\n_Showing %d of %d rows._\n", shown, total)
	}
	return strings.TrimRight(b.String(), "\n")
}

func cell(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case []byte:
		s = string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			s = x.Format(time.DateOnly)
		} else {
			s = x.Format(time.RFC3339)
		}
	case fmt.Stringer:
		s = x.String()
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil || dv == nil {
			return ""
		}
		s = fmt.Sprint(dv)
	default:
		s = fmt.Sprint(x)
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
