package nlsql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/generator"
	"github.com/daap14/askdb/internal/permission"
	"github.com/daap14/askdb/internal/sqlguard"
)

// State is a pipeline stage.
type State string

const (
	StateReceived     State = "received"
	StateSchemaLoaded State = "schema_loaded"
	StateGenerated    State = "generated"
	StateValidated    State = "validated"
	StateExecuted     State = "executed"
	StateFormatted    State = "formatted"
	StateFailed       State = "failed"
)

// FailureReason classifies a terminal failure.
type FailureReason string

const (
	FailureSafetyRejected FailureReason = "safety_rejected"
	FailureExecution      FailureReason = "execution_failed"
	FailureUpstream       FailureReason = "upstream_unavailable"
	FailureInternal       FailureReason = "internal"
)

const maxRetries = 1

// retryState tracks the corrective retry.
type retryState struct {
	attempts  int
	failedSQL string
	lastErr   error
}

func (r *retryState) allowed() bool {
	return r.attempts < maxRetries
}

func (r *retryState) retrying() bool {
	return r.attempts > 0
}

type pipeline struct {
	o     *Orchestrator
	grant *permission.Grant
	req   Request
	start time.Time
	state State

	tables      []string
	focusTables []string
	scopeHint   string
	schema      string

	candidate   generator.Candidate
	explanation string
	answer      string
	sql         string
	result      *engine.Result
	table       string
	retry       retryState

	tokens int
	model  string

	failure   FailureReason
	rejection sqlguard.Reason
	message   string
}

// run advances the pipeline until it reaches a terminal state or ctx ends.
func (p *pipeline) run(ctx context.Context) {
	for !p.done() {
		if ctx.Err() != nil {
			return
		}
		p.step(ctx)
	}
}

func (p *pipeline) done() bool {
	return p.state == StateFormatted || p.state == StateFailed
}

func (p *pipeline) step(ctx context.Context) {
	switch p.state {
	case StateReceived:
		p.loadSchema(ctx)
	case StateSchemaLoaded:
		p.generate(ctx)
	case StateGenerated:
		p.validate()
	case StateValidated:
		p.execute(ctx)
	case StateExecuted:
		p.format()
	default:
		p.fail(FailureInternal, fmt.Errorf("unexpected state %q", p.state), FriendlyMessage(nil))
	}
}

func (p *pipeline) loadSchema(ctx context.Context) {
	schema, err := p.o.describer.Describe(ctx, p.allows)
	if err != nil {
		p.fail(FailureUpstream, fmt.Errorf("loading schema: %w", err), FriendlyMessage(err))
		return
	}
	p.schema = schema
	p.state = StateSchemaLoaded
}

func (p *pipeline) prompt() generator.Prompt {
	pr := generator.Prompt{
		Question:    p.req.Question,
		Schema:      p.schema,
		FileContext: p.req.FileContext,
		ScopeHint:   p.scopeHint,
		FocusTables: p.focusTables,
	}
	if p.retry.retrying() {
		pr.PreviousSQL = p.retry.failedSQL
		pr.RetryError = p.retry.lastErr.Error()
	}
	return pr
}

func (p *pipeline) generate(ctx context.Context) {
	reply, err := p.o.generator.Generate(ctx, p.prompt())
	if err != nil {
		if p.retry.retrying() {
			p.failTechnical(fmt.Errorf("generating retry: %w", err))
			return
		}
		p.fail(FailureUpstream, fmt.Errorf("generating: %w", err), FriendlyMessage(err))
		return
	}
	p.tokens += reply.TokensUsed
	p.model = reply.Model

	c := generator.ParseReply(reply.Text)
	if !c.HasSQL() {
		if p.retry.retrying() {
			p.failTechnical(errors.New("retry reply contained no query"))
			return
		}
		p.answer = c.Answer
		p.state = StateFormatted
		return
	}

	p.candidate = c
	if !p.retry.retrying() {
		p.explanation = c.Explanation
	}
	p.state = StateGenerated
}

func (p *pipeline) validate() {
	res := p.o.validator.Validate(p.candidate.SQL)
	if !res.Valid {
		if p.retry.retrying() {
			p.failTechnical(fmt.Errorf("retry candidate rejected: %s: %s", res.Reason, res.Detail))
			return
		}
		p.rejection = res.Reason
		slog.Warn("generated query rejected",
			"reason", res.Reason,
			"detail", res.Detail,
			"session", p.req.SessionID,
		)
		p.fail(FailureSafetyRejected, nil, rejectionMessage(res.Reason))
		return
	}
	p.sql = res.Sanitized
	p.state = StateValidated
}

func (p *pipeline) execute(ctx context.Context) {
	res, err := p.o.executor.Execute(ctx, p.sql)
	if err == nil {
		p.result = res
		if p.retry.retrying() && p.candidate.Explanation != "" {
			p.explanation = p.candidate.Explanation
		}
		p.state = StateExecuted
		return
	}

	if ctx.Err() != nil {
		p.fail(FailureInternal, err, FriendlyMessage(err))
		return
	}

	if !p.retry.allowed() {
		p.failTechnical(fmt.Errorf("executing retry: %w", err))
		return
	}

	slog.Warn("query failed; retrying with feedback",
		"error", err,
		"session", p.req.SessionID,
	)
	p.retry.attempts++
	p.retry.failedSQL = p.sql
	p.retry.lastErr = err
	p.sql = ""
	p.state = StateSchemaLoaded
}

// failTechnical ends a pipeline whose corrective retry did not succeed.
func (p *pipeline) failTechnical(err error) {
	msg := technicalIssueMessage
	if p.explanation != "" {
		msg += "\n\n" + p.explanation
	}
	p.fail(FailureExecution, err, msg)
}

func (p *pipeline) fail(reason FailureReason, err error, message string) {
	if err != nil {
		slog.Error("question pipeline failed",
			"reason", reason,
			"stage", p.state,
			"error", err,
			"session", p.req.SessionID,
		)
	}
	p.failure = reason
	p.message = message
	p.state = StateFailed
}
