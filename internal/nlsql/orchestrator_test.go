package nlsql_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daap14/askdb/internal/catalog"
	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/generator"
	"github.com/daap14/askdb/internal/nlsql"
	"github.com/daap14/askdb/internal/permission"
	"github.com/daap14/askdb/internal/sqlguard"
)

// --- Fakes ---

type fakeDescriber struct {
	described []string
	err       error
}

func (f *fakeDescriber) Describe(_ context.Context, allow func(string) bool) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.described = nil
	for _, t := range []string{"budget_lines", "assets", "headcount"} {
		if allow(t) {
			f.described = append(f.described, t)
		}
	}
	return "Table: " + strings.Join(f.described, "\nTable: "), nil
}

type scriptedGenerator struct {
	replies []string
	errs    []error
	prompts []generator.Prompt
}

func (g *scriptedGenerator) Generate(_ context.Context, p generator.Prompt) (*generator.Reply, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, p)
	if i < len(g.errs) && g.errs[i] != nil {
		return nil, g.errs[i]
	}
	if i >= len(g.replies) {
		return nil, errors.New("unexpected generator call")
	}
	return &generator.Reply{Text: g.replies[i], TokensUsed: 100, Model: "test-model"}, nil
}

type mockExecutor struct {
	executeFn func(ctx context.Context, sql string) (*engine.Result, error)
	calls     []string
}

func (m *mockExecutor) Execute(ctx context.Context, sql string, _ ...any) (*engine.Result, error) {
	m.calls = append(m.calls, sql)
	return m.executeFn(ctx, sql)
}

func totalResult() *engine.Result {
	return &engine.Result{
		Rows:     []map[string]any{{"total": 1250.5}},
		Fields:   []engine.Field{{Name: "total", DeclaredType: "numeric"}},
		RowCount: 1,
	}
}

// --- Helpers ---

func strPtr(s string) *string { return &s }

var (
	admin   = &permission.Grant{PrincipalID: "boss", Role: permission.RoleAdmin, IsActive: true}
	finUser = &permission.Grant{PrincipalID: "ana", Role: permission.RoleUser, IsActive: true, Agents: []string{"fin"}}
)

type harness struct {
	describer *fakeDescriber
	gen       *scriptedGenerator
	exec      *mockExecutor
	o         *nlsql.Orchestrator
}

func newHarness(t *testing.T, replies ...string) *harness {
	t.Helper()
	c, err := catalog.New(
		[]catalog.Dataset{
			{ID: "finance", Tables: []string{"budget_lines", "assets"}, AgentID: strPtr("fin")},
			{ID: "hr", Tables: []string{"headcount"}},
		},
		[]catalog.Agent{{ID: "fin", ScopeHint: "Finance questions only", Enabled: true}},
	)
	require.NoError(t, err)

	h := &harness{
		describer: &fakeDescriber{},
		gen:       &scriptedGenerator{replies: replies},
		exec: &mockExecutor{executeFn: func(context.Context, string) (*engine.Result, error) {
			return totalResult(), nil
		}},
	}
	h.o = nlsql.New(c, h.describer, h.gen, sqlguard.New(sqlguard.PolicyV1), h.exec)
	return h
}

const totalReply = "This adds up revenue across all budget lines.\n```sql\nSELECT SUM(revenue) AS total FROM budget_lines;\n```"

// --- Tests ---

func TestAsk_ScenarioA_ExecutesValidatedQuery(t *testing.T) {
	h := newHarness(t, totalReply)

	resp, err := h.o.Ask(context.Background(), admin, nlsql.Request{Question: "What is total revenue?", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, nlsql.OutcomeResult, resp.Outcome)
	assert.Equal(t, []string{"SELECT SUM(revenue) AS total FROM budget_lines"}, h.exec.calls)
	assert.Equal(t, "SELECT SUM(revenue) AS total FROM budget_lines", resp.SQL)
	assert.Equal(t, 1, resp.RowCount)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "total", resp.Fields[0].Name)
	assert.Equal(t, "This adds up revenue across all budget lines.", resp.Explanation)
	assert.Equal(t, "| total |\n| --- |\n| 1250.5 |", resp.Table)
	assert.True(t, strings.HasPrefix(resp.Response, resp.Explanation))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, 100, resp.Metadata.TokensUsed)
	assert.Equal(t, "test-model", resp.Metadata.Model)
	assert.False(t, resp.Metadata.Retried)
	assert.GreaterOrEqual(t, resp.Metadata.ElapsedMs, int64(0))
}

func TestAsk_ScenarioB_SafetyRejection(t *testing.T) {
	h := newHarness(t, "Dropping it.\n```sql\nDROP TABLE budget_lines\n```")

	resp, err := h.o.Ask(context.Background(), admin, nlsql.Request{Question: "delete the budget"})
	require.NoError(t, err)

	assert.Equal(t, nlsql.OutcomeRejected, resp.Outcome)
	assert.Equal(t, nlsql.FailureSafetyRejected, resp.FailureReason)
	assert.Contains(t, resp.Response, string(sqlguard.ReasonNotSelect))
	assert.Contains(t, resp.Response, "rephrase")
	assert.Empty(t, h.exec.calls)
	assert.Empty(t, resp.Rows)
	assert.Zero(t, resp.RowCount)
	assert.Empty(t, resp.SQL)
	assert.Len(t, h.gen.prompts, 1)
}

func TestAsk_ScenarioC_RetryWithFeedback(t *testing.T) {
	h := newHarness(t,
		"Revenue total.\n```sql\nSELECT SUM(revenu) AS total FROM budget_lines\n```",
		"Fixed the column name.\n```sql\nSELECT SUM(revenue) AS total FROM budget_lines\n```",
	)
	h.exec.executeFn = func(_ context.Context, sql string) (*engine.Result, error) {
		if strings.Contains(sql, "revenu)") {
			return nil, &engine.QueryError{Message: `column "revenu" does not exist`, Code: "42703"}
		}
		return totalResult(), nil
	}

	resp, err := h.o.Ask(context.Background(), finUser, nlsql.Request{Question: "What is total revenue?"})
	require.NoError(t, err)

	require.Len(t, h.gen.prompts, 2)
	retry := h.gen.prompts[1]
	assert.Equal(t, "What is total revenue?", retry.Question)
	assert.Equal(t, `column "revenu" does not exist`, retry.RetryError)
	assert.Equal(t, "SELECT SUM(revenu) AS total FROM budget_lines", retry.PreviousSQL)
	assert.False(t, h.gen.prompts[0].IsRetry())

	assert.Equal(t, nlsql.OutcomeResult, resp.Outcome)
	assert.Equal(t, "SELECT SUM(revenue) AS total FROM budget_lines", resp.SQL)
	assert.Equal(t, "Fixed the column name.", resp.Explanation)
	assert.Equal(t, 1, resp.RowCount)
	assert.True(t, resp.Metadata.Retried)
	assert.Equal(t, 200, resp.Metadata.TokensUsed)
	assert.Len(t, h.exec.calls, 2)
}

func TestAsk_RetryFailsTerminally(t *testing.T) {
	h := newHarness(t,
		"Revenue total.\n```sql\nSELECT SUM(revenu) FROM budget_lines\n```",
		"Second try.\n```sql\nSELECT SUM(revenu2) FROM budget_lines\n```",
		"never used",
	)
	h.exec.executeFn = func(context.Context, string) (*engine.Result, error) {
		return nil, &engine.TimeoutError{Err: errors.New("canceling statement due to statement timeout")}
	}

	resp, err := h.o.Ask(context.Background(), admin, nlsql.Request{Question: "total revenue"})
	require.NoError(t, err)

	assert.Equal(t, nlsql.OutcomeFailed, resp.Outcome)
	assert.Equal(t, nlsql.FailureExecution, resp.FailureReason)
	assert.Contains(t, resp.Response, "technical issue")
	assert.Contains(t, resp.Response, "Revenue total.")
	assert.NotContains(t, resp.Response, "statement timeout")
	assert.Len(t, h.gen.prompts, 2)
	assert.Len(t, h.exec.calls, 2)
	assert.True(t, resp.Metadata.Retried)
	assert.Empty(t, resp.Rows)
}

func TestAsk_RetryCandidateRejected(t *testing.T) {
	h := newHarness(t,
		"Revenue total.\n```sql\nSELECT SUM(revenu) FROM budget_lines\n```",
		"```sql\nSELECT 1; DROP TABLE budget_lines\n```",
	)
	h.exec.executeFn = func(context.Context, string) (*engine.Result, error) {
		return nil, &engine.QueryError{Message: "boom"}
	}

	resp, err := h.o.Ask(context.Background(), admin, nlsql.Request{Question: "total revenue"})
	require.NoError(t, err)

	assert.Equal(t, nlsql.FailureExecution, resp.FailureReason)
	assert.Contains(t, resp.Response, "Revenue total.")
	assert.Len(t, h.exec.calls, 1)
}

func TestAsk_PlainAnswer(t *testing.T) {
	h := newHarness(t, "Hello! Ask me about budgets or assets.")

	resp, err := h.o.Ask(context.Background(), finUser, nlsql.Request{Question: "hi"})
	require.NoError(t, err)

	assert.Equal(t, nlsql.OutcomeAnswer, resp.Outcome)
	assert.Equal(t, "Hello! Ask me about budgets or assets.", resp.Response)
	assert.Empty(t, h.exec.calls)
	assert.Empty(t, resp.SQL)
	assert.NotNil(t, resp.Rows)
}

func TestAsk_RequestShape(t *testing.T) {
	h := newHarness(t)

	_, err := h.o.Ask(context.Background(), admin, nlsql.Request{Question: "   "})
	assert.ErrorIs(t, err, nlsql.ErrEmptyQuestion)

	_, err = h.o.Ask(context.Background(), admin, nlsql.Request{Question: strings.Repeat("é", nlsql.MaxQuestionLength+1)})
	assert.ErrorIs(t, err, nlsql.ErrQuestionTooLong)

	assert.Empty(t, h.gen.prompts)
}

func TestAsk_AccessDeniedBeforeGeneration(t *testing.T) {
	tests := []struct {
		name  string
		grant *permission.Grant
		focus *nlsql.Focus
		want  error
	}{
		{"no grant", nil, nil, nlsql.ErrAccessDenied},
		{"inactive grant", &permission.Grant{Role: permission.RoleAdmin, IsActive: false}, nil, nlsql.ErrAccessDenied},
		{"no datasets", &permission.Grant{Role: permission.RoleUser, IsActive: true}, nil, nlsql.ErrAccessDenied},
		{"focus without access", finUser, &nlsql.Focus{DatasetID: "hr"}, nlsql.ErrAccessDenied},
		{"unknown focus dataset", admin, &nlsql.Focus{DatasetID: "sales"}, nlsql.ErrInvalidFocus},
		{"focus table outside dataset", finUser, &nlsql.Focus{DatasetID: "finance", Tables: []string{"headcount"}}, nlsql.ErrInvalidFocus},
		{"focus tables without dataset", admin, &nlsql.Focus{Tables: []string{"assets"}}, nlsql.ErrInvalidFocus},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, totalReply)
			_, err := h.o.Ask(context.Background(), tc.grant, nlsql.Request{Question: "q", Focus: tc.focus})
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, h.gen.prompts)
		})
	}
}

func TestAsk_SchemaLimitedToAccessibleTables(t *testing.T) {
	h := newHarness(t, totalReply)

	_, err := h.o.Ask(context.Background(), finUser, nlsql.Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"budget_lines", "assets"}, h.describer.described)
	assert.Empty(t, h.gen.prompts[0].ScopeHint)

	h = newHarness(t, totalReply)
	_, err = h.o.Ask(context.Background(), admin, nlsql.Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"budget_lines", "assets", "headcount"}, h.describer.described)
}

func TestAsk_FocusPassesScopeAndTables(t *testing.T) {
	h := newHarness(t, totalReply)

	_, err := h.o.Ask(context.Background(), finUser, nlsql.Request{
		Question:    "q",
		FileContext: "memo text",
		Focus:       &nlsql.Focus{DatasetID: "finance", Tables: []string{"BUDGET_LINES"}},
	})
	require.NoError(t, err)

	require.Len(t, h.gen.prompts, 1)
	p := h.gen.prompts[0]
	assert.Equal(t, "Finance questions only", p.ScopeHint)
	assert.Equal(t, []string{"budget_lines"}, p.FocusTables)
	assert.Equal(t, "memo text", p.FileContext)
	assert.Equal(t, []string{"budget_lines"}, h.describer.described)
}

func TestAsk_UpstreamFailures(t *testing.T) {
	t.Run("generator misconfigured", func(t *testing.T) {
		h := newHarness(t)
		h.gen.errs = []error{fmt.Errorf("%w: status 401", generator.ErrAuth)}

		resp, err := h.o.Ask(context.Background(), admin, nlsql.Request{Question: "q"})
		require.NoError(t, err)
		assert.Equal(t, nlsql.FailureUpstream, resp.FailureReason)
		assert.Equal(t, nlsql.FriendlyMessage(generator.ErrAuth), resp.Response)
		assert.NotContains(t, resp.Response, "401")
	})

	t.Run("schema unreachable", func(t *testing.T) {
		h := newHarness(t)
		h.describer.err = &engine.ConnectionError{Err: errors.New("dial tcp: refused")}

		resp, err := h.o.Ask(context.Background(), admin, nlsql.Request{Question: "q"})
		require.NoError(t, err)
		assert.Equal(t, nlsql.OutcomeFailed, resp.Outcome)
		assert.Equal(t, nlsql.FriendlyMessage(&engine.ConnectionError{}), resp.Response)
		assert.Empty(t, h.gen.prompts)
	})
}

func TestAsk_CallerCancellation(t *testing.T) {
	h := newHarness(t, totalReply)
	ctx, cancel := context.WithCancel(context.Background())
	h.exec.executeFn = func(context.Context, string) (*engine.Result, error) {
		cancel()
		return nil, context.Canceled
	}

	_, err := h.o.Ask(ctx, admin, nlsql.Request{Question: "q"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, h.gen.prompts, 1)
}

func TestAsk_TableTruncation(t *testing.T) {
	h := newHarness(t, "All assets.\n```sql\nSELECT id FROM assets\n```")
	h.exec.executeFn = func(context.Context, string) (*engine.Result, error) {
		res := &engine.Result{Fields: []engine.Field{{Name: "id", DeclaredType: "int4"}}}
		for i := range 60 {
			res.Rows = append(res.Rows, map[string]any{"id": i})
		}
		res.RowCount = len(res.Rows)
		return res, nil
	}

	resp, err := h.o.Ask(context.Background(), admin, nlsql.Request{Question: "list assets"})
	require.NoError(t, err)

	assert.Len(t, resp.Rows, 60)
	assert.Equal(t, 60, resp.RowCount)
	assert.Contains(t, resp.Table, "_Showing 50 of 60 rows._")
	assert.Contains(t, resp.Table, "| 49 |")
	assert.NotContains(t, resp.Table, "| 50 |")
}

func TestFriendlyMessage(t *testing.T) {
	conn := nlsql.FriendlyMessage(&engine.ConnectionError{Err: errors.New("x")})
	timeout := nlsql.FriendlyMessage(&engine.TimeoutError{Err: errors.New("x")})
	auth := nlsql.FriendlyMessage(generator.ErrAuth)
	generic := nlsql.FriendlyMessage(errors.New("something odd"))

	assert.Equal(t, conn, nlsql.FriendlyMessage(generator.ErrUnavailable))
	assert.Equal(t, timeout, nlsql.FriendlyMessage(fmt.Errorf("wrapped: %w", generator.ErrTimeout)))
	assert.Equal(t, timeout, nlsql.FriendlyMessage(context.DeadlineExceeded))
	assert.Equal(t, generic, nlsql.FriendlyMessage(&engine.QueryError{Message: "syntax error"}))

	distinct := map[string]struct{}{conn: {}, timeout: {}, auth: {}, generic: {}}
	assert.Len(t, distinct, 4)
	assert.Contains(t, generic, "rephrase")
}
