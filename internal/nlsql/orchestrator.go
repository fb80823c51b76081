// Package nlsql answers natural-language questions by generating, validating
// and executing SQL against the datasets a principal may see.
package nlsql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/daap14/askdb/internal/catalog"
	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/generator"
	"github.com/daap14/askdb/internal/permission"
	"github.com/daap14/askdb/internal/sqlguard"
)

// MaxQuestionLength is the longest accepted question, in characters.
const MaxQuestionLength = 500

var (
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrQuestionTooLong = fmt.Errorf("question exceeds %d characters", MaxQuestionLength)
	ErrAccessDenied    = errors.New("access denied")
	ErrInvalidFocus    = errors.New("invalid focus")
)

// Focus narrows generation to one dataset and optionally some of its tables.
type Focus struct {
	DatasetID string   `json:"datasetId"`
	Tables    []string `json:"tables,omitempty"`
}

// Request is a caller question.
type Request struct {
	Question    string
	SessionID   string
	FileContext string
	Focus       *Focus
}

// SchemaDescriber renders the schema text for the tables accepted by allow.
type SchemaDescriber interface {
	Describe(ctx context.Context, allow func(table string) bool) (string, error)
}

// Orchestrator runs the question pipeline.
type Orchestrator struct {
	catalog   catalog.Reader
	describer SchemaDescriber
	generator generator.Generator
	validator sqlguard.Validator
	executor  engine.Executor
	now       func() time.Time
}

// New creates a new Orchestrator.
func New(
	c catalog.Reader,
	describer SchemaDescriber,
	gen generator.Generator,
	validator sqlguard.Validator,
	executor engine.Executor,
) *Orchestrator {
	return &Orchestrator{
		catalog:   c,
		describer: describer,
		generator: gen,
		validator: validator,
		executor:  executor,
		now:       time.Now,
	}
}

// Ask answers req for the holder of grant. Only request-shape errors,
// access denials and caller cancellation are returned as errors; every
// other failure is reported in the Response.
func (o *Orchestrator) Ask(ctx context.Context, grant *permission.Grant, req Request) (*Response, error) {
	p := &pipeline{o: o, grant: grant, req: req, start: o.now(), state: StateReceived}

	if err := p.receive(); err != nil {
		return nil, err
	}
	if err := p.scope(); err != nil {
		return nil, err
	}

	p.run(ctx)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.response(), nil
}

// scope resolves the tables and scope hint the grant allows for this request.
func (p *pipeline) scope() error {
	if p.grant == nil || !p.grant.IsActive {
		return fmt.Errorf("%w: no active grant", ErrAccessDenied)
	}

	if f := p.req.Focus; f != nil && f.DatasetID != "" {
		ds, ok := p.o.catalog.Dataset(f.DatasetID)
		if !ok {
			return fmt.Errorf("%w: unknown dataset %q", ErrInvalidFocus, f.DatasetID)
		}
		if !permission.HasDatasetAccess(p.grant, ds) {
			return fmt.Errorf("%w: dataset %q", ErrAccessDenied, ds.ID)
		}

		p.tables = ds.Tables
		if len(f.Tables) > 0 {
			p.tables = make([]string, 0, len(f.Tables))
			for _, name := range f.Tables {
				t, ok := ds.Table(name)
				if !ok {
					return fmt.Errorf("%w: table %q is not part of dataset %q", ErrInvalidFocus, name, ds.ID)
				}
				p.tables = append(p.tables, t)
			}
			p.focusTables = p.tables
		}

		if ds.AgentID != nil {
			if a, ok := p.o.catalog.Agent(*ds.AgentID); ok && a.Enabled {
				p.scopeHint = a.ScopeHint
			}
		}
		return nil
	}

	if f := p.req.Focus; f != nil && len(f.Tables) > 0 {
		return fmt.Errorf("%w: focus tables require a dataset", ErrInvalidFocus)
	}

	for _, ds := range permission.AccessibleDatasets(p.grant, p.o.catalog) {
		p.tables = append(p.tables, ds.Tables...)
	}
	if len(p.tables) == 0 {
		return fmt.Errorf("%w: no accessible datasets", ErrAccessDenied)
	}
	return nil
}

func (p *pipeline) allows(table string) bool {
	for _, t := range p.tables {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

func (p *pipeline) receive() error {
	q := strings.TrimSpace(p.req.Question)
	if q == "" {
		return ErrEmptyQuestion
	}
	if utf8.RuneCountInString(q) > MaxQuestionLength {
		return ErrQuestionTooLong
	}
	p.req.Question = q
	return nil
}
