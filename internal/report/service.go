package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/permission"
)

// Report is an executed report query.
type Report struct {
	Query  *Query
	Result *engine.Result
}

// Service builds and executes reports.
type Service struct {
	builder  *Builder
	executor engine.Executor
}

// NewService creates a new Service.
func NewService(builder *Builder, executor engine.Executor) *Service {
	return &Service{builder: builder, executor: executor}
}

// Run builds the query for req and executes it.
func (s *Service) Run(ctx context.Context, grant *permission.Grant, req Request) (*Report, error) {
	q, err := s.builder.Build(ctx, grant, req)
	if err != nil {
		return nil, err
	}

	slog.Debug("running report", "dataset", req.DatasetID, "table", req.Table, "shape", q.Shape)

	res, err := s.executor.Execute(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("executing report: %w", err)
	}

	return &Report{Query: q, Result: res}, nil
}
