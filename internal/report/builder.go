// Package report builds parameterised aggregate and listing queries against
// whitelisted tables and live-introspected columns.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/daap14/askdb/internal/catalog"
	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/permission"
)

const (
	DefaultLimit = 500
	MaxLimit     = 5000
)

var (
	ErrDatasetNotFound       = errors.New("dataset not found")
	ErrInvalidTable          = errors.New("invalid table")
	ErrAccessDenied          = errors.New("access denied")
	ErrInvalidColumn         = errors.New("invalid column")
	ErrNonNumericAggregation = errors.New("aggregation column is not numeric")
	ErrInvalidAggregation    = errors.New("invalid aggregation")
)

// Aggregation is a supported aggregate function.
type Aggregation string

const (
	AggSum   Aggregation = "SUM"
	AggCount Aggregation = "COUNT"
	AggAvg   Aggregation = "AVG"
)

// Shape names the construction rule a query was built with.
type Shape string

const (
	ShapeGroupedAggregate Shape = "grouped_aggregate"
	ShapeGroupedCount     Shape = "grouped_count"
	ShapeProjection       Shape = "projection"
)

// Request describes an ad-hoc report.
type Request struct {
	DatasetID         string
	Table             string
	Columns           []string
	GroupBy           string
	Aggregation       Aggregation
	AggregationColumn string
	Limit             int
}

// Query is a built statement ready for the executor.
type Query struct {
	SQL   string
	Args  []any
	Limit int
	Shape Shape
}

// Builder validates report requests and renders SQL.
type Builder struct {
	catalog      catalog.Reader
	introspector engine.Introspector
}

// NewBuilder creates a new Builder.
func NewBuilder(c catalog.Reader, introspector engine.Introspector) *Builder {
	return &Builder{catalog: c, introspector: introspector}
}

// ClampLimit bounds n to [1, MaxLimit]; zero means DefaultLimit.
func ClampLimit(n int) int {
	switch {
	case n == 0:
		return DefaultLimit
	case n < 1:
		return 1
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

// Build checks req in order (dataset, table, access, columns, numeric
// aggregation) and renders the query. Every identifier embedded in the SQL
// comes from the dataset whitelist or the live column set.
func (b *Builder) Build(ctx context.Context, grant *permission.Grant, req Request) (*Query, error) {
	agg := Aggregation(strings.ToUpper(strings.TrimSpace(string(req.Aggregation))))
	switch agg {
	case "", AggSum, AggCount, AggAvg:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAggregation, req.Aggregation)
	}

	ds, ok := b.catalog.Dataset(req.DatasetID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDatasetNotFound, req.DatasetID)
	}

	table, ok := ds.Table(req.Table)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not part of dataset %q", ErrInvalidTable, req.Table, ds.ID)
	}

	if !permission.HasDatasetAccess(grant, ds) {
		return nil, fmt.Errorf("%w: dataset %q", ErrAccessDenied, ds.ID)
	}

	live, err := b.introspector.ListColumns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", table, err)
	}
	if len(live) == 0 {
		return nil, fmt.Errorf("%w: %q does not exist in the database", ErrInvalidTable, table)
	}

	columns := make([]engine.Column, 0, len(req.Columns))
	for _, name := range req.Columns {
		c, err := lookupColumn(live, name)
		if err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}

	var groupBy, aggCol *engine.Column
	if req.GroupBy != "" {
		c, err := lookupColumn(live, req.GroupBy)
		if err != nil {
			return nil, err
		}
		groupBy = &c
	}
	if req.AggregationColumn != "" {
		c, err := lookupColumn(live, req.AggregationColumn)
		if err != nil {
			return nil, err
		}
		aggCol = &c
	}

	if (agg == AggSum || agg == AggAvg) && aggCol != nil && !engine.IsNumericType(aggCol.DeclaredType) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNonNumericAggregation, aggCol.Name, aggCol.DeclaredType)
	}

	limit := ClampLimit(req.Limit)
	from := quoteTable(table)

	switch {
	case groupBy != nil && agg != "" && aggCol != nil:
		g := quote(groupBy.Name)
		alias := quote(strings.ToLower(string(agg)) + "_" + aggCol.Name)
		return &Query{
			SQL: fmt.Sprintf("SELECT %s, %s(%s) AS %s FROM %s GROUP BY %s ORDER BY %s DESC LIMIT $1",
				g, agg, quote(aggCol.Name), alias, from, g, alias),
			Args:  []any{limit},
			Limit: limit,
			Shape: ShapeGroupedAggregate,
		}, nil

	case groupBy != nil:
		g := quote(groupBy.Name)
		return &Query{
			SQL: fmt.Sprintf(`SELECT %s, COUNT(*) AS "count" FROM %s GROUP BY %s ORDER BY "count" DESC LIMIT $1`,
				g, from, g),
			Args:  []any{limit},
			Limit: limit,
			Shape: ShapeGroupedCount,
		}, nil
	}

	if len(columns) == 0 {
		columns = live
	}
	projected := make([]string, len(columns))
	for i, c := range columns {
		projected[i] = quote(c.Name)
	}
	return &Query{
		SQL:   fmt.Sprintf("SELECT %s FROM %s LIMIT $1", strings.Join(projected, ", "), from),
		Args:  []any{limit},
		Limit: limit,
		Shape: ShapeProjection,
	}, nil
}

func lookupColumn(live []engine.Column, name string) (engine.Column, error) {
	for _, c := range live {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return engine.Column{}, fmt.Errorf("%w: %q", ErrInvalidColumn, name)
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

func quoteTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}
