// Package engine is the gateway to the relational store: query execution
// and live catalog introspection.
package engine

import (
	"context"
	"fmt"
)

// Field describes one result column.
type Field struct {
	Name         string `json:"name"`
	DeclaredType string `json:"declaredType"`
}

// Result holds the rows of an executed query in column order.
type Result struct {
	Rows     []map[string]any `json:"rows"`
	Fields   []Field          `json:"fields"`
	RowCount int              `json:"rowCount"`
}

// Column describes a table column as reported by the engine's catalog.
type Column struct {
	Name         string `json:"name"`
	DeclaredType string `json:"declaredType"`
	Nullable     bool   `json:"nullable"`
}

// Table is a table name with its columns in ordinal order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Executor runs read-only SQL.
type Executor interface {
	Execute(ctx context.Context, sql string, args ...any) (*Result, error)
}

// Introspector reads live catalog metadata.
type Introspector interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]Column, error)
}

// Gateway combines execution and introspection.
type Gateway interface {
	Executor
	Introspector
}

// ConnectionError reports that the engine could not be reached.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("database connection failed: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports that a statement exceeded its time budget.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("database statement timed out: %v", e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// QueryError carries the engine's message for a rejected statement.
type QueryError struct {
	Message string
	Code    string
	Err     error
}

func (e *QueryError) Error() string { return e.Message }
func (e *QueryError) Unwrap() error { return e.Err }
