package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options tunes the connection pool.
type Options struct {
	MaxConns         int32
	StatementTimeout time.Duration
}

// Postgres wraps a pgxpool.Pool as a Gateway.
type Postgres struct {
	pool *pgxpool.Pool
}

// New parses databaseURL, applies opts, and establishes a connection pool.
func New(ctx context.Context, databaseURL string, opts Options) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	if opts.StatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// NewFromPool wraps an existing pool.
func NewFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping verifies the database connection is alive.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Pool returns the underlying pgxpool.Pool for repository use.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Execute runs sql inside a read-only transaction and returns every row.
// The transaction is always rolled back.
func (p *Postgres) Execute(ctx context.Context, sql string, args ...any) (*Result, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	typeMap := tx.Conn().TypeMap()
	descs := rows.FieldDescriptions()
	fields := make([]Field, len(descs))
	for i, fd := range descs {
		typeName := "oid:" + strconv.FormatUint(uint64(fd.DataTypeOID), 10)
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = t.Name
		}
		fields[i] = Field{Name: fd.Name, DeclaredType: typeName}
	}

	result := &Result{Rows: []map[string]any{}, Fields: fields}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classify(ctx, err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// ListTables returns every user table and view as schema-qualified names,
// with the public schema left unqualified.
func (p *Postgres) ListTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		if schema == "public" {
			tables = append(tables, name)
		} else {
			tables = append(tables, schema+"."+name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, err)
	}

	if tables == nil {
		tables = []string{}
	}

	return tables, nil
}

// ListColumns returns the columns of table in ordinal order. table may be
// schema-qualified; otherwise the connection's current schema is used.
// An unknown table yields an empty slice.
func (p *Postgres) ListColumns(ctx context.Context, table string) ([]Column, error) {
	schema, name := splitTable(table)

	query := `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = COALESCE($1, current_schema()) AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := p.pool.Query(ctx, query, schema, name)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	columns := []Column{}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DeclaredType, &c.Nullable); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, err)
	}

	return columns, nil
}

func splitTable(table string) (*string, string) {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		schema := table[:i]
		return &schema, table[i+1:]
	}
	return nil, table
}

// classify maps driver errors onto ConnectionError, TimeoutError, and
// QueryError.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "57014":
			return &TimeoutError{Err: err}
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "53300":
			return &ConnectionError{Err: err}
		}
		return &QueryError{Message: pgErr.Message, Code: pgErr.Code, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded || pgconn.Timeout(err) {
		return &TimeoutError{Err: err}
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) {
		return &ConnectionError{Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	return &QueryError{Message: err.Error(), Err: err}
}

// IsNumericType reports whether a declared column type holds numbers.
func IsNumericType(declared string) bool {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "smallint", "integer", "bigint", "int", "int2", "int4", "int8",
		"numeric", "decimal", "real", "double precision", "float4", "float8",
		"money", "smallserial", "serial", "bigserial":
		return true
	}
	return false
}
