package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new Store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &PostgresStore{pool: pool}
}

const grantColumns = `principal_id, kind, role, is_active, datasets, agents,
		       can_view_dashboard, can_view_reports, created_at, updated_at`

// List retrieves every grant ordered by principal.
func (s *PostgresStore) List(ctx context.Context) ([]Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM grants ORDER BY principal_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning grant row: %w", err)
		}
		grants = append(grants, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating grant rows: %w", err)
	}

	if grants == nil {
		grants = []Grant{}
	}

	return grants, nil
}

// Get retrieves the grant for a single principal. Principal ids are
// compared case-insensitively.
func (s *PostgresStore) Get(ctx context.Context, principalID string) (*Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM grants WHERE principal_id = lower($1)`

	g, err := scanGrant(s.pool.QueryRow(ctx, query, principalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("querying grant: %w", err)
	}

	return g, nil
}

// Upsert inserts or replaces the grant for g.PrincipalID.
func (s *PostgresStore) Upsert(ctx context.Context, g *Grant) error {
	query := `
		INSERT INTO grants (principal_id, kind, role, is_active, datasets, agents,
		                    can_view_dashboard, can_view_reports)
		VALUES (lower($1), $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (principal_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active,
			datasets = EXCLUDED.datasets,
			agents = EXCLUDED.agents,
			can_view_dashboard = EXCLUDED.can_view_dashboard,
			can_view_reports = EXCLUDED.can_view_reports,
			updated_at = NOW()
		RETURNING principal_id, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		g.PrincipalID,
		string(g.Kind),
		string(g.Role),
		g.IsActive,
		nonNil(g.Datasets),
		nonNil(g.Agents),
		g.CanViewDashboard,
		g.CanViewReports,
	).Scan(&g.PrincipalID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting grant: %w", err)
	}

	return nil
}

// Delete removes the grant for a principal.
func (s *PostgresStore) Delete(ctx context.Context, principalID string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM grants WHERE principal_id = lower($1)`, principalID)
	if err != nil {
		return fmt.Errorf("deleting grant: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrGrantNotFound
	}

	return nil
}

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	var kind, role string
	err := row.Scan(
		&g.PrincipalID, &kind, &role, &g.IsActive,
		&g.Datasets, &g.Agents,
		&g.CanViewDashboard, &g.CanViewReports,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Kind = PrincipalKind(kind)
	g.Role = Role(role)
	return &g, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
