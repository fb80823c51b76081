package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const keyColumns = `id, principal_id, principal_kind, label, key_prefix, key_hash, created_at, revoked_at`

// PostgresRepository implements KeyRepository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new KeyRepository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) KeyRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new key record. The principal id is stored lower-cased.
func (r *PostgresRepository) Create(ctx context.Context, k *APIKey) error {
	query := `
		INSERT INTO api_keys (principal_id, principal_kind, label, key_prefix, key_hash)
		VALUES (lower($1), $2, $3, $4, $5)
		RETURNING id, principal_id, created_at`

	err := r.pool.QueryRow(ctx, query,
		k.PrincipalID,
		k.PrincipalKind,
		k.Label,
		k.KeyPrefix,
		k.KeyHash,
	).Scan(&k.ID, &k.PrincipalID, &k.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting api key: %w", err)
	}

	return nil
}

// GetByID retrieves a single key by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE id = $1`

	k, err := scanKey(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("querying api key: %w", err)
	}

	return k, nil
}

// FindByPrefix returns active (non-revoked) keys matching the given prefix.
func (r *PostgresRepository) FindByPrefix(ctx context.Context, prefix string) ([]APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE key_prefix = $1 AND revoked_at IS NULL`
	return r.query(ctx, query, prefix)
}

// List returns the keys of one principal, or every key when principalID is
// empty, oldest first.
func (r *PostgresRepository) List(ctx context.Context, principalID string) ([]APIKey, error) {
	query := `
		SELECT ` + keyColumns + `
		FROM api_keys
		WHERE $1 = '' OR principal_id = lower($1)
		ORDER BY created_at ASC`
	return r.query(ctx, query, principalID)
}

// Revoke sets revoked_at on a key. Returns ErrKeyNotFound if the key does not
// exist, and ErrKeyRevoked if already revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM api_keys WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking api key existence: %w", err)
		}
		if !exists {
			return ErrKeyNotFound
		}
		return ErrKeyRevoked
	}

	return nil
}

// CountAll returns the total number of keys, including revoked ones.
func (r *PostgresRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting api keys: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer rows.Close()

	keys := []APIKey{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api key rows: %w", err)
	}

	return keys, nil
}

func scanKey(row pgx.Row) (*APIKey, error) {
	var k APIKey
	err := row.Scan(
		&k.ID, &k.PrincipalID, &k.PrincipalKind, &k.Label,
		&k.KeyPrefix, &k.KeyHash,
		&k.CreatedAt, &k.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &k, nil
}
