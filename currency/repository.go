package currency

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUnsupportedCurrency signals the token is not in the supported set.
	ErrUnsupportedCurrency = errors.New("currency: unsupported currency")
	// ErrDuplicateToken signals the token is already registered.
	ErrDuplicateToken = errors.New("currency: token already registered")
)

// Repository provides access to the currency registry table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed registry repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Add registers a new token. Retired tokens can be re-enabled by adding them
// again with the same identifier.
func (r *Repository) Add(ctx context.Context, token, symbol string, decimals int) (Metadata, error) {
	const query = `
		INSERT INTO currencies (token, symbol, decimals, supported)
		VALUES ($1, $2, $3, true)
		RETURNING token, symbol, decimals, supported, created_at
	`

	var meta Metadata
	err := r.pool.QueryRow(ctx, query, token, symbol, decimals).
		Scan(&meta.Token, &meta.Symbol, &meta.Decimals, &meta.Supported, &meta.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Metadata{}, ErrDuplicateToken
		}
		return Metadata{}, fmt.Errorf("currency: add: %w", err)
	}
	return meta, nil
}

// Retire removes the token from the supported set. Campaigns already
// denominated in it keep settling; only new deposits are blocked.
func (r *Repository) Retire(ctx context.Context, token string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE currencies SET supported = false WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("currency: retire: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnsupportedCurrency
	}
	return nil
}

// MetadataOf fetches registry metadata for a token regardless of whether it is
// still in the supported set.
func (r *Repository) MetadataOf(ctx context.Context, token string) (Metadata, error) {
	const query = `
		SELECT token, symbol, decimals, supported, created_at
		FROM currencies
		WHERE token = $1
	`

	var meta Metadata
	err := r.pool.QueryRow(ctx, query, token).
		Scan(&meta.Token, &meta.Symbol, &meta.Decimals, &meta.Supported, &meta.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Metadata{}, ErrUnsupportedCurrency
		}
		return Metadata{}, fmt.Errorf("currency: metadata of %s: %w", token, err)
	}
	return meta, nil
}

// IsSupported reports whether new campaigns may be denominated in the token.
func (r *Repository) IsSupported(ctx context.Context, token string) (bool, error) {
	var supported bool
	err := r.pool.QueryRow(ctx, `SELECT supported FROM currencies WHERE token = $1`, token).Scan(&supported)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("currency: is supported: %w", err)
	}
	return supported, nil
}

// List returns all registered currencies ordered by token.
func (r *Repository) List(ctx context.Context) ([]Metadata, error) {
	const query = `
		SELECT token, symbol, decimals, supported, created_at
		FROM currencies
		ORDER BY token ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("currency: list: %w", err)
	}
	defer rows.Close()

	out := make([]Metadata, 0, 8)
	for rows.Next() {
		var meta Metadata
		if err := rows.Scan(&meta.Token, &meta.Symbol, &meta.Decimals, &meta.Supported, &meta.CreatedAt); err != nil {
			return nil, fmt.Errorf("currency: scan: %w", err)
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("currency: iterate: %w", err)
	}
	return out, nil
}
