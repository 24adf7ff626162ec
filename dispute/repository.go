package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested dispute does not exist.
var ErrNotFound = errors.New("dispute: not found")

const disputeCols = `
id, application_id, raised_by, reason, status::text, raised_at, deadline,
resolver_id, resolved_at`

// Repository provides read access to dispute records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches one dispute.
func (r *Repository) GetByID(ctx context.Context, disputeID string) (Record, error) {
	query := `SELECT ` + disputeCols + ` FROM disputes WHERE id = $1`
	rec, err := scanDispute(r.pool.QueryRow(ctx, query, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get: %w", err)
	}
	return rec, nil
}

// ListByCampaign returns all disputes touching a campaign, newest first.
func (r *Repository) ListByCampaign(ctx context.Context, campaignID string) ([]Record, error) {
	const query = `
SELECT d.id, d.application_id, d.raised_by, d.reason, d.status::text,
       d.raised_at, d.deadline, d.resolver_id, d.resolved_at
FROM disputes d
JOIN applications a ON a.id = d.application_id
WHERE a.campaign_id = $1
ORDER BY d.raised_at DESC`

	rows, err := r.pool.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list by campaign: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func scanDispute(row pgx.Row) (Record, error) {
	var (
		rec    Record
		status string
	)
	err := row.Scan(
		&rec.ID, &rec.ApplicationID, &rec.RaisedBy, &rec.Reason, &status,
		&rec.RaisedAt, &rec.Deadline, &rec.ResolverID, &rec.ResolvedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}
