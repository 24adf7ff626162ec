// Package oracles holds the SQL invariant checks the stress harness runs
// against the live database. Every query returns rows only when its invariant
// is violated.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			// Per currency, everything deposited into campaign escrow must sit
			// in a committed bucket, a refunded bucket, or an influencer's
			// claimable/paid-out balance.
			Name: "O1_escrow_conservation",
			SQL: `WITH moved AS (
                      SELECT currency, SUM(deposited - committed - refunded) AS amount
                      FROM campaign_escrow GROUP BY currency
                  ),
                  held AS (
                      SELECT currency, SUM(amount + paid_out) AS amount
                      FROM claimable_balances GROUP BY currency
                  )
                  SELECT m.currency, m.amount AS moved, COALESCE(h.amount, 0) AS held
                  FROM moved m LEFT JOIN held h USING (currency)
                  WHERE m.amount <> COALESCE(h.amount, 0)`,
		},
		{
			Name: "O2_bucket_nonnegative",
			SQL: `SELECT campaign_id, currency FROM campaign_escrow
                  WHERE deposited < 0 OR committed < 0 OR refunded < 0
                  UNION ALL
                  SELECT influencer_id, currency FROM claimable_balances
                  WHERE amount < 0 OR paid_out < 0`,
		},
		{
			Name: "O3_selection_cap",
			SQL: `SELECT c.id FROM campaigns c
                  WHERE c.selected_count > c.max_slots
                     OR c.selected_count <> (SELECT COUNT(*) FROM applications a
                                             WHERE a.campaign_id = c.id AND a.selected)`,
		},
		{
			// A raised dispute must block approval.
			Name: "O4_dispute_gating",
			SQL: `SELECT a.id FROM applications a
                  JOIN disputes d ON d.application_id = a.id
                  WHERE d.status = 'raised' AND a.proof_status = 'approved'`,
		},
		{
			// Terminal campaigns have distributed their full committed bucket.
			Name: "O5_terminal_settled",
			SQL: `SELECT c.id, e.committed FROM campaigns c
                  JOIN campaign_escrow e ON e.campaign_id = c.id
                  WHERE c.status IN ('completed', 'expired', 'cancelled') AND e.committed <> 0`,
		},
		{
			Name: "O6_timeline_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT campaign_id, seq,
                             LAG(seq) OVER (PARTITION BY campaign_id ORDER BY seq) AS prev
                      FROM timeline_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			// Claimed flag only ever set on approved proofs.
			Name: "O7_claimed_requires_approval",
			SQL: `SELECT id FROM applications
                  WHERE claimed AND proof_status <> 'approved'`,
		},
		{
			Name: "O8_outbox_liveness",
			SQL: `SELECT id FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			// At most one live dispute per application.
			Name: "O9_single_live_dispute",
			SQL: `SELECT application_id FROM disputes
                  WHERE status = 'raised'
                  GROUP BY application_id HAVING COUNT(*) > 1`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
