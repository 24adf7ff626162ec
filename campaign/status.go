package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrInvalidTransition signals a lifecycle edge the state machine does not
// allow. Reachable only through engine bugs, never through caller input.
var ErrInvalidTransition = errors.New("campaign: invalid status transition")

// transition validates and applies one lifecycle edge inside the caller's
// transaction. The caller must already hold the campaign row lock.
func transition(ctx context.Context, tx pgx.Tx, campaignID string, from, to Status) error {
	var ok bool
	if err := tx.QueryRow(ctx,
		`SELECT campaign_validate_transition($1::campaign_status, $2::campaign_status)`,
		string(from), string(to)).Scan(&ok); err != nil {
		return fmt.Errorf("campaign: validate transition: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if _, err := tx.Exec(ctx, `
UPDATE campaigns
SET status = $2::campaign_status, updated_at = get_tx_timestamp()
WHERE id = $1
`, campaignID, string(to)); err != nil {
		return fmt.Errorf("campaign: update status: %w", err)
	}
	return nil
}
