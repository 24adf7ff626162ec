package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrInsufficientCommitted signals a move larger than the committed bucket.
	// Unreachable through any valid operation sequence; hitting it means the
	// calling state machine has a bug, so the whole operation must abort.
	ErrInsufficientCommitted = errors.New("escrow: insufficient committed balance")
	// ErrTransferFailed wraps a failure from the external token transfer port.
	ErrTransferFailed = errors.New("escrow: transfer failed")
	// ErrNothingToClaim signals a claim against a zero balance.
	ErrNothingToClaim = errors.New("escrow: nothing to claim")
	// ErrUnsupportedCurrency signals a deposit in a token outside the
	// supported set.
	ErrUnsupportedCurrency = errors.New("escrow: unsupported currency")
)

// Ledger holds the per-campaign and per-influencer escrow bookkeeping. All
// methods take the caller's transaction so the ledger moves commit or roll
// back together with the state-machine change that caused them.
type Ledger struct{}

// NewLedger returns the escrow ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Deposit records an inbound budget deposit for (campaign, currency). The
// currency must still be in the supported set; campaigns already denominated
// in a retired token are unaffected because their rows already exist.
func (l *Ledger) Deposit(ctx context.Context, tx pgx.Tx, campaignID, currency string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("escrow: deposit amount must be positive")
	}

	var supported bool
	err := tx.QueryRow(ctx, `SELECT supported FROM currencies WHERE token = $1`, currency).Scan(&supported)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUnsupportedCurrency
		}
		return fmt.Errorf("escrow: check currency: %w", err)
	}
	if !supported {
		return ErrUnsupportedCurrency
	}

	const q = `
INSERT INTO campaign_escrow (campaign_id, currency, deposited, committed)
VALUES ($1, $2, $3, $3)
ON CONFLICT (campaign_id, currency) DO UPDATE
SET deposited  = campaign_escrow.deposited + EXCLUDED.deposited,
    committed  = campaign_escrow.committed + EXCLUDED.committed,
    updated_at = get_tx_timestamp()
`
	if _, err := tx.Exec(ctx, q, campaignID, currency, amount); err != nil {
		return fmt.Errorf("escrow: deposit: %w", err)
	}
	return nil
}

// CommitToInfluencer moves amount from the campaign's committed bucket into
// the influencer's claimable balance.
func (l *Ledger) CommitToInfluencer(ctx context.Context, tx pgx.Tx, campaignID, influencerID, currency string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("escrow: commit amount must be positive")
	}

	if err := l.debitCommitted(ctx, tx, campaignID, currency, amount); err != nil {
		return err
	}

	const creditSQL = `
INSERT INTO claimable_balances (influencer_id, currency, amount)
VALUES ($1, $2, $3)
ON CONFLICT (influencer_id, currency) DO UPDATE
SET amount     = claimable_balances.amount + EXCLUDED.amount,
    updated_at = get_tx_timestamp()
`
	if _, err := tx.Exec(ctx, creditSQL, influencerID, currency, amount); err != nil {
		return fmt.Errorf("escrow: credit claimable: %w", err)
	}
	return nil
}

// RefundToBusiness moves amount from the campaign's committed bucket into the
// refunded bucket. The caller issues the actual transfer-out after this debit
// and aborts the transaction if it fails.
func (l *Ledger) RefundToBusiness(ctx context.Context, tx pgx.Tx, campaignID, currency string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("escrow: refund amount must be positive")
	}

	if err := l.debitCommitted(ctx, tx, campaignID, currency, amount); err != nil {
		return err
	}

	const q = `
UPDATE campaign_escrow
SET refunded = refunded + $3, updated_at = get_tx_timestamp()
WHERE campaign_id = $1 AND currency = $2
`
	if _, err := tx.Exec(ctx, q, campaignID, currency, amount); err != nil {
		return fmt.Errorf("escrow: record refund: %w", err)
	}
	return nil
}

// CommittedBalance returns the still-committed amount for (campaign, currency)
// under the caller's transaction.
func (l *Ledger) CommittedBalance(ctx context.Context, tx pgx.Tx, campaignID, currency string) (int64, error) {
	var committed int64
	err := tx.QueryRow(ctx,
		`SELECT committed FROM campaign_escrow WHERE campaign_id = $1 AND currency = $2`,
		campaignID, currency).Scan(&committed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("escrow: committed balance: %w", err)
	}
	return committed, nil
}

func (l *Ledger) debitCommitted(ctx context.Context, tx pgx.Tx, campaignID, currency string, amount int64) error {
	const q = `
UPDATE campaign_escrow
SET committed = committed - $3, updated_at = get_tx_timestamp()
WHERE campaign_id = $1 AND currency = $2
`
	tag, err := tx.Exec(ctx, q, campaignID, currency, amount)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return ErrInsufficientCommitted
		}
		return fmt.Errorf("escrow: debit committed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientCommitted
	}
	return nil
}
