package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campflow/event"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service exposes the payout side of the ledger: influencers withdrawing
// accumulated claimable balances.
type Service struct {
	pool     TxBeginner
	reader   *pgxpool.Pool
	transfer Transfer
	outbox   *event.Outbox
}

// NewService builds the payout service. reader may equal pool; it serves the
// read-only balance queries.
func NewService(pool TxBeginner, reader *pgxpool.Pool, transfer Transfer) *Service {
	if transfer == nil {
		transfer = NoopTransfer{}
	}
	return &Service{
		pool:     pool,
		reader:   reader,
		transfer: transfer,
		outbox:   event.NewOutbox(),
	}
}

// Claim zeroes and pays out the influencer's claimable balance in one
// currency. The balance row is locked, decremented, and only then is the
// transfer issued; a transfer failure aborts the transaction so the balance
// survives for a retry.
func (s *Service) Claim(ctx context.Context, influencerID, currency string) (Payout, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payout{}, fmt.Errorf("escrow: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	payout, err := s.claimInTx(ctx, tx, influencerID, currency)
	if err != nil {
		return Payout{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Payout{}, fmt.Errorf("escrow: commit claim: %w", err)
	}
	return payout, nil
}

// ClaimAll pays out every currency with a nonzero claimable balance for the
// influencer inside one transaction. Returns ErrNothingToClaim when no
// balance exists at all.
func (s *Service) ClaimAll(ctx context.Context, influencerID string) ([]Payout, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("escrow: begin claim all: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
SELECT currency FROM claimable_balances
WHERE influencer_id = $1 AND amount > 0
ORDER BY currency
FOR UPDATE
`, influencerID)
	if err != nil {
		return nil, fmt.Errorf("escrow: list claimable currencies: %w", err)
	}
	currencies := make([]string, 0, 4)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			rows.Close()
			return nil, fmt.Errorf("escrow: scan currency: %w", err)
		}
		currencies = append(currencies, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate currencies: %w", err)
	}
	if len(currencies) == 0 {
		return nil, ErrNothingToClaim
	}

	payouts := make([]Payout, 0, len(currencies))
	for _, c := range currencies {
		payout, err := s.claimInTx(ctx, tx, influencerID, c)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, payout)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("escrow: commit claim all: %w", err)
	}
	return payouts, nil
}

func (s *Service) claimInTx(ctx context.Context, tx pgx.Tx, influencerID, currency string) (Payout, error) {
	var amount int64
	err := tx.QueryRow(ctx, `
SELECT amount FROM claimable_balances
WHERE influencer_id = $1 AND currency = $2
FOR UPDATE
`, influencerID, currency).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payout{}, ErrNothingToClaim
		}
		return Payout{}, fmt.Errorf("escrow: lock claimable: %w", err)
	}
	if amount == 0 {
		return Payout{}, ErrNothingToClaim
	}

	if _, err := tx.Exec(ctx, `
UPDATE claimable_balances
SET amount = 0, paid_out = paid_out + $3, updated_at = get_tx_timestamp()
WHERE influencer_id = $1 AND currency = $2
`, influencerID, currency, amount); err != nil {
		return Payout{}, fmt.Errorf("escrow: zero claimable: %w", err)
	}

	// Monotonic claimed flag on the applications whose approvals funded this
	// balance.
	if _, err := tx.Exec(ctx, `
UPDATE applications a
SET claimed = true
FROM campaigns c
WHERE c.id = a.campaign_id
  AND c.currency = $2
  AND a.influencer_id = $1
  AND a.proof_status = 'approved'
  AND a.claimed = false
`, influencerID, currency); err != nil {
		return Payout{}, fmt.Errorf("escrow: flag claimed applications: %w", err)
	}

	if err := s.outbox.Enqueue(ctx, tx, event.TopicPayoutClaimed, map[string]any{
		"influencer_id": influencerID,
		"currency":      currency,
		"amount":        amount,
	}); err != nil {
		return Payout{}, err
	}

	// Ledger decremented first; a failed transfer rolls everything back.
	if err := s.transfer.TransferOut(ctx, influencerID, currency, amount); err != nil {
		return Payout{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	return Payout{InfluencerID: influencerID, Currency: currency, Amount: amount}, nil
}

// BalanceOf returns the influencer's claimable balance in one currency.
func (s *Service) BalanceOf(ctx context.Context, influencerID, currency string) (ClaimableBalance, error) {
	const query = `
		SELECT influencer_id, currency, amount, paid_out, updated_at
		FROM claimable_balances
		WHERE influencer_id = $1 AND currency = $2
	`

	var bal ClaimableBalance
	err := s.reader.QueryRow(ctx, query, influencerID, currency).
		Scan(&bal.InfluencerID, &bal.Currency, &bal.Amount, &bal.PaidOut, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClaimableBalance{InfluencerID: influencerID, Currency: currency}, nil
		}
		return ClaimableBalance{}, fmt.Errorf("escrow: balance of: %w", err)
	}
	return bal, nil
}

// CampaignBalance returns the escrow buckets for (campaign, currency).
func (s *Service) CampaignBalance(ctx context.Context, campaignID, currency string) (CampaignBalance, error) {
	const query = `
		SELECT campaign_id, currency, deposited, committed, refunded, updated_at
		FROM campaign_escrow
		WHERE campaign_id = $1 AND currency = $2
	`

	var bal CampaignBalance
	err := s.reader.QueryRow(ctx, query, campaignID, currency).
		Scan(&bal.CampaignID, &bal.Currency, &bal.Deposited, &bal.Committed, &bal.Refunded, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CampaignBalance{CampaignID: campaignID, Currency: currency}, nil
		}
		return CampaignBalance{}, fmt.Errorf("escrow: campaign balance: %w", err)
	}
	return bal, nil
}
