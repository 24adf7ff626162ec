// Package actors holds the concurrent workload drivers for the stress
// harness. Each actor loops until stopped, calling the real services so the
// run exercises the engine's own locking and transaction boundaries, and
// swallows the domain errors that are expected under contention.
package actors

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campflow/campaign"
	"campflow/dispute"
	"campflow/escrow"
	"campflow/proof"
)

// Deps bundles everything the actors share.
type Deps struct {
	Pool        *pgxpool.Pool
	Campaigns   *campaign.Service
	Proofs      *proof.Service
	Disputes    *dispute.Service
	Escrow      *escrow.Service
	Currency    string
	BusinessID  string
	ResolverID  string
	Influencers []string
}

// expected reports whether the error is a normal domain outcome under
// concurrent load rather than a harness failure.
func expected(err error) bool {
	for _, e := range []error{
		campaign.ErrCampaignNotOpen,
		campaign.ErrCampaignFinalized,
		campaign.ErrAlreadyApplied,
		campaign.ErrApplicationDeadlinePassed,
		campaign.ErrAlreadySelected,
		campaign.ErrSelectionCapReached,
		campaign.ErrNothingSelected,
		campaign.ErrCampaignNotFound,
		campaign.ErrApplicationNotFound,
		campaign.ErrProofAlreadySubmitted,
		proof.ErrNotSelected,
		proof.ErrSubmissionWindowClosed,
		proof.ErrProofNotSubmitted,
		proof.ErrProofAlreadyDecided,
		proof.ErrDisputePending,
		dispute.ErrAlreadyDisputed,
		dispute.ErrApplicationNotSubmitted,
		dispute.ErrSubmissionAlreadyApproved,
		dispute.ErrNoPendingDispute,
		dispute.ErrNotFound,
		escrow.ErrNothingToClaim,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	// Row locks vanish when chaos kills a backend mid-transaction.
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, context.Canceled)
}

func sleep(ctx context.Context, base, jitter int) {
	d := time.Duration(base+rand.Intn(jitter)) * time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Opener keeps fresh campaigns flowing with windows short enough that the
// deadline triggers fire within a stress run.
func Opener(ctx context.Context, d Deps, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		_, err := d.Campaigns.Open(ctx, campaign.OpenParams{
			BusinessID:         d.BusinessID,
			Currency:           d.Currency,
			Budget:             int64(100 + rand.Intn(2000)),
			MaxSlots:           1 + rand.Intn(3),
			ApplicationPeriod:  2 * time.Second,
			SelectionGrace:     2 * time.Second,
			PromotionDuration:  time.Second,
			ProofGrace:         time.Second,
			VerificationPeriod: 2 * time.Second,
		})
		if err != nil && !expected(err) {
			return err
		}
		sleep(ctx, 400, 400)
	}
}

// Applicant bids on random open campaigns as one influencer.
func Applicant(ctx context.Context, d Deps, influencerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		open, err := d.Campaigns.ListOpen(ctx, 20)
		if err != nil && !expected(err) {
			return err
		}
		if len(open) > 0 {
			c := open[rand.Intn(len(open))]
			if _, err := d.Campaigns.Apply(ctx, c.ID, influencerID, "stress bid"); err != nil && !expected(err) {
				return err
			}
		}
		sleep(ctx, 20, 60)
	}
}

// Selector picks pending applications on open campaigns and occasionally
// closes selection early with whatever is already selected.
func Selector(ctx context.Context, d Deps, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		var campaignID, applicationID string
		err := d.Pool.QueryRow(ctx, `
SELECT a.campaign_id, a.id FROM applications a
JOIN campaigns c ON c.id = a.campaign_id
WHERE c.status = 'open' AND NOT a.selected
ORDER BY random() LIMIT 1
`).Scan(&campaignID, &applicationID)
		if err == nil {
			if _, err := d.Campaigns.Select(ctx, d.BusinessID, campaignID, applicationID); err != nil && !expected(err) {
				return err
			}
		} else if !expected(err) {
			return err
		}

		if rand.Intn(10) == 0 {
			var campaignID string
			err := d.Pool.QueryRow(ctx,
				`SELECT id FROM campaigns WHERE status = 'open' AND selected_count > 0 ORDER BY random() LIMIT 1`).Scan(&campaignID)
			if err == nil {
				if _, err := d.Campaigns.CloseSelection(ctx, d.BusinessID, campaignID); err != nil && !expected(err) {
					return err
				}
			} else if !expected(err) {
				return err
			}
		}
		sleep(ctx, 30, 60)
	}
}

// Submitter posts proof links for selected applications still inside the
// submission window.
func Submitter(ctx context.Context, d Deps, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		var campaignID, applicationID, influencerID string
		err := d.Pool.QueryRow(ctx, `
SELECT a.campaign_id, a.id, a.influencer_id FROM applications a
JOIN campaigns c ON c.id = a.campaign_id
WHERE c.status IN ('assigned', 'content_submission') AND a.selected AND a.proof_status = 'none'
ORDER BY random() LIMIT 1
`).Scan(&campaignID, &applicationID, &influencerID)
		if err == nil {
			if _, err := d.Proofs.Submit(ctx, influencerID, campaignID, applicationID, "https://example.com/proof"); err != nil && !expected(err) {
				return err
			}
		} else if !expected(err) {
			return err
		}
		sleep(ctx, 30, 60)
	}
}

// Approver manually approves random submitted proofs, racing the disputer and
// the auto-approval poller.
func Approver(ctx context.Context, d Deps, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		var campaignID, applicationID string
		err := d.Pool.QueryRow(ctx, `
SELECT a.campaign_id, a.id FROM applications a
JOIN campaigns c ON c.id = a.campaign_id
WHERE c.status IN ('content_submission', 'verification') AND a.proof_status = 'submitted'
ORDER BY random() LIMIT 1
`).Scan(&campaignID, &applicationID)
		if err == nil {
			if err := d.Proofs.Approve(ctx, d.BusinessID, campaignID, applicationID); err != nil && !expected(err) {
				return err
			}
		} else if !expected(err) {
			return err
		}
		sleep(ctx, 50, 100)
	}
}

// Disputer raises disputes on random submitted proofs and resolves or expires
// random raised ones.
func Disputer(ctx context.Context, d Deps, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		var applicationID string
		err := d.Pool.QueryRow(ctx, `
SELECT a.id FROM applications a
JOIN campaigns c ON c.id = a.campaign_id
WHERE a.proof_status = 'submitted' AND c.status NOT IN ('completed', 'expired', 'cancelled')
ORDER BY random() LIMIT 1
`).Scan(&applicationID)
		if err == nil {
			if _, err := d.Disputes.Raise(ctx, d.BusinessID, applicationID, "stress challenge"); err != nil && !expected(err) {
				return err
			}
		} else if !expected(err) {
			return err
		}

		var disputeID string
		err = d.Pool.QueryRow(ctx,
			`SELECT id FROM disputes WHERE status = 'raised' ORDER BY random() LIMIT 1`).Scan(&disputeID)
		if err == nil {
			if _, err := d.Disputes.Resolve(ctx, d.ResolverID, disputeID, rand.Intn(2) == 0); err != nil && !expected(err) {
				return err
			}
		} else if !expected(err) {
			return err
		}
		sleep(ctx, 100, 150)
	}
}

// Poller is the keeper process: it walks live campaigns firing the
// auto-approval and expiry triggers. Both are safe no-ops when not due, so
// hammering them concurrently must never corrupt state.
func Poller(ctx context.Context, d Deps, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		rows, err := d.Pool.Query(ctx,
			`SELECT id FROM campaigns WHERE status NOT IN ('completed', 'expired', 'cancelled') ORDER BY created_at DESC LIMIT 20`)
		if err != nil {
			if expected(err) {
				sleep(ctx, 100, 100)
				continue
			}
			return err
		}
		ids := make([]string, 0, 20)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err == nil {
				ids = append(ids, id)
			}
		}
		rows.Close()

		for _, id := range ids {
			if _, err := d.Proofs.TriggerAutoApproval(ctx, id); err != nil && !expected(err) {
				return err
			}
			if _, _, err := d.Campaigns.ExpireIfStale(ctx, id); err != nil && !expected(err) {
				return err
			}
		}
		sleep(ctx, 200, 200)
	}
}

// Claimer withdraws claimable balances for random influencers.
func Claimer(ctx context.Context, d Deps, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		influencerID := d.Influencers[rand.Intn(len(d.Influencers))]
		if _, err := d.Escrow.Claim(ctx, influencerID, d.Currency); err != nil && !expected(err) {
			return err
		}
		sleep(ctx, 80, 120)
	}
}

// OutboxWorker drains pending outbox messages with SKIP LOCKED and marks them
// processed, simulating occasional delivery failures.
func OutboxWorker(ctx context.Context, d Deps, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		tx, err := d.Pool.Begin(ctx)
		if err != nil {
			sleep(ctx, 50, 50)
			continue
		}
		rows, err := tx.Query(ctx,
			`SELECT id FROM outbox WHERE status = 'pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			sleep(ctx, 50, 50)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err == nil {
				ids = append(ids, id)
			}
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1, last_attempt = now() WHERE id = $1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status = 'processed', last_attempt = now() WHERE id = $1`, id)
		}
		_ = tx.Commit(ctx)
		sleep(ctx, 100, 100)
	}
}
