package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"campflow/escrow"
	"campflow/event"
)

var (
	// ErrCampaignNotFound is returned when no campaign row exists for the id.
	ErrCampaignNotFound = errors.New("campaign: not found")
	// ErrApplicationNotFound is returned when no application row exists.
	ErrApplicationNotFound = errors.New("campaign: application not found")
)

const campaignCols = `
id, business_id, currency, budget, max_slots, payout_per_slot, dust,
status::text, application_count, selected_count,
promotion_secs, proof_grace_secs, verification_secs,
apply_deadline, selection_deadline, assigned_at,
submission_deadline, verification_deadline, finalized_at,
created_at, updated_at`

const applicationCols = `
id, campaign_id, influencer_id, message, selected, claimed,
proof_link, proof_submitted_at, proof_status::text, created_at`

// Repository holds the tx-scoped campaign data access shared by the sibling
// packages (proof, dispute) that mutate campaigns inside their own
// transactions.
type Repository struct {
	ledger   *escrow.Ledger
	timeline *event.Timeline
	outbox   *event.Outbox
}

// NewRepository wires the campaign repository.
func NewRepository() *Repository {
	return &Repository{
		ledger:   escrow.NewLedger(),
		timeline: event.NewTimeline(),
		outbox:   event.NewOutbox(),
	}
}

// LockCampaign loads the campaign row under FOR UPDATE, serializing every
// mutating operation against it for the rest of the transaction.
func (r *Repository) LockCampaign(ctx context.Context, tx pgx.Tx, campaignID string) (Campaign, error) {
	query := `SELECT ` + campaignCols + ` FROM campaigns WHERE id = $1 FOR UPDATE`
	c, err := scanCampaign(tx.QueryRow(ctx, query, campaignID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrCampaignNotFound
		}
		return Campaign{}, fmt.Errorf("campaign: lock campaign: %w", err)
	}
	return c, nil
}

// GetApplicationForUpdate loads one application row under FOR UPDATE.
func (r *Repository) GetApplicationForUpdate(ctx context.Context, tx pgx.Tx, applicationID string) (Application, error) {
	query := `SELECT ` + applicationCols + ` FROM applications WHERE id = $1 FOR UPDATE`
	a, err := scanApplication(tx.QueryRow(ctx, query, applicationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrApplicationNotFound
		}
		return Application{}, fmt.Errorf("campaign: lock application: %w", err)
	}
	return a, nil
}

// SettleIfDecided finalizes the campaign when no selected application is still
// awaiting a decision and no dispute is pending: remaining committed funds
// (dust plus anything not yet re-homed) flow back to the business and the
// campaign transitions to Completed. Returns the refunded amount so the caller
// can issue the matching transfer-out; zero when the campaign stays open.
// Safe to call after every decision; it no-ops while anything is pending.
func (r *Repository) SettleIfDecided(ctx context.Context, tx pgx.Tx, c Campaign, actorID string) (int64, error) {
	if c.Status.Terminal() {
		return 0, nil
	}

	var pending int
	if err := tx.QueryRow(ctx, `
SELECT COUNT(*)
FROM applications a
WHERE a.campaign_id = $1
  AND a.selected
  AND (a.proof_status IN ('none', 'submitted')
       OR EXISTS (SELECT 1 FROM disputes d WHERE d.application_id = a.id AND d.status = 'raised'))
`, c.ID).Scan(&pending); err != nil {
		return 0, fmt.Errorf("campaign: count pending decisions: %w", err)
	}
	if pending > 0 {
		return 0, nil
	}

	remaining, err := r.ledger.CommittedBalance(ctx, tx, c.ID, c.Currency)
	if err != nil {
		return 0, err
	}
	if remaining > 0 {
		if err := r.ledger.RefundToBusiness(ctx, tx, c.ID, c.Currency, remaining); err != nil {
			return 0, err
		}
	}

	if err := transition(ctx, tx, c.ID, c.Status, StatusCompleted); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE campaigns SET finalized_at = get_tx_timestamp() WHERE id = $1`, c.ID); err != nil {
		return 0, fmt.Errorf("campaign: set finalized_at: %w", err)
	}

	if err := r.timeline.Append(ctx, tx, c.ID, event.TypeCampaignCompleted, actorID, map[string]any{
		"refunded_remainder": remaining,
		"currency":           c.Currency,
	}); err != nil {
		return 0, err
	}
	if err := r.outbox.Enqueue(ctx, tx, event.TopicCampaignCompleted, map[string]any{
		"campaign_id":        c.ID,
		"business_id":        c.BusinessID,
		"currency":           c.Currency,
		"refunded_remainder": remaining,
	}); err != nil {
		return 0, err
	}

	return remaining, nil
}

// MarkContentSubmission moves an assigned campaign into the content-submission
// phase when the first proof lands. No-op when already there.
func (r *Repository) MarkContentSubmission(ctx context.Context, tx pgx.Tx, c Campaign) error {
	if c.Status == StatusContentSubmission {
		return nil
	}
	return transition(ctx, tx, c.ID, c.Status, StatusContentSubmission)
}

// MarkVerification moves a campaign into the verification holding state while
// disputes are still pending. No-op when the campaign is already there.
func (r *Repository) MarkVerification(ctx context.Context, tx pgx.Tx, c Campaign) error {
	if c.Status == StatusVerification {
		return nil
	}
	return transition(ctx, tx, c.ID, c.Status, StatusVerification)
}

func scanCampaign(row pgx.Row) (Campaign, error) {
	var (
		c        Campaign
		status   string
		assigned *time.Time
		subDL    *time.Time
		verDL    *time.Time
		finAt    *time.Time
	)
	err := row.Scan(
		&c.ID, &c.BusinessID, &c.Currency, &c.Budget, &c.MaxSlots, &c.PayoutPerSlot, &c.Dust,
		&status, &c.ApplicationCount, &c.SelectedCount,
		&c.PromotionSecs, &c.ProofGraceSecs, &c.VerificationSecs,
		&c.ApplyDeadline, &c.SelectionDeadline, &assigned,
		&subDL, &verDL, &finAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Campaign{}, err
	}
	c.Status = Status(status)
	c.AssignedAt = assigned
	c.SubmissionDeadline = subDL
	c.VerificationDeadline = verDL
	c.FinalizedAt = finAt
	return c, nil
}

func scanApplication(row pgx.Row) (Application, error) {
	var (
		a      Application
		status string
	)
	err := row.Scan(
		&a.ID, &a.CampaignID, &a.InfluencerID, &a.Message, &a.Selected, &a.Claimed,
		&a.ProofLink, &a.ProofSubmittedAt, &status, &a.CreatedAt,
	)
	if err != nil {
		return Application{}, err
	}
	a.ProofStatus = ProofStatus(status)
	return a, nil
}
