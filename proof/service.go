// Package proof manages submitted proof-of-work links and the deadline-driven
// auto-approval that settles a campaign when the business goes quiet.
package proof

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campflow/campaign"
	"campflow/escrow"
	"campflow/event"
)

var (
	// ErrNotSelected signals a proof submission by a non-selected applicant.
	ErrNotSelected = errors.New("proof: application not selected")
	// ErrSubmissionWindowClosed signals a submission past the deadline.
	ErrSubmissionWindowClosed = errors.New("proof: submission window closed")
	// ErrProofNotSubmitted signals approval of an application without a proof.
	ErrProofNotSubmitted = errors.New("proof: no proof submitted")
	// ErrProofAlreadyDecided signals re-deciding an approved or rejected proof.
	ErrProofAlreadyDecided = errors.New("proof: proof already decided")
	// ErrDisputePending signals approval of an application under a raised
	// dispute.
	ErrDisputePending = errors.New("proof: dispute pending")
)

// Service owns proof submission and approval. Like the rest of the engine it
// serializes per campaign through the row lock taken at the top of every
// mutation.
type Service struct {
	pool     *pgxpool.Pool
	repo     *campaign.Repository
	ledger   *escrow.Ledger
	transfer escrow.Transfer
	timeline *event.Timeline
	outbox   *event.Outbox
	now      func() time.Time
}

// NewService builds the proof service.
func NewService(pool *pgxpool.Pool, transfer escrow.Transfer) *Service {
	if transfer == nil {
		transfer = escrow.NoopTransfer{}
	}
	return &Service{
		pool:     pool,
		repo:     campaign.NewRepository(),
		ledger:   escrow.NewLedger(),
		transfer: transfer,
		timeline: event.NewTimeline(),
		outbox:   event.NewOutbox(),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Primarily for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit records the proof link for a selected application. Resubmitting while
// still undecided overwrites the link; decided proofs are immutable.
func (s *Service) Submit(ctx context.Context, influencerID, campaignID, applicationID, link string) (campaign.Application, error) {
	if link == "" {
		return campaign.Application{}, fmt.Errorf("proof: missing proof link")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return campaign.Application{}, fmt.Errorf("proof: begin submit: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.LockCampaign(ctx, tx, campaignID)
	if err != nil {
		return campaign.Application{}, err
	}
	if c.Status.Terminal() {
		return campaign.Application{}, campaign.ErrCampaignFinalized
	}
	if c.Status != campaign.StatusAssigned && c.Status != campaign.StatusContentSubmission {
		return campaign.Application{}, ErrNotSelected
	}

	a, err := s.repo.GetApplicationForUpdate(ctx, tx, applicationID)
	if err != nil {
		return campaign.Application{}, err
	}
	if a.CampaignID != campaignID || a.InfluencerID != influencerID {
		return campaign.Application{}, campaign.ErrApplicationNotFound
	}
	if !a.Selected {
		return campaign.Application{}, ErrNotSelected
	}
	if a.ProofStatus == campaign.ProofApproved || a.ProofStatus == campaign.ProofRejected {
		return campaign.Application{}, ErrProofAlreadyDecided
	}
	if c.SubmissionDeadline == nil || s.now().After(*c.SubmissionDeadline) {
		return campaign.Application{}, ErrSubmissionWindowClosed
	}

	if _, err := tx.Exec(ctx, `
UPDATE applications
SET proof_link = $2, proof_submitted_at = get_tx_timestamp(), proof_status = 'submitted'
WHERE id = $1
`, applicationID, link); err != nil {
		return campaign.Application{}, fmt.Errorf("proof: record submission: %w", err)
	}

	// First proof moves the campaign into the content-submission phase.
	if c.Status == campaign.StatusAssigned {
		if err := s.repo.MarkContentSubmission(ctx, tx, c); err != nil {
			return campaign.Application{}, err
		}
	}

	if err := s.timeline.Append(ctx, tx, campaignID, event.TypeProofSubmitted, influencerID, map[string]any{
		"application_id": applicationID,
		"proof_link":     link,
	}); err != nil {
		return campaign.Application{}, err
	}

	updated, err := s.repo.GetApplicationForUpdate(ctx, tx, applicationID)
	if err != nil {
		return campaign.Application{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return campaign.Application{}, fmt.Errorf("proof: commit submit: %w", err)
	}
	return updated, nil
}

// Approve is the business's manual approval: the influencer's share moves from
// campaign-committed into their claimable balance. Blocked while a dispute is
// raised. Settles the campaign when this was the last pending decision.
func (s *Service) Approve(ctx context.Context, actorID, campaignID, applicationID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("proof: begin approve: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.LockCampaign(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	if c.Status.Terminal() {
		return campaign.ErrCampaignFinalized
	}
	if c.BusinessID != actorID {
		return campaign.ErrNotCampaignOwner
	}

	a, err := s.repo.GetApplicationForUpdate(ctx, tx, applicationID)
	if err != nil {
		return err
	}
	if a.CampaignID != campaignID {
		return campaign.ErrApplicationNotFound
	}

	if err := s.approveInTx(ctx, tx, c, a, actorID); err != nil {
		return err
	}

	refund, err := s.repo.SettleIfDecided(ctx, tx, c, actorID)
	if err != nil {
		return err
	}
	if refund > 0 {
		if err := s.transfer.TransferOut(ctx, c.BusinessID, c.Currency, refund); err != nil {
			return fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("proof: commit approve: %w", err)
	}
	return nil
}

// TriggerResult reports what one auto-approval invocation did.
type TriggerResult struct {
	Due       bool
	Approved  int
	Forfeited int
	Skipped   int
}

// TriggerAutoApproval is the externally polled deadline trigger. Once the
// verification deadline has passed it approves every undisputed submitted
// proof, returns the shares of never-submitted slots to the business, and
// skips disputed applications, which stay pending for the resolver. Calling
// it again after everything is resolved is a safe no-op.
func (s *Service) TriggerAutoApproval(ctx context.Context, campaignID string) (TriggerResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return TriggerResult{}, fmt.Errorf("proof: begin trigger: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.LockCampaign(ctx, tx, campaignID)
	if err != nil {
		return TriggerResult{}, err
	}
	if c.Status.Terminal() {
		return TriggerResult{}, nil
	}
	if c.VerificationDeadline == nil || s.now().Before(*c.VerificationDeadline) {
		return TriggerResult{}, nil
	}

	rows, err := tx.Query(ctx, `
SELECT a.id, a.influencer_id, a.proof_status::text,
       EXISTS (SELECT 1 FROM disputes d WHERE d.application_id = a.id AND d.status = 'raised') AS disputed
FROM applications a
WHERE a.campaign_id = $1 AND a.selected
ORDER BY a.created_at
FOR UPDATE OF a
`, campaignID)
	if err != nil {
		return TriggerResult{}, fmt.Errorf("proof: list selected: %w", err)
	}

	type pendingApp struct {
		id           string
		influencerID string
		proofStatus  campaign.ProofStatus
		disputed     bool
	}
	apps := make([]pendingApp, 0, c.SelectedCount)
	for rows.Next() {
		var (
			p      pendingApp
			status string
		)
		if err := rows.Scan(&p.id, &p.influencerID, &status, &p.disputed); err != nil {
			rows.Close()
			return TriggerResult{}, fmt.Errorf("proof: scan selected: %w", err)
		}
		p.proofStatus = campaign.ProofStatus(status)
		apps = append(apps, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return TriggerResult{}, fmt.Errorf("proof: iterate selected: %w", err)
	}

	result := TriggerResult{Due: true}
	var forfeitedRefund int64
	for _, p := range apps {
		switch {
		case p.proofStatus == campaign.ProofApproved || p.proofStatus == campaign.ProofRejected:
			// Already decided on an earlier invocation.
		case p.disputed:
			result.Skipped++
		case p.proofStatus == campaign.ProofSubmitted:
			a := campaign.Application{ID: p.id, CampaignID: campaignID, InfluencerID: p.influencerID, Selected: true, ProofStatus: p.proofStatus}
			if err := s.approveInTx(ctx, tx, c, a, ""); err != nil {
				return TriggerResult{}, err
			}
			result.Approved++
		default:
			// Never submitted: the slot's share is forfeited back to the
			// business.
			if err := s.ledger.RefundToBusiness(ctx, tx, c.ID, c.Currency, c.PayoutPerSlot); err != nil {
				return TriggerResult{}, err
			}
			if _, err := tx.Exec(ctx,
				`UPDATE applications SET proof_status = 'rejected' WHERE id = $1`, p.id); err != nil {
				return TriggerResult{}, fmt.Errorf("proof: mark forfeited: %w", err)
			}
			if err := s.timeline.Append(ctx, tx, c.ID, event.TypeProofForfeited, "", map[string]any{
				"application_id": p.id,
				"influencer_id":  p.influencerID,
				"refunded":       c.PayoutPerSlot,
			}); err != nil {
				return TriggerResult{}, err
			}
			forfeitedRefund += c.PayoutPerSlot
			result.Forfeited++
		}
	}

	if result.Skipped > 0 {
		// Disputed applications stay pending; park the campaign in
		// verification until the resolver acts or the dispute expires.
		if c.Status == campaign.StatusContentSubmission {
			if err := s.repo.MarkVerification(ctx, tx, c); err != nil {
				return TriggerResult{}, err
			}
		}
	} else {
		refund, err := s.repo.SettleIfDecided(ctx, tx, c, "")
		if err != nil {
			return TriggerResult{}, err
		}
		forfeitedRefund += refund
	}

	if forfeitedRefund > 0 {
		if err := s.transfer.TransferOut(ctx, c.BusinessID, c.Currency, forfeitedRefund); err != nil {
			return TriggerResult{}, fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return TriggerResult{}, fmt.Errorf("proof: commit trigger: %w", err)
	}
	return result, nil
}

// approveInTx moves one application's share to the influencer and flags the
// proof approved. Caller holds the campaign lock.
func (s *Service) approveInTx(ctx context.Context, tx pgx.Tx, c campaign.Campaign, a campaign.Application, actorID string) error {
	switch a.ProofStatus {
	case campaign.ProofSubmitted:
	case campaign.ProofApproved, campaign.ProofRejected:
		return ErrProofAlreadyDecided
	default:
		return ErrProofNotSubmitted
	}

	var disputed bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM disputes WHERE application_id = $1 AND status = 'raised')`,
		a.ID).Scan(&disputed); err != nil {
		return fmt.Errorf("proof: check dispute: %w", err)
	}
	if disputed {
		return ErrDisputePending
	}

	if err := s.ledger.CommitToInfluencer(ctx, tx, c.ID, a.InfluencerID, c.Currency, c.PayoutPerSlot); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE applications SET proof_status = 'approved' WHERE id = $1`, a.ID); err != nil {
		return fmt.Errorf("proof: mark approved: %w", err)
	}

	if err := s.timeline.Append(ctx, tx, c.ID, event.TypeProofApproved, actorID, map[string]any{
		"application_id": a.ID,
		"influencer_id":  a.InfluencerID,
		"amount":         c.PayoutPerSlot,
	}); err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, tx, event.TopicProofApproved, map[string]any{
		"campaign_id":   c.ID,
		"influencer_id": a.InfluencerID,
		"currency":      c.Currency,
		"amount":        c.PayoutPerSlot,
	})
}
