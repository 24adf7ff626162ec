package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campflow/campaign"
	"campflow/escrow"
	"campflow/event"
)

var (
	// ErrAlreadyDisputed signals a second live dispute on one application.
	ErrAlreadyDisputed = errors.New("dispute: already disputed")
	// ErrApplicationNotSubmitted signals disputing an application without a
	// submitted proof.
	ErrApplicationNotSubmitted = errors.New("dispute: application has no submitted proof")
	// ErrSubmissionAlreadyApproved signals disputing a decided proof.
	ErrSubmissionAlreadyApproved = errors.New("dispute: submission already approved")
	// ErrNotAuthorizedResolver signals a resolve call from outside the
	// resolver set.
	ErrNotAuthorizedResolver = errors.New("dispute: caller is not an authorized resolver")
	// ErrNoPendingDispute signals resolving a dispute that is not raised.
	ErrNoPendingDispute = errors.New("dispute: no pending dispute")
	// ErrNotAdmin signals resolver-set mutation by a non-admin.
	ErrNotAdmin = errors.New("dispute: caller is not an admin")
)

// DefaultResolutionWindow is how long a raised dispute waits for a resolver
// before anyone may expire it.
const DefaultResolutionWindow = 7 * 24 * time.Hour

// Service overlays flag/resolve/expire semantics on proof submissions and
// manages the authorized resolver set.
type Service struct {
	pool             *pgxpool.Pool
	repo             *Repository
	campaigns        *campaign.Repository
	ledger           *escrow.Ledger
	transfer         escrow.Transfer
	timeline         *event.Timeline
	outbox           *event.Outbox
	resolutionWindow time.Duration
	now              func() time.Time
}

// NewService builds the dispute service.
func NewService(pool *pgxpool.Pool, transfer escrow.Transfer) *Service {
	if transfer == nil {
		transfer = escrow.NoopTransfer{}
	}
	return &Service{
		pool:             pool,
		repo:             NewRepository(pool),
		campaigns:        campaign.NewRepository(),
		ledger:           escrow.NewLedger(),
		transfer:         transfer,
		timeline:         event.NewTimeline(),
		outbox:           event.NewOutbox(),
		resolutionWindow: DefaultResolutionWindow,
		now:              time.Now,
	}
}

// WithClock overrides the time source. Primarily for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithResolutionWindow overrides the dispute deadline window.
func (s *Service) WithResolutionWindow(d time.Duration) *Service {
	if d > 0 {
		s.resolutionWindow = d
	}
	return s
}

// Raise flags a submitted proof. Only the campaign owner may challenge, and
// only while the proof is still undecided. The raised dispute blocks both
// manual approval and the auto-approval trigger.
func (s *Service) Raise(ctx context.Context, raiserID, applicationID, reason string) (Record, error) {
	if reason == "" {
		return Record{}, fmt.Errorf("dispute: missing reason")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin raise: %w", err)
	}
	defer tx.Rollback(ctx)

	c, a, err := s.lockCampaignByApplication(ctx, tx, applicationID)
	if err != nil {
		return Record{}, err
	}
	if c.Status.Terminal() {
		return Record{}, campaign.ErrCampaignFinalized
	}
	if c.BusinessID != raiserID {
		return Record{}, campaign.ErrNotCampaignOwner
	}
	switch a.ProofStatus {
	case campaign.ProofSubmitted:
	case campaign.ProofApproved:
		return Record{}, ErrSubmissionAlreadyApproved
	default:
		return Record{}, ErrApplicationNotSubmitted
	}

	insertSQL := `
INSERT INTO disputes (application_id, raised_by, reason, deadline)
VALUES ($1, $2, $3, $4)
RETURNING ` + disputeCols

	rec, err := scanDispute(tx.QueryRow(ctx, insertSQL,
		applicationID, raiserID, reason, s.now().Add(s.resolutionWindow)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrAlreadyDisputed
		}
		return Record{}, fmt.Errorf("dispute: insert: %w", err)
	}

	if err := s.timeline.Append(ctx, tx, c.ID, event.TypeDisputeRaised, raiserID, map[string]any{
		"dispute_id":     rec.ID,
		"application_id": applicationID,
		"reason":         reason,
		"deadline":       rec.Deadline.UTC(),
	}); err != nil {
		return Record{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, event.TopicDisputeRaised, map[string]any{
		"dispute_id":    rec.ID,
		"campaign_id":   c.ID,
		"influencer_id": a.InfluencerID,
	}); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit raise: %w", err)
	}
	return rec, nil
}

// Resolve settles a raised dispute. Upholding the proof proceeds as an
// approval; rejecting it returns the influencer's share to the business and
// marks the application permanently rejected. Either way the campaign settles
// when this was the last pending decision.
func (s *Service) Resolve(ctx context.Context, resolverID, disputeID string, upholdOriginal bool) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin resolve: %w", err)
	}
	defer tx.Rollback(ctx)

	var authorized bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM resolvers WHERE user_id = $1)`, resolverID).Scan(&authorized); err != nil {
		return Record{}, fmt.Errorf("dispute: check resolver: %w", err)
	}
	if !authorized {
		return Record{}, ErrNotAuthorizedResolver
	}

	rec, err := s.lockDispute(ctx, tx, disputeID)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusRaised {
		return Record{}, ErrNoPendingDispute
	}

	c, a, err := s.lockCampaignByApplication(ctx, tx, rec.ApplicationID)
	if err != nil {
		return Record{}, err
	}

	next := StatusResolvedInvalid
	if upholdOriginal {
		next = StatusResolvedValid
	}
	rec, err = s.closeDispute(ctx, tx, rec.ID, next, resolverID)
	if err != nil {
		return Record{}, err
	}

	refund, err := s.settleApplication(ctx, tx, c, a, upholdOriginal, resolverID, event.TypeDisputeResolved)
	if err != nil {
		return Record{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, event.TopicDisputeResolved, map[string]any{
		"dispute_id":    rec.ID,
		"campaign_id":   c.ID,
		"influencer_id": a.InfluencerID,
		"upheld":        upholdOriginal,
	}); err != nil {
		return Record{}, err
	}

	if refund > 0 {
		if err := s.transfer.TransferOut(ctx, c.BusinessID, c.Currency, refund); err != nil {
			return Record{}, fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit resolve: %w", err)
	}
	return rec, nil
}

// Expire closes a raised dispute whose resolution deadline passed without
// resolver action. Anyone may call it. Policy: the timeout goes against the
// influencer, so the share returns to the business. Safe no-op when the
// dispute is not yet due or already closed.
func (s *Service) Expire(ctx context.Context, disputeID string) (Record, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, false, fmt.Errorf("dispute: begin expire: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.lockDispute(ctx, tx, disputeID)
	if err != nil {
		return Record{}, false, err
	}
	if rec.Status != StatusRaised {
		return rec, false, nil
	}
	if s.now().Before(rec.Deadline) {
		return rec, false, nil
	}

	c, a, err := s.lockCampaignByApplication(ctx, tx, rec.ApplicationID)
	if err != nil {
		return Record{}, false, err
	}

	rec, err = s.closeDispute(ctx, tx, rec.ID, StatusExpired, "")
	if err != nil {
		return Record{}, false, err
	}

	refund, err := s.settleApplication(ctx, tx, c, a, false, "", event.TypeDisputeExpired)
	if err != nil {
		return Record{}, false, err
	}

	if refund > 0 {
		if err := s.transfer.TransferOut(ctx, c.BusinessID, c.Currency, refund); err != nil {
			return Record{}, false, fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, false, fmt.Errorf("dispute: commit expire: %w", err)
	}
	return rec, true, nil
}

// AddResolver adds an identity to the authorized resolver set. Admin only.
func (s *Service) AddResolver(ctx context.Context, actorID, userID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO resolvers (user_id, added_by) VALUES ($1, $2)
ON CONFLICT (user_id) DO NOTHING
`, userID, actorID); err != nil {
		return fmt.Errorf("dispute: add resolver: %w", err)
	}
	return nil
}

// RemoveResolver removes an identity from the resolver set. Admin only.
func (s *Service) RemoveResolver(ctx context.Context, actorID, userID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM resolvers WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("dispute: remove resolver: %w", err)
	}
	return nil
}

// ListByCampaign returns all disputes touching a campaign.
func (s *Service) ListByCampaign(ctx context.Context, campaignID string) ([]Record, error) {
	return s.repo.ListByCampaign(ctx, campaignID)
}

// settleApplication applies the dispute outcome to the application and the
// ledger, then settles the campaign when nothing else is pending. Returns the
// total amount owed back to the business for the caller's transfer-out.
func (s *Service) settleApplication(ctx context.Context, tx pgx.Tx, c campaign.Campaign, a campaign.Application, upheld bool, actorID, eventType string) (int64, error) {
	var refund int64
	if upheld {
		if err := s.ledger.CommitToInfluencer(ctx, tx, c.ID, a.InfluencerID, c.Currency, c.PayoutPerSlot); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE applications SET proof_status = 'approved' WHERE id = $1`, a.ID); err != nil {
			return 0, fmt.Errorf("dispute: mark approved: %w", err)
		}
	} else {
		if err := s.ledger.RefundToBusiness(ctx, tx, c.ID, c.Currency, c.PayoutPerSlot); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE applications SET proof_status = 'rejected' WHERE id = $1`, a.ID); err != nil {
			return 0, fmt.Errorf("dispute: mark rejected: %w", err)
		}
		refund = c.PayoutPerSlot
	}

	if err := s.timeline.Append(ctx, tx, c.ID, eventType, actorID, map[string]any{
		"application_id": a.ID,
		"influencer_id":  a.InfluencerID,
		"upheld":         upheld,
		"amount":         c.PayoutPerSlot,
	}); err != nil {
		return 0, err
	}

	settleRefund, err := s.campaigns.SettleIfDecided(ctx, tx, c, actorID)
	if err != nil {
		return 0, err
	}
	return refund + settleRefund, nil
}

func (s *Service) lockDispute(ctx context.Context, tx pgx.Tx, disputeID string) (Record, error) {
	query := `SELECT ` + disputeCols + ` FROM disputes WHERE id = $1 FOR UPDATE`
	rec, err := scanDispute(tx.QueryRow(ctx, query, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: lock: %w", err)
	}
	return rec, nil
}

func (s *Service) closeDispute(ctx context.Context, tx pgx.Tx, disputeID string, next Status, resolverID string) (Record, error) {
	var resolver any
	if resolverID != "" {
		resolver = resolverID
	}
	query := `
UPDATE disputes
SET status = $2::dispute_status, resolver_id = $3::uuid, resolved_at = get_tx_timestamp()
WHERE id = $1
RETURNING ` + disputeCols

	rec, err := scanDispute(tx.QueryRow(ctx, query, disputeID, string(next), resolver))
	if err != nil {
		return Record{}, fmt.Errorf("dispute: close: %w", err)
	}
	return rec, nil
}

// lockCampaignByApplication locks the campaign owning the application, then
// the application row, in that fixed order to avoid deadlocks with the other
// services.
func (s *Service) lockCampaignByApplication(ctx context.Context, tx pgx.Tx, applicationID string) (campaign.Campaign, campaign.Application, error) {
	var campaignID string
	if err := tx.QueryRow(ctx,
		`SELECT campaign_id FROM applications WHERE id = $1`, applicationID).Scan(&campaignID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return campaign.Campaign{}, campaign.Application{}, campaign.ErrApplicationNotFound
		}
		return campaign.Campaign{}, campaign.Application{}, fmt.Errorf("dispute: find campaign: %w", err)
	}

	c, err := s.campaigns.LockCampaign(ctx, tx, campaignID)
	if err != nil {
		return campaign.Campaign{}, campaign.Application{}, err
	}
	a, err := s.campaigns.GetApplicationForUpdate(ctx, tx, applicationID)
	if err != nil {
		return campaign.Campaign{}, campaign.Application{}, err
	}
	return c, a, nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID string) error {
	var isAdmin bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = 'admin')`, actorID).Scan(&isAdmin); err != nil {
		return fmt.Errorf("dispute: check admin: %w", err)
	}
	if !isAdmin {
		return ErrNotAdmin
	}
	return nil
}
