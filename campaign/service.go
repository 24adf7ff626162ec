package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campflow/escrow"
	"campflow/event"
)

var (
	// ErrCampaignNotOpen signals an apply/select against a campaign past the
	// Open phase.
	ErrCampaignNotOpen = errors.New("campaign: not open")
	// ErrCampaignFinalized signals any mutation against a terminal campaign.
	ErrCampaignFinalized = errors.New("campaign: finalized")
	// ErrAlreadyApplied signals a second application by the same influencer.
	ErrAlreadyApplied = errors.New("campaign: already applied")
	// ErrApplicationDeadlinePassed signals an application after the deadline.
	ErrApplicationDeadlinePassed = errors.New("campaign: application deadline passed")
	// ErrAlreadySelected signals selecting an application twice.
	ErrAlreadySelected = errors.New("campaign: application already selected")
	// ErrSelectionCapReached signals selecting past max slots.
	ErrSelectionCapReached = errors.New("campaign: selection cap reached")
	// ErrNotCampaignOwner signals a business-only call by someone else.
	ErrNotCampaignOwner = errors.New("campaign: caller is not the campaign owner")
	// ErrNothingSelected signals closing selection with zero selections.
	ErrNothingSelected = errors.New("campaign: no influencer selected")
	// ErrProofAlreadySubmitted signals cancelling after work was submitted.
	ErrProofAlreadySubmitted = errors.New("campaign: proof already submitted")
	// ErrCompensationTooLarge signals compensation exceeding committed budget.
	ErrCompensationTooLarge = errors.New("campaign: compensation exceeds committed budget")
	// ErrDuplicateOpenRequest signals a replayed idempotency key on Open.
	ErrDuplicateOpenRequest = errors.New("campaign: duplicate open request")
)

// Service owns the campaign lifecycle: open-with-deposit, applications,
// selection, cancellation and expiry. Every mutation runs in one transaction
// holding the campaign row lock, restoring the serialized-mutation semantics
// of a ledger substrate.
type Service struct {
	pool     *pgxpool.Pool
	repo     *Repository
	ledger   *escrow.Ledger
	transfer escrow.Transfer
	timeline *event.Timeline
	outbox   *event.Outbox
	idGen    func() string
	now      func() time.Time
}

// NewService builds the campaign service.
func NewService(pool *pgxpool.Pool, transfer escrow.Transfer) *Service {
	if transfer == nil {
		transfer = escrow.NoopTransfer{}
	}
	return &Service{
		pool:     pool,
		repo:     NewRepository(),
		ledger:   escrow.NewLedger(),
		transfer: transfer,
		timeline: event.NewTimeline(),
		outbox:   event.NewOutbox(),
		idGen:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// WithClock overrides the time source. Primarily for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithIDGenerator overrides the id source. Primarily for tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// Repo exposes the tx-scoped repository for the sibling packages.
func (s *Service) Repo() *Repository {
	return s.repo
}

// Open deposits the budget and creates the campaign in one transaction. The
// token transfer-in happens after the ledger rows are written and aborts the
// whole operation when it fails. An optional idempotency key guards against
// replayed deposits.
func (s *Service) Open(ctx context.Context, params OpenParams) (Campaign, error) {
	if params.BusinessID == "" {
		return Campaign{}, fmt.Errorf("campaign: missing business id")
	}
	if params.Budget <= 0 {
		return Campaign{}, fmt.Errorf("campaign: budget must be positive")
	}
	if params.MaxSlots <= 0 {
		return Campaign{}, fmt.Errorf("campaign: max slots must be positive")
	}
	if params.ApplicationPeriod <= 0 || params.PromotionDuration <= 0 || params.VerificationPeriod <= 0 {
		return Campaign{}, fmt.Errorf("campaign: invalid period configuration")
	}
	if params.SelectionGrace < 0 || params.ProofGrace < 0 {
		return Campaign{}, fmt.Errorf("campaign: invalid grace configuration")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: begin open: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IdempotencyKey != "" {
		if _, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, params.IdempotencyKey); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return Campaign{}, ErrDuplicateOpenRequest
			}
			return Campaign{}, fmt.Errorf("campaign: reserve idempotency key: %w", err)
		}
	}

	now := s.now()
	perSlot, dust := SplitBudget(params.Budget, params.MaxSlots)
	applyDeadline := now.Add(params.ApplicationPeriod)
	selectionDeadline := applyDeadline.Add(params.SelectionGrace)

	insertSQL := `
INSERT INTO campaigns (
    id, business_id, currency, budget, max_slots, payout_per_slot, dust,
    promotion_secs, proof_grace_secs, verification_secs,
    apply_deadline, selection_deadline
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + campaignCols

	c, err := scanCampaign(tx.QueryRow(ctx, insertSQL,
		s.idGen(),
		params.BusinessID,
		params.Currency,
		params.Budget,
		params.MaxSlots,
		perSlot,
		dust,
		int64(params.PromotionDuration/time.Second),
		int64(params.ProofGrace/time.Second),
		int64(params.VerificationPeriod/time.Second),
		applyDeadline,
		selectionDeadline,
	))
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: insert: %w", err)
	}

	if err := s.ledger.Deposit(ctx, tx, c.ID, c.Currency, c.Budget); err != nil {
		return Campaign{}, err
	}

	if err := s.timeline.Append(ctx, tx, c.ID, event.TypeCampaignOpened, params.BusinessID, map[string]any{
		"currency":        c.Currency,
		"budget":          c.Budget,
		"max_slots":       c.MaxSlots,
		"payout_per_slot": c.PayoutPerSlot,
		"apply_deadline":  c.ApplyDeadline.UTC(),
	}); err != nil {
		return Campaign{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, event.TopicCampaignOpened, map[string]any{
		"campaign_id": c.ID,
		"business_id": c.BusinessID,
		"currency":    c.Currency,
		"budget":      c.Budget,
	}); err != nil {
		return Campaign{}, err
	}

	// Deposit only counts once the tokens actually land.
	if err := s.transfer.TransferIn(ctx, c.BusinessID, c.Currency, c.Budget); err != nil {
		return Campaign{}, fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Campaign{}, fmt.Errorf("campaign: commit open: %w", err)
	}
	return c, nil
}

// Apply records one influencer's bid while the campaign is open and the
// application window has not elapsed.
func (s *Service) Apply(ctx context.Context, campaignID, influencerID, message string) (Application, error) {
	if influencerID == "" {
		return Application{}, fmt.Errorf("campaign: missing influencer id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("campaign: begin apply: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.LockCampaign(ctx, tx, campaignID)
	if err != nil {
		return Application{}, err
	}
	if c.Status.Terminal() {
		return Application{}, ErrCampaignFinalized
	}
	if c.Status != StatusOpen {
		return Application{}, ErrCampaignNotOpen
	}
	if s.now().After(c.ApplyDeadline) {
		return Application{}, ErrApplicationDeadlinePassed
	}

	insertSQL := `
INSERT INTO applications (id, campaign_id, influencer_id, message)
VALUES ($1, $2, $3, $4)
RETURNING ` + applicationCols

	a, err := scanApplication(tx.QueryRow(ctx, insertSQL, s.idGen(), campaignID, influencerID, message))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Application{}, ErrAlreadyApplied
		}
		return Application{}, fmt.Errorf("campaign: insert application: %w", err)
	}

	if _, err := tx.Exec(ctx, `
UPDATE campaigns SET application_count = application_count + 1, updated_at = get_tx_timestamp()
WHERE id = $1
`, campaignID); err != nil {
		return Application{}, fmt.Errorf("campaign: bump application count: %w", err)
	}

	if err := s.timeline.Append(ctx, tx, campaignID, event.TypeApplicationSubmitted, influencerID, map[string]any{
		"application_id": a.ID,
	}); err != nil {
		return Application{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Application{}, fmt.Errorf("campaign: commit apply: %w", err)
	}
	return a, nil
}

// Select flips one application's selected flag. When the final slot fills the
// campaign assigns automatically and the unfilled-slot budget stays untouched
// because there is none.
func (s *Service) Select(ctx context.Context, actorID, campaignID, applicationID string) (Campaign, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: begin select: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.LockCampaign(ctx, tx, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	if c.Status.Terminal() {
		return Campaign{}, ErrCampaignFinalized
	}
	if c.BusinessID != actorID {
		return Campaign{}, ErrNotCampaignOwner
	}
	if c.Status != StatusOpen {
		return Campaign{}, ErrCampaignNotOpen
	}
	if c.SelectedCount >= c.MaxSlots {
		return Campaign{}, ErrSelectionCapReached
	}

	a, err := s.repo.GetApplicationForUpdate(ctx, tx, applicationID)
	if err != nil {
		return Campaign{}, err
	}
	if a.CampaignID != campaignID {
		return Campaign{}, ErrApplicationNotFound
	}
	if a.Selected {
		return Campaign{}, ErrAlreadySelected
	}

	if _, err := tx.Exec(ctx, `UPDATE applications SET selected = true WHERE id = $1`, applicationID); err != nil {
		return Campaign{}, fmt.Errorf("campaign: mark selected: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE campaigns SET selected_count = selected_count + 1, updated_at = get_tx_timestamp()
WHERE id = $1
`, campaignID); err != nil {
		return Campaign{}, fmt.Errorf("campaign: bump selected count: %w", err)
	}
	c.SelectedCount++

	if err := s.timeline.Append(ctx, tx, campaignID, event.TypeApplicationSelected, actorID, map[string]any{
		"application_id": applicationID,
		"influencer_id":  a.InfluencerID,
		"selected_count": c.SelectedCount,
	}); err != nil {
		return Campaign{}, err
	}

	if c.SelectedCount == c.MaxSlots {
		if c, err = s.assign(ctx, tx, c, actorID); err != nil {
			return Campaign{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Campaign{}, fmt.Errorf("campaign: commit select: %w", err)
	}
	return c, nil
}

// CloseSelection assigns the campaign with fewer than max selections. The
// budget shares of unfilled slots flow straight back to the business.
func (s *Service) CloseSelection(ctx context.Context, actorID, campaignID string) (Campaign, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: begin close selection: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.LockCampaign(ctx, tx, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	if c.Status.Terminal() {
		return Campaign{}, ErrCampaignFinalized
	}
	if c.BusinessID != actorID {
		return Campaign{}, ErrNotCampaignOwner
	}
	if c.Status != StatusOpen {
		return Campaign{}, ErrCampaignNotOpen
	}
	if c.SelectedCount == 0 {
		return Campaign{}, ErrNothingSelected
	}

	if c, err = s.assign(ctx, tx, c, actorID); err != nil {
		return Campaign{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Campaign{}, fmt.Errorf("campaign: commit close selection: %w", err)
	}
	return c, nil
}

// assign moves an open campaign to the assigned phase: anchors the submission
// and verification deadlines on the assignment time and returns unfilled-slot
// budget to the business. Caller holds the campaign lock.
func (s *Service) assign(ctx context.Context, tx pgx.Tx, c Campaign, actorID string) (Campaign, error) {
	now := s.now()
	submissionDeadline := now.
		Add(time.Duration(c.PromotionSecs) * time.Second).
		Add(time.Duration(c.ProofGraceSecs) * time.Second)
	verificationDeadline := submissionDeadline.Add(time.Duration(c.VerificationSecs) * time.Second)

	if err := transition(ctx, tx, c.ID, c.Status, StatusAssigned); err != nil {
		return Campaign{}, err
	}
	if _, err := tx.Exec(ctx, `
UPDATE campaigns
SET assigned_at = $2, submission_deadline = $3, verification_deadline = $4,
    updated_at = get_tx_timestamp()
WHERE id = $1
`, c.ID, now, submissionDeadline, verificationDeadline); err != nil {
		return Campaign{}, fmt.Errorf("campaign: anchor deadlines: %w", err)
	}

	c.Status = StatusAssigned
	c.AssignedAt = &now
	c.SubmissionDeadline = &submissionDeadline
	c.VerificationDeadline = &verificationDeadline

	var unfilledRefund int64
	if c.SelectedCount < c.MaxSlots {
		unfilledRefund = c.PayoutPerSlot * int64(c.MaxSlots-c.SelectedCount)
	}
	if unfilledRefund > 0 {
		if err := s.ledger.RefundToBusiness(ctx, tx, c.ID, c.Currency, unfilledRefund); err != nil {
			return Campaign{}, err
		}
	}

	if err := s.timeline.Append(ctx, tx, c.ID, event.TypeCampaignAssigned, actorID, map[string]any{
		"selected_count":        c.SelectedCount,
		"unfilled_refund":       unfilledRefund,
		"submission_deadline":   submissionDeadline.UTC(),
		"verification_deadline": verificationDeadline.UTC(),
	}); err != nil {
		return Campaign{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, event.TopicCampaignAssigned, map[string]any{
		"campaign_id":    c.ID,
		"business_id":    c.BusinessID,
		"selected_count": c.SelectedCount,
	}); err != nil {
		return Campaign{}, err
	}

	if unfilledRefund > 0 {
		if err := s.transfer.TransferOut(ctx, c.BusinessID, c.Currency, unfilledRefund); err != nil {
			return Campaign{}, fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
		}
	}

	return c, nil
}

// Cancel terminates an open or assigned campaign before any proof was
// submitted, returning the full remaining committed budget to the business.
func (s *Service) Cancel(ctx context.Context, actorID, campaignID string) (Campaign, error) {
	return s.cancel(ctx, actorID, campaignID, 0)
}

// CancelWithCompensation terminates the campaign and pays each selected
// influencer a fixed compensation for work already started before refunding
// the remainder. Total compensation may never exceed the committed budget.
func (s *Service) CancelWithCompensation(ctx context.Context, actorID, campaignID string, compensationPerInfluencer int64) (Campaign, error) {
	if compensationPerInfluencer <= 0 {
		return Campaign{}, fmt.Errorf("campaign: compensation must be positive")
	}
	return s.cancel(ctx, actorID, campaignID, compensationPerInfluencer)
}

func (s *Service) cancel(ctx context.Context, actorID, campaignID string, compensation int64) (Campaign, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.LockCampaign(ctx, tx, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	if c.Status.Terminal() {
		return Campaign{}, ErrCampaignFinalized
	}
	if c.BusinessID != actorID {
		return Campaign{}, ErrNotCampaignOwner
	}
	if c.Status != StatusOpen && c.Status != StatusAssigned {
		return Campaign{}, ErrProofAlreadySubmitted
	}

	compensated := make([]string, 0, c.SelectedCount)
	if compensation > 0 && c.SelectedCount > 0 {
		total := compensation * int64(c.SelectedCount)
		committed, err := s.ledger.CommittedBalance(ctx, tx, c.ID, c.Currency)
		if err != nil {
			return Campaign{}, err
		}
		if total > committed {
			return Campaign{}, ErrCompensationTooLarge
		}

		rows, err := tx.Query(ctx,
			`SELECT influencer_id FROM applications WHERE campaign_id = $1 AND selected ORDER BY created_at`,
			c.ID)
		if err != nil {
			return Campaign{}, fmt.Errorf("campaign: list selected: %w", err)
		}
		for rows.Next() {
			var influencerID string
			if err := rows.Scan(&influencerID); err != nil {
				rows.Close()
				return Campaign{}, fmt.Errorf("campaign: scan selected: %w", err)
			}
			compensated = append(compensated, influencerID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return Campaign{}, fmt.Errorf("campaign: iterate selected: %w", err)
		}

		for _, influencerID := range compensated {
			if err := s.ledger.CommitToInfluencer(ctx, tx, c.ID, influencerID, c.Currency, compensation); err != nil {
				return Campaign{}, err
			}
		}
	}

	remaining, err := s.ledger.CommittedBalance(ctx, tx, c.ID, c.Currency)
	if err != nil {
		return Campaign{}, err
	}
	if remaining > 0 {
		if err := s.ledger.RefundToBusiness(ctx, tx, c.ID, c.Currency, remaining); err != nil {
			return Campaign{}, err
		}
	}

	if err := transition(ctx, tx, c.ID, c.Status, StatusCancelled); err != nil {
		return Campaign{}, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE campaigns SET finalized_at = get_tx_timestamp() WHERE id = $1`, c.ID); err != nil {
		return Campaign{}, fmt.Errorf("campaign: set finalized_at: %w", err)
	}
	c.Status = StatusCancelled

	if err := s.timeline.Append(ctx, tx, c.ID, event.TypeCampaignCancelled, actorID, map[string]any{
		"compensation_per_influencer": compensation,
		"compensated":                 compensated,
		"refunded":                    remaining,
	}); err != nil {
		return Campaign{}, err
	}
	if err := s.outbox.Enqueue(ctx, tx, event.TopicCampaignCancelled, map[string]any{
		"campaign_id": c.ID,
		"business_id": c.BusinessID,
		"refunded":    remaining,
	}); err != nil {
		return Campaign{}, err
	}

	if remaining > 0 {
		if err := s.transfer.TransferOut(ctx, c.BusinessID, c.Currency, remaining); err != nil {
			return Campaign{}, fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Campaign{}, fmt.Errorf("campaign: commit cancel: %w", err)
	}
	return c, nil
}

// ExpireIfStale is the externally polled expiry trigger: an open campaign with
// zero applications past the application deadline, or zero selections past the
// selection deadline, expires and the full budget returns to the business.
// Safe no-op when not yet due or already resolved.
func (s *Service) ExpireIfStale(ctx context.Context, campaignID string) (Campaign, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Campaign{}, false, fmt.Errorf("campaign: begin expire: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.LockCampaign(ctx, tx, campaignID)
	if err != nil {
		return Campaign{}, false, err
	}
	if c.Status != StatusOpen {
		return c, false, nil
	}

	now := s.now()
	stale := (now.After(c.ApplyDeadline) && c.ApplicationCount == 0) ||
		(now.After(c.SelectionDeadline) && c.SelectedCount == 0)
	if !stale {
		return c, false, nil
	}

	remaining, err := s.ledger.CommittedBalance(ctx, tx, c.ID, c.Currency)
	if err != nil {
		return Campaign{}, false, err
	}
	if remaining > 0 {
		if err := s.ledger.RefundToBusiness(ctx, tx, c.ID, c.Currency, remaining); err != nil {
			return Campaign{}, false, err
		}
	}

	if err := transition(ctx, tx, c.ID, c.Status, StatusExpired); err != nil {
		return Campaign{}, false, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE campaigns SET finalized_at = get_tx_timestamp() WHERE id = $1`, c.ID); err != nil {
		return Campaign{}, false, fmt.Errorf("campaign: set finalized_at: %w", err)
	}
	c.Status = StatusExpired

	if err := s.timeline.Append(ctx, tx, c.ID, event.TypeCampaignExpired, "", map[string]any{
		"refunded": remaining,
	}); err != nil {
		return Campaign{}, false, err
	}
	if err := s.outbox.Enqueue(ctx, tx, event.TopicCampaignExpired, map[string]any{
		"campaign_id": c.ID,
		"business_id": c.BusinessID,
		"refunded":    remaining,
	}); err != nil {
		return Campaign{}, false, err
	}

	if remaining > 0 {
		if err := s.transfer.TransferOut(ctx, c.BusinessID, c.Currency, remaining); err != nil {
			return Campaign{}, false, fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Campaign{}, false, fmt.Errorf("campaign: commit expire: %w", err)
	}
	return c, true, nil
}

// Get fetches one campaign.
func (s *Service) Get(ctx context.Context, campaignID string) (Campaign, error) {
	query := `SELECT ` + campaignCols + ` FROM campaigns WHERE id = $1`
	c, err := scanCampaign(s.pool.QueryRow(ctx, query, campaignID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrCampaignNotFound
		}
		return Campaign{}, fmt.Errorf("campaign: get: %w", err)
	}
	return c, nil
}

// ListByBusiness returns the business's campaigns newest first.
func (s *Service) ListByBusiness(ctx context.Context, businessID string, limit int) ([]Campaign, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT ` + campaignCols + ` FROM campaigns
WHERE business_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign: list by business: %w", err)
	}
	defer rows.Close()

	out := make([]Campaign, 0, limit)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("campaign: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign: iterate: %w", err)
	}
	return out, nil
}

// ListOpen returns campaigns still accepting applications, newest first. This
// is the influencer's browse view.
func (s *Service) ListOpen(ctx context.Context, limit int) ([]Campaign, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT ` + campaignCols + ` FROM campaigns
WHERE status = 'open' AND apply_deadline > $1
ORDER BY created_at DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("campaign: list open: %w", err)
	}
	defer rows.Close()

	out := make([]Campaign, 0, limit)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("campaign: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign: iterate: %w", err)
	}
	return out, nil
}

// ListApplications returns all applications for a campaign oldest first.
func (s *Service) ListApplications(ctx context.Context, campaignID string) ([]Application, error) {
	query := `SELECT ` + applicationCols + ` FROM applications
WHERE campaign_id = $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign: list applications: %w", err)
	}
	defer rows.Close()

	out := make([]Application, 0, 8)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("campaign: scan application: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign: iterate applications: %w", err)
	}
	return out, nil
}

// ListApplicationsByInfluencer serves the "my applications" view.
func (s *Service) ListApplicationsByInfluencer(ctx context.Context, influencerID string) ([]Application, error) {
	query := `SELECT ` + applicationCols + ` FROM applications
WHERE influencer_id = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, influencerID)
	if err != nil {
		return nil, fmt.Errorf("campaign: list by influencer: %w", err)
	}
	defer rows.Close()

	out := make([]Application, 0, 8)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("campaign: scan application: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign: iterate applications: %w", err)
	}
	return out, nil
}
