package campaign

import "time"

// Status is the campaign lifecycle state.
type Status string

const (
	StatusOpen              Status = "open"
	StatusAssigned          Status = "assigned"
	StatusContentSubmission Status = "content_submission"
	StatusVerification      Status = "verification"
	StatusCompleted         Status = "completed"
	StatusExpired           Status = "expired"
	StatusCancelled         Status = "cancelled"
)

// Terminal reports whether the status accepts no further mutations.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// ProofStatus is the per-application proof decision state.
type ProofStatus string

const (
	ProofNone      ProofStatus = "none"
	ProofSubmitted ProofStatus = "submitted"
	ProofApproved  ProofStatus = "approved"
	ProofRejected  ProofStatus = "rejected"
)

// Campaign mirrors the campaigns table columns touched by the engine.
type Campaign struct {
	ID                   string
	BusinessID           string
	Currency             string
	Budget               int64
	MaxSlots             int
	PayoutPerSlot        int64
	Dust                 int64
	Status               Status
	ApplicationCount     int
	SelectedCount        int
	PromotionSecs        int64
	ProofGraceSecs       int64
	VerificationSecs     int64
	ApplyDeadline        time.Time
	SelectionDeadline    time.Time
	AssignedAt           *time.Time
	SubmissionDeadline   *time.Time
	VerificationDeadline *time.Time
	FinalizedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Application is one influencer's bid for one campaign slot. Rows are never
// deleted; selected/claimed are monotonic one-way flags.
type Application struct {
	ID               string
	CampaignID       string
	InfluencerID     string
	Message          string
	Selected         bool
	Claimed          bool
	ProofLink        *string
	ProofSubmittedAt *time.Time
	ProofStatus      ProofStatus
	CreatedAt        time.Time
}

// OpenParams enumerates everything needed to deposit a budget and open a
// campaign. Durations are cumulative offsets from the relevant anchor: the
// application window runs from creation, the selection grace extends past it,
// and the submission/verification windows anchor on the assignment time.
type OpenParams struct {
	BusinessID         string
	Currency           string
	Budget             int64
	MaxSlots           int
	ApplicationPeriod  time.Duration
	SelectionGrace     time.Duration
	PromotionDuration  time.Duration
	ProofGrace         time.Duration
	VerificationPeriod time.Duration
	IdempotencyKey     string
}

// SplitBudget divides a budget across slots with truncating integer division.
// The remainder is retained as dust in the campaign's committed bucket and is
// refunded to the business when the campaign finalizes.
func SplitBudget(budget int64, slots int) (perSlot int64, dust int64) {
	if slots <= 0 || budget <= 0 {
		return 0, budget
	}
	perSlot = budget / int64(slots)
	dust = budget - perSlot*int64(slots)
	return perSlot, dust
}
