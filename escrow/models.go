package escrow

import "time"

// CampaignBalance mirrors one campaign_escrow row. Conservation holds at all
// times: Deposited == Committed + (amounts moved to claimable balances) +
// Refunded. Value only ever moves between those buckets.
type CampaignBalance struct {
	CampaignID string
	Currency   string
	Deposited  int64
	Committed  int64
	Refunded   int64
	UpdatedAt  time.Time
}

// ClaimableBalance mirrors one claimable_balances row.
type ClaimableBalance struct {
	InfluencerID string
	Currency     string
	Amount       int64
	PaidOut      int64
	UpdatedAt    time.Time
}

// Payout reports one completed claim.
type Payout struct {
	InfluencerID string
	Currency     string
	Amount       int64
}
