// Package event provides the transactional timeline and outbox writers every
// mutating campaign operation shares. Timeline rows are the append-only audit
// trail; outbox rows feed the external notification/indexing relay.
package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Timeline event types emitted by the engine.
const (
	TypeCampaignOpened       = "CAMPAIGN_OPENED"
	TypeCampaignAssigned     = "CAMPAIGN_ASSIGNED"
	TypeCampaignCompleted    = "CAMPAIGN_COMPLETED"
	TypeCampaignExpired      = "CAMPAIGN_EXPIRED"
	TypeCampaignCancelled    = "CAMPAIGN_CANCELLED"
	TypeApplicationSubmitted = "APPLICATION_SUBMITTED"
	TypeApplicationSelected  = "APPLICATION_SELECTED"
	TypeProofSubmitted       = "PROOF_SUBMITTED"
	TypeProofApproved        = "PROOF_APPROVED"
	TypeProofForfeited       = "PROOF_FORFEITED"
	TypeDisputeRaised        = "DISPUTE_RAISED"
	TypeDisputeResolved      = "DISPUTE_RESOLVED"
	TypeDisputeExpired       = "DISPUTE_EXPIRED"
	TypePayoutClaimed        = "PAYOUT_CLAIMED"
)

// Outbox topics consumed by the downstream relay.
const (
	TopicCampaignOpened    = "campaign.opened"
	TopicCampaignAssigned  = "campaign.assigned"
	TopicCampaignCompleted = "campaign.completed"
	TopicCampaignExpired   = "campaign.expired"
	TopicCampaignCancelled = "campaign.cancelled"
	TopicProofApproved     = "proof.approved"
	TopicDisputeRaised     = "dispute.raised"
	TopicDisputeResolved   = "dispute.resolved"
	TopicPayoutClaimed     = "payout.claimed"
)

// Timeline appends audit events inside the caller's transaction.
type Timeline struct{}

// NewTimeline returns a timeline writer.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Append inserts one timeline event for the campaign with the next per-campaign
// sequence number. Must run inside the transaction that mutates the campaign so
// the audit row commits or rolls back with the state change.
func (t *Timeline) Append(ctx context.Context, tx pgx.Tx, campaignID string, eventType string, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal timeline payload: %w", err)
	}

	var actor any
	if actorID != "" {
		actor = actorID
	}

	const q = `
INSERT INTO timeline_events (campaign_id, seq, type, actor_id, payload)
VALUES ($1,
        (SELECT COALESCE(MAX(seq), 0) + 1 FROM timeline_events WHERE campaign_id = $1),
        $2, $3::uuid, $4::jsonb)
`
	if _, err := tx.Exec(ctx, q, campaignID, eventType, actor, body); err != nil {
		return fmt.Errorf("event: insert timeline event: %w", err)
	}
	return nil
}

// Outbox enqueues messages for the external delivery relay.
type Outbox struct{}

// NewOutbox returns an outbox writer.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Enqueue inserts one outbox message inside the caller's transaction.
func (o *Outbox) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal outbox payload: %w", err)
	}

	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("event: enqueue outbox: %w", err)
	}
	return nil
}
