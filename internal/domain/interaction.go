package domain

import "time"

// ScheduledInteraction is a campaign message queued by the messaging
// collaborator. Rows with a nil ExecutedAt are still pending.
type ScheduledInteraction struct {
	ID                    string     `json:"id"`
	OrgID                 string     `json:"org_id"`
	ClientID              string     `json:"client_id"`
	CampaignID            *string    `json:"campaign_id,omitempty"`
	CashbackTransactionID *string    `json:"cashback_transaction_id,omitempty"`
	ScheduledFor          time.Time  `json:"scheduled_for"`
	ExecutedAt            *time.Time `json:"executed_at,omitempty"`
}
