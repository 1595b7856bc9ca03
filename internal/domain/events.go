package domain

import "time"

type EventType string

const (
	EventCashbackAccumulated EventType = "cashback.accumulated"
	EventCashbackRedeemed    EventType = "cashback.redeemed"
	EventCashbackReversed    EventType = "cashback.reversed"
	EventCashbackExpired     EventType = "cashback.expired"

	EventSaleCompleted EventType = "sale.completed"
	EventSaleCanceled  EventType = "sale.canceled"
)

// LedgerEvent is published after a ledger mutation commits.
type LedgerEvent struct {
	Type          EventType `json:"type"`
	OrgID         string    `json:"orgId"`
	ClientID      string    `json:"clientId"`
	SaleID        string    `json:"saleId,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	Amount        int64     `json:"amount"`
	NewBalance    int64     `json:"newBalance"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// SaleEvent is consumed from the sale lifecycle topic.
type SaleEvent struct {
	Type             EventType      `json:"type"`
	OrgID            string         `json:"orgId"`
	ClientID         string         `json:"clientId"`
	SaleID           string         `json:"saleId"`
	SaleValue        int64          `json:"saleValue"`
	CampaignID       *string        `json:"campaignId,omitempty"`
	OperatorUserID   *string        `json:"operatorUserId,omitempty"`
	OperatorSellerID *string        `json:"operatorSellerId,omitempty"`
	Timestamp        *time.Time     `json:"timestamp,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	OverrideValue    *int64         `json:"overrideValue,omitempty"`
	Reason           string         `json:"reason,omitempty"`
}
