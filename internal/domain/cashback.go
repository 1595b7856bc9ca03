package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccumulationRuleType string

const (
	AccumulationFixed      AccumulationRuleType = "FIXED"
	AccumulationPercentage AccumulationRuleType = "PERCENTAGE"
)

func (t AccumulationRuleType) Valid() bool {
	return t == AccumulationFixed || t == AccumulationPercentage
}

type RedemptionLimitType string

const (
	RedemptionLimitNone       RedemptionLimitType = "NONE"
	RedemptionLimitFixed      RedemptionLimitType = "FIXED"
	RedemptionLimitPercentage RedemptionLimitType = "PERCENTAGE"
)

func (t RedemptionLimitType) Valid() bool {
	return t == RedemptionLimitNone || t == RedemptionLimitFixed || t == RedemptionLimitPercentage
}

type TransactionType string

const (
	TransactionTypeAccumulation TransactionType = "ACCUMULATION"
	TransactionTypeRedemption   TransactionType = "REDEMPTION"
	TransactionTypeCancellation TransactionType = "CANCELLATION"
)

type TransactionStatus string

const (
	TransactionStatusActive   TransactionStatus = "ACTIVE"
	TransactionStatusConsumed TransactionStatus = "CONSUMED"
	TransactionStatusExpired  TransactionStatus = "EXPIRED"
)

// CashbackProgram is the per-organization cashback configuration.
// FIXED values are expressed in cents, PERCENTAGE values in percent.
type CashbackProgram struct {
	ID                   string               `json:"id"`
	OrgID                string               `json:"org_id"`
	AccumulationType     AccumulationRuleType `json:"accumulation_type"`
	AccumulationValue    decimal.Decimal      `json:"accumulation_value"`
	MinimumSaleValue     int64                `json:"minimum_sale_value"`
	RedemptionLimitType  RedemptionLimitType  `json:"redemption_limit_type"`
	RedemptionLimitValue decimal.Decimal      `json:"redemption_limit_value"`
	ExpirationDays       int32                `json:"expiration_days"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// CashbackBalance holds the running totals for one (org, client, program).
// All amounts are cents.
type CashbackBalance struct {
	ID               string    `json:"id"`
	OrgID            string    `json:"org_id"`
	ClientID         string    `json:"client_id"`
	ProgramID        string    `json:"program_id"`
	Available        int64     `json:"available"`
	TotalAccumulated int64     `json:"total_accumulated"`
	TotalRedeemed    int64     `json:"total_redeemed"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CashbackTransaction is an append-only ledger entry. Amount is negative for
// cancellations.
type CashbackTransaction struct {
	ID               string            `json:"id"`
	OrgID            string            `json:"org_id"`
	ClientID         string            `json:"client_id"`
	ProgramID        string            `json:"program_id"`
	Type             TransactionType   `json:"type"`
	Status           TransactionStatus `json:"status"`
	Amount           int64             `json:"amount"`
	RemainingAmount  int64             `json:"remaining_amount"`
	BalanceBefore    int64             `json:"balance_before"`
	BalanceAfter     int64             `json:"balance_after"`
	SaleID           *string           `json:"sale_id,omitempty"`
	CampaignID       *string           `json:"campaign_id,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	OperatorUserID   *string           `json:"operator_user_id,omitempty"`
	OperatorSellerID *string           `json:"operator_seller_id,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Retired reports whether the entry left the active ledger.
func (t *CashbackTransaction) Retired() bool {
	return t.Status == TransactionStatusExpired
}
