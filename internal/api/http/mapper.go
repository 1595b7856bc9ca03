package http

import (
	"time"

	"github.com/shopspring/decimal"

	"cashback-ledger/internal/cashback"
	"cashback-ledger/internal/domain"
)

type programRequest struct {
	AccumulationType     domain.AccumulationRuleType `json:"accumulationType"`
	AccumulationValue    decimal.Decimal             `json:"accumulationValue"`
	MinimumSaleValue     int64                       `json:"minimumSaleValue"`
	RedemptionLimitType  domain.RedemptionLimitType  `json:"redemptionLimitType"`
	RedemptionLimitValue decimal.Decimal             `json:"redemptionLimitValue"`
	ExpirationDays       int32                       `json:"expirationDays"`
}

func (p programRequest) toDomain(orgID string) *domain.CashbackProgram {
	return &domain.CashbackProgram{
		OrgID:                orgID,
		AccumulationType:     p.AccumulationType,
		AccumulationValue:    p.AccumulationValue,
		MinimumSaleValue:     p.MinimumSaleValue,
		RedemptionLimitType:  p.RedemptionLimitType,
		RedemptionLimitValue: p.RedemptionLimitValue,
		ExpirationDays:       p.ExpirationDays,
	}
}

type programResponse struct {
	ID                   string          `json:"id"`
	OrgID                string          `json:"orgId"`
	AccumulationType     string          `json:"accumulationType"`
	AccumulationValue    decimal.Decimal `json:"accumulationValue"`
	MinimumSaleValue     int64           `json:"minimumSaleValue"`
	RedemptionLimitType  string          `json:"redemptionLimitType"`
	RedemptionLimitValue decimal.Decimal `json:"redemptionLimitValue"`
	ExpirationDays       int32           `json:"expirationDays"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

func toProgramResponse(p *domain.CashbackProgram) programResponse {
	return programResponse{
		ID:                   p.ID,
		OrgID:                p.OrgID,
		AccumulationType:     string(p.AccumulationType),
		AccumulationValue:    p.AccumulationValue,
		MinimumSaleValue:     p.MinimumSaleValue,
		RedemptionLimitType:  string(p.RedemptionLimitType),
		RedemptionLimitValue: p.RedemptionLimitValue,
		ExpirationDays:       p.ExpirationDays,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

type balanceResponse struct {
	ClientID         string    `json:"clientId"`
	ProgramID        string    `json:"programId"`
	Available        int64     `json:"available"`
	TotalAccumulated int64     `json:"totalAccumulated"`
	TotalRedeemed    int64     `json:"totalRedeemed"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toBalanceResponse(b *domain.CashbackBalance) balanceResponse {
	return balanceResponse{
		ClientID:         b.ClientID,
		ProgramID:        b.ProgramID,
		Available:        b.Available,
		TotalAccumulated: b.TotalAccumulated,
		TotalRedeemed:    b.TotalRedeemed,
		UpdatedAt:        b.UpdatedAt,
	}
}

type transactionResponse struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	Status           string         `json:"status"`
	Amount           int64          `json:"amount"`
	RemainingAmount  int64          `json:"remainingAmount"`
	BalanceBefore    int64          `json:"balanceBefore"`
	BalanceAfter     int64          `json:"balanceAfter"`
	SaleID           *string        `json:"saleId,omitempty"`
	CampaignID       *string        `json:"campaignId,omitempty"`
	ExpiresAt        *time.Time     `json:"expiresAt,omitempty"`
	OperatorUserID   *string        `json:"operatorUserId,omitempty"`
	OperatorSellerID *string        `json:"operatorSellerId,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

func toTransactionResponses(txs []domain.CashbackTransaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			ID:               t.ID,
			Type:             string(t.Type),
			Status:           string(t.Status),
			Amount:           t.Amount,
			RemainingAmount:  t.RemainingAmount,
			BalanceBefore:    t.BalanceBefore,
			BalanceAfter:     t.BalanceAfter,
			SaleID:           t.SaleID,
			CampaignID:       t.CampaignID,
			ExpiresAt:        t.ExpiresAt,
			OperatorUserID:   t.OperatorUserID,
			OperatorSellerID: t.OperatorSellerID,
			Metadata:         t.Metadata,
			CreatedAt:        t.CreatedAt,
		})
	}
	return out
}

type transactionPage struct {
	Transactions []transactionResponse `json:"transactions"`
	Page         int32                 `json:"page"`
	PageSize     int32                 `json:"pageSize"`
	Total        int32                 `json:"total"`
}

type accumulationResponse struct {
	TransactionID       *string `json:"transactionId"`
	AccumulatedValue    int64   `json:"accumulatedValue"`
	PreviousBalance     int64   `json:"previousBalance"`
	NewBalance          int64   `json:"newBalance"`
	NewAccumulatedTotal int64   `json:"newAccumulatedTotal"`
	AlreadyCredited     bool    `json:"alreadyCredited,omitempty"`
}

func toAccumulationResponse(r *cashback.AccumulateResult) accumulationResponse {
	return accumulationResponse{
		TransactionID:       r.TransactionID,
		AccumulatedValue:    r.AccumulatedValue,
		PreviousBalance:     r.PreviousBalance,
		NewBalance:          r.NewBalance,
		NewAccumulatedTotal: r.NewAccumulatedTotal,
		AlreadyCredited:     r.AlreadyCredited,
	}
}

type reversalResponse struct {
	ReversedTransactionsCount int    `json:"reversedTransactionsCount"`
	TotalReversedAmount       int64  `json:"totalReversedAmount"`
	CanceledInteractionsCount int64  `json:"canceledInteractionsCount"`
	NewBalance                *int64 `json:"newBalance,omitempty"`
}

func toReversalResponse(r *cashback.ReverseResult) reversalResponse {
	return reversalResponse{
		ReversedTransactionsCount: r.ReversedTransactionsCount,
		TotalReversedAmount:       r.TotalReversedAmount,
		CanceledInteractionsCount: r.CanceledInteractionsCount,
		NewBalance:                r.NewBalance,
	}
}
