package cashback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/repository"
)

type AccumulateInput struct {
	OrgID     string
	ClientID  string
	SaleID    string
	SaleValue int64
	Program   *domain.CashbackProgram

	OperatorUserID   *string
	OperatorSellerID *string
	CampaignID       *string
	// Timestamp defaults to now. Expiration is counted from it.
	Timestamp *time.Time
	Metadata  map[string]any
	// OverrideValue replaces the evaluated amount, e.g. for promotional multipliers.
	OverrideValue *int64
}

type AccumulateResult struct {
	AccumulatedValue    int64
	PreviousBalance     int64
	NewBalance          int64
	NewAccumulatedTotal int64
	// TransactionID is nil when the sale earned nothing.
	TransactionID *string
	// AlreadyCredited is set when the sale had been credited before. Nothing
	// is written in that case.
	AlreadyCredited bool
}

// Accumulate credits the cashback earned by a completed sale. A sale is
// credited at most once, even after it was reversed.
func Accumulate(ctx context.Context, store repository.CashbackStore, in AccumulateInput) (*AccumulateResult, error) {
	logger.EnterMethod("cashback.Accumulate", "orgID", in.OrgID, "clientID", in.ClientID, "saleID", in.SaleID, "saleValue", in.SaleValue)

	if in.Program == nil {
		err := domain.NotFound("Programa de cashback não encontrado.")
		logger.ExitMethodWithError("cashback.Accumulate", err, "saleID", in.SaleID)
		return nil, err
	}
	program := in.Program

	balance, err := EnsureBalance(ctx, store, in.OrgID, in.ClientID, program.ID)
	if err != nil {
		logger.ExitMethodWithError("cashback.Accumulate", err, "saleID", in.SaleID)
		return nil, err
	}

	if in.SaleID != "" {
		credited, err := store.Transactions().HasSaleAccumulation(ctx, in.OrgID, in.ClientID, in.SaleID)
		if err != nil {
			logger.ExitMethodWithError("cashback.Accumulate", err, "saleID", in.SaleID)
			return nil, fmt.Errorf("check sale accumulation: %w", err)
		}
		if credited {
			logger.Warn("Sale already credited, skipping", "orgID", in.OrgID, "clientID", in.ClientID, "saleID", in.SaleID)
			logger.ExitMethod("cashback.Accumulate", "saleID", in.SaleID, "accumulated", 0)
			return &AccumulateResult{
				PreviousBalance:     balance.Available,
				NewBalance:          balance.Available,
				NewAccumulatedTotal: balance.TotalAccumulated,
				AlreadyCredited:     true,
			}, nil
		}
	}

	value := ComputeAccumulatedValue(program.AccumulationType, program.AccumulationValue, program.MinimumSaleValue, in.SaleValue)
	if in.OverrideValue != nil {
		value = *in.OverrideValue
	}

	result := &AccumulateResult{
		AccumulatedValue:    value,
		PreviousBalance:     balance.Available,
		NewBalance:          balance.Available,
		NewAccumulatedTotal: balance.TotalAccumulated,
	}
	if value <= 0 {
		result.AccumulatedValue = 0
		logger.ExitMethod("cashback.Accumulate", "saleID", in.SaleID, "accumulated", 0)
		return result, nil
	}

	now := time.Now().UTC()
	at := now
	if in.Timestamp != nil {
		at = in.Timestamp.UTC()
	}

	result.NewBalance = balance.Available + value
	result.NewAccumulatedTotal = balance.TotalAccumulated + value

	balance.Available = result.NewBalance
	balance.TotalAccumulated = result.NewAccumulatedTotal
	balance.UpdatedAt = now
	if err := store.Balances().Update(ctx, balance); err != nil {
		logger.ExitMethodWithError("cashback.Accumulate", err, "balanceID", balance.ID)
		return nil, fmt.Errorf("update balance: %w", err)
	}

	tx := &domain.CashbackTransaction{
		ID:               uuid.NewString(),
		OrgID:            in.OrgID,
		ClientID:         in.ClientID,
		ProgramID:        program.ID,
		Type:             domain.TransactionTypeAccumulation,
		Status:           domain.TransactionStatusActive,
		Amount:           value,
		RemainingAmount:  value,
		BalanceBefore:    result.PreviousBalance,
		BalanceAfter:     result.NewBalance,
		SaleID:           optional(in.SaleID),
		CampaignID:       in.CampaignID,
		ExpiresAt:        expiresAt(at, program.ExpirationDays),
		OperatorUserID:   in.OperatorUserID,
		OperatorSellerID: in.OperatorSellerID,
		Metadata:         in.Metadata,
		CreatedAt:        now,
	}
	if err := store.Transactions().Create(ctx, tx); err != nil {
		logger.ExitMethodWithError("cashback.Accumulate", err, "saleID", in.SaleID)
		return nil, fmt.Errorf("create accumulation: %w", err)
	}
	result.TransactionID = &tx.ID

	logger.ExitMethod("cashback.Accumulate", "saleID", in.SaleID, "transactionID", tx.ID, "accumulated", value, "newBalance", result.NewBalance)
	return result, nil
}

// expiresAt returns nil for programs whose credit never expires.
func expiresAt(from time.Time, days int32) *time.Time {
	if days <= 0 {
		return nil
	}
	t := from.AddDate(0, 0, int(days))
	return &t
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
