package cashback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/repository"
)

type ReverseInput struct {
	OrgID    string
	ClientID string
	SaleID   string
	Reason   string
}

type ReverseResult struct {
	ReversedTransactionsCount int
	TotalReversedAmount       int64
	CanceledInteractionsCount int64
	// NewBalance is the available amount after the last balance change.
	// It is nil when no balance was touched.
	NewBalance *int64
}

// ReverseSaleCashback retires every live accumulation of a canceled sale,
// claws back its unspent credit and drops the pending interactions it
// triggered. Reversing the same sale twice is a no-op.
func ReverseSaleCashback(ctx context.Context, store repository.CashbackStore, in ReverseInput) (*ReverseResult, error) {
	logger.EnterMethod("cashback.ReverseSaleCashback", "orgID", in.OrgID, "clientID", in.ClientID, "saleID", in.SaleID, "reason", in.Reason)

	txs, err := store.Transactions().ListSaleAccumulationsForUpdate(ctx, in.OrgID, in.ClientID, in.SaleID)
	if err != nil {
		logger.ExitMethodWithError("cashback.ReverseSaleCashback", err, "saleID", in.SaleID)
		return nil, fmt.Errorf("load sale accumulations: %w", err)
	}

	result := &ReverseResult{}
	if len(txs) == 0 {
		logger.ExitMethod("cashback.ReverseSaleCashback", "saleID", in.SaleID, "reversed", 0)
		return result, nil
	}

	var (
		balances   = map[string]*domain.CashbackBalance{}
		retiredIDs []string
		campaigns  []string
		seen       = map[string]bool{}
	)
	retire := func(t domain.CashbackTransaction) {
		result.ReversedTransactionsCount++
		retiredIDs = append(retiredIDs, t.ID)
		if t.CampaignID != nil && !seen[*t.CampaignID] {
			seen[*t.CampaignID] = true
			campaigns = append(campaigns, *t.CampaignID)
		}
	}

	for _, t := range txs {
		if t.RemainingAmount <= 0 {
			// Spent credit is not clawed back; the entry is only retired.
			if err := store.Transactions().Expire(ctx, t.ID); err != nil {
				return nil, fmt.Errorf("expire transaction %s: %w", t.ID, err)
			}
			retire(t)
			continue
		}

		balance, ok := balances[t.ProgramID]
		if !ok {
			balance, err = store.Balances().GetForUpdate(ctx, in.OrgID, in.ClientID, t.ProgramID)
			if errors.Is(err, repository.ErrNotFound) {
				logger.Warn("Balance missing for reversed transaction, skipping",
					"transactionID", t.ID, "clientID", in.ClientID, "programID", t.ProgramID)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load balance: %w", err)
			}
			balances[t.ProgramID] = balance
		}

		newBalance, err := debitForCancellation(ctx, store, balance, t, map[string]any{
			"source_transaction_id": t.ID,
			"reason":                in.Reason,
		})
		if err != nil {
			logger.ExitMethodWithError("cashback.ReverseSaleCashback", err, "transactionID", t.ID)
			return nil, err
		}

		result.TotalReversedAmount += t.RemainingAmount
		result.NewBalance = &newBalance
		retire(t)
	}

	if len(retiredIDs) > 0 {
		n, err := store.Interactions().DeletePending(ctx, in.OrgID, in.ClientID, campaigns, retiredIDs)
		if err != nil {
			return nil, fmt.Errorf("delete pending interactions: %w", err)
		}
		result.CanceledInteractionsCount = n
	}

	logger.ExitMethod("cashback.ReverseSaleCashback", "saleID", in.SaleID,
		"reversed", result.ReversedTransactionsCount,
		"amount", result.TotalReversedAmount,
		"interactions", result.CanceledInteractionsCount)
	return result, nil
}

// debitForCancellation removes the unspent credit of t from balance, logs a
// CANCELLATION entry and retires t. balance is updated in place.
func debitForCancellation(ctx context.Context, store repository.CashbackStore, balance *domain.CashbackBalance, t domain.CashbackTransaction, metadata map[string]any) (int64, error) {
	before := balance.Available
	after := before - t.RemainingAmount
	if after < 0 {
		logger.Warn("Cashback balance went negative, reconciliation required",
			"balanceID", balance.ID, "clientID", balance.ClientID, "transactionID", t.ID, "available", after)
	}

	now := time.Now().UTC()
	cancellation := &domain.CashbackTransaction{
		ID:            uuid.NewString(),
		OrgID:         t.OrgID,
		ClientID:      t.ClientID,
		ProgramID:     t.ProgramID,
		Type:          domain.TransactionTypeCancellation,
		Status:        domain.TransactionStatusActive,
		Amount:        -t.RemainingAmount,
		BalanceBefore: before,
		BalanceAfter:  after,
		SaleID:        t.SaleID,
		Metadata:      metadata,
		CreatedAt:     now,
	}
	if err := store.Transactions().Create(ctx, cancellation); err != nil {
		return 0, fmt.Errorf("create cancellation: %w", err)
	}
	if err := store.Transactions().Expire(ctx, t.ID); err != nil {
		return 0, fmt.Errorf("expire transaction %s: %w", t.ID, err)
	}

	balance.Available = after
	balance.UpdatedAt = now
	if err := store.Balances().Update(ctx, balance); err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	return after, nil
}
