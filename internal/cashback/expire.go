package cashback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/repository"
)

const ReasonExpired = "expired"

type ExpireResult struct {
	TransactionID string
	OrgID         string
	ClientID      string
	// Expired is false when the entry was no longer due, e.g. a reversal
	// retired it after the sweep listed it.
	Expired       bool
	ExpiredAmount int64
	NewBalance    *int64
}

// ExpireTransaction retires one accumulation whose expiration has passed.
// Unspent credit is removed from the balance with a CANCELLATION entry.
func ExpireTransaction(ctx context.Context, store repository.CashbackStore, transactionID string, now time.Time) (*ExpireResult, error) {
	t, err := store.Transactions().GetForUpdate(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("Transação de cashback não encontrada.")
		}
		return nil, fmt.Errorf("load transaction: %w", err)
	}

	result := &ExpireResult{TransactionID: t.ID, OrgID: t.OrgID, ClientID: t.ClientID}
	if t.Type != domain.TransactionTypeAccumulation || t.Retired() || t.ExpiresAt == nil || t.ExpiresAt.After(now) {
		return result, nil
	}

	if t.RemainingAmount > 0 {
		balance, err := store.Balances().GetForUpdate(ctx, t.OrgID, t.ClientID, t.ProgramID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			logger.Warn("Balance missing for expiring transaction", "transactionID", t.ID, "clientID", t.ClientID)
		case err != nil:
			return nil, fmt.Errorf("load balance: %w", err)
		default:
			newBalance, err := debitForCancellation(ctx, store, balance, *t, map[string]any{
				"source_transaction_id": t.ID,
				"reason":                ReasonExpired,
			})
			if err != nil {
				return nil, err
			}
			result.Expired = true
			result.ExpiredAmount = t.RemainingAmount
			result.NewBalance = &newBalance
			logger.Info("Cashback expired", "transactionID", t.ID, "clientID", t.ClientID, "amount", t.RemainingAmount)
			return result, nil
		}
	}

	if err := store.Transactions().Expire(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("expire transaction %s: %w", t.ID, err)
	}
	result.Expired = true
	return result, nil
}
