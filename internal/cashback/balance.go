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

// EnsureBalance returns the locked balance of (org, client, program),
// creating a zero balance first when none exists.
func EnsureBalance(ctx context.Context, store repository.CashbackStore, orgID, clientID, programID string) (*domain.CashbackBalance, error) {
	balances := store.Balances()

	b, err := balances.GetForUpdate(ctx, orgID, clientID, programID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load balance: %w", err)
	}

	fresh := &domain.CashbackBalance{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		ClientID:  clientID,
		ProgramID: programID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := balances.Insert(ctx, fresh); err != nil {
		return nil, fmt.Errorf("create balance: %w", err)
	}
	logger.Debug("Cashback balance ensured", "orgID", orgID, "clientID", clientID, "programID", programID)

	// A concurrent insert may have won; read back whichever row exists.
	b, err = balances.GetForUpdate(ctx, orgID, clientID, programID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Internal("Erro ao criar saldo de cashback.", err)
	}
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	return b, nil
}
