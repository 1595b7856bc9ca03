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
	"cashback-ledger/internal/security"
)

const msgInsufficientBalance = "Saldo insuficiente."

type RedeemInput struct {
	OrgID              string
	ClientID           string
	SaleValue          int64
	RedemptionValue    int64
	OperatorIdentifier string
}

type RedeemResult struct {
	TransactionID    string
	NewBalance       int64
	NewRedeemedTotal int64
	SellerID         string
}

// Redeem debits an operator-initiated redemption from the client's balance.
// Checks run in a fixed order and the first failure is returned.
func Redeem(ctx context.Context, store repository.CashbackStore, in RedeemInput) (*RedeemResult, error) {
	logger.EnterMethod("cashback.Redeem", "orgID", in.OrgID, "clientID", in.ClientID, "redemptionValue", in.RedemptionValue, "saleValue", in.SaleValue)

	res, err := redeem(ctx, store, in)
	if err != nil {
		logger.ExitMethodWithError("cashback.Redeem", err, "orgID", in.OrgID, "clientID", in.ClientID)
		return nil, err
	}

	logger.ExitMethod("cashback.Redeem", "transactionID", res.TransactionID, "newBalance", res.NewBalance)
	return res, nil
}

func redeem(ctx context.Context, store repository.CashbackStore, in RedeemInput) (*RedeemResult, error) {
	if _, err := store.Organizations().GetByID(ctx, in.OrgID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("Organização não encontrada.")
		}
		return nil, fmt.Errorf("load organization: %w", err)
	}

	seller, err := resolveOperator(ctx, store, in.OrgID, in.OperatorIdentifier)
	if err != nil {
		return nil, err
	}

	programs, err := store.Programs().ListByOrg(ctx, in.OrgID)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	if len(programs) != 1 {
		return nil, domain.NotFound("Programa de cashback não encontrado.")
	}
	program := programs[0]

	if in.RedemptionValue <= 0 {
		return nil, domain.BadRequest("O valor de resgate deve ser maior que zero.")
	}

	maxValue, limited, err := RedemptionCap(program.RedemptionLimitType, program.RedemptionLimitValue, in.SaleValue)
	if err != nil {
		return nil, err
	}
	if limited && in.RedemptionValue > maxValue {
		return nil, domain.BadRequest(fmt.Sprintf("O valor de resgate excede o limite permitido. Máximo: %s", FormatBRL(maxValue)))
	}

	balance, err := store.Balances().GetForUpdate(ctx, in.OrgID, in.ClientID, program.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("Saldo de cashback não encontrado.")
		}
		return nil, fmt.Errorf("load balance: %w", err)
	}
	if balance.Available < in.RedemptionValue {
		return nil, domain.BadRequest(msgInsufficientBalance)
	}

	now := time.Now().UTC()
	ok, err := store.Balances().Debit(ctx, balance.ID, in.RedemptionValue, now)
	if err != nil {
		return nil, fmt.Errorf("debit balance: %w", err)
	}
	if !ok {
		return nil, domain.BadRequest(msgInsufficientBalance)
	}

	tx := &domain.CashbackTransaction{
		ID:               uuid.NewString(),
		OrgID:            in.OrgID,
		ClientID:         in.ClientID,
		ProgramID:        program.ID,
		Type:             domain.TransactionTypeRedemption,
		Status:           domain.TransactionStatusActive,
		Amount:           in.RedemptionValue,
		BalanceBefore:    balance.Available,
		BalanceAfter:     balance.Available - in.RedemptionValue,
		OperatorUserID:   seller.UserID,
		OperatorSellerID: &seller.ID,
		Metadata: map[string]any{
			"sale_value": in.SaleValue,
		},
		CreatedAt: now,
	}
	if err := store.Transactions().Create(ctx, tx); err != nil {
		return nil, domain.Internal("Erro ao registrar o resgate.", err)
	}

	if err := consumeCredit(ctx, store, in.OrgID, in.ClientID, program.ID, in.RedemptionValue); err != nil {
		return nil, err
	}

	return &RedeemResult{
		TransactionID:    tx.ID,
		NewBalance:       tx.BalanceAfter,
		NewRedeemedTotal: balance.TotalRedeemed + in.RedemptionValue,
		SellerID:         seller.ID,
	}, nil
}

// resolveOperator matches the operator PIN against the org's active sellers.
func resolveOperator(ctx context.Context, store repository.CashbackStore, orgID, identifier string) (*domain.Seller, error) {
	if identifier == "" {
		return nil, domain.Unauthorized("Operador não autorizado.")
	}
	sellers, err := store.Sellers().ListActiveByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load sellers: %w", err)
	}
	for i := range sellers {
		if security.CheckPIN(sellers[i].PINHash, identifier) {
			return &sellers[i], nil
		}
	}
	return nil, domain.Unauthorized("Operador não autorizado.")
}

// consumeCredit spends amount from ACTIVE accumulations, earliest expiry
// first, so reversal and expiry only touch credit that is still unspent.
func consumeCredit(ctx context.Context, store repository.CashbackStore, orgID, clientID, programID string, amount int64) error {
	credits, err := store.Transactions().ListConsumableForUpdate(ctx, orgID, clientID, programID)
	if err != nil {
		return fmt.Errorf("load consumable credit: %w", err)
	}
	for _, c := range credits {
		if amount == 0 {
			break
		}
		take := min(c.RemainingAmount, amount)
		remaining := c.RemainingAmount - take
		status := domain.TransactionStatusActive
		if remaining == 0 {
			status = domain.TransactionStatusConsumed
		}
		if err := store.Transactions().UpdateRemaining(ctx, c.ID, remaining, status); err != nil {
			return fmt.Errorf("consume credit %s: %w", c.ID, err)
		}
		amount -= take
	}
	if amount > 0 {
		logger.Warn("Redemption exceeds tracked credit",
			"orgID", orgID, "clientID", clientID, "programID", programID, "untracked", amount)
	}
	return nil
}
