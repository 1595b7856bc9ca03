package service

import (
	"context"
	"time"

	"cashback-ledger/internal/cashback"
	"cashback-ledger/internal/domain"
)

type CashbackService interface {
	CreateProgram(ctx context.Context, program *domain.CashbackProgram) error
	UpdateProgram(ctx context.Context, program *domain.CashbackProgram) error
	GetProgram(ctx context.Context, orgID string) (*domain.CashbackProgram, error)
	EnsureClientBalance(ctx context.Context, orgID, clientID string) error
	GetBalance(ctx context.Context, orgID, clientID string) (*domain.CashbackBalance, error)
	ListTransactions(ctx context.Context, orgID, clientID string, page, pageSize int32) ([]domain.CashbackTransaction, int32, error)

	HandleSaleCompleted(ctx context.Context, ev domain.SaleEvent) (*cashback.AccumulateResult, error)
	HandleSaleCanceled(ctx context.Context, ev domain.SaleEvent) (*cashback.ReverseResult, error)
	Redeem(ctx context.Context, in cashback.RedeemInput) (*cashback.RedeemResult, error)
	ExpireDueCashback(ctx context.Context, now time.Time) (*ExpireSummary, error)
}

// ExpireSummary reports one expiry sweep.
type ExpireSummary struct {
	Scanned       int
	Expired       int
	Failed        int
	ExpiredAmount int64
}
