package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cashback-ledger/internal/domain"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type OrganizationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
}

type SellerRepository interface {
	ListActiveByOrg(ctx context.Context, orgID string) ([]domain.Seller, error)
}

type ClientRepository interface {
	ListIDsByOrg(ctx context.Context, orgID string) ([]string, error)
}

type ProgramRepository interface {
	Create(ctx context.Context, program *domain.CashbackProgram) error
	Update(ctx context.Context, program *domain.CashbackProgram) error
	GetByOrg(ctx context.Context, orgID string) (*domain.CashbackProgram, error)
	ListByOrg(ctx context.Context, orgID string) ([]domain.CashbackProgram, error)
}

type BalanceRepository interface {
	// GetForUpdate locks the balance row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, orgID, clientID, programID string) (*domain.CashbackBalance, error)
	// Insert is a no-op when the (org, client, program) row already exists.
	Insert(ctx context.Context, balance *domain.CashbackBalance) error
	Update(ctx context.Context, balance *domain.CashbackBalance) error
	// Debit subtracts amount from available and adds it to total redeemed
	// only when available >= amount. It reports whether a row was changed.
	Debit(ctx context.Context, balanceID string, amount int64, at time.Time) (bool, error)
	Get(ctx context.Context, orgID, clientID string) (*domain.CashbackBalance, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.CashbackTransaction) error
	GetForUpdate(ctx context.Context, id string) (*domain.CashbackTransaction, error)
	// HasSaleAccumulation reports whether the sale was ever credited, whatever
	// the accumulation's status.
	HasSaleAccumulation(ctx context.Context, orgID, clientID, saleID string) (bool, error)
	// ListSaleAccumulationsForUpdate returns ACTIVE or CONSUMED accumulations of a sale.
	ListSaleAccumulationsForUpdate(ctx context.Context, orgID, clientID, saleID string) ([]domain.CashbackTransaction, error)
	// ListConsumableForUpdate returns ACTIVE accumulations with remaining credit,
	// earliest expiration first.
	ListConsumableForUpdate(ctx context.Context, orgID, clientID, programID string) ([]domain.CashbackTransaction, error)
	UpdateRemaining(ctx context.Context, id string, remaining int64, status domain.TransactionStatus) error
	Expire(ctx context.Context, id string) error
	ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]domain.CashbackTransaction, error)
	ListByClient(ctx context.Context, orgID, clientID string, page, pageSize int32) ([]domain.CashbackTransaction, int32, error)
}

type InteractionRepository interface {
	// DeletePending removes unexecuted interactions of a client that belong
	// to one of campaignIDs or were triggered by one of transactionIDs.
	DeletePending(ctx context.Context, orgID, clientID string, campaignIDs, transactionIDs []string) (int64, error)
}

// CashbackStore groups the repositories a ledger operation works with.
// Implementations handed to the cashback package are bound to one open
// database transaction.
type CashbackStore interface {
	Organizations() OrganizationRepository
	Sellers() SellerRepository
	Clients() ClientRepository
	Programs() ProgramRepository
	Balances() BalanceRepository
	Transactions() TransactionRepository
	Interactions() InteractionRepository
}

// UnitOfWork runs fn inside one database transaction. fn's error rolls the
// transaction back and is returned unchanged.
type UnitOfWork interface {
	CashbackStore
	RunInTx(ctx context.Context, fn func(store CashbackStore) error) error
	Ping(ctx context.Context) error
}
