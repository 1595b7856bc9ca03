package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/repository"

	_ "github.com/lib/pq"
)

// Store exposes the repositories over a connection pool. RunInTx hands out a
// copy bound to a single transaction.
type Store struct {
	db *sql.DB
	q  repository.DBTX
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Organizations() repository.OrganizationRepository {
	return NewOrganizationRepository(s.q)
}

func (s *Store) Sellers() repository.SellerRepository {
	return NewSellerRepository(s.q)
}

func (s *Store) Clients() repository.ClientRepository {
	return NewClientRepository(s.q)
}

func (s *Store) Programs() repository.ProgramRepository {
	return NewProgramRepository(s.q)
}

func (s *Store) Balances() repository.BalanceRepository {
	return NewBalanceRepository(s.q)
}

func (s *Store) Transactions() repository.TransactionRepository {
	return NewTransactionRepository(s.q)
}

func (s *Store) Interactions() repository.InteractionRepository {
	return NewInteractionRepository(s.q)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunInTx runs fn with a Store bound to a new read-committed transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(store repository.CashbackStore) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		logger.Debug("Rolling back transaction", "error", err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ repository.UnitOfWork = (*Store)(nil)
