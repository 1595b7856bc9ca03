package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/repository"
)

type balanceRepository struct {
	db repository.DBTX
}

func NewBalanceRepository(db repository.DBTX) repository.BalanceRepository {
	return &balanceRepository{db: db}
}

const balanceColumns = `id, org_id, client_id, program_id, available, total_accumulated, total_redeemed, updated_at`

func scanBalance(row *sql.Row) (*domain.CashbackBalance, error) {
	b := &domain.CashbackBalance{}
	err := row.Scan(&b.ID, &b.OrgID, &b.ClientID, &b.ProgramID, &b.Available, &b.TotalAccumulated, &b.TotalRedeemed, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *balanceRepository) GetForUpdate(ctx context.Context, orgID, clientID, programID string) (*domain.CashbackBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM cashback_balances
	          WHERE org_id = $1 AND client_id = $2 AND program_id = $3
	          FOR UPDATE`
	logger.DatabaseCall("SELECT FOR UPDATE", "cashback_balances", "orgID", orgID, "clientID", clientID)
	return scanBalance(r.db.QueryRowContext(ctx, query, orgID, clientID, programID))
}

func (r *balanceRepository) Get(ctx context.Context, orgID, clientID string) (*domain.CashbackBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM cashback_balances
	          WHERE org_id = $1 AND client_id = $2
	          ORDER BY updated_at DESC LIMIT 1`
	return scanBalance(r.db.QueryRowContext(ctx, query, orgID, clientID))
}

func (r *balanceRepository) Insert(ctx context.Context, b *domain.CashbackBalance) error {
	query := `INSERT INTO cashback_balances (` + balanceColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (org_id, client_id, program_id) DO NOTHING`
	logger.DatabaseCall("INSERT", "cashback_balances", "orgID", b.OrgID, "clientID", b.ClientID)

	res, err := r.db.ExecContext(ctx, query,
		b.ID, b.OrgID, b.ClientID, b.ProgramID, b.Available, b.TotalAccumulated, b.TotalRedeemed, b.UpdatedAt)
	var n int64
	if err == nil {
		n, _ = res.RowsAffected()
	}
	logger.DatabaseResult("INSERT", n, err, "balanceID", b.ID)
	return err
}

func (r *balanceRepository) Update(ctx context.Context, b *domain.CashbackBalance) error {
	query := `UPDATE cashback_balances SET
			available = $1,
			total_accumulated = $2,
			total_redeemed = $3,
			updated_at = $4
		WHERE id = $5`
	logger.DatabaseCall("UPDATE", "cashback_balances", "balanceID", b.ID, "available", b.Available)

	res, err := r.db.ExecContext(ctx, query, b.Available, b.TotalAccumulated, b.TotalRedeemed, b.UpdatedAt, b.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "balanceID", b.ID)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *balanceRepository) Debit(ctx context.Context, balanceID string, amount int64, at time.Time) (bool, error) {
	query := `UPDATE cashback_balances SET
			available = available - $1,
			total_redeemed = total_redeemed + $1,
			updated_at = $2
		WHERE id = $3 AND available >= $1`
	logger.DatabaseCall("UPDATE", "cashback_balances", "balanceID", balanceID, "debit", amount)

	res, err := r.db.ExecContext(ctx, query, amount, at, balanceID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "balanceID", balanceID)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	logger.DatabaseResult("UPDATE", n, nil, "balanceID", balanceID)
	return n == 1, nil
}
