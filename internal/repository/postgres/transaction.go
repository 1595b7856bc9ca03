package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/repository"
)

type transactionRepository struct {
	db repository.DBTX
}

func NewTransactionRepository(db repository.DBTX) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `id, org_id, client_id, program_id, type, status, amount, remaining_amount,
	balance_before, balance_after, sale_id, campaign_id, expires_at, operator_user_id,
	operator_seller_id, metadata, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.CashbackTransaction, error) {
	t := &domain.CashbackTransaction{}
	var metadata []byte
	err := row.Scan(&t.ID, &t.OrgID, &t.ClientID, &t.ProgramID, &t.Type, &t.Status, &t.Amount, &t.RemainingAmount,
		&t.BalanceBefore, &t.BalanceAfter, &t.SaleID, &t.CampaignID, &t.ExpiresAt, &t.OperatorUserID,
		&t.OperatorSellerID, &metadata, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of transaction %s: %w", t.ID, err)
		}
	}
	return t, nil
}

func (r *transactionRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.CashbackTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []domain.CashbackTransaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (r *transactionRepository) Create(ctx context.Context, t *domain.CashbackTransaction) error {
	logger.EnterMethod("transactionRepository.Create", "type", t.Type, "clientID", t.ClientID, "amount", t.Amount)

	var metadata []byte
	if t.Metadata != nil {
		var err error
		metadata, err = json.Marshal(t.Metadata)
		if err != nil {
			logger.ExitMethodWithError("transactionRepository.Create", err, "reason", "failed to marshal metadata")
			return err
		}
	}

	query := `INSERT INTO cashback_transactions (` + transactionColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.OrgID, t.ClientID, t.ProgramID, t.Type, t.Status, t.Amount, t.RemainingAmount,
		t.BalanceBefore, t.BalanceAfter, t.SaleID, t.CampaignID, t.ExpiresAt, t.OperatorUserID,
		t.OperatorSellerID, metadata, t.CreatedAt,
	)
	if err != nil {
		logger.ExitMethodWithError("transactionRepository.Create", err, "transactionID", t.ID)
		return err
	}

	logger.ExitMethod("transactionRepository.Create", "transactionID", t.ID)
	return nil
}

func (r *transactionRepository) GetForUpdate(ctx context.Context, id string) (*domain.CashbackTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM cashback_transactions WHERE id = $1 FOR UPDATE`
	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return t, err
}

func (r *transactionRepository) HasSaleAccumulation(ctx context.Context, orgID, clientID, saleID string) (bool, error) {
	query := `SELECT EXISTS (
	            SELECT 1 FROM cashback_transactions
	            WHERE org_id = $1 AND client_id = $2 AND sale_id = $3 AND type = 'ACCUMULATION')`
	logger.DatabaseCall("SELECT", "cashback_transactions", "saleID", saleID)

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, orgID, clientID, saleID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *transactionRepository) ListSaleAccumulationsForUpdate(ctx context.Context, orgID, clientID, saleID string) ([]domain.CashbackTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM cashback_transactions
	          WHERE org_id = $1 AND client_id = $2 AND sale_id = $3
	            AND type = 'ACCUMULATION' AND status IN ('ACTIVE', 'CONSUMED')
	          ORDER BY created_at
	          FOR UPDATE`
	logger.DatabaseCall("SELECT FOR UPDATE", "cashback_transactions", "saleID", saleID)
	return r.queryTransactions(ctx, query, orgID, clientID, saleID)
}

func (r *transactionRepository) ListConsumableForUpdate(ctx context.Context, orgID, clientID, programID string) ([]domain.CashbackTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM cashback_transactions
	          WHERE org_id = $1 AND client_id = $2 AND program_id = $3
	            AND type = 'ACCUMULATION' AND status = 'ACTIVE' AND remaining_amount > 0
	          ORDER BY expires_at ASC NULLS LAST, created_at ASC
	          FOR UPDATE`
	return r.queryTransactions(ctx, query, orgID, clientID, programID)
}

func (r *transactionRepository) UpdateRemaining(ctx context.Context, id string, remaining int64, status domain.TransactionStatus) error {
	query := `UPDATE cashback_transactions SET remaining_amount = $1, status = $2
	          WHERE id = $3 AND status <> 'EXPIRED'`
	res, err := r.db.ExecContext(ctx, query, remaining, status, id)
	if err != nil {
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

func (r *transactionRepository) Expire(ctx context.Context, id string) error {
	query := `UPDATE cashback_transactions SET status = 'EXPIRED', remaining_amount = 0 WHERE id = $1`
	logger.DatabaseCall("UPDATE", "cashback_transactions", "transactionID", id, "status", domain.TransactionStatusExpired)

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "transactionID", id)
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

func (r *transactionRepository) ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]domain.CashbackTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM cashback_transactions
	          WHERE type = 'ACCUMULATION' AND status IN ('ACTIVE', 'CONSUMED')
	            AND expires_at IS NOT NULL AND expires_at <= $1
	          ORDER BY expires_at
	          LIMIT $2`
	return r.queryTransactions(ctx, query, now, limit)
}

func (r *transactionRepository) ListByClient(ctx context.Context, orgID, clientID string, page, pageSize int32) ([]domain.CashbackTransaction, int32, error) {
	offset := int64(page-1) * int64(pageSize)
	query := `SELECT ` + transactionColumns + ` FROM cashback_transactions
	          WHERE org_id = $1 AND client_id = $2
	          ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	txs, err := r.queryTransactions(ctx, query, orgID, clientID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}

	var count int32
	countQuery := `SELECT count(*) FROM cashback_transactions WHERE org_id = $1 AND client_id = $2`
	if err := r.db.QueryRowContext(ctx, countQuery, orgID, clientID).Scan(&count); err != nil {
		return nil, 0, err
	}
	return txs, count, nil
}
