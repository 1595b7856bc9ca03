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

type programRepository struct {
	db repository.DBTX
}

func NewProgramRepository(db repository.DBTX) repository.ProgramRepository {
	return &programRepository{db: db}
}

const programColumns = `id, org_id, accumulation_type, accumulation_value, minimum_sale_value,
	redemption_limit_type, redemption_limit_value, expiration_days, created_at, updated_at`

func scanProgram(row interface{ Scan(...any) error }, p *domain.CashbackProgram) error {
	return row.Scan(&p.ID, &p.OrgID, &p.AccumulationType, &p.AccumulationValue, &p.MinimumSaleValue,
		&p.RedemptionLimitType, &p.RedemptionLimitValue, &p.ExpirationDays, &p.CreatedAt, &p.UpdatedAt)
}

func (r *programRepository) Create(ctx context.Context, p *domain.CashbackProgram) error {
	logger.EnterMethod("programRepository.Create", "orgID", p.OrgID)

	query := `INSERT INTO cashback_programs (
			id, org_id, accumulation_type, accumulation_value, minimum_sale_value,
			redemption_limit_type, redemption_limit_value, expiration_days, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.OrgID, p.AccumulationType, p.AccumulationValue, p.MinimumSaleValue,
		p.RedemptionLimitType, p.RedemptionLimitValue, p.ExpirationDays, now, now,
	)
	if err != nil {
		logger.ExitMethodWithError("programRepository.Create", err, "orgID", p.OrgID)
		return err
	}
	p.CreatedAt, p.UpdatedAt = now, now

	logger.ExitMethod("programRepository.Create", "programID", p.ID)
	return nil
}

func (r *programRepository) Update(ctx context.Context, p *domain.CashbackProgram) error {
	logger.EnterMethod("programRepository.Update", "programID", p.ID)

	query := `UPDATE cashback_programs SET
			accumulation_type = $1,
			accumulation_value = $2,
			minimum_sale_value = $3,
			redemption_limit_type = $4,
			redemption_limit_value = $5,
			expiration_days = $6,
			updated_at = $7
		WHERE id = $8 AND org_id = $9`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		p.AccumulationType, p.AccumulationValue, p.MinimumSaleValue,
		p.RedemptionLimitType, p.RedemptionLimitValue, p.ExpirationDays, now, p.ID, p.OrgID,
	)
	if err != nil {
		logger.ExitMethodWithError("programRepository.Update", err, "programID", p.ID)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	p.UpdatedAt = now

	logger.ExitMethod("programRepository.Update", "programID", p.ID)
	return nil
}

func (r *programRepository) GetByOrg(ctx context.Context, orgID string) (*domain.CashbackProgram, error) {
	query := `SELECT ` + programColumns + ` FROM cashback_programs WHERE org_id = $1`
	logger.DatabaseCall("SELECT", "cashback_programs", "orgID", orgID)

	p := &domain.CashbackProgram{}
	err := scanProgram(r.db.QueryRowContext(ctx, query, orgID), p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *programRepository) ListByOrg(ctx context.Context, orgID string) ([]domain.CashbackProgram, error) {
	query := `SELECT ` + programColumns + ` FROM cashback_programs WHERE org_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var programs []domain.CashbackProgram
	for rows.Next() {
		var p domain.CashbackProgram
		if err := scanProgram(rows, &p); err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}
