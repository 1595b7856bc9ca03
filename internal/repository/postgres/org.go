package postgres

import (
	"context"
	"database/sql"
	"errors"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/repository"
)

type organizationRepository struct {
	db repository.DBTX
}

func NewOrganizationRepository(db repository.DBTX) repository.OrganizationRepository {
	return &organizationRepository{db: db}
}

func (r *organizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	query := `SELECT id, name, active, created_at FROM organizations WHERE id = $1`
	logger.DatabaseCall("SELECT", "organizations", "orgID", id)

	org := &domain.Organization{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&org.ID, &org.Name, &org.Active, &org.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err, "orgID", id)
		return nil, err
	}
	return org, nil
}

type sellerRepository struct {
	db repository.DBTX
}

func NewSellerRepository(db repository.DBTX) repository.SellerRepository {
	return &sellerRepository{db: db}
}

func (r *sellerRepository) ListActiveByOrg(ctx context.Context, orgID string) ([]domain.Seller, error) {
	query := `SELECT id, org_id, name, pin_hash, active, user_id
	          FROM sellers WHERE org_id = $1 AND active = true ORDER BY name`
	logger.DatabaseCall("SELECT", "sellers", "orgID", orgID)

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sellers []domain.Seller
	for rows.Next() {
		var s domain.Seller
		if err := rows.Scan(&s.ID, &s.OrgID, &s.Name, &s.PINHash, &s.Active, &s.UserID); err != nil {
			return nil, err
		}
		sellers = append(sellers, s)
	}
	return sellers, rows.Err()
}

type clientRepository struct {
	db repository.DBTX
}

func NewClientRepository(db repository.DBTX) repository.ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) ListIDsByOrg(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM clients WHERE org_id = $1`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
