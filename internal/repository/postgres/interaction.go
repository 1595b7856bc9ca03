package postgres

import (
	"context"

	"github.com/lib/pq"

	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/repository"
)

type interactionRepository struct {
	db repository.DBTX
}

func NewInteractionRepository(db repository.DBTX) repository.InteractionRepository {
	return &interactionRepository{db: db}
}

func (r *interactionRepository) DeletePending(ctx context.Context, orgID, clientID string, campaignIDs, transactionIDs []string) (int64, error) {
	if len(campaignIDs) == 0 && len(transactionIDs) == 0 {
		return 0, nil
	}
	logger.EnterMethod("interactionRepository.DeletePending", "orgID", orgID, "clientID", clientID,
		"campaigns", len(campaignIDs), "transactions", len(transactionIDs))

	query := `DELETE FROM scheduled_interactions
	          WHERE org_id = $1 AND client_id = $2 AND executed_at IS NULL
	            AND (campaign_id = ANY($3) OR cashback_transaction_id = ANY($4))`
	res, err := r.db.ExecContext(ctx, query, orgID, clientID, pq.Array(campaignIDs), pq.Array(transactionIDs))
	if err != nil {
		logger.ExitMethodWithError("interactionRepository.DeletePending", err, "clientID", clientID)
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	logger.ExitMethod("interactionRepository.DeletePending", "deleted", n)
	return n, nil
}
