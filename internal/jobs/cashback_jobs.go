package jobs

import (
	"context"
	"time"

	"cashback-ledger/internal/logger"
)

const expireCashbackTimeout = 30 * time.Minute

// ExpireCashback retires accumulations whose expiration date has passed and
// claws back their unspent credit.
func (jr *JobRunner) ExpireCashback() {
	jr.runWithRecovery("ExpireCashback", func() {
		ctx, cancel := context.WithTimeout(context.Background(), expireCashbackTimeout)
		defer cancel()

		summary, err := jr.services.Cashback.ExpireDueCashback(ctx, jr.now().UTC())
		if err != nil {
			logger.Error("Failed to expire cashback", "error", err)
			return
		}

		logger.Info("Expired cashback",
			"scanned", summary.Scanned,
			"expired", summary.Expired,
			"failed", summary.Failed,
			"amount", summary.ExpiredAmount,
		)
	})
}
