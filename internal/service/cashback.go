package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cashback-ledger/internal/cashback"
	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/events"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/metrics"
	"cashback-ledger/internal/repository"
)

const (
	msgProgramNotFound = "Programa de cashback não encontrado."
	msgOrgNotFound     = "Organização não encontrada."
)

type Options struct {
	ExpireBatchSize int
	DefaultPageSize int32
	MaxPageSize     int32
}

type cashbackService struct {
	uow       repository.UnitOfWork
	publisher events.Publisher
	metrics   *metrics.LedgerMetrics
	opts      Options
}

func NewCashbackService(uow repository.UnitOfWork, publisher events.Publisher, m *metrics.LedgerMetrics, opts Options) CashbackService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if opts.ExpireBatchSize <= 0 {
		opts.ExpireBatchSize = 500
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	return &cashbackService{uow: uow, publisher: publisher, metrics: m, opts: opts}
}

func validateProgram(p *domain.CashbackProgram) error {
	if p.OrgID == "" {
		return domain.BadRequest("Organização é obrigatória.")
	}
	if !p.AccumulationType.Valid() {
		return domain.BadRequest("Tipo de acúmulo inválido.")
	}
	if p.AccumulationValue.IsNegative() {
		return domain.BadRequest("O valor de acúmulo não pode ser negativo.")
	}
	if p.RedemptionLimitType == "" {
		p.RedemptionLimitType = domain.RedemptionLimitNone
	}
	if !p.RedemptionLimitType.Valid() {
		return domain.BadRequest("Tipo de limite de resgate inválido.")
	}
	if p.RedemptionLimitValue.IsNegative() {
		return domain.BadRequest("O limite de resgate não pode ser negativo.")
	}
	if p.MinimumSaleValue < 0 || p.ExpirationDays < 0 {
		return domain.BadRequest("Valores do programa não podem ser negativos.")
	}
	return nil
}

// CreateProgram creates the org's only program and backfills a zero balance
// for every existing client.
func (s *cashbackService) CreateProgram(ctx context.Context, program *domain.CashbackProgram) error {
	logger.EnterMethod("cashbackService.CreateProgram", "orgID", program.OrgID, "type", program.AccumulationType)

	if err := validateProgram(program); err != nil {
		logger.ExitMethodWithError("cashbackService.CreateProgram", err, "orgID", program.OrgID)
		return err
	}

	var backfilled int
	err := s.uow.RunInTx(ctx, func(store repository.CashbackStore) error {
		if _, err := store.Organizations().GetByID(ctx, program.OrgID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NotFound(msgOrgNotFound)
			}
			return err
		}
		existing, err := store.Programs().ListByOrg(ctx, program.OrgID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.BadRequest("A organização já possui um programa de cashback.")
		}

		program.ID = uuid.NewString()
		if err := store.Programs().Create(ctx, program); err != nil {
			return fmt.Errorf("create program: %w", err)
		}

		clientIDs, err := store.Clients().ListIDsByOrg(ctx, program.OrgID)
		if err != nil {
			return fmt.Errorf("list clients: %w", err)
		}
		for _, clientID := range clientIDs {
			if _, err := cashback.EnsureBalance(ctx, store, program.OrgID, clientID, program.ID); err != nil {
				return err
			}
		}
		backfilled = len(clientIDs)
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("cashbackService.CreateProgram", err, "orgID", program.OrgID)
		return err
	}

	logger.ExitMethod("cashbackService.CreateProgram", "programID", program.ID, "backfilledBalances", backfilled)
	return nil
}

func (s *cashbackService) UpdateProgram(ctx context.Context, program *domain.CashbackProgram) error {
	logger.EnterMethod("cashbackService.UpdateProgram", "orgID", program.OrgID)

	if err := validateProgram(program); err != nil {
		logger.ExitMethodWithError("cashbackService.UpdateProgram", err, "orgID", program.OrgID)
		return err
	}

	err := s.uow.RunInTx(ctx, func(store repository.CashbackStore) error {
		existing, err := store.Programs().GetByOrg(ctx, program.OrgID)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound(msgProgramNotFound)
		}
		if err != nil {
			return err
		}
		program.ID = existing.ID
		program.CreatedAt = existing.CreatedAt
		return store.Programs().Update(ctx, program)
	})
	if err != nil {
		logger.ExitMethodWithError("cashbackService.UpdateProgram", err, "orgID", program.OrgID)
		return err
	}

	logger.ExitMethod("cashbackService.UpdateProgram", "programID", program.ID)
	return nil
}

func (s *cashbackService) GetProgram(ctx context.Context, orgID string) (*domain.CashbackProgram, error) {
	p, err := s.uow.Programs().GetByOrg(ctx, orgID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NotFound(msgProgramNotFound)
	}
	return p, err
}

// EnsureClientBalance is called when a client is created. Orgs without a
// program are left alone.
func (s *cashbackService) EnsureClientBalance(ctx context.Context, orgID, clientID string) error {
	return s.uow.RunInTx(ctx, func(store repository.CashbackStore) error {
		program, err := store.Programs().GetByOrg(ctx, orgID)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Debug("No cashback program, balance not created", "orgID", orgID, "clientID", clientID)
			return nil
		}
		if err != nil {
			return err
		}
		_, err = cashback.EnsureBalance(ctx, store, orgID, clientID, program.ID)
		return err
	})
}

func (s *cashbackService) GetBalance(ctx context.Context, orgID, clientID string) (*domain.CashbackBalance, error) {
	b, err := s.uow.Balances().Get(ctx, orgID, clientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NotFound("Saldo de cashback não encontrado.")
	}
	return b, err
}

func (s *cashbackService) ListTransactions(ctx context.Context, orgID, clientID string, page, pageSize int32) ([]domain.CashbackTransaction, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.opts.DefaultPageSize
	}
	if pageSize > s.opts.MaxPageSize {
		pageSize = s.opts.MaxPageSize
	}
	return s.uow.Transactions().ListByClient(ctx, orgID, clientID, page, pageSize)
}

// HandleSaleCompleted accumulates cashback for a completed sale. Sales of
// orgs without a program earn nothing.
func (s *cashbackService) HandleSaleCompleted(ctx context.Context, ev domain.SaleEvent) (*cashback.AccumulateResult, error) {
	started := time.Now()
	if ev.SaleValue < 0 {
		return nil, domain.BadRequest("O valor da venda não pode ser negativo.")
	}

	var res *cashback.AccumulateResult
	err := s.uow.RunInTx(ctx, func(store repository.CashbackStore) error {
		program, err := store.Programs().GetByOrg(ctx, ev.OrgID)
		if errors.Is(err, repository.ErrNotFound) {
			res = &cashback.AccumulateResult{}
			return nil
		}
		if err != nil {
			return err
		}

		res, err = cashback.Accumulate(ctx, store, cashback.AccumulateInput{
			OrgID:            ev.OrgID,
			ClientID:         ev.ClientID,
			SaleID:           ev.SaleID,
			SaleValue:        ev.SaleValue,
			Program:          program,
			OperatorUserID:   ev.OperatorUserID,
			OperatorSellerID: ev.OperatorSellerID,
			CampaignID:       ev.CampaignID,
			Timestamp:        ev.Timestamp,
			Metadata:         ev.Metadata,
			OverrideValue:    ev.OverrideValue,
		})
		return err
	})

	var amount int64
	if res != nil {
		amount = res.AccumulatedValue
	}
	s.metrics.Observe(metrics.OpAccumulate, started, amount, err)
	if err != nil {
		logger.Error("Cashback accumulation failed", "orgID", ev.OrgID, "saleID", ev.SaleID, "error", err)
		return nil, err
	}

	if res.TransactionID != nil {
		s.publish(ctx, domain.LedgerEvent{
			Type:          domain.EventCashbackAccumulated,
			OrgID:         ev.OrgID,
			ClientID:      ev.ClientID,
			SaleID:        ev.SaleID,
			TransactionID: *res.TransactionID,
			Amount:        res.AccumulatedValue,
			NewBalance:    res.NewBalance,
		})
	}
	return res, nil
}

func (s *cashbackService) HandleSaleCanceled(ctx context.Context, ev domain.SaleEvent) (*cashback.ReverseResult, error) {
	started := time.Now()

	var res *cashback.ReverseResult
	err := s.uow.RunInTx(ctx, func(store repository.CashbackStore) error {
		var err error
		res, err = cashback.ReverseSaleCashback(ctx, store, cashback.ReverseInput{
			OrgID:    ev.OrgID,
			ClientID: ev.ClientID,
			SaleID:   ev.SaleID,
			Reason:   ev.Reason,
		})
		return err
	})

	var amount int64
	if res != nil {
		amount = res.TotalReversedAmount
	}
	s.metrics.Observe(metrics.OpReverse, started, amount, err)
	if err != nil {
		logger.Error("Cashback reversal failed", "orgID", ev.OrgID, "saleID", ev.SaleID, "error", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.InteractionsCanceled.Add(float64(res.CanceledInteractionsCount))
		if res.NewBalance != nil && *res.NewBalance < 0 {
			s.metrics.NegativeBalances.Inc()
		}
	}
	if res.ReversedTransactionsCount > 0 {
		out := domain.LedgerEvent{
			Type:     domain.EventCashbackReversed,
			OrgID:    ev.OrgID,
			ClientID: ev.ClientID,
			SaleID:   ev.SaleID,
			Amount:   res.TotalReversedAmount,
		}
		if res.NewBalance != nil {
			out.NewBalance = *res.NewBalance
		}
		s.publish(ctx, out)
	}
	return res, nil
}

func (s *cashbackService) Redeem(ctx context.Context, in cashback.RedeemInput) (*cashback.RedeemResult, error) {
	started := time.Now()

	var res *cashback.RedeemResult
	err := s.uow.RunInTx(ctx, func(store repository.CashbackStore) error {
		var err error
		res, err = cashback.Redeem(ctx, store, in)
		return err
	})
	s.metrics.Observe(metrics.OpRedeem, started, in.RedemptionValue, err)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.LedgerEvent{
		Type:          domain.EventCashbackRedeemed,
		OrgID:         in.OrgID,
		ClientID:      in.ClientID,
		TransactionID: res.TransactionID,
		Amount:        in.RedemptionValue,
		NewBalance:    res.NewBalance,
	})
	return res, nil
}

// ExpireDueCashback retires every accumulation due at now. Each entry runs
// in its own transaction so one failure does not hold back the rest.
func (s *cashbackService) ExpireDueCashback(ctx context.Context, now time.Time) (*ExpireSummary, error) {
	logger.EnterMethod("cashbackService.ExpireDueCashback", "now", now)
	summary := &ExpireSummary{}
	failed := map[string]bool{}

	for {
		due, err := s.uow.Transactions().ListDueForExpiry(ctx, now, s.opts.ExpireBatchSize)
		if err != nil {
			logger.ExitMethodWithError("cashbackService.ExpireDueCashback", err)
			return summary, fmt.Errorf("list due transactions: %w", err)
		}

		progress := 0
		for _, t := range due {
			if failed[t.ID] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			summary.Scanned++
			if s.expireOne(ctx, t.ID, now, summary) {
				progress++
			} else {
				failed[t.ID] = true
			}
		}
		if len(due) < s.opts.ExpireBatchSize || progress == 0 {
			break
		}
	}

	logger.ExitMethod("cashbackService.ExpireDueCashback",
		"scanned", summary.Scanned, "expired", summary.Expired, "failed", summary.Failed, "amount", summary.ExpiredAmount)
	return summary, nil
}

func (s *cashbackService) expireOne(ctx context.Context, id string, now time.Time, summary *ExpireSummary) bool {
	started := time.Now()
	var res *cashback.ExpireResult
	err := s.uow.RunInTx(ctx, func(store repository.CashbackStore) error {
		var err error
		res, err = cashback.ExpireTransaction(ctx, store, id, now)
		return err
	})

	var amount int64
	if res != nil {
		amount = res.ExpiredAmount
	}
	s.metrics.Observe(metrics.OpExpire, started, amount, err)
	if err != nil {
		summary.Failed++
		logger.Error("Failed to expire cashback", "transactionID", id, "error", err)
		return false
	}
	if !res.Expired {
		return true
	}

	summary.Expired++
	summary.ExpiredAmount += res.ExpiredAmount
	ev := domain.LedgerEvent{
		Type:          domain.EventCashbackExpired,
		OrgID:         res.OrgID,
		ClientID:      res.ClientID,
		TransactionID: id,
		Amount:        res.ExpiredAmount,
	}
	if res.NewBalance != nil {
		ev.NewBalance = *res.NewBalance
	}
	s.publish(ctx, ev)
	return true
}

// publish is best effort; the ledger change is already committed.
func (s *cashbackService) publish(ctx context.Context, ev domain.LedgerEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.Warn("Failed to publish ledger event", "type", ev.Type, "clientID", ev.ClientID, "error", err)
		if s.metrics != nil {
			s.metrics.EventsPublishFailed.Inc()
		}
	}
}
