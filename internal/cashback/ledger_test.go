package cashback_test

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cashback-ledger/internal/cashback"
	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/repository"
	"cashback-ledger/internal/repository/memory"
)

const (
	orgID     = "org-1"
	clientID  = "client-1"
	sellerPIN = "4321"
	userID    = "user-9"
)

type fixture struct {
	store   *memory.Store
	program domain.CashbackProgram
}

func newFixture(t *testing.T, program domain.CashbackProgram) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.PutOrganization(domain.Organization{ID: orgID, Name: "Loja", Active: true})
	store.PutClient(domain.Client{ID: clientID, OrgID: orgID, Name: "Maria"})

	hash := pinHash(t)
	uid := userID
	store.PutSeller(domain.Seller{ID: "seller-1", OrgID: orgID, Name: "Caixa 1", PINHash: hash, Active: true, UserID: &uid})
	store.PutSeller(domain.Seller{ID: "seller-2", OrgID: orgID, Name: "Caixa 2", PINHash: hash, Active: false})

	program.ID = "program-1"
	program.OrgID = orgID
	if program.RedemptionLimitType == "" {
		program.RedemptionLimitType = domain.RedemptionLimitNone
	}
	store.PutProgram(program)
	return &fixture{store: store, program: program}
}

func pinHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(sellerPIN), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func fixedProgram(value int64, expirationDays int32) domain.CashbackProgram {
	return domain.CashbackProgram{
		AccumulationType:  domain.AccumulationFixed,
		AccumulationValue: decimal.NewFromInt(value),
		ExpirationDays:    expirationDays,
	}
}

func (f *fixture) accumulate(t *testing.T, in cashback.AccumulateInput) *cashback.AccumulateResult {
	t.Helper()
	in.OrgID, in.ClientID = orgID, clientID
	if in.Program == nil {
		in.Program = &f.program
	}
	var res *cashback.AccumulateResult
	err := f.store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
		var err error
		res, err = cashback.Accumulate(context.Background(), s, in)
		return err
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) redeem(saleValue, value int64) (*cashback.RedeemResult, error) {
	var res *cashback.RedeemResult
	err := f.store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
		var err error
		res, err = cashback.Redeem(context.Background(), s, cashback.RedeemInput{
			OrgID:              orgID,
			ClientID:           clientID,
			SaleValue:          saleValue,
			RedemptionValue:    value,
			OperatorIdentifier: sellerPIN,
		})
		return err
	})
	return res, err
}

func (f *fixture) reverse(t *testing.T, saleID string) *cashback.ReverseResult {
	t.Helper()
	var res *cashback.ReverseResult
	err := f.store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
		var err error
		res, err = cashback.ReverseSaleCashback(context.Background(), s, cashback.ReverseInput{
			OrgID: orgID, ClientID: clientID, SaleID: saleID, Reason: "venda cancelada",
		})
		return err
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) expire(t *testing.T, id string, now time.Time) *cashback.ExpireResult {
	t.Helper()
	var res *cashback.ExpireResult
	err := f.store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
		var err error
		res, err = cashback.ExpireTransaction(context.Background(), s, id, now)
		return err
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) available(t *testing.T) int64 {
	t.Helper()
	b, ok := f.store.Balance(orgID, clientID)
	require.True(t, ok, "balance should exist")
	return b.Available
}

func (f *fixture) transaction(t *testing.T, id string) domain.CashbackTransaction {
	t.Helper()
	for _, tx := range f.store.AllTransactions(orgID, clientID) {
		if tx.ID == id {
			return tx
		}
	}
	t.Fatalf("transaction %s not found", id)
	return domain.CashbackTransaction{}
}

func (f *fixture) ofType(typ domain.TransactionType) []domain.CashbackTransaction {
	var out []domain.CashbackTransaction
	for _, tx := range f.store.AllTransactions(orgID, clientID) {
		if tx.Type == typ {
			out = append(out, tx)
		}
	}
	return out
}

// assertReconstructible checks that available equals the unspent credit
// of the live accumulations.
func (f *fixture) assertReconstructible(t *testing.T) {
	t.Helper()
	var credit int64
	for _, tx := range f.store.AllTransactions(orgID, clientID) {
		if tx.Type == domain.TransactionTypeAccumulation && !tx.Retired() {
			credit += tx.RemainingAmount
		}
	}
	assert.Equal(t, credit, f.available(t))
}

func TestAccumulate_FixedRule(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	before := time.Now().UTC()

	res := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 10000})

	assert.Equal(t, int64(500), res.AccumulatedValue)
	assert.Equal(t, int64(0), res.PreviousBalance)
	assert.Equal(t, int64(500), res.NewBalance)
	assert.Equal(t, int64(500), res.NewAccumulatedTotal)
	require.NotNil(t, res.TransactionID)

	tx := f.transaction(t, *res.TransactionID)
	assert.Equal(t, domain.TransactionTypeAccumulation, tx.Type)
	assert.Equal(t, domain.TransactionStatusActive, tx.Status)
	assert.Equal(t, int64(500), tx.RemainingAmount)
	assert.Equal(t, int64(0), tx.BalanceBefore)
	assert.Equal(t, int64(500), tx.BalanceAfter)
	require.NotNil(t, tx.SaleID)
	assert.Equal(t, "sale-1", *tx.SaleID)
	require.NotNil(t, tx.ExpiresAt)
	assert.WithinDuration(t, before.AddDate(0, 0, 30), *tx.ExpiresAt, time.Minute)

	assert.Equal(t, int64(500), f.available(t))
	f.assertReconstructible(t)
}

func TestAccumulate_PercentageRuleWithMinimum(t *testing.T) {
	f := newFixture(t, domain.CashbackProgram{
		AccumulationType:  domain.AccumulationPercentage,
		AccumulationValue: decimal.NewFromInt(10),
		MinimumSaleValue:  5000,
	})

	res := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 3000})
	assert.Equal(t, int64(0), res.AccumulatedValue)
	assert.Nil(t, res.TransactionID)
	assert.Empty(t, f.store.AllTransactions(orgID, clientID))
	assert.Equal(t, int64(0), f.available(t))

	res = f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-2", SaleValue: 20000})
	assert.Equal(t, int64(2000), res.AccumulatedValue)
	require.NotNil(t, res.TransactionID)
	tx := f.transaction(t, *res.TransactionID)
	assert.Nil(t, tx.ExpiresAt, "programs without expiration days never expire")
}

func TestAccumulate_OverrideAndAttribution(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 0))
	override := int64(1500)
	campaign := "camp-1"
	seller := "seller-1"
	at := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	res := f.accumulate(t, cashback.AccumulateInput{
		SaleID:           "sale-1",
		SaleValue:        10000,
		OverrideValue:    &override,
		CampaignID:       &campaign,
		OperatorSellerID: &seller,
		Timestamp:        &at,
		Metadata:         map[string]any{"multiplier": 3},
	})

	assert.Equal(t, int64(1500), res.AccumulatedValue)
	tx := f.transaction(t, *res.TransactionID)
	assert.Equal(t, &campaign, tx.CampaignID)
	assert.Equal(t, &seller, tx.OperatorSellerID)
	assert.Equal(t, 3, tx.Metadata["multiplier"])
}

func TestAccumulate_SaleIsCreditedOnce(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))

	first := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 10000})
	require.NotNil(t, first.TransactionID)

	again := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 10000})
	assert.True(t, again.AlreadyCredited)
	assert.Nil(t, again.TransactionID)
	assert.Equal(t, int64(0), again.AccumulatedValue)
	assert.Equal(t, int64(500), again.NewBalance)
	assert.Len(t, f.ofType(domain.TransactionTypeAccumulation), 1)
	assert.Equal(t, int64(500), f.available(t))

	f.reverse(t, "sale-1")
	afterCancel := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 10000})
	assert.True(t, afterCancel.AlreadyCredited, "a canceled sale does not earn again")
	assert.Equal(t, int64(0), f.available(t))
	assert.Len(t, f.ofType(domain.TransactionTypeAccumulation), 1)
	f.assertReconstructible(t)
}

func TestAccumulate_RequiresProgram(t *testing.T) {
	store := memory.NewStore()
	err := store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
		_, err := cashback.Accumulate(context.Background(), s, cashback.AccumulateInput{OrgID: orgID, ClientID: clientID})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccumulate_RollsBackWithCallerTransaction(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	saleErr := errors.New("insert sale failed")

	err := f.store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
		if _, err := cashback.Accumulate(context.Background(), s, cashback.AccumulateInput{
			OrgID: orgID, ClientID: clientID, SaleID: "sale-1", SaleValue: 10000, Program: &f.program,
		}); err != nil {
			return err
		}
		return saleErr
	})

	assert.ErrorIs(t, err, saleErr)
	_, ok := f.store.Balance(orgID, clientID)
	assert.False(t, ok)
	assert.Empty(t, f.store.AllTransactions(orgID, clientID))
}

func TestEnsureBalance_ReturnsExisting(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	f.store.PutBalance(domain.CashbackBalance{ID: "bal-1", OrgID: orgID, ClientID: clientID, ProgramID: f.program.ID, Available: 70})

	err := f.store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
		b, err := cashback.EnsureBalance(context.Background(), s, orgID, clientID, f.program.ID)
		require.NoError(t, err)
		assert.Equal(t, "bal-1", b.ID)
		assert.Equal(t, int64(70), b.Available)
		return nil
	})
	require.NoError(t, err)
}

func TestRedeem_FixedLimit(t *testing.T) {
	p := fixedProgram(1000, 30)
	p.RedemptionLimitType = domain.RedemptionLimitFixed
	p.RedemptionLimitValue = decimal.NewFromInt(800)
	f := newFixture(t, p)
	f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 5000})

	_, err := f.redeem(5000, 900)
	require.ErrorIs(t, err, domain.ErrBadRequest)
	assert.Contains(t, err.Error(), "Máximo: R$ 8.00")
	assert.Equal(t, int64(1000), f.available(t))

	res, err := f.redeem(5000, 800)
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.NewBalance)
	assert.Equal(t, int64(800), res.NewRedeemedTotal)
	assert.Equal(t, "seller-1", res.SellerID)

	redemption := f.transaction(t, res.TransactionID)
	assert.Equal(t, domain.TransactionTypeRedemption, redemption.Type)
	assert.Equal(t, domain.TransactionStatusActive, redemption.Status)
	assert.Equal(t, int64(0), redemption.RemainingAmount)
	assert.Equal(t, int64(1000), redemption.BalanceBefore)
	assert.Equal(t, int64(200), redemption.BalanceAfter)
	assert.Nil(t, redemption.SaleID)
	assert.Nil(t, redemption.ExpiresAt)
	require.NotNil(t, redemption.OperatorUserID)
	assert.Equal(t, userID, *redemption.OperatorUserID)
	assert.Equal(t, "seller-1", *redemption.OperatorSellerID)

	accumulation := f.ofType(domain.TransactionTypeAccumulation)[0]
	assert.Equal(t, int64(200), accumulation.RemainingAmount)
	assert.Equal(t, domain.TransactionStatusActive, accumulation.Status)
	f.assertReconstructible(t)
}

func TestRedeem_ConsumesEarliestExpiringCreditFirst(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	older := time.Now().UTC().AddDate(0, 0, -10)
	first := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 1000})
	earlier := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-2", SaleValue: 1000, Timestamp: &older})

	_, err := f.redeem(0, 700)
	require.NoError(t, err)

	consumed := f.transaction(t, *earlier.TransactionID)
	assert.Equal(t, domain.TransactionStatusConsumed, consumed.Status)
	assert.Equal(t, int64(0), consumed.RemainingAmount)

	partial := f.transaction(t, *first.TransactionID)
	assert.Equal(t, domain.TransactionStatusActive, partial.Status)
	assert.Equal(t, int64(300), partial.RemainingAmount)
	f.assertReconstructible(t)
}

func TestRedeem_Preconditions(t *testing.T) {
	t.Run("NonPositiveValue", func(t *testing.T) {
		f := newFixture(t, fixedProgram(500, 30))
		_, err := f.redeem(0, 0)
		assert.ErrorIs(t, err, domain.ErrBadRequest)
	})

	t.Run("UnknownOrganizationBeforeValue", func(t *testing.T) {
		f := newFixture(t, fixedProgram(500, 30))
		err := f.store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
			_, err := cashback.Redeem(context.Background(), s, cashback.RedeemInput{
				OrgID: "org-x", ClientID: clientID, RedemptionValue: 0, OperatorIdentifier: sellerPIN,
			})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("WrongOperatorBeforeValue", func(t *testing.T) {
		f := newFixture(t, fixedProgram(500, 30))
		err := f.store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
			_, err := cashback.Redeem(context.Background(), s, cashback.RedeemInput{
				OrgID: orgID, ClientID: clientID, RedemptionValue: -5, OperatorIdentifier: "0000",
			})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UnknownOrganization", func(t *testing.T) {
		f := newFixture(t, fixedProgram(500, 30))
		err := f.store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
			_, err := cashback.Redeem(context.Background(), s, cashback.RedeemInput{
				OrgID: "org-x", ClientID: clientID, RedemptionValue: 100, OperatorIdentifier: sellerPIN,
			})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("WrongOperator", func(t *testing.T) {
		f := newFixture(t, fixedProgram(500, 30))
		err := f.store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
			_, err := cashback.Redeem(context.Background(), s, cashback.RedeemInput{
				OrgID: orgID, ClientID: clientID, RedemptionValue: 100, OperatorIdentifier: "0000",
			})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("NoProgram", func(t *testing.T) {
		store := memory.NewStore()
		store.PutOrganization(domain.Organization{ID: orgID, Active: true})
		store.PutSeller(domain.Seller{ID: "seller-1", OrgID: orgID, PINHash: pinHash(t), Active: true})

		err := store.RunInTx(context.Background(), func(s repository.CashbackStore) error {
			_, err := cashback.Redeem(context.Background(), s, cashback.RedeemInput{
				OrgID: orgID, ClientID: clientID, RedemptionValue: 100, OperatorIdentifier: sellerPIN,
			})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("PercentageLimitWithoutSale", func(t *testing.T) {
		p := fixedProgram(500, 30)
		p.RedemptionLimitType = domain.RedemptionLimitPercentage
		p.RedemptionLimitValue = decimal.NewFromInt(50)
		f := newFixture(t, p)
		f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 1000})

		_, err := f.redeem(0, 100)
		assert.ErrorIs(t, err, domain.ErrBadRequest)

		res, err := f.redeem(400, 200)
		require.NoError(t, err)
		assert.Equal(t, int64(300), res.NewBalance)
	})

	t.Run("NoBalance", func(t *testing.T) {
		f := newFixture(t, fixedProgram(500, 30))
		_, err := f.redeem(0, 100)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		f := newFixture(t, fixedProgram(500, 30))
		f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 1000})

		_, err := f.redeem(0, 501)
		require.ErrorIs(t, err, domain.ErrBadRequest)
		assert.Equal(t, "Saldo insuficiente.", domain.MessageOf(err, ""))
		assert.Len(t, f.ofType(domain.TransactionTypeRedemption), 0)
	})
}

func TestReverseSaleCashback_ReversesUnspentCredit(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	campaign := "camp-1"
	other := "camp-2"
	res := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 10000, CampaignID: &campaign})
	f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-2", SaleValue: 10000})

	sent := time.Now().UTC()
	f.store.PutInteraction(domain.ScheduledInteraction{ID: "i-pending", OrgID: orgID, ClientID: clientID, CampaignID: &campaign})
	f.store.PutInteraction(domain.ScheduledInteraction{ID: "i-sent", OrgID: orgID, ClientID: clientID, CampaignID: &campaign, ExecutedAt: &sent})
	f.store.PutInteraction(domain.ScheduledInteraction{ID: "i-other", OrgID: orgID, ClientID: clientID, CampaignID: &other})
	f.store.PutInteraction(domain.ScheduledInteraction{ID: "i-linked", OrgID: orgID, ClientID: clientID, CashbackTransactionID: res.TransactionID})

	out := f.reverse(t, "sale-1")

	assert.Equal(t, 1, out.ReversedTransactionsCount)
	assert.Equal(t, int64(500), out.TotalReversedAmount)
	assert.Equal(t, int64(2), out.CanceledInteractionsCount)
	require.NotNil(t, out.NewBalance)
	assert.Equal(t, int64(500), *out.NewBalance)
	assert.Equal(t, int64(500), f.available(t))

	original := f.transaction(t, *res.TransactionID)
	assert.Equal(t, domain.TransactionStatusExpired, original.Status)
	assert.Equal(t, int64(0), original.RemainingAmount)

	cancellations := f.ofType(domain.TransactionTypeCancellation)
	require.Len(t, cancellations, 1)
	assert.Equal(t, int64(-500), cancellations[0].Amount)
	assert.Equal(t, int64(1000), cancellations[0].BalanceBefore)
	assert.Equal(t, int64(500), cancellations[0].BalanceAfter)
	assert.Equal(t, *res.TransactionID, cancellations[0].Metadata["source_transaction_id"])
	assert.Equal(t, "venda cancelada", cancellations[0].Metadata["reason"])

	_, ok := f.store.Interaction("i-pending")
	assert.False(t, ok)
	_, ok = f.store.Interaction("i-linked")
	assert.False(t, ok)
	_, ok = f.store.Interaction("i-sent")
	assert.True(t, ok)
	_, ok = f.store.Interaction("i-other")
	assert.True(t, ok)

	b, _ := f.store.Balance(orgID, clientID)
	assert.Equal(t, int64(1000), b.TotalAccumulated, "lifetime totals are kept")
	f.assertReconstructible(t)
}

func TestReverseSaleCashback_IsIdempotent(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 10000})

	first := f.reverse(t, "sale-1")
	assert.Equal(t, 1, first.ReversedTransactionsCount)

	second := f.reverse(t, "sale-1")
	assert.Equal(t, &cashback.ReverseResult{}, second)
	assert.Len(t, f.ofType(domain.TransactionTypeCancellation), 1)
	assert.Equal(t, int64(0), f.available(t))
}

func TestReverseSaleCashback_SpentCreditIsNotClawedBack(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	res := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 10000})
	_, err := f.redeem(0, 500)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionStatusConsumed, f.transaction(t, *res.TransactionID).Status)

	out := f.reverse(t, "sale-1")

	assert.Equal(t, 1, out.ReversedTransactionsCount)
	assert.Equal(t, int64(0), out.TotalReversedAmount)
	assert.Nil(t, out.NewBalance)
	assert.Equal(t, domain.TransactionStatusExpired, f.transaction(t, *res.TransactionID).Status)
	assert.Empty(t, f.ofType(domain.TransactionTypeCancellation))
	assert.Equal(t, int64(0), f.available(t))
}

func TestReverseSaleCashback_PartiallySpentCredit(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 10000})
	_, err := f.redeem(0, 200)
	require.NoError(t, err)

	out := f.reverse(t, "sale-1")

	assert.Equal(t, int64(300), out.TotalReversedAmount)
	assert.Equal(t, int64(0), f.available(t))
	f.assertReconstructible(t)
}

func TestReverseSaleCashback_SkipsMissingBalance(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	sale := "sale-1"
	f.store.PutTransaction(domain.CashbackTransaction{
		ID: "tx-orphan", OrgID: orgID, ClientID: clientID, ProgramID: "program-gone",
		Type: domain.TransactionTypeAccumulation, Status: domain.TransactionStatusActive,
		Amount: 500, RemainingAmount: 500, SaleID: &sale,
	})

	out := f.reverse(t, sale)

	assert.Equal(t, 0, out.ReversedTransactionsCount)
	assert.Equal(t, domain.TransactionStatusActive, f.transaction(t, "tx-orphan").Status)
}

func TestReverseSaleCashback_AllowsNegativeBalance(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	sale := "sale-1"
	f.store.PutBalance(domain.CashbackBalance{ID: "bal-1", OrgID: orgID, ClientID: clientID, ProgramID: f.program.ID, Available: 100, TotalAccumulated: 500})
	f.store.PutTransaction(domain.CashbackTransaction{
		ID: "tx-1", OrgID: orgID, ClientID: clientID, ProgramID: f.program.ID,
		Type: domain.TransactionTypeAccumulation, Status: domain.TransactionStatusActive,
		Amount: 500, RemainingAmount: 500, SaleID: &sale,
	})

	out := f.reverse(t, sale)

	assert.Equal(t, int64(500), out.TotalReversedAmount)
	assert.Equal(t, int64(-400), f.available(t))
}

func TestExpireTransaction(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	past := time.Now().UTC().AddDate(0, 0, -40)
	res := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 1000, Timestamp: &past})
	fresh := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-2", SaleValue: 1000})
	_, err := f.redeem(0, 200)
	require.NoError(t, err)

	now := time.Now().UTC()
	out := f.expire(t, *res.TransactionID, now)

	assert.True(t, out.Expired)
	assert.Equal(t, int64(300), out.ExpiredAmount)
	assert.Equal(t, int64(500), f.available(t))
	assert.Equal(t, domain.TransactionStatusExpired, f.transaction(t, *res.TransactionID).Status)

	cancellations := f.ofType(domain.TransactionTypeCancellation)
	require.Len(t, cancellations, 1)
	assert.Equal(t, int64(-300), cancellations[0].Amount)
	assert.Equal(t, cashback.ReasonExpired, cancellations[0].Metadata["reason"])

	again := f.expire(t, *res.TransactionID, now)
	assert.False(t, again.Expired)

	notDue := f.expire(t, *fresh.TransactionID, now)
	assert.False(t, notDue.Expired)
	f.assertReconstructible(t)
}

func TestExpireTransaction_ConsumedCredit(t *testing.T) {
	f := newFixture(t, fixedProgram(500, 30))
	past := time.Now().UTC().AddDate(0, 0, -40)
	res := f.accumulate(t, cashback.AccumulateInput{SaleID: "sale-1", SaleValue: 1000, Timestamp: &past})
	_, err := f.redeem(0, 500)
	require.NoError(t, err)

	out := f.expire(t, *res.TransactionID, time.Now().UTC())

	assert.True(t, out.Expired)
	assert.Equal(t, int64(0), out.ExpiredAmount)
	assert.Empty(t, f.ofType(domain.TransactionTypeCancellation))
}

func TestLedger_BalanceIsReconstructible(t *testing.T) {
	f := newFixture(t, domain.CashbackProgram{
		AccumulationType:  domain.AccumulationPercentage,
		AccumulationValue: decimal.RequireFromString("7.5"),
		MinimumSaleValue:  1000,
	})
	rng := rand.New(rand.NewSource(7))
	var sales []string

	for i := 0; i < 200; i++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(sales) == 0:
			sale := "sale-" + strconv.Itoa(i)
			sales = append(sales, sale)
			f.accumulate(t, cashback.AccumulateInput{SaleID: sale, SaleValue: rng.Int63n(50000)})
		case op == 1:
			b, ok := f.store.Balance(orgID, clientID)
			if !ok || b.Available == 0 {
				continue
			}
			_, err := f.redeem(0, rng.Int63n(b.Available)+1)
			require.NoError(t, err)
		default:
			f.reverse(t, sales[rng.Intn(len(sales))])
		}
		if _, ok := f.store.Balance(orgID, clientID); ok {
			f.assertReconstructible(t)
			assert.GreaterOrEqual(t, f.available(t), int64(0))
		}
	}
}
