package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/repository"
	"cashback-ledger/internal/repository/postgres"
)

var balanceCols = []string{"id", "org_id", "client_id", "program_id", "available", "total_accumulated", "total_redeemed", "updated_at"}

func TestBalanceRepository_GetForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewBalanceRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`FROM cashback_balances\s+WHERE org_id = \$1 AND client_id = \$2 AND program_id = \$3\s+FOR UPDATE`).
			WithArgs("org-1", "client-1", "program-1").
			WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("b-1", "org-1", "client-1", "program-1", 700, 1000, 300, now))

		b, err := repo.GetForUpdate(ctx, "org-1", "client-1", "program-1")
		require.NoError(t, err)
		assert.Equal(t, "b-1", b.ID)
		assert.Equal(t, int64(700), b.Available)
		assert.Equal(t, int64(1000), b.TotalAccumulated)
		assert.Equal(t, int64(300), b.TotalRedeemed)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("FROM cashback_balances").
			WithArgs("org-1", "client-2", "program-1").
			WillReturnRows(sqlmock.NewRows(balanceCols))

		_, err := repo.GetForUpdate(ctx, "org-1", "client-2", "program-1")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewBalanceRepository(db)
	b := &domain.CashbackBalance{ID: "b-1", OrgID: "org-1", ClientID: "client-1", ProgramID: "program-1", UpdatedAt: time.Now().UTC()}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (org_id, client_id, program_id) DO NOTHING")).
		WithArgs("b-1", "org-1", "client-1", "program-1", int64(0), int64(0), int64(0), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Insert(context.Background(), b))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceRepository_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewBalanceRepository(db)
	ctx := context.Background()
	b := &domain.CashbackBalance{ID: "b-1", Available: -200, TotalAccumulated: 500, TotalRedeemed: 700, UpdatedAt: time.Now().UTC()}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE cashback_balances SET").
			WithArgs(int64(-200), int64(500), int64(700), sqlmock.AnyArg(), "b-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.Update(ctx, b))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE cashback_balances SET").
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.Update(ctx, b), repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceRepository_Debit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewBalanceRepository(db)
	ctx := context.Background()
	at := time.Now().UTC()

	t.Run("Debited", func(t *testing.T) {
		mock.ExpectExec(`WHERE id = \$3 AND available >= \$1`).
			WithArgs(int64(800), at, "b-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.Debit(ctx, "b-1", 800, at)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		mock.ExpectExec(`WHERE id = \$3 AND available >= \$1`).
			WithArgs(int64(5000), at, "b-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.Debit(ctx, "b-1", 5000, at)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
