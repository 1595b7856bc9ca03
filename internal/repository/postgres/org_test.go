package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback-ledger/internal/repository"
	"cashback-ledger/internal/repository/postgres"
)

func TestOrganizationRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewOrganizationRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, active, created_at FROM organizations").
			WithArgs("org-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "active", "created_at"}).
				AddRow("org-1", "Loja Centro", true, time.Now()))

		org, err := repo.GetByID(ctx, "org-1")
		require.NoError(t, err)
		assert.Equal(t, "Loja Centro", org.Name)
		assert.True(t, org.Active)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("FROM organizations").
			WithArgs("org-404").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "active", "created_at"}))

		_, err := repo.GetByID(ctx, "org-404")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSellerRepository_ListActiveByOrg(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewSellerRepository(db)

	mock.ExpectQuery(`FROM sellers WHERE org_id = \$1 AND active = true ORDER BY name`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "pin_hash", "active", "user_id"}).
			AddRow("seller-1", "org-1", "Ana", "$2a$10$hash", true, "user-9").
			AddRow("seller-2", "org-1", "Bruno", "$2a$10$hash", true, nil))

	sellers, err := repo.ListActiveByOrg(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, sellers, 2)
	require.NotNil(t, sellers[0].UserID)
	assert.Equal(t, "user-9", *sellers[0].UserID)
	assert.Nil(t, sellers[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepository_ListIDsByOrg(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewClientRepository(db)

	mock.ExpectQuery(`SELECT id FROM clients WHERE org_id = \$1`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("client-1").AddRow("client-2"))

	ids, err := repo.ListIDsByOrg(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"client-1", "client-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInteractionRepository_DeletePending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewInteractionRepository(db)
	ctx := context.Background()

	t.Run("NothingToDelete", func(t *testing.T) {
		n, err := repo.DeletePending(ctx, "org-1", "client-1", nil, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM scheduled_interactions\s+WHERE org_id = \$1 AND client_id = \$2 AND executed_at IS NULL`).
			WithArgs("org-1", "client-1", "{\"campaign-1\"}", "{\"t-1\",\"t-2\"}").
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := repo.DeletePending(ctx, "org-1", "client-1", []string{"campaign-1"}, []string{"t-1", "t-2"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RunInTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	store := postgres.NewStore(db)
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE cashback_transactions SET status = 'EXPIRED'").
			WithArgs("t-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.RunInTx(ctx, func(s repository.CashbackStore) error {
			return s.Transactions().Expire(ctx, "t-1")
		})
		assert.NoError(t, err)
	})

	t.Run("Rollback", func(t *testing.T) {
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.RunInTx(ctx, func(s repository.CashbackStore) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("CommitFails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err := store.RunInTx(ctx, func(s repository.CashbackStore) error { return nil })
		assert.ErrorContains(t, err, "commit transaction")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
