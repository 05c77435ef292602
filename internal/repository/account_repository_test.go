package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/fortressbank/bankd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository_AdjustBalance(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	t.Run("successful deposit", func(t *testing.T) {
		seedAccount(t, db, 1, 10000)

		balance, err := repo.AdjustBalance(ctx, 1, 50000)
		assert.NoError(t, err)
		assert.Equal(t, int64(60000), balance)
	})

	t.Run("successful withdrawal", func(t *testing.T) {
		seedAccount(t, db, 2, 30000)

		balance, err := repo.AdjustBalance(ctx, 2, -10000)
		assert.NoError(t, err)
		assert.Equal(t, int64(20000), balance)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		seedAccount(t, db, 3, 30000)

		_, err := repo.AdjustBalance(ctx, 3, -1000000)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		balance, err := repo.GetBalance(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(30000), balance)
	})

	t.Run("exact balance withdrawal", func(t *testing.T) {
		seedAccount(t, db, 4, 25000)

		balance, err := repo.AdjustBalance(ctx, 4, -25000)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})

	t.Run("account not found", func(t *testing.T) {
		_, err := repo.AdjustBalance(ctx, 999, 100)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestAccountRepository_AdjustBalance_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	seedAccount(t, db, 1, 100000)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		delta := int64(100)
		if i%2 == 1 {
			delta = -100
		}
		go func(delta int64) {
			defer wg.Done()
			_, err := repo.AdjustBalance(ctx, 1, delta)
			assert.NoError(t, err)
		}(delta)
	}
	wg.Wait()

	// Equal counts of +100 and -100: the balance must be exactly where
	// it started, whatever the interleaving.
	balance, err := repo.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), balance)
}

func TestAccountRepository_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves funds and records transaction", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewAccountRepository(db)
		txnRepo := NewTransactionRepository(db)

		seedAccount(t, db, 100, 50000)
		seedAccount(t, db, 200, 0)

		txn, err := repo.Transfer(ctx, 100, 200, 20000)
		require.NoError(t, err)
		assert.Equal(t, int64(100), txn.FromAccount)
		assert.Equal(t, int64(200), txn.ToAccount)
		assert.Equal(t, int64(20000), txn.Amount)
		assert.Equal(t, model.TransactionTransfer, txn.Type)

		from, err := repo.GetBalance(ctx, 100)
		require.NoError(t, err)
		to, err := repo.GetBalance(ctx, 200)
		require.NoError(t, err)
		assert.Equal(t, int64(30000), from)
		assert.Equal(t, int64(20000), to)

		rows, err := txnRepo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("rolls back on insufficient funds", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewAccountRepository(db)
		txnRepo := NewTransactionRepository(db)

		seedAccount(t, db, 100, 5000)
		seedAccount(t, db, 200, 1000)

		_, err := repo.Transfer(ctx, 100, 200, 7000)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		from, err := repo.GetBalance(ctx, 100)
		require.NoError(t, err)
		to, err := repo.GetBalance(ctx, 200)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), from)
		assert.Equal(t, int64(1000), to)

		rows, err := txnRepo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("rolls back credit-first ordering on missing debtor funds", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewAccountRepository(db)

		// from > to, so the credit side is applied first inside the
		// transaction; the failed debit must undo it.
		seedAccount(t, db, 300, 100)
		seedAccount(t, db, 50, 0)

		_, err := repo.Transfer(ctx, 300, 50, 500)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		to, err := repo.GetBalance(ctx, 50)
		require.NoError(t, err)
		assert.Equal(t, int64(0), to)
	})

	t.Run("missing recipient", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewAccountRepository(db)

		seedAccount(t, db, 100, 5000)

		_, err := repo.Transfer(ctx, 100, 999, 1000)
		assert.ErrorIs(t, err, ErrAccountNotFound)

		balance, err := repo.GetBalance(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), balance)
	})
}

func TestAccountRepository_CreateAccount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	credRepo := NewCredentialRepository(db)
	ctx := context.Background()

	t.Run("creates account with credential", func(t *testing.T) {
		num, err := repo.CreateAccount(ctx, &model.Account{
			FirstName: "Ada",
			LastName:  "Lovelace",
			SSN:       "111-22-3333",
			Phone:     "555-0101",
			SMSOptIn:  true,
			Balance:   100000,
		}, &model.Credential{PasswordHash: "hashed-password"})
		require.NoError(t, err)
		assert.Greater(t, num, int64(0))

		account, err := repo.Get(ctx, num)
		require.NoError(t, err)
		assert.Equal(t, "Ada", account.FirstName)
		assert.Equal(t, int64(100000), account.Balance)

		credential, err := credRepo.Get(ctx, num)
		require.NoError(t, err)
		assert.Equal(t, "hashed-password", credential.PasswordHash)
	})

	t.Run("duplicate ssn leaves tables unchanged", func(t *testing.T) {
		accountsBefore, err := repo.List(ctx)
		require.NoError(t, err)
		credsBefore, err := credRepo.List(ctx)
		require.NoError(t, err)

		_, err = repo.CreateAccount(ctx, &model.Account{
			FirstName: "Eve",
			LastName:  "Clone",
			SSN:       "111-22-3333",
			Phone:     "555-9999",
		}, &model.Credential{PasswordHash: "x"})
		assert.ErrorIs(t, err, ErrDuplicateIdentity)

		accountsAfter, err := repo.List(ctx)
		require.NoError(t, err)
		credsAfter, err := credRepo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, accountsAfter, len(accountsBefore))
		assert.Len(t, credsAfter, len(credsBefore))
	})

	t.Run("duplicate phone rejected", func(t *testing.T) {
		_, err := repo.CreateAccount(ctx, &model.Account{
			FirstName: "Eve",
			LastName:  "Clone",
			SSN:       "999-88-7777",
			Phone:     "555-0101",
		}, &model.Credential{PasswordHash: "x"})
		assert.ErrorIs(t, err, ErrDuplicateIdentity)
	})
}

func TestAccountRepository_DeleteAccount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	credRepo := NewCredentialRepository(db)
	ctx := context.Background()

	num, err := repo.CreateAccount(ctx, &model.Account{
		FirstName: "Grace",
		LastName:  "Hopper",
		SSN:       "444-55-6666",
		Phone:     "555-0202",
	}, &model.Credential{PasswordHash: "hash"})
	require.NoError(t, err)

	t.Run("removes account and credential together", func(t *testing.T) {
		err := repo.DeleteAccount(ctx, num)
		assert.NoError(t, err)

		_, err = repo.Get(ctx, num)
		assert.ErrorIs(t, err, ErrAccountNotFound)

		_, err = credRepo.Get(ctx, num)
		assert.ErrorIs(t, err, ErrCredentialNotFound)
	})

	t.Run("missing account", func(t *testing.T) {
		err := repo.DeleteAccount(ctx, 999)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestAccountRepository_Upsert_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	account := &model.Account{
		AccountNum: 7,
		FirstName:  "Sync",
		LastName:   "Target",
		SSN:        "777-77-7777",
		Phone:      "555-0707",
		Balance:    4200,
	}

	require.NoError(t, repo.Upsert(ctx, account))
	require.NoError(t, repo.Upsert(ctx, account))

	accounts, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, int64(4200), accounts[0].Balance)
}
