package replication

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fortressbank/bankd/internal/bank"
	"github.com/fortressbank/bankd/internal/cache"
	"github.com/fortressbank/bankd/internal/model"
	"github.com/fortressbank/bankd/internal/repository"
	"github.com/fortressbank/bankd/pkg/redis"
	"github.com/fortressbank/bankd/pkg/store"
)

func newTestStore(t *testing.T) *store.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(
		&repository.AccountEntity{},
		&repository.CredentialEntity{},
		&repository.TransactionEntity{},
	))
	return store.NewFromConn(conn)
}

func putAccount(t *testing.T, db *store.DB, num, balance int64, updatedAt time.Time) {
	t.Helper()
	require.NoError(t, repository.NewAccountRepository(db).Upsert(context.Background(), &model.Account{
		AccountNum: num,
		FirstName:  "First",
		LastName:   "Last",
		SSN:        "ssn-" + strconv.FormatInt(num, 10),
		Phone:      "555-" + strconv.FormatInt(num, 10),
		Balance:    balance,
		UpdatedAt:  updatedAt,
	}))
}

func accountBalances(t *testing.T, db *store.DB) map[int64]int64 {
	t.Helper()
	accounts, err := repository.NewAccountRepository(db).List(context.Background())
	require.NoError(t, err)
	balances := make(map[int64]int64, len(accounts))
	for _, account := range accounts {
		balances[account.AccountNum] = account.Balance
	}
	return balances
}

func TestSyncOnceConvergesMissingRows(t *testing.T) {
	local := newTestStore(t)
	remote := newTestStore(t)
	now := time.Now().UTC()

	putAccount(t, local, 100, 5000, now)
	putAccount(t, remote, 200, 1000, now)

	engine := New(local, remote, cache.New(nil, cache.DefaultTTL), 0)
	require.NoError(t, engine.SyncOnce(context.Background()))

	want := map[int64]int64{100: 5000, 200: 1000}
	assert.Equal(t, want, accountBalances(t, local))
	assert.Equal(t, want, accountBalances(t, remote))
}

func TestSyncOnceIsIdempotent(t *testing.T) {
	local := newTestStore(t)
	remote := newTestStore(t)
	now := time.Now().UTC()

	putAccount(t, local, 100, 5000, now)
	putAccount(t, remote, 200, 1000, now)

	engine := New(local, remote, cache.New(nil, cache.DefaultTTL), 0)
	require.NoError(t, engine.SyncOnce(context.Background()))
	first := accountBalances(t, local)

	require.NoError(t, engine.SyncOnce(context.Background()))
	assert.Equal(t, first, accountBalances(t, local))
	assert.Equal(t, first, accountBalances(t, remote))
}

func TestSyncOnceResolvesConflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("newer write wins", func(t *testing.T) {
		local := newTestStore(t)
		remote := newTestStore(t)
		base := time.Now().UTC()

		putAccount(t, local, 100, 5000, base)
		putAccount(t, remote, 100, 7777, base.Add(time.Second))

		engine := New(local, remote, cache.New(nil, cache.DefaultTTL), 0)
		require.NoError(t, engine.SyncOnce(ctx))

		assert.Equal(t, map[int64]int64{100: 7777}, accountBalances(t, local))
		assert.Equal(t, map[int64]int64{100: 7777}, accountBalances(t, remote))
	})

	t.Run("local wins a timestamp tie", func(t *testing.T) {
		local := newTestStore(t)
		remote := newTestStore(t)
		base := time.Now().UTC()

		putAccount(t, local, 100, 5000, base)
		putAccount(t, remote, 100, 7777, base)

		engine := New(local, remote, cache.New(nil, cache.DefaultTTL), 0)
		require.NoError(t, engine.SyncOnce(ctx))

		assert.Equal(t, map[int64]int64{100: 5000}, accountBalances(t, local))
		assert.Equal(t, map[int64]int64{100: 5000}, accountBalances(t, remote))
	})
}

func TestSyncOnceCopiesCredentialsAndTransactions(t *testing.T) {
	local := newTestStore(t)
	remote := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, repository.NewCredentialRepository(local).Upsert(ctx, &model.Credential{
		AccountNum:   100,
		PasswordHash: "hash-a",
		UpdatedAt:    time.Now().UTC(),
	}))
	require.NoError(t, repository.NewTransactionRepository(remote).Upsert(ctx, &model.Transaction{
		ID:          42,
		FromAccount: 100,
		ToAccount:   100,
		Amount:      500,
		Type:        model.TransactionDeposit,
		CreatedAt:   time.Now().UTC(),
	}))

	engine := New(local, remote, cache.New(nil, cache.DefaultTTL), 0)
	require.NoError(t, engine.SyncOnce(ctx))

	credential, err := repository.NewCredentialRepository(remote).Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "hash-a", credential.PasswordHash)

	transactions, err := repository.NewTransactionRepository(local).List(ctx)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, int64(42), transactions[0].ID)
}

func TestSyncOnceInvalidatesChangedTables(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}})
	tableCache := cache.New(redis.NewFromClient(client, "bankd:"), cache.DefaultTTL)

	local := newTestStore(t)
	remote := newTestStore(t)

	tableCache.Set(bank.TableAccounts, []byte("stale accounts"))
	tableCache.Set(bank.TableTransactions, []byte("stale transactions"))

	// Only the accounts table has a remote-side change to pull in.
	putAccount(t, remote, 200, 1000, time.Now().UTC())

	engine := New(local, remote, tableCache, 0)
	require.NoError(t, engine.SyncOnce(context.Background()))

	_, ok := tableCache.Get(bank.TableAccounts)
	assert.False(t, ok)
	_, ok = tableCache.Get(bank.TableTransactions)
	assert.True(t, ok)
}

func TestSyncOnceInvalidatesOnPartialFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}})
	tableCache := cache.New(redis.NewFromClient(client, "bankd:"), cache.DefaultTTL)

	local := newTestStore(t)
	remote := newTestStore(t)
	now := time.Now().UTC()

	// Local holds a stale copy of account 7; remote also has account 99,
	// whose local insert is rejected by the trigger below. The cycle
	// applies the account 7 update and then fails, so the snapshot must
	// still be invalidated.
	putAccount(t, local, 7, 1000, now.Add(-time.Minute))
	putAccount(t, remote, 7, 2500, now)
	putAccount(t, remote, 99, 4000, now)
	require.NoError(t, local.Conn(context.Background()).Exec(
		`CREATE TRIGGER reject_account_99 BEFORE INSERT ON accounts
		 WHEN NEW.account_num = 99
		 BEGIN SELECT RAISE(ABORT, 'rejected'); END`).Error)

	tableCache.Set(bank.TableAccounts, []byte("stale accounts"))

	engine := New(local, remote, tableCache, 0)
	err := engine.SyncOnce(context.Background())
	require.Error(t, err)

	assert.Equal(t, int64(2500), accountBalances(t, local)[7])
	_, ok := tableCache.Get(bank.TableAccounts)
	assert.False(t, ok)
}

func TestEngineStopWithoutStart(t *testing.T) {
	local := newTestStore(t)
	remote := newTestStore(t)
	engine := New(local, remote, cache.New(nil, cache.DefaultTTL), 0)

	done := make(chan struct{})
	go func() {
		engine.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked without a running loop")
	}
}

func TestEngineLifecycle(t *testing.T) {
	local := newTestStore(t)
	remote := newTestStore(t)
	putAccount(t, remote, 200, 1000, time.Now().UTC())

	engine := New(local, remote, cache.New(nil, cache.DefaultTTL), 20*time.Millisecond)
	engine.Start()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(accountBalances(t, local)) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, map[int64]int64{200: 1000}, accountBalances(t, local))

	engine.Stop()
}
