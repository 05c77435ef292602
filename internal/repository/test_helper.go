package repository

import (
	"context"
	"strconv"
	"testing"

	"github.com/fortressbank/bankd/pkg/store"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&AccountEntity{}, &CredentialEntity{}, &TransactionEntity{})
	require.NoError(t, err)

	// A single pooled connection keeps the in-memory database visible to
	// every goroutine in concurrent tests.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return store.NewFromConn(db)
}

func seedAccount(t *testing.T, db *store.DB, accountNum int64, balance int64) {
	t.Helper()

	num := strconv.FormatInt(accountNum, 10)
	entity := &AccountEntity{
		AccountNum: accountNum,
		FirstName:  "Test",
		LastName:   "Account",
		SSN:        "ssn-" + num,
		Phone:      "phone-" + num,
		Balance:    balance,
	}
	require.NoError(t, db.Conn(context.Background()).Create(entity).Error)
}
