package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fortressbank/bankd/internal/model"
	"github.com/fortressbank/bankd/pkg/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDuplicateIdentity  = errors.New("ssn or phone already registered")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

type AccountRepository struct {
	*store.DB
}

func NewAccountRepository(db *store.DB) *AccountRepository {
	return &AccountRepository{
		db,
	}
}

func (r *AccountRepository) Get(ctx context.Context, accountNum int64) (*model.Account, error) {
	var entity AccountEntity
	err := r.Conn(ctx).
		Where("account_num = ?", accountNum).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return toAccountModel(&entity), nil
}

func (r *AccountRepository) GetBalance(ctx context.Context, accountNum int64) (int64, error) {
	var entity AccountEntity
	err := r.Conn(ctx).
		Select("balance").
		Where("account_num = ?", accountNum).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return entity.Balance, nil
}

func (r *AccountRepository) Exists(ctx context.Context, accountNum int64) (bool, error) {
	var count int64
	err := r.Conn(ctx).
		Model(&AccountEntity{}).
		Where("account_num = ?", accountNum).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*model.Account, error) {
	var entities []*AccountEntity
	err := r.Conn(ctx).
		Order("account_num").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toAccountModels(entities), nil
}

// AdjustBalance applies delta to the account balance as a single atomic
// read-modify-write and returns the new balance. Concurrent adjustments
// on the same account serialize at the storage layer: the update is
// guarded so a debit can never drive the balance negative, and retried
// with backoff on transient store contention.
func (r *AccountRepository) AdjustBalance(ctx context.Context, accountNum int64, delta int64) (int64, error) {
	const maxRetries = 3
	const baseDelay = 2 * time.Millisecond

	var newBalance int64
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := r.WithinTransaction(ctx, func(ctx context.Context) error {
			var err error
			newBalance, err = r.adjustBalanceAttempt(ctx, accountNum, delta)
			return err
		})

		if err == nil {
			return newBalance, nil
		}

		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrInsufficientFunds) {
			return 0, err
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}

	return 0, fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, maxRetries+1)
}

func (r *AccountRepository) adjustBalanceAttempt(ctx context.Context, accountNum int64, delta int64) (int64, error) {
	result := r.Conn(ctx).
		Model(&AccountEntity{}).
		Where("account_num = ? AND balance + ? >= 0", accountNum, delta).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected == 0 {
		return 0, r.adjustFailureReason(ctx, accountNum)
	}

	return r.GetBalance(ctx, accountNum)
}

// adjustFailureReason determines why a guarded balance update matched no rows.
func (r *AccountRepository) adjustFailureReason(ctx context.Context, accountNum int64) error {
	exists, err := r.Exists(ctx, accountNum)
	if err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotFound
	}
	return ErrInsufficientFunds
}

// Transfer moves amount between two accounts and appends the TRANSFER
// record, all in one store transaction. Balance updates are applied in
// ascending account-number order so two opposite-direction transfers
// cannot deadlock on row locks; any failure rolls the whole transfer back.
func (r *AccountRepository) Transfer(ctx context.Context, from, to, amount int64) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive")
	}

	var created *model.Transaction
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		steps := []struct {
			account int64
			delta   int64
		}{
			{from, -amount},
			{to, +amount},
		}
		if to < from {
			steps[0], steps[1] = steps[1], steps[0]
		}

		for _, step := range steps {
			if _, err := r.adjustBalanceAttempt(ctx, step.account, step.delta); err != nil {
				return err
			}
		}

		entity := &TransactionEntity{
			FromAccount: from,
			ToAccount:   to,
			Amount:      amount,
			Type:        model.TransactionTransfer,
			CreatedAt:   time.Now().UTC(),
		}
		if err := r.Conn(ctx).Create(entity).Error; err != nil {
			return err
		}
		created = toTransactionModel(entity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateAccount inserts the account and its credential row in the same
// transaction. SSN and phone uniqueness is checked before insert so the
// caller sees ErrDuplicateIdentity rather than a bare constraint error.
func (r *AccountRepository) CreateAccount(ctx context.Context, account *model.Account, credential *model.Credential) (int64, error) {
	var accountNum int64
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		var count int64
		err := r.Conn(ctx).
			Model(&AccountEntity{}).
			Where("ssn = ? OR phone = ?", account.SSN, account.Phone).
			Count(&count).
			Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateIdentity
		}

		entity := toAccountEntity(account)
		entity.UpdatedAt = time.Now().UTC()
		if err := r.Conn(ctx).Create(entity).Error; err != nil {
			return err
		}

		credentialEntity := toCredentialEntity(credential)
		credentialEntity.AccountNum = entity.AccountNum
		credentialEntity.UpdatedAt = entity.UpdatedAt
		if err := r.Conn(ctx).Create(credentialEntity).Error; err != nil {
			return err
		}

		accountNum = entity.AccountNum
		return nil
	})
	if err != nil {
		return 0, err
	}
	return accountNum, nil
}

// DeleteAccount removes the account and its credential together.
func (r *AccountRepository) DeleteAccount(ctx context.Context, accountNum int64) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		result := r.Conn(ctx).
			Where("account_num = ?", accountNum).
			Delete(&AccountEntity{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAccountNotFound
		}

		return r.Conn(ctx).
			Where("account_num = ?", accountNum).
			Delete(&CredentialEntity{}).
			Error
	})
}

// Upsert writes a full account row by primary key, preserving the row's
// own timestamps. Used by replication to apply rows from the peer store.
func (r *AccountRepository) Upsert(ctx context.Context, account *model.Account) error {
	entity := toAccountEntity(account)
	return r.Conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_num"}},
			UpdateAll: true,
		}).
		Create(entity).
		Error
}
