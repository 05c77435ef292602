package repository

import (
	"context"
	"time"

	"github.com/fortressbank/bankd/internal/model"
	"github.com/fortressbank/bankd/pkg/store"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	*store.DB
}

func NewTransactionRepository(db *store.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// Create appends a transaction record. Records are never updated or
// deleted afterwards.
func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}

	if err := r.Conn(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toTransactionModel(entity), nil
}

func (r *TransactionRepository) List(ctx context.Context) ([]*model.Transaction, error) {
	var entities []*TransactionEntity
	err := r.Conn(ctx).
		Order("id").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toTransactionModels(entities), nil
}

// ListForAccount returns the rows where the account is sender or receiver.
func (r *TransactionRepository) ListForAccount(ctx context.Context, accountNum int64) ([]*model.Transaction, error) {
	var entities []*TransactionEntity
	err := r.Conn(ctx).
		Where("from_account = ? OR to_account = ?", accountNum, accountNum).
		Order("id").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toTransactionModels(entities), nil
}

// Upsert writes a full transaction row keeping its original id. Used by
// replication to apply rows from the peer store.
func (r *TransactionRepository) Upsert(ctx context.Context, txn *model.Transaction) error {
	entity := toTransactionEntity(txn)
	return r.Conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(entity).
		Error
}
