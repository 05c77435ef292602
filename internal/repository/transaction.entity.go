package repository

import (
	"time"

	"github.com/fortressbank/bankd/internal/model"
)

type TransactionEntity struct {
	ID          int64     `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	FromAccount int64     `db:"from_account" gorm:"column:from_account;not null;index"`
	ToAccount   int64     `db:"to_account"   gorm:"column:to_account;not null;index"`
	Amount      int64     `db:"amount"       gorm:"column:amount;not null"`
	Type        string    `db:"type"         gorm:"column:type;not null"`
	CreatedAt   time.Time `db:"created_at"   gorm:"column:created_at;autoCreateTime:false"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:          m.ID,
		FromAccount: m.FromAccount,
		ToAccount:   m.ToAccount,
		Amount:      m.Amount,
		Type:        m.Type,
		CreatedAt:   m.CreatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:          e.ID,
		FromAccount: e.FromAccount,
		ToAccount:   e.ToAccount,
		Amount:      e.Amount,
		Type:        e.Type,
		CreatedAt:   e.CreatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
