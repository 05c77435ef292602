package repository

import (
	"time"

	"github.com/fortressbank/bankd/internal/model"
)

type AccountEntity struct {
	AccountNum int64     `db:"account_num" gorm:"primaryKey;autoIncrement;column:account_num"`
	FirstName  string    `db:"first_name"  gorm:"column:first_name;not null"`
	LastName   string    `db:"last_name"   gorm:"column:last_name;not null"`
	SSN        string    `db:"ssn"         gorm:"column:ssn;not null;unique"`
	Phone      string    `db:"phone"       gorm:"column:phone;not null;unique"`
	SMSOptIn   bool      `db:"sms_opt_in"  gorm:"column:sms_opt_in;not null"`
	Balance    int64     `db:"balance"     gorm:"column:balance;not null"`
	UpdatedAt  time.Time `db:"updated_at"  gorm:"column:updated_at;autoUpdateTime:false"`
}

func (AccountEntity) TableName() string {
	return "accounts"
}

func toAccountEntity(m *model.Account) *AccountEntity {
	if m == nil {
		return nil
	}
	return &AccountEntity{
		AccountNum: m.AccountNum,
		FirstName:  m.FirstName,
		LastName:   m.LastName,
		SSN:        m.SSN,
		Phone:      m.Phone,
		SMSOptIn:   m.SMSOptIn,
		Balance:    m.Balance,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toAccountModel(e *AccountEntity) *model.Account {
	if e == nil {
		return nil
	}
	return &model.Account{
		AccountNum: e.AccountNum,
		FirstName:  e.FirstName,
		LastName:   e.LastName,
		SSN:        e.SSN,
		Phone:      e.Phone,
		SMSOptIn:   e.SMSOptIn,
		Balance:    e.Balance,
		UpdatedAt:  e.UpdatedAt,
	}
}

func toAccountModels(entities []*AccountEntity) []*model.Account {
	if entities == nil {
		return nil
	}
	models := make([]*model.Account, len(entities))
	for i, e := range entities {
		models[i] = toAccountModel(e)
	}
	return models
}
