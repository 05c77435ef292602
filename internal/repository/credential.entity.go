package repository

import (
	"time"

	"github.com/fortressbank/bankd/internal/model"
)

type CredentialEntity struct {
	AccountNum   int64     `db:"account_num"   gorm:"primaryKey;column:account_num"`
	PasswordHash string    `db:"password_hash" gorm:"column:password_hash;not null"`
	PublicKey    string    `db:"public_key"    gorm:"column:public_key"`
	UpdatedAt    time.Time `db:"updated_at"    gorm:"column:updated_at;autoUpdateTime:false"`
}

func (CredentialEntity) TableName() string {
	return "credentials"
}

func toCredentialEntity(m *model.Credential) *CredentialEntity {
	if m == nil {
		return nil
	}
	return &CredentialEntity{
		AccountNum:   m.AccountNum,
		PasswordHash: m.PasswordHash,
		PublicKey:    m.PublicKey,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toCredentialModel(e *CredentialEntity) *model.Credential {
	if e == nil {
		return nil
	}
	return &model.Credential{
		AccountNum:   e.AccountNum,
		PasswordHash: e.PasswordHash,
		PublicKey:    e.PublicKey,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toCredentialModels(entities []*CredentialEntity) []*model.Credential {
	if entities == nil {
		return nil
	}
	models := make([]*model.Credential, len(entities))
	for i, e := range entities {
		models[i] = toCredentialModel(e)
	}
	return models
}
