package repository

import (
	"context"
	"errors"

	"github.com/fortressbank/bankd/internal/model"
	"github.com/fortressbank/bankd/pkg/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCredentialNotFound = errors.New("credential not found")

type CredentialRepository struct {
	*store.DB
}

func NewCredentialRepository(db *store.DB) *CredentialRepository {
	return &CredentialRepository{
		db,
	}
}

func (r *CredentialRepository) Get(ctx context.Context, accountNum int64) (*model.Credential, error) {
	var entity CredentialEntity
	err := r.Conn(ctx).
		Where("account_num = ?", accountNum).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return toCredentialModel(&entity), nil
}

func (r *CredentialRepository) List(ctx context.Context) ([]*model.Credential, error) {
	var entities []*CredentialEntity
	err := r.Conn(ctx).
		Order("account_num").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toCredentialModels(entities), nil
}

// Upsert writes a full credential row by primary key. Used by the admin
// bootstrap and by replication.
func (r *CredentialRepository) Upsert(ctx context.Context, credential *model.Credential) error {
	entity := toCredentialEntity(credential)
	return r.Conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_num"}},
			UpdateAll: true,
		}).
		Create(entity).
		Error
}
