package auth

import (
	"context"

	"github.com/fortressbank/bankd/internal/model"
	"github.com/fortressbank/bankd/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

type Role int

const (
	RoleRejected Role = iota
	RoleAdmin
	RoleCustomer
)

// dummyHash is compared against when the account does not exist, so a
// rejection takes the same path whether the account or the password was
// wrong.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type CredentialReader interface {
	Get(ctx context.Context, accountNum int64) (*model.Credential, error)
}

type Gate struct {
	credentials CredentialReader
}

func NewGate(credentials CredentialReader) *Gate {
	return &Gate{credentials: credentials}
}

// Authenticate resolves (account, password) to a role. Account 0 is the
// sole administrator identity. Missing accounts and mismatched passwords
// both come back as RoleRejected with no distinguishing behavior.
func (g *Gate) Authenticate(ctx context.Context, accountNum int64, password string) Role {
	stored := dummyHash
	credential, err := g.credentials.Get(ctx, accountNum)
	if err == nil {
		stored = credential.PasswordHash
	}

	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) != nil {
		return RoleRejected
	}
	if err != nil {
		// The dummy hash should never match; guard against a store
		// that handed us no credential anyway.
		logger.Warn("credential lookup failed during authentication", "error", err)
		return RoleRejected
	}

	if accountNum == model.AdminAccountNum {
		return RoleAdmin
	}
	return RoleCustomer
}

// HashPassword derives the stored credential hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
