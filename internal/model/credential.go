package model

import "time"

// Credential is one-to-one with Account. PublicKey holds an optional
// zero-knowledge public key; the live login path does not consult it.
type Credential struct {
	AccountNum   int64     `json:"account_num"`
	PasswordHash string    `json:"-"`
	PublicKey    string    `json:"-"`
	UpdatedAt    time.Time `json:"updated_at"`
}
