package model

import "time"

// Account balances are stored in hundredths of the currency unit so that
// ledger math stays integral.
type Account struct {
	AccountNum int64     `json:"account_num"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	SSN        string    `json:"ssn"`
	Phone      string    `json:"phone"`
	SMSOptIn   bool      `json:"sms_opt_in"`
	Balance    int64     `json:"balance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AdminAccountNum is reserved for the sole administrator identity.
const AdminAccountNum int64 = 0

type AccountCreateRequest struct {
	FirstName string
	LastName  string
	SSN       string
	Phone     string
	SMSOptIn  bool
	Password  string
}
