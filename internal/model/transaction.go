package model

import "time"

const (
	TransactionDeposit    = "DEPOSIT"
	TransactionWithdrawal = "WITHDRAWAL"
	TransactionTransfer   = "TRANSFER"
)

// Transaction is an immutable append-only ledger record. FromAccount and
// ToAccount are equal for deposits and withdrawals.
type Transaction struct {
	ID          int64     `json:"id"`
	FromAccount int64     `json:"from_account"`
	ToAccount   int64     `json:"to_account"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
}
