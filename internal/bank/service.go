package bank

import (
	"bytes"
	"context"
	"errors"
	"text/tabwriter"

	"github.com/fortressbank/bankd/internal/auth"
	"github.com/fortressbank/bankd/internal/cache"
	"github.com/fortressbank/bankd/internal/metrics"
	"github.com/fortressbank/bankd/internal/model"
	"github.com/fortressbank/bankd/internal/repository"
	"github.com/fortressbank/bankd/internal/zkp"
	"github.com/fortressbank/bankd/pkg/logger"
	"github.com/fortressbank/bankd/pkg/store"
)

// ErrProtectedAccount is returned for mutations that would remove the
// administrator identity.
var ErrProtectedAccount = errors.New("account is protected")

// DefaultStartingBalance is credited to every new account, in hundredths.
const DefaultStartingBalance int64 = 100_000

// Cached table snapshot names.
const (
	TableAccounts     = "accounts"
	TableTransactions = "transactions"
)

// Notification event kinds.
const (
	EventDeposit          = "deposit"
	EventWithdrawal       = "withdrawal"
	EventTransferSent     = "transfer_sent"
	EventTransferReceived = "transfer_received"
)

// Event describes a completed ledger operation on an account that opted
// in to SMS alerts.
type Event struct {
	Kind       string `json:"kind"`
	AccountNum int64  `json:"account_num"`
	Phone      string `json:"phone"`
	Amount     int64  `json:"amount"`
	Balance    int64  `json:"balance"`
}

// Notifier delivers events without blocking the caller. Delivery is best
// effort and failures must not surface into ledger operations.
type Notifier interface {
	Notify(event Event)
}

// LedgerService owns all money movement and account lifecycle. Every
// mutation runs inside a store transaction and invalidates the affected
// table snapshots.
type LedgerService struct {
	db              *store.DB
	accounts        *repository.AccountRepository
	transactions    *repository.TransactionRepository
	credentials     *repository.CredentialRepository
	cache           *cache.TableCache
	notifier        Notifier
	startingBalance int64
}

func NewLedgerService(db *store.DB, tableCache *cache.TableCache, notifier Notifier, startingBalance int64) *LedgerService {
	if startingBalance < 0 {
		startingBalance = DefaultStartingBalance
	}
	return &LedgerService{
		db:              db,
		accounts:        repository.NewAccountRepository(db),
		transactions:    repository.NewTransactionRepository(db),
		credentials:     repository.NewCredentialRepository(db),
		cache:           tableCache,
		notifier:        notifier,
		startingBalance: startingBalance,
	}
}

// Credentials exposes the credential reader for the authentication gate.
func (s *LedgerService) Credentials() *repository.CredentialRepository {
	return s.credentials
}

// Bootstrap seeds the administrator credential when it does not exist yet.
// Idempotent across restarts and across both nodes.
func (s *LedgerService) Bootstrap(ctx context.Context, adminPassword string) error {
	_, err := s.credentials.Get(ctx, model.AdminAccountNum)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrCredentialNotFound) {
		return err
	}

	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return err
	}
	_, publicKey := zkp.GenerateKeypair(adminPassword)
	logger.Info("seeding administrator credential")
	return s.credentials.Upsert(ctx, &model.Credential{
		AccountNum:   model.AdminAccountNum,
		PasswordHash: hash,
		PublicKey:    publicKey.String(),
	})
}

func (s *LedgerService) Account(ctx context.Context, accountNum int64) (*model.Account, error) {
	return s.accounts.Get(ctx, accountNum)
}

func (s *LedgerService) Balance(ctx context.Context, accountNum int64) (int64, error) {
	return s.accounts.GetBalance(ctx, accountNum)
}

// Deposit credits an account and records the ledger entry atomically.
func (s *LedgerService) Deposit(ctx context.Context, accountNum int64, amount int64) (int64, error) {
	balance, err := s.adjust(ctx, accountNum, amount, model.TransactionDeposit)
	if err != nil {
		metrics.LedgerOperation("deposit", metrics.OutcomeError)
		return 0, err
	}
	metrics.LedgerOperation("deposit", metrics.OutcomeOK)
	s.invalidate()
	s.notify(ctx, EventDeposit, accountNum, amount, balance)
	return balance, nil
}

// Withdraw debits an account and records the ledger entry atomically. The
// balance can never go negative.
func (s *LedgerService) Withdraw(ctx context.Context, accountNum int64, amount int64) (int64, error) {
	balance, err := s.adjust(ctx, accountNum, -amount, model.TransactionWithdrawal)
	if err != nil {
		metrics.LedgerOperation("withdrawal", metrics.OutcomeError)
		return 0, err
	}
	metrics.LedgerOperation("withdrawal", metrics.OutcomeOK)
	s.invalidate()
	s.notify(ctx, EventWithdrawal, accountNum, amount, balance)
	return balance, nil
}

func (s *LedgerService) adjust(ctx context.Context, accountNum int64, delta int64, txnType string) (int64, error) {
	if delta == 0 {
		return 0, ErrInvalidAmount
	}
	amount := delta
	if amount < 0 {
		amount = -amount
	}

	var balance int64
	err := s.db.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		balance, err = s.accounts.AdjustBalance(ctx, accountNum, delta)
		if err != nil {
			return err
		}
		_, err = s.transactions.Create(ctx, &model.Transaction{
			FromAccount: accountNum,
			ToAccount:   accountNum,
			Amount:      amount,
			Type:        txnType,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Transfer moves funds between two accounts. Both balance updates and the
// ledger entry commit or roll back together.
func (s *LedgerService) Transfer(ctx context.Context, from, to, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrInvalidAmount
	}
	_, err := s.accounts.Transfer(ctx, from, to, amount)
	if err != nil {
		metrics.LedgerOperation("transfer", metrics.OutcomeError)
		return err
	}
	metrics.LedgerOperation("transfer", metrics.OutcomeOK)
	s.invalidate()

	if fromBalance, err := s.accounts.GetBalance(ctx, from); err == nil {
		s.notify(ctx, EventTransferSent, from, amount, fromBalance)
	}
	if toBalance, err := s.accounts.GetBalance(ctx, to); err == nil {
		s.notify(ctx, EventTransferReceived, to, amount, toBalance)
	}
	return nil
}

// History returns the ledger entries touching an account, oldest first.
func (s *LedgerService) History(ctx context.Context, accountNum int64) ([]*model.Transaction, error) {
	if ok, err := s.accounts.Exists(ctx, accountNum); err != nil {
		return nil, err
	} else if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return s.transactions.ListForAccount(ctx, accountNum)
}

// CreateAccount opens a new account with the starting balance and stores
// its credential in the same transaction.
func (s *LedgerService) CreateAccount(ctx context.Context, request *model.AccountCreateRequest) (int64, error) {
	hash, err := auth.HashPassword(request.Password)
	if err != nil {
		return 0, err
	}
	_, publicKey := zkp.GenerateKeypair(request.Password)

	accountNum, err := s.accounts.CreateAccount(ctx, &model.Account{
		FirstName: request.FirstName,
		LastName:  request.LastName,
		SSN:       request.SSN,
		Phone:     request.Phone,
		SMSOptIn:  request.SMSOptIn,
		Balance:   s.startingBalance,
	}, &model.Credential{
		PasswordHash: hash,
		PublicKey:    publicKey.String(),
	})
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(TableAccounts)
	logger.Info("account created", "account_num", accountNum)
	return accountNum, nil
}

// DeleteAccount removes an account and its credential. The administrator
// identity cannot be deleted.
func (s *LedgerService) DeleteAccount(ctx context.Context, accountNum int64) error {
	if accountNum == model.AdminAccountNum {
		return ErrProtectedAccount
	}
	if err := s.accounts.DeleteAccount(ctx, accountNum); err != nil {
		return err
	}
	s.cache.Invalidate(TableAccounts)
	logger.Info("account deleted", "account_num", accountNum)
	return nil
}

// AccountsSnapshot renders all accounts as an aligned text table. The
// rendered snapshot is served from cache while it is fresh.
func (s *LedgerService) AccountsSnapshot(ctx context.Context) ([]byte, error) {
	if snapshot, ok := s.cache.Get(TableAccounts); ok {
		return snapshot, nil
	}

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	writeRow(w, "ACCOUNT", "FIRST NAME", "LAST NAME", "SSN", "PHONE", "SMS", "BALANCE")
	for _, account := range accounts {
		optIn := "no"
		if account.SMSOptIn {
			optIn = "yes"
		}
		writeRow(w,
			formatInt(account.AccountNum),
			account.FirstName,
			account.LastName,
			account.SSN,
			account.Phone,
			optIn,
			FormatAmount(account.Balance),
		)
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	snapshot := buf.Bytes()
	s.cache.Set(TableAccounts, snapshot)
	return snapshot, nil
}

// TransactionsSnapshot renders the full ledger as an aligned text table,
// served from cache while fresh.
func (s *LedgerService) TransactionsSnapshot(ctx context.Context) ([]byte, error) {
	if snapshot, ok := s.cache.Get(TableTransactions); ok {
		return snapshot, nil
	}

	transactions, err := s.transactions.List(ctx)
	if err != nil {
		return nil, err
	}

	snapshot, err := RenderTransactions(transactions)
	if err != nil {
		return nil, err
	}
	s.cache.Set(TableTransactions, snapshot)
	return snapshot, nil
}

// RenderTransactions renders ledger entries as an aligned text table.
func RenderTransactions(transactions []*model.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	writeRow(w, "ID", "FROM", "TO", "AMOUNT", "TYPE", "DATE")
	for _, txn := range transactions {
		writeRow(w,
			formatInt(txn.ID),
			formatInt(txn.FromAccount),
			formatInt(txn.ToAccount),
			FormatAmount(txn.Amount),
			txn.Type,
			txn.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		)
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *LedgerService) invalidate() {
	s.cache.Invalidate(TableAccounts)
	s.cache.Invalidate(TableTransactions)
}

// notify looks up the account and hands the event to the notifier when the
// holder opted in. Lookup failures are logged and swallowed.
func (s *LedgerService) notify(ctx context.Context, kind string, accountNum int64, amount, balance int64) {
	if s.notifier == nil {
		return
	}
	account, err := s.accounts.Get(ctx, accountNum)
	if err != nil {
		logger.Warn("notify lookup failed", "account_num", accountNum, "error", err)
		return
	}
	if !account.SMSOptIn || account.Phone == "" {
		return
	}
	s.notifier.Notify(Event{
		Kind:       kind,
		AccountNum: accountNum,
		Phone:      account.Phone,
		Amount:     amount,
		Balance:    balance,
	})
}
