package replication

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fortressbank/bankd/internal/bank"
	"github.com/fortressbank/bankd/internal/cache"
	"github.com/fortressbank/bankd/internal/metrics"
	"github.com/fortressbank/bankd/internal/model"
	"github.com/fortressbank/bankd/internal/repository"
	"github.com/fortressbank/bankd/pkg/logger"
	"github.com/fortressbank/bankd/pkg/store"
)

// DefaultInterval is the anti-entropy cycle period.
const DefaultInterval = 2 * time.Second

// Engine reconciles the local and remote ledger stores on a fixed
// interval. Each cycle diffs every replicated table by primary key and
// upserts missing rows in both directions. Rows that diverged under the
// same key resolve last-write-wins by updated_at; on an exact timestamp
// tie the local (initiating) side wins. Sync cycles are idempotent, so a
// cycle racing a client write just reconverges on the next tick.
//
// The engine is owned by the server process and has an explicit
// Start/Stop lifecycle. Only the primary node runs one; the backup is a
// passive sync target.
type Engine struct {
	interval time.Duration
	cache    *cache.TableCache

	localAccounts      *repository.AccountRepository
	remoteAccounts     *repository.AccountRepository
	localCredentials   *repository.CredentialRepository
	remoteCredentials  *repository.CredentialRepository
	localTransactions  *repository.TransactionRepository
	remoteTransactions *repository.TransactionRepository

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func New(local, remote *store.DB, tableCache *cache.TableCache, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		interval:           interval,
		cache:              tableCache,
		localAccounts:      repository.NewAccountRepository(local),
		remoteAccounts:     repository.NewAccountRepository(remote),
		localCredentials:   repository.NewCredentialRepository(local),
		remoteCredentials:  repository.NewCredentialRepository(remote),
		localTransactions:  repository.NewTransactionRepository(local),
		remoteTransactions: repository.NewTransactionRepository(remote),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
	}
}

// Start launches the sync loop in its own goroutine. Subsequent calls
// are no-ops.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		go e.run()
	})
}

// Stop halts the loop and waits for an in-flight cycle to finish. Safe
// to call whether or not Start ever ran.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	// Claiming startOnce here means the loop never started and nobody
	// else will close done.
	e.startOnce.Do(func() {
		close(e.done)
	})
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)

	logger.Info("replication engine started", "interval", e.interval)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), e.interval)
			if err := e.SyncOnce(ctx); err != nil {
				logger.Warn("sync cycle incomplete", "error", err)
			}
			cancel()
		case <-e.stop:
			logger.Info("replication engine stopped")
			return
		}
	}
}

// SyncOnce runs a single anti-entropy cycle. A failure on one table does
// not stop the remaining tables from syncing.
func (e *Engine) SyncOnce(ctx context.Context) error {
	metrics.SyncCycle()
	var errs []error

	// A cycle can fail partway through after already changing local
	// rows, so the snapshot is invalidated on any change, error or not.
	changed, err := e.syncAccounts(ctx)
	if changed {
		e.cache.Invalidate(bank.TableAccounts)
	}
	if err != nil {
		errs = append(errs, err)
	}

	if _, err := e.syncCredentials(ctx); err != nil {
		errs = append(errs, err)
	}

	changed, err = e.syncTransactions(ctx)
	if changed {
		e.cache.Invalidate(bank.TableTransactions)
	}
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (e *Engine) syncAccounts(ctx context.Context) (bool, error) {
	local, err := e.localAccounts.List(ctx)
	if err != nil {
		return false, err
	}
	remote, err := e.remoteAccounts.List(ctx)
	if err != nil {
		return false, err
	}

	localByNum := make(map[int64]*model.Account, len(local))
	for _, account := range local {
		localByNum[account.AccountNum] = account
	}
	remoteByNum := make(map[int64]*model.Account, len(remote))
	for _, account := range remote {
		remoteByNum[account.AccountNum] = account
	}

	changed := false
	for num, mine := range localByNum {
		theirs, ok := remoteByNum[num]
		if !ok {
			if err := e.remoteAccounts.Upsert(ctx, mine); err != nil {
				return changed, err
			}
			continue
		}
		if accountsEqual(mine, theirs) {
			continue
		}
		if theirs.UpdatedAt.After(mine.UpdatedAt) {
			if err := e.localAccounts.Upsert(ctx, theirs); err != nil {
				return changed, err
			}
			changed = true
		} else {
			if err := e.remoteAccounts.Upsert(ctx, mine); err != nil {
				return changed, err
			}
		}
		metrics.SyncConflict()
		logger.Debug("account conflict resolved", "account_num", num)
	}
	for num, theirs := range remoteByNum {
		if _, ok := localByNum[num]; ok {
			continue
		}
		if err := e.localAccounts.Upsert(ctx, theirs); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

func (e *Engine) syncCredentials(ctx context.Context) (bool, error) {
	local, err := e.localCredentials.List(ctx)
	if err != nil {
		return false, err
	}
	remote, err := e.remoteCredentials.List(ctx)
	if err != nil {
		return false, err
	}

	localByNum := make(map[int64]*model.Credential, len(local))
	for _, credential := range local {
		localByNum[credential.AccountNum] = credential
	}
	remoteByNum := make(map[int64]*model.Credential, len(remote))
	for _, credential := range remote {
		remoteByNum[credential.AccountNum] = credential
	}

	changed := false
	for num, mine := range localByNum {
		theirs, ok := remoteByNum[num]
		if !ok {
			if err := e.remoteCredentials.Upsert(ctx, mine); err != nil {
				return changed, err
			}
			continue
		}
		if credentialsEqual(mine, theirs) {
			continue
		}
		if theirs.UpdatedAt.After(mine.UpdatedAt) {
			if err := e.localCredentials.Upsert(ctx, theirs); err != nil {
				return changed, err
			}
			changed = true
		} else {
			if err := e.remoteCredentials.Upsert(ctx, mine); err != nil {
				return changed, err
			}
		}
	}
	for num, theirs := range remoteByNum {
		if _, ok := localByNum[num]; ok {
			continue
		}
		if err := e.localCredentials.Upsert(ctx, theirs); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// syncTransactions only copies missing rows. The ledger is append-only,
// so there is no conflict case.
func (e *Engine) syncTransactions(ctx context.Context) (bool, error) {
	local, err := e.localTransactions.List(ctx)
	if err != nil {
		return false, err
	}
	remote, err := e.remoteTransactions.List(ctx)
	if err != nil {
		return false, err
	}

	localByID := make(map[int64]*model.Transaction, len(local))
	for _, txn := range local {
		localByID[txn.ID] = txn
	}
	remoteByID := make(map[int64]*model.Transaction, len(remote))
	for _, txn := range remote {
		remoteByID[txn.ID] = txn
	}

	changed := false
	for id, txn := range localByID {
		if _, ok := remoteByID[id]; ok {
			continue
		}
		if err := e.remoteTransactions.Upsert(ctx, txn); err != nil {
			return changed, err
		}
	}
	for id, txn := range remoteByID {
		if _, ok := localByID[id]; ok {
			continue
		}
		if err := e.localTransactions.Upsert(ctx, txn); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

func accountsEqual(a, b *model.Account) bool {
	return a.FirstName == b.FirstName &&
		a.LastName == b.LastName &&
		a.SSN == b.SSN &&
		a.Phone == b.Phone &&
		a.SMSOptIn == b.SMSOptIn &&
		a.Balance == b.Balance
}

func credentialsEqual(a, b *model.Credential) bool {
	return a.PasswordHash == b.PasswordHash && a.PublicKey == b.PublicKey
}
