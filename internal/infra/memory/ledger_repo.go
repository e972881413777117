// Package memory keeps ledger state in process memory. It backs the
// memory storage driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Jay-S9/backend-foundation/internal/ledger"
)

// LedgerRepository implements ledger.Repository with one mutex around
// all state, which makes every commit trivially atomic.
type LedgerRepository struct {
	mu       sync.RWMutex
	accounts map[string]ledger.Account
	logs     map[string][]ledger.LogEntry
	keys     map[string]ledger.IdempotencyRecord
	seq      int64
}

// NewLedgerRepository creates an empty repository.
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		accounts: make(map[string]ledger.Account),
		logs:     make(map[string][]ledger.LogEntry),
		keys:     make(map[string]ledger.IdempotencyRecord),
	}
}

func (r *LedgerRepository) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return ledger.Account{}, fmt.Errorf("account %s: %w", id, ledger.ErrRecordNotFound)
	}
	return account, nil
}

func (r *LedgerRepository) InsertAccount(ctx context.Context, account ledger.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; ok {
		return fmt.Errorf("account %s: %w", account.ID, ledger.ErrDuplicateAccount)
	}
	r.accounts[account.ID] = account
	return nil
}

func (r *LedgerRepository) UpdateState(ctx context.Context, account ledger.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.checkVersion(account)
	if err != nil {
		return err
	}
	stored.State = account.State
	stored.Version = account.Version
	stored.UpdatedAt = account.UpdatedAt
	r.accounts[account.ID] = stored
	return nil
}

func (r *LedgerRepository) CommitDeposit(ctx context.Context, account ledger.Account, entry ledger.LogEntry, record ledger.IdempotencyRecord) (ledger.LogEntry, error) {
	return r.commit(ctx, account, entry, &record)
}

func (r *LedgerRepository) CommitWithdraw(ctx context.Context, account ledger.Account, entry ledger.LogEntry, record *ledger.IdempotencyRecord) (ledger.LogEntry, error) {
	return r.commit(ctx, account, entry, record)
}

// commit validates everything before touching state so a failure leaves
// no partial write.
func (r *LedgerRepository) commit(ctx context.Context, account ledger.Account, entry ledger.LogEntry, record *ledger.IdempotencyRecord) (ledger.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.LogEntry{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.checkVersion(account); err != nil {
		return ledger.LogEntry{}, err
	}
	if record != nil {
		if _, dup := r.keys[record.Key]; dup {
			return ledger.LogEntry{}, fmt.Errorf("key %s: %w", record.Key, ledger.ErrDuplicateIdempotencyKey)
		}
	}

	r.seq++
	entry.Sequence = r.seq
	r.accounts[account.ID] = account
	r.logs[account.ID] = append(r.logs[account.ID], entry)
	if record != nil {
		r.keys[record.Key] = *record
	}
	return entry, nil
}

func (r *LedgerRepository) checkVersion(account ledger.Account) (ledger.Account, error) {
	stored, ok := r.accounts[account.ID]
	if !ok {
		return ledger.Account{}, fmt.Errorf("account %s: %w", account.ID, ledger.ErrRecordNotFound)
	}
	if stored.Version != account.Version-1 {
		return ledger.Account{}, fmt.Errorf("account %s at version %d, write expects %d: %w",
			account.ID, stored.Version, account.Version-1, ledger.ErrVersionConflict)
	}
	return stored, nil
}

func (r *LedgerRepository) IdempotencyExists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.keys[key]
	return ok, nil
}

func (r *LedgerRepository) ListLogs(ctx context.Context, accountID string) ([]ledger.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ledger.LogEntry, len(r.logs[accountID]))
	copy(out, r.logs[accountID])
	return out, nil
}

// Health fails only when ctx is done.
func (r *LedgerRepository) Health(ctx context.Context) error {
	return ctx.Err()
}
