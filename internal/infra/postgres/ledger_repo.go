package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Jay-S9/backend-foundation/internal/ledger"
	"github.com/Jay-S9/backend-foundation/pkg/money"
)

const uniqueViolation = "23505"

// LedgerRepository implements the repository interface using PostgreSQL
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetAccount retrieves an account by ID
func (r *LedgerRepository) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	query := `
		SELECT account_id, balance::text, state, version, created_at, updated_at
		FROM accounts
		WHERE account_id = $1
	`

	var account ledger.Account
	var balance, state string

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&balance,
		&state,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Account{}, fmt.Errorf("account %s: %w", id, ledger.ErrRecordNotFound)
		}
		return ledger.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	if account.Balance, err = decimal.NewFromString(balance); err != nil {
		return ledger.Account{}, fmt.Errorf("invalid balance value: %s", balance)
	}
	if account.State, err = ledger.ParseState(state); err != nil {
		return ledger.Account{}, err
	}
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()

	return account, nil
}

// InsertAccount creates a new account row
func (r *LedgerRepository) InsertAccount(ctx context.Context, account ledger.Account) error {
	query := `
		INSERT INTO accounts (account_id, balance, state, version, created_at, updated_at)
		VALUES ($1, $2::numeric, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		account.ID,
		money.FormatFixed(account.Balance),
		account.State.String(),
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", account.ID, ledger.ErrDuplicateAccount)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// UpdateState persists a lifecycle change
func (r *LedgerRepository) UpdateState(ctx context.Context, account ledger.Account) error {
	query := `
		UPDATE accounts
		SET state = $2, version = $3, updated_at = $4
		WHERE account_id = $1 AND version = $5
	`

	tag, err := r.pool.Exec(ctx, query,
		account.ID,
		account.State.String(),
		account.Version,
		account.UpdatedAt,
		account.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update account state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, r.pool, account)
	}

	return nil
}

// CommitDeposit applies a deposit atomically
func (r *LedgerRepository) CommitDeposit(ctx context.Context, account ledger.Account, entry ledger.LogEntry, record ledger.IdempotencyRecord) (ledger.LogEntry, error) {
	return r.commit(ctx, account, entry, &record)
}

// CommitWithdraw applies a withdrawal atomically; record may be nil
func (r *LedgerRepository) CommitWithdraw(ctx context.Context, account ledger.Account, entry ledger.LogEntry, record *ledger.IdempotencyRecord) (ledger.LogEntry, error) {
	return r.commit(ctx, account, entry, record)
}

// commit writes the account row, the idempotency key and the log entry in
// one transaction. The key goes before the entry so a replay fails on the
// primary key before anything else is written.
func (r *LedgerRepository) commit(ctx context.Context, account ledger.Account, entry ledger.LogEntry, record *ledger.IdempotencyRecord) (ledger.LogEntry, error) {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts
			SET balance = $2::numeric, state = $3, version = $4, updated_at = $5
			WHERE account_id = $1 AND version = $6
		`,
			account.ID,
			money.FormatFixed(account.Balance),
			account.State.String(),
			account.Version,
			account.UpdatedAt,
			account.Version-1,
		)
		if err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrConflict(ctx, tx, account)
		}

		var key *string
		if record != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO idempotency_keys (key, account_id, action, created_at)
				VALUES ($1, $2, $3, $4)
			`, record.Key, record.AccountID, string(record.Action), record.CreatedAt)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("key %s: %w", record.Key, ledger.ErrDuplicateIdempotencyKey)
				}
				return fmt.Errorf("failed to record idempotency key: %w", err)
			}
			key = &record.Key
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO transaction_logs (id, account_id, action, amount, balance_after, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)
			RETURNING seq
		`,
			entry.ID,
			entry.AccountID,
			string(entry.Action),
			money.FormatFixed(entry.Amount),
			money.FormatFixed(entry.BalanceAfter),
			key,
			entry.Timestamp,
		).Scan(&entry.Sequence)
		if err != nil {
			return fmt.Errorf("failed to append transaction log: %w", err)
		}
		return nil
	})
	if err != nil {
		return ledger.LogEntry{}, err
	}

	return entry, nil
}

// withTx runs fn in a transaction, rolling back unless fn and the commit
// both succeed.
func (r *LedgerRepository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// the caller's context may already be done
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return nil
}

func (r *LedgerRepository) missingOrConflict(ctx context.Context, q querier, account ledger.Account) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = $1)`, account.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return fmt.Errorf("account %s: %w", account.ID, ledger.ErrRecordNotFound)
	}
	return fmt.Errorf("account %s expected at version %d: %w", account.ID, account.Version-1, ledger.ErrVersionConflict)
}

// IdempotencyExists reports whether key was recorded
func (r *LedgerRepository) IdempotencyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM idempotency_keys WHERE key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return exists, nil
}

// ListLogs returns an account's entries in append order
func (r *LedgerRepository) ListLogs(ctx context.Context, accountID string) ([]ledger.LogEntry, error) {
	query := `
		SELECT seq, id, account_id, action, amount::text, balance_after::text,
		       COALESCE(idempotency_key, ''), created_at
		FROM transaction_logs
		WHERE account_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction logs: %w", err)
	}
	defer rows.Close()

	var entries []ledger.LogEntry
	for rows.Next() {
		var e ledger.LogEntry
		var action, amount, balanceAfter string

		if err := rows.Scan(
			&e.Sequence,
			&e.ID,
			&e.AccountID,
			&action,
			&amount,
			&balanceAfter,
			&e.IdempotencyKey,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction log: %w", err)
		}

		if e.Action, err = ledger.ParseAction(action); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid amount value: %s", amount)
		}
		if e.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
			return nil, fmt.Errorf("invalid balance_after value: %s", balanceAfter)
		}
		e.Timestamp = e.Timestamp.UTC()

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction logs: %w", err)
	}

	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
