package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Jay-S9/backend-foundation/internal/ledger"
)

// sqlAccount maps the accounts table
type sqlAccount struct {
	AccountID string          `gorm:"column:account_id;primaryKey;size:128"`
	Balance   decimal.Decimal `gorm:"type:decimal(24,4);not null"`
	State     string          `gorm:"size:16;not null"`
	Version   int64           `gorm:"not null"`
	CreatedAt time.Time       `gorm:"type:datetime(6);not null;autoCreateTime:false"`
	UpdatedAt time.Time       `gorm:"type:datetime(6);not null;autoUpdateTime:false"`
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlIdempotencyKey maps the idempotency_keys table; the primary key is
// the uniqueness constraint replays collide with.
type sqlIdempotencyKey struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey;size:255"`
	AccountID      string    `gorm:"size:128;not null"`
	Action         string    `gorm:"size:16;not null"`
	CreatedAt      time.Time `gorm:"type:datetime(6);not null;autoCreateTime:false"`
}

func (*sqlIdempotencyKey) TableName() string {
	return "idempotency_keys"
}

// sqlLogEntry maps the transaction_logs table
type sqlLogEntry struct {
	Seq            int64           `gorm:"column:seq;primaryKey;autoIncrement;index:idx_logs_account_seq,priority:2"`
	ID             string          `gorm:"column:id;size:36;uniqueIndex;not null"`
	AccountID      string          `gorm:"size:128;not null;index:idx_logs_account_seq,priority:1"`
	Action         string          `gorm:"size:16;not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(24,4);not null"`
	BalanceAfter   decimal.Decimal `gorm:"type:decimal(24,4);not null"`
	IdempotencyKey *string         `gorm:"size:255"`
	CreatedAt      time.Time       `gorm:"type:datetime(6);not null;autoCreateTime:false"`
}

func (*sqlLogEntry) TableName() string {
	return "transaction_logs"
}

// LedgerRepository implements ledger.Repository on MySQL
type LedgerRepository struct {
	client *Client
}

// NewLedgerRepository creates a repository over client
func NewLedgerRepository(client *Client) *LedgerRepository {
	return &LedgerRepository{client: client}
}

// AutoMigrate creates or updates the ledger tables
func (r *LedgerRepository) AutoMigrate(ctx context.Context) error {
	if err := r.client.DB().WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlIdempotencyKey{}, &sqlLogEntry{}); err != nil {
		return fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	var row sqlAccount
	err := r.client.DB().WithContext(ctx).Where("account_id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, fmt.Errorf("account %s: %w", id, ledger.ErrRecordNotFound)
		}
		return ledger.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	state, err := ledger.ParseState(row.State)
	if err != nil {
		return ledger.Account{}, err
	}

	return ledger.Account{
		ID:        row.AccountID,
		Balance:   row.Balance,
		State:     state,
		Version:   row.Version,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func (r *LedgerRepository) InsertAccount(ctx context.Context, account ledger.Account) error {
	row := sqlAccount{
		AccountID: account.ID,
		Balance:   account.Balance,
		State:     account.State.String(),
		Version:   account.Version,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}

	if err := r.client.DB().WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("account %s: %w", account.ID, ledger.ErrDuplicateAccount)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *LedgerRepository) UpdateState(ctx context.Context, account ledger.Account) error {
	db := r.client.DB().WithContext(ctx)
	res := db.Model(&sqlAccount{}).
		Where("account_id = ? AND version = ?", account.ID, account.Version-1).
		Updates(map[string]any{
			"state":      account.State.String(),
			"version":    account.Version,
			"updated_at": account.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update account state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(db, account)
	}
	return nil
}

func (r *LedgerRepository) CommitDeposit(ctx context.Context, account ledger.Account, entry ledger.LogEntry, record ledger.IdempotencyRecord) (ledger.LogEntry, error) {
	return r.commit(ctx, account, entry, &record)
}

func (r *LedgerRepository) CommitWithdraw(ctx context.Context, account ledger.Account, entry ledger.LogEntry, record *ledger.IdempotencyRecord) (ledger.LogEntry, error) {
	return r.commit(ctx, account, entry, record)
}

func (r *LedgerRepository) commit(ctx context.Context, account ledger.Account, entry ledger.LogEntry, record *ledger.IdempotencyRecord) (ledger.LogEntry, error) {
	err := r.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&sqlAccount{}).
			Where("account_id = ? AND version = ?", account.ID, account.Version-1).
			Updates(map[string]any{
				"balance":    account.Balance,
				"state":      account.State.String(),
				"version":    account.Version,
				"updated_at": account.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, account)
		}

		var key *string
		if record != nil {
			row := sqlIdempotencyKey{
				IdempotencyKey: record.Key,
				AccountID:      record.AccountID,
				Action:         string(record.Action),
				CreatedAt:      record.CreatedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("key %s: %w", record.Key, ledger.ErrDuplicateIdempotencyKey)
				}
				return fmt.Errorf("failed to record idempotency key: %w", err)
			}
			key = &record.Key
		}

		logRow := sqlLogEntry{
			ID:             entry.ID.String(),
			AccountID:      entry.AccountID,
			Action:         string(entry.Action),
			Amount:         entry.Amount,
			BalanceAfter:   entry.BalanceAfter,
			IdempotencyKey: key,
			CreatedAt:      entry.Timestamp,
		}
		if err := tx.Create(&logRow).Error; err != nil {
			return fmt.Errorf("failed to append transaction log: %w", err)
		}
		entry.Sequence = logRow.Seq
		return nil
	})
	if err != nil {
		return ledger.LogEntry{}, err
	}
	return entry, nil
}

// missingOrConflict explains a versioned update that matched no row.
func missingOrConflict(db *gorm.DB, account ledger.Account) error {
	var n int64
	if err := db.Model(&sqlAccount{}).Where("account_id = ?", account.ID).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", account.ID, ledger.ErrRecordNotFound)
	}
	return fmt.Errorf("account %s expected at version %d: %w", account.ID, account.Version-1, ledger.ErrVersionConflict)
}

func (r *LedgerRepository) IdempotencyExists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := r.client.DB().WithContext(ctx).
		Model(&sqlIdempotencyKey{}).
		Where("idempotency_key = ?", key).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return n > 0, nil
}

func (r *LedgerRepository) ListLogs(ctx context.Context, accountID string) ([]ledger.LogEntry, error) {
	var rows []sqlLogEntry
	err := r.client.DB().WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction logs: %w", err)
	}

	entries := make([]ledger.LogEntry, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid log entry id %q: %w", row.ID, err)
		}
		action, err := ledger.ParseAction(row.Action)
		if err != nil {
			return nil, err
		}

		e := ledger.LogEntry{
			ID:           id,
			Sequence:     row.Seq,
			AccountID:    row.AccountID,
			Action:       action,
			Amount:       row.Amount,
			BalanceAfter: row.BalanceAfter,
			Timestamp:    row.CreatedAt.UTC(),
		}
		if row.IdempotencyKey != nil {
			e.IdempotencyKey = *row.IdempotencyKey
		}
		entries = append(entries, e)
	}
	return entries, nil
}
