package ledger

import (
	"context"
	"errors"
)

// Store errors returned by Repository implementations. The Service maps
// them onto error kinds.
var (
	ErrRecordNotFound          = errors.New("record not found")
	ErrDuplicateAccount        = errors.New("account id already exists")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")
	ErrVersionConflict         = errors.New("account version changed concurrently")
)

// Repository defines the interface for ledger persistence operations.
//
// Account values passed to writes carry the new Version; a store applies
// the write only if the stored version is exactly Version-1 and returns
// ErrVersionConflict otherwise. Commits are all-or-nothing.
type Repository interface {
	IdempotencyStore
	LogReader

	// Account operations
	GetAccount(ctx context.Context, id string) (Account, error)
	InsertAccount(ctx context.Context, account Account) error
	UpdateState(ctx context.Context, account Account) error

	// Atomic movements: account row, log append and idempotency record
	// in one unit. The returned entry carries the assigned Sequence.
	CommitDeposit(ctx context.Context, account Account, entry LogEntry, record IdempotencyRecord) (LogEntry, error)
	CommitWithdraw(ctx context.Context, account Account, entry LogEntry, record *IdempotencyRecord) (LogEntry, error)
}

// Locker serializes work on one account. unlock must be called exactly
// once after a successful Lock.
type Locker interface {
	Lock(ctx context.Context, accountID string) (unlock func(), err error)
}

// EventPublisher receives committed ledger events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
