package ledger

import (
	"context"
	"strings"
)

// Reservation is the outcome of an idempotency check.
type Reservation int

const (
	// Reserved means the key has not been applied yet. Nothing is written;
	// the key becomes durable only with the atomic commit.
	Reserved Reservation = iota + 1
	// Duplicate means the key was already applied.
	Duplicate
)

func (r Reservation) String() string {
	switch r {
	case Reserved:
		return "reserved"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// IdempotencyStore answers whether a key was recorded.
type IdempotencyStore interface {
	IdempotencyExists(ctx context.Context, key string) (bool, error)
}

// IdempotencyGuard decides whether a keyed request may proceed. Two
// callers racing on the same key can both see Reserved; the store's
// unique constraint rejects the second commit with
// ErrDuplicateIdempotencyKey.
type IdempotencyGuard struct {
	store IdempotencyStore
}

// NewIdempotencyGuard creates a guard over store.
func NewIdempotencyGuard(store IdempotencyStore) *IdempotencyGuard {
	return &IdempotencyGuard{store: store}
}

// CheckAndReserve returns Duplicate if key was already applied.
func (g *IdempotencyGuard) CheckAndReserve(ctx context.Context, key string) (Reservation, error) {
	if strings.TrimSpace(key) == "" {
		return 0, invalidInput("idempotency", "", "idempotency key is required")
	}

	exists, err := g.store.IdempotencyExists(ctx, key)
	if err != nil {
		return 0, persistenceFailure("idempotency", "", "failed to check idempotency key", err)
	}
	if exists {
		return Duplicate, nil
	}
	return Reserved, nil
}
