package ledger

import (
	"strings"
	"time"

	"github.com/Jay-S9/backend-foundation/pkg/money"
	"github.com/shopspring/decimal"
)

// MaxAccountIDLength bounds caller supplied identifiers.
const MaxAccountIDLength = 128

// Account is a balance holder. Values are copied, never shared: every
// operation returns a new Account.
type Account struct {
	ID      string
	Balance decimal.Decimal
	State   State
	// Version increases by one with every persisted mutation.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount validates the inputs of account creation and returns an
// Active account at version 1.
func NewAccount(id string, initialBalance decimal.Decimal, now time.Time) (Account, error) {
	if err := ValidateAccountID(id); err != nil {
		return Account{}, err
	}
	if money.IsNegative(initialBalance) {
		return Account{}, invalidInput("create", id, "initial balance cannot be negative")
	}
	if err := money.CheckScale(initialBalance); err != nil {
		return Account{}, invalidInput("create", id, "initial balance: %v", err)
	}
	if err := money.CheckRange(initialBalance); err != nil {
		return Account{}, invalidInput("create", id, "initial balance: %v", err)
	}

	return Account{
		ID:        id,
		Balance:   initialBalance,
		State:     StateActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateAccountID rejects empty, oversized or whitespace padded ids.
func ValidateAccountID(id string) error {
	switch {
	case id == "":
		return invalidInput("", id, "account id is required")
	case len(id) > MaxAccountIDLength:
		return invalidInput("", id, "account id exceeds %d bytes", MaxAccountIDLength)
	case strings.TrimSpace(id) != id:
		return invalidInput("", id, "account id has surrounding whitespace")
	}
	return nil
}

// IsActive reports whether money can move on the account.
func (a Account) IsActive() bool {
	return a.State == StateActive
}

// advance stamps a as the next persisted version.
func (a Account) advance(at time.Time) Account {
	a.Version++
	a.UpdatedAt = at
	return a
}
