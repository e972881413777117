package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jay-S9/backend-foundation/pkg/money"
)

func TestDeposit(t *testing.T) {
	tests := []struct {
		name     string
		balance  string
		state    State
		amount   decimal.Decimal
		want     string
		wantKind Kind
	}{
		{"adds amount", "100", StateActive, money.MustParse("50"), "150", ""},
		{"fractional", "0.1", StateActive, money.MustParse("0.2"), "0.3", ""},
		{"zero amount", "100", StateActive, decimal.Zero, "", KindInvalidAmount},
		{"negative amount", "100", StateActive, money.MustParse("-5"), "", KindInvalidAmount},
		{"too precise", "100", StateActive, decimal.RequireFromString("0.00001"), "", KindInvalidAmount},
		{"amount too large", "0", StateActive, money.MustParse("1000000000000000000000000"), "", KindInvalidAmount},
		{"balance reaches bound", "99999999999999999999", StateActive, money.MustParse("1"), "", KindInvalidAmount},
		{"balance at bound", "99999999999999999998", StateActive, money.MustParse("1.9999"), "99999999999999999999.9999", ""},
		{"frozen", "100", StateFrozen, money.MustParse("5"), "", KindAccountNotActive},
		{"closed", "100", StateClosed, money.MustParse("5"), "", KindAccountNotActive},
		// amount is checked before state
		{"frozen and zero", "100", StateFrozen, decimal.Zero, "", KindInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAccount(t, tt.balance, tt.state)

			next, err := a.Deposit(tt.amount)

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				assert.True(t, next.Balance.Equal(a.Balance))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, next.Balance.String())
			assert.Equal(t, a.Version, next.Version, "pure operation does not bump version")
		})
	}
}

func TestWithdraw(t *testing.T) {
	tests := []struct {
		name     string
		balance  string
		state    State
		amount   string
		want     string
		wantKind Kind
	}{
		{"subtracts amount", "150", StateActive, "10", "140", ""},
		{"exact balance", "100", StateActive, "100", "0", ""},
		{"insufficient", "150", StateActive, "200", "", KindInsufficientFunds},
		{"zero", "150", StateActive, "0", "", KindInvalidAmount},
		{"amount too large", "150", StateActive, "100000000000000000000", "", KindInvalidAmount},
		{"frozen", "150", StateFrozen, "10", "", KindAccountNotActive},
		// state is checked before funds
		{"frozen and insufficient", "150", StateFrozen, "200", "", KindAccountNotActive},
		{"negative and insufficient", "0", StateActive, "-1", "", KindInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAccount(t, tt.balance, tt.state)

			next, err := a.Withdraw(money.MustParse(tt.amount))

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, next.Balance.String())
			assert.False(t, money.IsNegative(next.Balance))
		})
	}
}

func TestWithdraw_InsufficientFundsMessage(t *testing.T) {
	a := newTestAccount(t, "150", StateActive)
	_, err := a.Withdraw(money.MustParse("200"))
	assert.EqualError(t, err, "withdraw: insufficient funds: balance 150, requested 200")
}

func TestNewAccount(t *testing.T) {
	now := time.Now().UTC()

	a, err := NewAccount("acct-1", money.MustParse("100"), now)
	require.NoError(t, err)
	assert.Equal(t, StateActive, a.State)
	assert.Equal(t, int64(1), a.Version)
	assert.Equal(t, now, a.CreatedAt)

	_, err = NewAccount("zero", decimal.Zero, now)
	assert.NoError(t, err)

	tests := []struct {
		name    string
		id      string
		balance decimal.Decimal
	}{
		{"empty id", "", decimal.Zero},
		{"padded id", " acct ", decimal.Zero},
		{"long id", string(make([]byte, MaxAccountIDLength+1)), decimal.Zero},
		{"negative balance", "acct-1", money.MustParse("-1")},
		{"too precise", "acct-1", decimal.RequireFromString("1.00001")},
		{"too large", "acct-1", money.MustParse("100000000000000000000")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAccount(tt.id, tt.balance, now)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
