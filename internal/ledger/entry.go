package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is the kind of balance movement a log entry records.
type Action string

const (
	ActionDeposit  Action = "DEPOSIT"
	ActionWithdraw Action = "WITHDRAW"
)

// ParseAction validates a stored action value.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionDeposit, ActionWithdraw:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// LogEntry is an immutable record of one applied movement.
type LogEntry struct {
	ID uuid.UUID
	// Sequence is assigned by the store on append and orders the log.
	Sequence       int64
	AccountID      string
	Action         Action
	Amount         decimal.Decimal
	BalanceAfter   decimal.Decimal
	IdempotencyKey string
	Timestamp      time.Time
}

// IdempotencyRecord proves that the request carrying Key was applied.
type IdempotencyRecord struct {
	Key       string
	AccountID string
	Action    Action
	CreatedAt time.Time
}
