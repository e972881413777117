package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names a committed change.
type EventType string

const (
	EventAccountCreated      EventType = "account.created"
	EventAccountDeposited    EventType = "account.deposited"
	EventAccountWithdrawn    EventType = "account.withdrawn"
	EventAccountStateChanged EventType = "account.state_changed"
)

// Event describes a committed change for downstream consumers.
type Event struct {
	ID             uuid.UUID       `json:"id"`
	Type           EventType       `json:"type"`
	AccountID      string          `json:"account_id"`
	Action         Action          `json:"action,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Balance        decimal.Decimal `json:"balance"`
	State          string          `json:"state"`
	Version        int64           `json:"version"`
	Sequence       int64           `json:"sequence,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func newEvent(typ EventType, account Account) Event {
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		AccountID:  account.ID,
		Balance:    account.Balance,
		State:      account.State.String(),
		Version:    account.Version,
		OccurredAt: account.UpdatedAt,
	}
}

func movementEvent(account Account, entry LogEntry) Event {
	typ := EventAccountDeposited
	if entry.Action == ActionWithdraw {
		typ = EventAccountWithdrawn
	}
	ev := newEvent(typ, account)
	ev.Action = entry.Action
	ev.Amount = entry.Amount
	ev.Sequence = entry.Sequence
	ev.IdempotencyKey = entry.IdempotencyKey
	return ev
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
