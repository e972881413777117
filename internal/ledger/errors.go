package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies ledger failures. The string value is the wire code.
type Kind string

const (
	KindInvalidInput           Kind = "INVALID_INPUT"
	KindInvalidAmount          Kind = "INVALID_AMOUNT"
	KindAccountNotFound        Kind = "ACCOUNT_NOT_FOUND"
	KindAccountNotActive       Kind = "ACCOUNT_NOT_ACTIVE"
	KindInsufficientFunds      Kind = "INSUFFICIENT_FUNDS"
	KindInvalidStateTransition Kind = "INVALID_STATE_TRANSITION"
	KindDuplicateRequest       Kind = "DUPLICATE_REQUEST"
	KindPersistenceFailure     Kind = "PERSISTENCE_FAILURE"
	KindAccountExists          Kind = "ACCOUNT_EXISTS"
)

// Retryable reports whether the same request may succeed if sent again.
// Only persistence failures qualify: nothing was committed.
func (k Kind) Retryable() bool {
	return k == KindPersistenceFailure
}

func (k Kind) message() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindInvalidAmount:
		return "amount must be positive"
	case KindAccountNotFound:
		return "account not found"
	case KindAccountNotActive:
		return "account is not active"
	case KindInsufficientFunds:
		return "insufficient funds"
	case KindInvalidStateTransition:
		return "invalid state transition"
	case KindDuplicateRequest:
		return "duplicate request"
	case KindPersistenceFailure:
		return "persistence failure"
	case KindAccountExists:
		return "account already exists"
	}
	return strings.ToLower(string(k))
}

// Error is the failure type of every ledger operation.
type Error struct {
	Kind      Kind
	Op        string
	AccountID string

	// State is the offending state for KindAccountNotActive.
	State State
	// From and To are set for KindInvalidStateTransition.
	From State
	To   State

	Msg string
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.message())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, ErrInsufficientFunds)
// holds for any insufficient funds failure regardless of context fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind != e.Kind {
		return false
	}
	return t.Op == "" && t.AccountID == "" && t.Msg == "" && t.Err == nil
}

// Kind sentinels for errors.Is
var (
	ErrInvalidInput           = &Error{Kind: KindInvalidInput}
	ErrInvalidAmount          = &Error{Kind: KindInvalidAmount}
	ErrAccountNotFound        = &Error{Kind: KindAccountNotFound}
	ErrAccountNotActive       = &Error{Kind: KindAccountNotActive}
	ErrInsufficientFunds      = &Error{Kind: KindInsufficientFunds}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrDuplicateRequest       = &Error{Kind: KindDuplicateRequest}
	ErrPersistenceFailure     = &Error{Kind: KindPersistenceFailure}
	ErrAccountExists          = &Error{Kind: KindAccountExists}
)

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalidInput(op, accountID, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, AccountID: accountID, Msg: fmt.Sprintf(format, args...)}
}

func persistenceFailure(op, accountID, msg string, err error) *Error {
	return &Error{Kind: KindPersistenceFailure, Op: op, AccountID: accountID, Msg: msg, Err: err}
}
