package ledger

import (
	"fmt"

	"github.com/Jay-S9/backend-foundation/pkg/money"
	"github.com/shopspring/decimal"
)

// Deposit returns a copy of a with amount added.
//
// Checks run in order and the first failure wins:
//  1. amount > 0 (KindInvalidAmount)
//  2. account is Active (KindAccountNotActive)
//  3. resulting balance stays within money.MaxIntegerDigits (KindInvalidAmount)
func (a Account) Deposit(amount decimal.Decimal) (Account, error) {
	if err := validateAmount("deposit", a.ID, amount); err != nil {
		return a, err
	}
	if err := requireActive("deposit", a); err != nil {
		return a, err
	}

	balance := a.Balance.Add(amount)
	if err := money.CheckRange(balance); err != nil {
		return a, &Error{
			Kind:      KindInvalidAmount,
			Op:        "deposit",
			AccountID: a.ID,
			Msg:       fmt.Sprintf("balance would exceed %d integer digits", money.MaxIntegerDigits),
		}
	}

	a.Balance = balance
	return a, nil
}

// Withdraw returns a copy of a with amount removed. Same checks as
// Deposit, then amount <= balance (KindInsufficientFunds).
func (a Account) Withdraw(amount decimal.Decimal) (Account, error) {
	if err := validateAmount("withdraw", a.ID, amount); err != nil {
		return a, err
	}
	if err := requireActive("withdraw", a); err != nil {
		return a, err
	}
	if amount.GreaterThan(a.Balance) {
		return a, &Error{
			Kind:      KindInsufficientFunds,
			Op:        "withdraw",
			AccountID: a.ID,
			Msg:       fmt.Sprintf("insufficient funds: balance %s, requested %s", money.Format(a.Balance), money.Format(amount)),
		}
	}

	a.Balance = a.Balance.Sub(amount)
	return a, nil
}

func validateAmount(op, accountID string, amount decimal.Decimal) error {
	if !money.IsPositive(amount) {
		return &Error{Kind: KindInvalidAmount, Op: op, AccountID: accountID}
	}
	if err := money.CheckScale(amount); err != nil {
		return &Error{Kind: KindInvalidAmount, Op: op, AccountID: accountID, Msg: err.Error()}
	}
	if err := money.CheckRange(amount); err != nil {
		return &Error{Kind: KindInvalidAmount, Op: op, AccountID: accountID, Msg: err.Error()}
	}
	return nil
}

func requireActive(op string, a Account) error {
	if a.State == StateActive {
		return nil
	}
	return &Error{
		Kind:      KindAccountNotActive,
		Op:        op,
		AccountID: a.ID,
		State:     a.State,
		Msg:       fmt.Sprintf("account is %s", a.State),
	}
}
