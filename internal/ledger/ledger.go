// Package ledger implements the account balance ledger: available and
// frozen funds per currency, with atomic freeze/unfreeze/deduct/credit
// operations. The checked operations refuse to take a balance below
// zero; AddToAvailable does not check the sign of what it adds.
package ledger

import (
	"fmt"

	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
)

// ErrInsufficientBalance is returned whenever an operation would drive
// available or frozen below zero.
type ErrInsufficientBalance struct {
	User     core.UserId
	Currency core.Currency
	Field    string
}

func (e ErrInsufficientBalance) Error() string {
	return fmt.Sprintf("ledger: insufficient %s for user %s currency %d", e.Field, e.User, e.Currency)
}

// Ledger owns every account's balances. Not safe for concurrent
// mutation; the executor is the single writer.
type Ledger struct {
	accounts map[core.UserId]core.Account
}

func New() *Ledger {
	return &Ledger{accounts: make(map[core.UserId]core.Account)}
}

func (l *Ledger) account(user core.UserId) core.Account {
	a, ok := l.accounts[user]
	if !ok {
		a = make(core.Account)
		l.accounts[user] = a
	}
	return a
}

// Balance returns the current balance, zero-valued if absent.
func (l *Ledger) Balance(user core.UserId, currency core.Currency) core.Balance {
	return l.account(user)[currency]
}

// Accounts exposes the full map for snapshotting. Callers must not
// mutate the returned map directly.
func (l *Ledger) Accounts() map[core.UserId]core.Account { return l.accounts }

// SetAccounts replaces all accounts, used when loading a snapshot.
func (l *Ledger) SetAccounts(accounts map[core.UserId]core.Account) { l.accounts = accounts }

// AddToAvailable credits available funds, used for TransferIn and for
// crediting a maker/taker after a fill.
func (l *Ledger) AddToAvailable(user core.UserId, currency core.Currency, amount decimal.Decimal) {
	a := l.account(user)
	b := a[currency]
	b.Available = b.Available.Add(amount)
	a[currency] = b
}

// DeductAvailable debits available funds, erroring rather than going
// negative.
func (l *Ledger) DeductAvailable(user core.UserId, currency core.Currency, amount decimal.Decimal) error {
	a := l.account(user)
	b := a[currency]
	if b.Available.Cmp(amount) < 0 {
		return ErrInsufficientBalance{User: user, Currency: currency, Field: "available"}
	}
	b.Available = b.Available.Sub(amount)
	a[currency] = b
	return nil
}

// DeductFrozen debits frozen funds, erroring rather than going
// negative. Used to realize a freeze into an actual transfer out.
func (l *Ledger) DeductFrozen(user core.UserId, currency core.Currency, amount decimal.Decimal) error {
	a := l.account(user)
	b := a[currency]
	if b.Frozen.Cmp(amount) < 0 {
		return ErrInsufficientBalance{User: user, Currency: currency, Field: "frozen"}
	}
	b.Frozen = b.Frozen.Sub(amount)
	a[currency] = b
	return nil
}

// TryFreeze moves amount from available to frozen, erroring without
// effect if available is short.
func (l *Ledger) TryFreeze(user core.UserId, currency core.Currency, amount decimal.Decimal) error {
	a := l.account(user)
	b := a[currency]
	if b.Available.Cmp(amount) < 0 {
		return ErrInsufficientBalance{User: user, Currency: currency, Field: "available"}
	}
	b.Available = b.Available.Sub(amount)
	b.Frozen = b.Frozen.Add(amount)
	a[currency] = b
	return nil
}

// TryUnfreeze moves amount from frozen back to available, erroring
// without effect if frozen is short.
func (l *Ledger) TryUnfreeze(user core.UserId, currency core.Currency, amount decimal.Decimal) error {
	a := l.account(user)
	b := a[currency]
	if b.Frozen.Cmp(amount) < 0 {
		return ErrInsufficientBalance{User: user, Currency: currency, Field: "frozen"}
	}
	b.Frozen = b.Frozen.Sub(amount)
	b.Available = b.Available.Add(amount)
	a[currency] = b
	return nil
}

// FreezeIf freezes amount only if amount is positive; zero-amount
// freezes are a no-op success, matching a market order's zero-quote
// freeze case.
func (l *Ledger) FreezeIf(user core.UserId, currency core.Currency, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}
	return l.TryFreeze(user, currency, amount)
}
