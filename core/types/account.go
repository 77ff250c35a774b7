package types

import "math/big"

// Account tracks the token balance held by a single address. The circle vault
// is itself an account, keyed by a derived module address.
type Account struct {
	Nonce   uint64
	Balance *big.Int
}

// NewAccount returns an account with a zeroed, non-nil balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}

// Normalize ensures the balance pointer is non-nil so callers can operate on
// the account without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return NewAccount()
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
