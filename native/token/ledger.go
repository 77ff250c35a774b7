package token

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"rosca/core/types"
)

var (
	// ErrInsufficientBalance marks transfers exceeding the sender's funds.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrNilState marks a ledger used before its state backend was wired.
	ErrNilState = errors.New("token: state not configured")
)

// state abstracts the account persistence required by the ledger.
type state interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Ledger implements the asset-transfer collaborator consumed by the circle
// engine: balance lookups and custodial moves between participant accounts
// and the module vault.
type Ledger struct {
	state state
}

// NewLedger constructs a ledger bound to the provided account state.
func NewLedger(st state) *Ledger {
	return &Ledger{state: st}
}

// ModuleAddress derives a deterministic address for module-owned funds. The
// same name always yields the same address on every deployment.
func ModuleAddress(name string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("rosca/module/" + name))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// BalanceOf returns the current balance for addr. Unknown addresses report a
// zero balance.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	account, err := l.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Normalize().Balance), nil
}

// Transfer moves amount from one account to another. Zero-amount transfers
// are no-ops; negative amounts are rejected. A self-transfer is a funded
// no-op: the sender must cover the amount, but no balance changes hands.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("token: negative transfer amount")
	}
	fromAcc, err := l.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	if from == to {
		if fromAcc.Normalize().Balance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		return nil
	}
	toAcc, err := l.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Normalize()
	toAcc = toAcc.Normalize()
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := l.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to[:], toAcc)
}

// Mint credits freshly issued funds to the supplied address. Deployments use
// it to seed participant balances and the vault reserve at genesis.
func (l *Ledger) Mint(to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("token: negative mint amount")
	}
	account, err := l.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	account = account.Normalize()
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return l.state.PutAccount(to[:], account)
}
