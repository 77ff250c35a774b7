package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"rosca/core/types"
	"rosca/storage"
)

var accountPrefix = []byte("accounts/")

// Manager layers an RLP-encoded key-value surface over a storage backend. All
// writes land in a pending overlay first; Commit flushes the overlay to the
// backend and Reset discards it, giving callers an all-or-nothing boundary
// around each invocation.
type Manager struct {
	db      storage.Database
	pending map[string][]byte
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		pending: make(map[string][]byte),
	}
}

// KVPut encodes the value with RLP and stages it under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errors.New("state: manager not initialised")
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.pending[string(key)] = encoded
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state. Pending writes shadow committed values.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errors.New("state: manager not initialised")
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok := m.pending[string(key)]
	if !ok {
		stored, err := m.db.Get(key)
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		data = stored
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Commit flushes all pending writes to the backend as one batch and clears
// the overlay. A failed flush leaves the overlay intact so the durable state
// never reflects a partial invocation.
func (m *Manager) Commit() error {
	if m == nil || m.db == nil {
		return errors.New("state: manager not initialised")
	}
	if len(m.pending) == 0 {
		return nil
	}
	if err := m.db.WriteBatch(m.pending); err != nil {
		return err
	}
	m.pending = make(map[string][]byte)
	return nil
}

// Reset discards all pending writes.
func (m *Manager) Reset() {
	if m == nil {
		return
	}
	m.pending = make(map[string][]byte)
}

// Dirty reports whether uncommitted writes are pending.
func (m *Manager) Dirty() bool {
	return m != nil && len(m.pending) > 0
}

func accountKey(addr []byte) []byte {
	return []byte(fmt.Sprintf("%s%x", accountPrefix, addr))
}

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// GetAccount loads the account for addr, returning a zeroed account when the
// address has never been observed.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: account address required")
	}
	var stored storedAccount
	ok, err := m.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	account := &types.Account{Nonce: stored.Nonce, Balance: stored.Balance}
	return account.Normalize(), nil
}

// PutAccount stages the supplied account under the address key.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: account address required")
	}
	normalized := account.Normalize()
	if normalized.Balance.Sign() < 0 {
		return fmt.Errorf("state: account balance must not be negative")
	}
	stored := storedAccount{Nonce: normalized.Nonce, Balance: normalized.Balance}
	return m.KVPut(accountKey(addr), stored)
}
