package core

import (
	"math/big"
	"sync"

	"rosca/core/events"
	"rosca/core/state"
	"rosca/native/circle"
	"rosca/native/token"
)

// VaultName identifies the module account holding pooled deposits.
const VaultName = "circle/vault"

// Node serializes invocations against the shared state. Each mutating
// operation runs against the manager's pending overlay and either commits in
// full or rolls back, so no caller ever observes a partially applied
// transition.
type Node struct {
	mu     sync.Mutex
	state  *state.Manager
	circle *circle.Engine
	token  *token.Ledger
	vault  [20]byte
}

// NewNode wires the engines against the supplied state manager.
func NewNode(manager *state.Manager) *Node {
	ledger := token.NewLedger(manager)
	engine := circle.NewEngine()
	engine.SetState(circle.NewStore(manager))
	engine.SetToken(ledger)
	vault := token.ModuleAddress(VaultName)
	engine.SetVault(vault)
	return &Node{
		state:  manager,
		circle: engine,
		token:  ledger,
		vault:  vault,
	}
}

// SetEmitter forwards the emitter to the circle engine.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.circle.SetEmitter(emitter)
}

// SetAuthenticator forwards the identity check to the circle engine.
func (n *Node) SetAuthenticator(auth circle.Authenticator) {
	n.circle.SetAuthenticator(auth)
}

// SetNowFunc overrides the clock for deterministic tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.circle.SetNowFunc(now)
}

// VaultAddress returns the custodial module address.
func (n *Node) VaultAddress() [20]byte { return n.vault }

func (n *Node) withCommit(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := fn(); err != nil {
		n.state.Reset()
		return err
	}
	return n.state.Commit()
}

// CreateCircle initialises the singleton circle.
func (n *Node) CreateCircle(caller [20]byte, cfg circle.CircleConfig, roster [][20]byte) (*circle.CircleState, error) {
	var created *circle.CircleState
	err := n.withCommit(func() error {
		state, err := n.circle.Create(caller, cfg, roster)
		if err != nil {
			return err
		}
		created = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// JoinCircle enrolls the caller.
func (n *Node) JoinCircle(caller [20]byte) error {
	return n.withCommit(func() error { return n.circle.Join(caller) })
}

// Deposit records the caller's deposit for the active cycle.
func (n *Node) Deposit(caller [20]byte) error {
	return n.withCommit(func() error { return n.circle.Deposit(caller) })
}

// ExecuteCycle runs one collection-and-payout round.
func (n *Node) ExecuteCycle() error {
	return n.withCommit(func() error { return n.circle.ExecuteCycle() })
}

// Claim withdraws the caller's positive penalties balance.
func (n *Node) Claim(caller [20]byte) error {
	return n.withCommit(func() error { return n.circle.Claim(caller) })
}

// Pause halts mutating circle operations.
func (n *Node) Pause(caller [20]byte) error {
	return n.withCommit(func() error { return n.circle.Pause(caller) })
}

// Unpause resumes circle operations.
func (n *Node) Unpause(caller [20]byte) error {
	return n.withCommit(func() error { return n.circle.Unpause(caller) })
}

// Mint credits freshly issued funds. Used at genesis to seed participant
// balances and the vault reserve backing full-pot payouts.
func (n *Node) Mint(to [20]byte, amount *big.Int) error {
	return n.withCommit(func() error { return n.token.Mint(to, amount) })
}

// GetCircle returns a snapshot of the circle state.
func (n *Node) GetCircle() (*circle.CircleState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.circle.GetCircle()
}

// GetMemberState returns the record for the supplied identity, defaulting for
// identities never observed.
func (n *Node) GetMemberState(addr [20]byte) (*circle.MemberState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.circle.GetMemberState(addr)
}

// BalanceOf reports the token balance held by addr.
func (n *Node) BalanceOf(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.token.BalanceOf(addr)
}
