package circle

import (
	"errors"
	"math"
	"math/big"
	"time"

	"rosca/core/events"
	"rosca/core/types"
)

var (
	errNilState = errors.New("circle: engine state not configured")
	errNilToken = errors.New("circle: token ledger not configured")
)

// penaltyMissedMultiplier is applied to one percent of the deposit amount,
// yielding a flat 20% fine for a missed cycle.
const penaltyMissedMultiplier = 20

// engineState is the narrow persistence surface required by the engine: the
// singleton circle record, per-member records, the creation anchor and the
// last-execution marker.
type engineState interface {
	CircleGet() (*CircleState, bool, error)
	CirclePut(*CircleState) error
	MemberGet(addr [20]byte) (*MemberState, bool, error)
	MemberPut(addr [20]byte, state *MemberState) error
	CreatedAtGet() (int64, bool, error)
	CreatedAtPut(ts int64) error
	LastCycleTimeGet() (int64, bool, error)
	LastCycleTimePut(ts int64) error
}

// TokenLedger is the asset-transfer collaborator. Transfer failures abort the
// whole invocation and propagate unchanged.
type TokenLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) (*big.Int, error)
}

// Authenticator verifies that the current caller controls the supplied
// identity. The host environment decides what "controls" means; the engine
// only requires the check to pass before mutating state on that identity's
// authority.
type Authenticator interface {
	RequireAuthenticated(identity [20]byte) error
}

type allowAll struct{}

func (allowAll) RequireAuthenticated([20]byte) error { return nil }

type circleEvent struct {
	evt *types.Event
}

func (e circleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e circleEvent) Event() *types.Event { return e.evt }

// Engine wires the circle business logic with external state, the token
// ledger and event emission. All operations are deterministic functions of
// persisted state and the injected clock reading.
type Engine struct {
	state   engineState
	token   TokenLedger
	auth    Authenticator
	emitter events.Emitter
	vault   [20]byte
	nowFn   func() int64
}

// NewEngine creates a circle engine with a no-op emitter and an allow-all
// authenticator. Callers override both via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		auth:    allowAll{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken configures the asset-transfer collaborator.
func (e *Engine) SetToken(token TokenLedger) { e.token = token }

// SetVault configures the custodial address holding pooled deposits.
func (e *Engine) SetVault(vault [20]byte) { e.vault = vault }

// SetAuthenticator configures the identity check invoked at each mutating
// entry point. Passing nil resets to an allow-all authenticator.
func (e *Engine) SetAuthenticator(auth Authenticator) {
	if auth == nil {
		e.auth = allowAll{}
		return
	}
	e.auth = auth
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(circleEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) requireAuth(identity [20]byte) error {
	if e == nil || e.auth == nil {
		return nil
	}
	return e.auth.RequireAuthenticated(identity)
}

func (e *Engine) loadCircle() (*CircleState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	state, ok, err := e.state.CircleGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return state, nil
}

func (e *Engine) loadMember(addr [20]byte) (*MemberState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	member, ok, err := e.state.MemberGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return DefaultMemberState(), nil
	}
	return member, nil
}

// Create initialises the singleton circle. The roster is recorded as advisory
// pre-registrations only; every participant still confirms via Join.
func (e *Engine) Create(caller [20]byte, cfg CircleConfig, roster [][20]byte) (*CircleState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireAuth(caller); err != nil {
		return nil, err
	}
	sanitized, err := SanitizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	if caller != sanitized.Owner {
		return nil, ErrNotOwner
	}
	if _, ok, err := e.state.CircleGet(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrCircleExists
	}
	now := e.now()
	state := &CircleState{
		Config:         sanitized,
		CurrentCycle:   1,
		OpenForJoining: true,
	}
	seen := make(map[[20]byte]bool, len(roster))
	for _, member := range roster {
		if member == ([20]byte{}) || seen[member] {
			continue
		}
		seen[member] = true
		state.PreRegistered = append(state.PreRegistered, PreRegistration{Member: member, SeenAt: now})
	}
	if err := e.state.CirclePut(state); err != nil {
		return nil, err
	}
	if err := e.state.CreatedAtPut(now); err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

// Join confirms the caller's participation, assigning it the next bitmap
// index. Enrollment closes once the deadline elapses.
func (e *Engine) Join(caller [20]byte) error {
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	state, err := e.loadCircle()
	if err != nil {
		return err
	}
	if state.Paused {
		return ErrPaused
	}
	if !state.OpenForJoining {
		return ErrJoinDeadlinePassed
	}
	createdAt, _, err := e.state.CreatedAtGet()
	if err != nil {
		return err
	}
	if e.now() > createdAt+int64(state.Config.JoinDeadlineSecs) {
		state.OpenForJoining = false
		if err := e.state.CirclePut(state); err != nil {
			return err
		}
		return ErrJoinDeadlinePassed
	}
	if caller == e.vault {
		return ErrReservedAddress
	}
	if _, ok := state.MemberIndex(caller); ok {
		return ErrAlreadyJoined
	}
	if len(state.Members) >= MaxMembers {
		return ErrCircleFull
	}
	state.Members = append(state.Members, caller)
	if err := e.state.CirclePut(state); err != nil {
		return err
	}
	e.emit(NewMemberJoinedEvent(caller, len(state.Members)-1))
	return nil
}

// Deposit records the caller's fixed deposit for the active cycle, moving the
// funds into the custodial vault and crediting reputation.
func (e *Engine) Deposit(caller [20]byte) error {
	if e == nil || e.token == nil {
		return errNilToken
	}
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	state, err := e.loadCircle()
	if err != nil {
		return err
	}
	if state.Paused {
		return ErrPaused
	}
	index, ok := state.MemberIndex(caller)
	if !ok {
		return ErrNotMember
	}
	if state.HasDeposited(index) {
		return ErrDepositAlreadyMade
	}
	if err := e.token.Transfer(caller, e.vault, state.Config.DepositAmount); err != nil {
		return err
	}
	state.markDeposited(index)
	member, err := e.loadMember(caller)
	if err != nil {
		return err
	}
	if member.ReputationScore < math.MaxUint32 {
		member.ReputationScore++
	}
	member.LastDepositCycle = state.CurrentCycle
	if err := e.state.MemberPut(caller, member); err != nil {
		return err
	}
	if err := e.state.CirclePut(state); err != nil {
		return err
	}
	e.emit(NewDepositEvent(caller, state.CurrentCycle))
	return nil
}

// ExecuteCycle runs one collection-and-payout round. It is a permissionless
// tick: any party may invoke it once the interval has elapsed.
//
// The pot is always DepositAmount x len(Members), computed from the
// configured full-participation amount rather than what was actually
// collected. The custodial vault must therefore carry enough reserve to cover
// the payout under partial participation; a shortfall surfaces as the token
// ledger's insufficient-balance error and aborts the invocation.
func (e *Engine) ExecuteCycle() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil {
		return errNilToken
	}
	state, err := e.loadCircle()
	if err != nil {
		return err
	}
	if state.Paused {
		return ErrPaused
	}
	numMembers := len(state.Members)
	if numMembers == 0 {
		return ErrNotFound
	}
	now := e.now()
	last, _, err := e.state.LastCycleTimeGet()
	if err != nil {
		return err
	}
	if last != 0 && now < last+int64(state.Config.CycleIntervalSecs) {
		return ErrCycleNotReady
	}

	deposit := state.Config.DepositAmount
	totalPot := new(big.Int).Mul(deposit, big.NewInt(int64(numMembers)))
	recipient := state.Members[state.NextPayoutIndex]

	// Flat fine for a missed cycle: 20% of one deposit, truncated.
	basePenalty := new(big.Int).Div(deposit, big.NewInt(100))
	penaltyValue := new(big.Int).Mul(basePenalty, big.NewInt(penaltyMissedMultiplier))

	pooledPenalties := big.NewInt(0)
	executedCycle := state.CurrentCycle
	for i := 0; i < numMembers; i++ {
		if state.HasDeposited(i) {
			continue
		}
		addr := state.Members[i]
		member, err := e.loadMember(addr)
		if err != nil {
			return err
		}
		member.PenaltiesAccrued = new(big.Int).Sub(member.PenaltiesAccrued, penaltyValue)
		if member.ReputationScore > 0 {
			member.ReputationScore--
		}
		pooledPenalties = new(big.Int).Add(pooledPenalties, penaltyValue)
		if err := e.state.MemberPut(addr, member); err != nil {
			return err
		}
		e.emit(NewPenaltyEvent(addr, executedCycle, penaltyValue, PenaltyKindMissed))
	}

	if err := e.token.Transfer(e.vault, recipient, totalPot); err != nil {
		return err
	}
	e.emit(NewPayoutEvent(recipient, executedCycle, totalPot))

	// Pooled penalties split equally across every member, defaulters and the
	// recipient included. The truncation remainder is absorbed by the system.
	if pooledPenalties.Sign() > 0 {
		share := new(big.Int).Div(pooledPenalties, big.NewInt(int64(numMembers)))
		for _, addr := range state.Members {
			member, err := e.loadMember(addr)
			if err != nil {
				return err
			}
			member.PenaltiesAccrued = new(big.Int).Add(member.PenaltiesAccrued, share)
			if err := e.state.MemberPut(addr, member); err != nil {
				return err
			}
		}
	}

	state.CurrentCycle++
	state.NextPayoutIndex = (state.NextPayoutIndex + 1) % uint32(numMembers)
	state.DepositsBitmap = 0
	if err := e.state.LastCycleTimePut(now); err != nil {
		return err
	}
	if err := e.state.CirclePut(state); err != nil {
		return err
	}
	e.emit(NewCycleExecutedEvent(executedCycle, recipient))
	return nil
}

// Claim pays out the caller's positive penalties balance and resets it to
// zero. A non-positive balance is not an error; the call is a no-op.
func (e *Engine) Claim(caller [20]byte) error {
	if e == nil || e.token == nil {
		return errNilToken
	}
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	if _, err := e.loadCircle(); err != nil {
		return err
	}
	member, err := e.loadMember(caller)
	if err != nil {
		return err
	}
	amount := member.PenaltiesAccrued
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if err := e.token.Transfer(e.vault, caller, amount); err != nil {
		return err
	}
	member.PenaltiesAccrued = big.NewInt(0)
	return e.state.MemberPut(caller, member)
}

// Pause halts all mutating circle operations. Owner only.
func (e *Engine) Pause(caller [20]byte) error {
	return e.setPaused(caller, true)
}

// Unpause resumes circle operations. Owner only.
func (e *Engine) Unpause(caller [20]byte) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	state, err := e.loadCircle()
	if err != nil {
		return err
	}
	if state.Config.Owner != caller {
		return ErrNotOwner
	}
	state.Paused = paused
	return e.state.CirclePut(state)
}

// GetCircle returns a snapshot of the circle state.
func (e *Engine) GetCircle() (*CircleState, error) {
	state, err := e.loadCircle()
	if err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

// GetMemberState returns the record for the supplied identity. Identities
// never observed before receive the default record; the default is not
// persisted.
func (e *Engine) GetMemberState(addr [20]byte) (*MemberState, error) {
	member, err := e.loadMember(addr)
	if err != nil {
		return nil, err
	}
	return member.Clone(), nil
}

// VaultBalance reports the custodial balance currently held by the module.
func (e *Engine) VaultBalance() (*big.Int, error) {
	if e == nil || e.token == nil {
		return nil, errNilToken
	}
	return e.token.BalanceOf(e.vault)
}
