package circle

import (
	"fmt"
	"math/big"
)

// MaxMembers bounds the group size. The per-cycle deposit bitmap is 32 bits
// wide, one bit per member index.
const MaxMembers = 32

// CircleConfig holds the immutable parameters fixed at creation time.
type CircleConfig struct {
	Owner             [20]byte
	Token             string
	DepositAmount     *big.Int
	CycleIntervalSecs uint64
	JoinDeadlineSecs  uint64
}

// PreRegistration records an advisory roster entry supplied at creation. It
// never enrolls the address; members still confirm their spot via Join.
type PreRegistration struct {
	Member [20]byte
	SeenAt int64
}

// CircleState is the singleton aggregate mutated by every operation.
type CircleState struct {
	Config          CircleConfig
	Members         [][20]byte
	PreRegistered   []PreRegistration
	CurrentCycle    uint64
	NextPayoutIndex uint32
	DepositsBitmap  uint32
	Paused          bool
	OpenForJoining  bool
}

// MemberState tracks per-participant reputation and the signed penalties
// balance. Positive PenaltiesAccrued is claimable; negative is an outstanding
// fine.
type MemberState struct {
	ReputationScore  uint32
	PenaltiesAccrued *big.Int
	LastDepositCycle uint64
}

// initialReputation is granted to members on first observation.
const initialReputation uint32 = 10

// DefaultMemberState returns the record assigned to an identity that has
// never been observed.
func DefaultMemberState() *MemberState {
	return &MemberState{
		ReputationScore:  initialReputation,
		PenaltiesAccrued: big.NewInt(0),
	}
}

// Clone returns a deep copy of the member record.
func (m *MemberState) Clone() *MemberState {
	if m == nil {
		return DefaultMemberState()
	}
	clone := *m
	if m.PenaltiesAccrued != nil {
		clone.PenaltiesAccrued = new(big.Int).Set(m.PenaltiesAccrued)
	} else {
		clone.PenaltiesAccrued = big.NewInt(0)
	}
	return &clone
}

// Clone returns a deep copy of the circle state so callers can mutate the
// copy without affecting the stored instance.
func (c *CircleState) Clone() *CircleState {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Config.DepositAmount != nil {
		clone.Config.DepositAmount = new(big.Int).Set(c.Config.DepositAmount)
	} else {
		clone.Config.DepositAmount = big.NewInt(0)
	}
	clone.Members = append([][20]byte(nil), c.Members...)
	clone.PreRegistered = append([]PreRegistration(nil), c.PreRegistered...)
	return &clone
}

// MemberIndex resolves the bitmap index assigned to the supplied address.
func (c *CircleState) MemberIndex(member [20]byte) (int, bool) {
	if c == nil {
		return 0, false
	}
	for i, m := range c.Members {
		if m == member {
			return i, true
		}
	}
	return 0, false
}

// HasDeposited reports whether the member at index i deposited this cycle.
func (c *CircleState) HasDeposited(i int) bool {
	if c == nil || i < 0 || i >= MaxMembers {
		return false
	}
	return c.DepositsBitmap&(1<<uint(i)) != 0
}

func (c *CircleState) markDeposited(i int) {
	if c == nil || i < 0 || i >= MaxMembers {
		return
	}
	c.DepositsBitmap |= 1 << uint(i)
}

// SanitizeConfig validates and normalises the supplied configuration.
func SanitizeConfig(cfg CircleConfig) (CircleConfig, error) {
	if cfg.Owner == ([20]byte{}) {
		return cfg, fmt.Errorf("circle: owner address required")
	}
	if cfg.Token == "" {
		return cfg, fmt.Errorf("circle: token asset required")
	}
	if cfg.DepositAmount == nil || cfg.DepositAmount.Sign() <= 0 {
		return cfg, fmt.Errorf("circle: deposit amount must be positive")
	}
	if cfg.CycleIntervalSecs == 0 {
		return cfg, fmt.Errorf("circle: cycle interval must be positive")
	}
	cfg.DepositAmount = new(big.Int).Set(cfg.DepositAmount)
	return cfg, nil
}

// SanitizeState validates the structural invariants of a circle snapshot and
// returns a cloned, normalised copy.
func SanitizeState(c *CircleState) (*CircleState, error) {
	if c == nil {
		return nil, fmt.Errorf("circle: nil state")
	}
	clone := c.Clone()
	cfg, err := SanitizeConfig(clone.Config)
	if err != nil {
		return nil, err
	}
	clone.Config = cfg
	if len(clone.Members) > MaxMembers {
		return nil, fmt.Errorf("circle: member count %d exceeds limit %d", len(clone.Members), MaxMembers)
	}
	if len(clone.Members) > 0 && int(clone.NextPayoutIndex) >= len(clone.Members) {
		return nil, fmt.Errorf("circle: payout index %d out of range", clone.NextPayoutIndex)
	}
	if clone.CurrentCycle == 0 {
		return nil, fmt.Errorf("circle: cycle numbering starts at 1")
	}
	// Bits above the member count must stay clear.
	if len(clone.Members) < MaxMembers {
		mask := uint32(1)<<uint(len(clone.Members)) - 1
		if clone.DepositsBitmap&^mask != 0 {
			return nil, fmt.Errorf("circle: deposit bitmap has bits beyond member count")
		}
	}
	return clone, nil
}
