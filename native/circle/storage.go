package circle

import (
	"errors"
	"fmt"
	"math/big"
)

// storage abstracts the subset of state-manager functionality required by the
// circle store.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	circleStateKey   = []byte("circle/state")
	circleCreatedKey = []byte("circle/createdAt")
	lastCycleTimeKey = []byte("circle/lastCycleTime")
	memberPrefix     = []byte("circle/member/")
)

func memberKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", memberPrefix, addr))
}

// storedCircleState is the RLP-friendly projection of CircleState. The
// advisory roster is flattened into parallel slices because RLP has no map
// support.
type storedCircleState struct {
	Owner             [20]byte
	Token             string
	DepositAmount     *big.Int
	CycleIntervalSecs uint64
	JoinDeadlineSecs  uint64
	Members           [][20]byte
	PreRegMembers     [][20]byte
	PreRegSeenAt      []uint64
	CurrentCycle      uint64
	NextPayoutIndex   uint32
	DepositsBitmap    uint32
	Paused            bool
	OpenForJoining    bool
}

// storedMemberState carries the signed penalties balance as magnitude plus
// sign because the RLP layer only encodes non-negative integers.
type storedMemberState struct {
	ReputationScore  uint32
	PenaltyMagnitude *big.Int
	PenaltyNegative  bool
	LastDepositCycle uint64
}

// Store persists the circle aggregate, member records and timing markers in
// the shared key-value state.
type Store struct {
	state storage
}

// NewStore constructs a store bound to the provided state backend.
func NewStore(state storage) *Store {
	return &Store{state: state}
}

func (s *Store) backend() (storage, error) {
	if s == nil || s.state == nil {
		return nil, errors.New("circle: store not initialised")
	}
	return s.state, nil
}

// CircleGet loads the singleton circle record.
func (s *Store) CircleGet() (*CircleState, bool, error) {
	backend, err := s.backend()
	if err != nil {
		return nil, false, err
	}
	var stored storedCircleState
	ok, err := backend.KVGet(circleStateKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	if len(stored.PreRegMembers) != len(stored.PreRegSeenAt) {
		return nil, false, errors.New("circle: corrupt pre-registration record")
	}
	state := &CircleState{
		Config: CircleConfig{
			Owner:             stored.Owner,
			Token:             stored.Token,
			DepositAmount:     stored.DepositAmount,
			CycleIntervalSecs: stored.CycleIntervalSecs,
			JoinDeadlineSecs:  stored.JoinDeadlineSecs,
		},
		Members:         stored.Members,
		CurrentCycle:    stored.CurrentCycle,
		NextPayoutIndex: stored.NextPayoutIndex,
		DepositsBitmap:  stored.DepositsBitmap,
		Paused:          stored.Paused,
		OpenForJoining:  stored.OpenForJoining,
	}
	for i, member := range stored.PreRegMembers {
		state.PreRegistered = append(state.PreRegistered, PreRegistration{
			Member: member,
			SeenAt: int64(stored.PreRegSeenAt[i]),
		})
	}
	sanitized, err := SanitizeState(state)
	if err != nil {
		return nil, false, err
	}
	return sanitized, true, nil
}

// CirclePut validates and persists the circle record.
func (s *Store) CirclePut(state *CircleState) error {
	backend, err := s.backend()
	if err != nil {
		return err
	}
	sanitized, err := SanitizeState(state)
	if err != nil {
		return err
	}
	stored := storedCircleState{
		Owner:             sanitized.Config.Owner,
		Token:             sanitized.Config.Token,
		DepositAmount:     sanitized.Config.DepositAmount,
		CycleIntervalSecs: sanitized.Config.CycleIntervalSecs,
		JoinDeadlineSecs:  sanitized.Config.JoinDeadlineSecs,
		Members:           sanitized.Members,
		CurrentCycle:      sanitized.CurrentCycle,
		NextPayoutIndex:   sanitized.NextPayoutIndex,
		DepositsBitmap:    sanitized.DepositsBitmap,
		Paused:            sanitized.Paused,
		OpenForJoining:    sanitized.OpenForJoining,
	}
	for _, reg := range sanitized.PreRegistered {
		if reg.SeenAt < 0 {
			return fmt.Errorf("circle: pre-registration timestamp must not be negative")
		}
		stored.PreRegMembers = append(stored.PreRegMembers, reg.Member)
		stored.PreRegSeenAt = append(stored.PreRegSeenAt, uint64(reg.SeenAt))
	}
	return backend.KVPut(circleStateKey, stored)
}

// MemberGet loads the record for the supplied member address.
func (s *Store) MemberGet(addr [20]byte) (*MemberState, bool, error) {
	backend, err := s.backend()
	if err != nil {
		return nil, false, err
	}
	var stored storedMemberState
	ok, err := backend.KVGet(memberKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	penalties := big.NewInt(0)
	if stored.PenaltyMagnitude != nil {
		penalties = new(big.Int).Set(stored.PenaltyMagnitude)
		if stored.PenaltyNegative {
			penalties.Neg(penalties)
		}
	}
	return &MemberState{
		ReputationScore:  stored.ReputationScore,
		PenaltiesAccrued: penalties,
		LastDepositCycle: stored.LastDepositCycle,
	}, true, nil
}

// MemberPut persists the record for the supplied member address.
func (s *Store) MemberPut(addr [20]byte, state *MemberState) error {
	backend, err := s.backend()
	if err != nil {
		return err
	}
	if state == nil {
		return errors.New("circle: member state required")
	}
	stored := storedMemberState{
		ReputationScore:  state.ReputationScore,
		LastDepositCycle: state.LastDepositCycle,
		PenaltyMagnitude: big.NewInt(0),
	}
	if state.PenaltiesAccrued != nil {
		stored.PenaltyMagnitude = new(big.Int).Abs(state.PenaltiesAccrued)
		stored.PenaltyNegative = state.PenaltiesAccrued.Sign() < 0
	}
	return backend.KVPut(memberKey(addr), stored)
}

// CreatedAtGet returns the circle creation timestamp anchoring the join
// deadline.
func (s *Store) CreatedAtGet() (int64, bool, error) {
	return s.timestampGet(circleCreatedKey)
}

// CreatedAtPut stores the circle creation timestamp.
func (s *Store) CreatedAtPut(ts int64) error {
	return s.timestampPut(circleCreatedKey, ts)
}

// LastCycleTimeGet returns the last successful execution time, zero if no
// cycle has executed yet.
func (s *Store) LastCycleTimeGet() (int64, bool, error) {
	return s.timestampGet(lastCycleTimeKey)
}

// LastCycleTimePut stores the execution time marker.
func (s *Store) LastCycleTimePut(ts int64) error {
	return s.timestampPut(lastCycleTimeKey, ts)
}

func (s *Store) timestampGet(key []byte) (int64, bool, error) {
	backend, err := s.backend()
	if err != nil {
		return 0, false, err
	}
	var stored uint64
	ok, err := backend.KVGet(key, &stored)
	if err != nil || !ok {
		return 0, false, err
	}
	return int64(stored), true, nil
}

func (s *Store) timestampPut(key []byte, ts int64) error {
	backend, err := s.backend()
	if err != nil {
		return err
	}
	if ts < 0 {
		return fmt.Errorf("circle: timestamp must not be negative")
	}
	return backend.KVPut(key, uint64(ts))
}
