package circle

import "errors"

var (
	ErrNotOwner           = errors.New("circle: caller is not the owner")
	ErrCircleExists       = errors.New("circle: circle already exists")
	ErrNotFound           = errors.New("circle: circle not found")
	ErrNotMember          = errors.New("circle: caller is not a member")
	ErrAlreadyJoined      = errors.New("circle: member already joined")
	ErrJoinDeadlinePassed = errors.New("circle: join deadline passed")
	ErrDepositAlreadyMade = errors.New("circle: deposit already made this cycle")
	ErrCycleNotReady      = errors.New("circle: cycle interval not elapsed")
	ErrPaused             = errors.New("circle: circle is paused")
	ErrCircleFull         = errors.New("circle: member limit reached")
	ErrReservedAddress    = errors.New("circle: address is reserved for module use")

	// Declared for wire compatibility with the historical taxonomy; no code
	// path raises them today.
	ErrNotAllDeposited = errors.New("circle: not all members deposited")
	ErrCycleNotPassed  = errors.New("circle: cycle not passed")
)
