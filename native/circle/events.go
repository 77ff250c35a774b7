package circle

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"rosca/core/types"
)

const (
	EventTypeMemberJoined  = "circle.memberJoined"
	EventTypeDeposit       = "circle.deposit"
	EventTypePenalty       = "circle.penalty"
	EventTypePayout        = "circle.payout"
	EventTypeCycleExecuted = "circle.cycleExecuted"
)

// PenaltyKindMissed marks a penalty assessed for a missed deposit. The late
// variant exists for forward compatibility; no current path emits it.
const (
	PenaltyKindMissed = "missed"
	PenaltyKindLate   = "late"
)

// NewMemberJoinedEvent returns the canonical payload emitted when an identity
// confirms its spot in the circle.
func NewMemberJoinedEvent(member [20]byte, index int) *types.Event {
	return &types.Event{Type: EventTypeMemberJoined, Attributes: map[string]string{
		"member": hex.EncodeToString(member[:]),
		"index":  strconv.Itoa(index),
	}}
}

// NewDepositEvent returns the canonical payload for a successful deposit.
func NewDepositEvent(member [20]byte, cycle uint64) *types.Event {
	return &types.Event{Type: EventTypeDeposit, Attributes: map[string]string{
		"member": hex.EncodeToString(member[:]),
		"cycle":  strconv.FormatUint(cycle, 10),
	}}
}

// NewPenaltyEvent returns the canonical payload for a penalty assessment.
func NewPenaltyEvent(member [20]byte, cycle uint64, amount *big.Int, kind string) *types.Event {
	attrs := map[string]string{
		"member": hex.EncodeToString(member[:]),
		"cycle":  strconv.FormatUint(cycle, 10),
		"kind":   kind,
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &types.Event{Type: EventTypePenalty, Attributes: attrs}
}

// NewPayoutEvent returns the canonical payload for the rotating payout.
func NewPayoutEvent(recipient [20]byte, cycle uint64, amount *big.Int) *types.Event {
	attrs := map[string]string{
		"recipient": hex.EncodeToString(recipient[:]),
		"cycle":     strconv.FormatUint(cycle, 10),
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &types.Event{Type: EventTypePayout, Attributes: attrs}
}

// NewCycleExecutedEvent returns the canonical payload emitted after a cycle
// completes. The cycle attribute carries the executed (pre-increment) number.
func NewCycleExecutedEvent(cycle uint64, recipient [20]byte) *types.Event {
	return &types.Event{Type: EventTypeCycleExecuted, Attributes: map[string]string{
		"cycle":     strconv.FormatUint(cycle, 10),
		"recipient": hex.EncodeToString(recipient[:]),
	}}
}
