package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"rosca/core/state"
	"rosca/native/circle"
	"rosca/native/token"
	"rosca/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestNode() (*Node, *storage.MemDB) {
	db := storage.NewMemDB()
	node := NewNode(state.NewManager(db))
	return node, db
}

func testCircleConfig(owner [20]byte) circle.CircleConfig {
	return circle.CircleConfig{
		Owner:             owner,
		Token:             "RSC",
		DepositAmount:     big.NewInt(10_000),
		CycleIntervalSecs: 100,
		JoinDeadlineSecs:  3600,
	}
}

func TestNodeEndToEndCycle(t *testing.T) {
	node, _ := newTestNode()
	now := int64(1_000_000)
	node.SetNowFunc(func() int64 { return now })

	owner := testAddr(0x01)
	a, b, c := testAddr(0x0A), testAddr(0x0B), testAddr(0x0C)

	_, err := node.CreateCircle(owner, testCircleConfig(owner), nil)
	require.NoError(t, err)

	for _, member := range [][20]byte{a, b, c} {
		require.NoError(t, node.JoinCircle(member))
		require.NoError(t, node.Mint(member, big.NewInt(10_000)))
	}
	require.NoError(t, node.Mint(node.VaultAddress(), big.NewInt(10_000)))

	require.NoError(t, node.Deposit(a))
	require.NoError(t, node.Deposit(b))
	require.NoError(t, node.ExecuteCycle())

	missed, err := node.GetMemberState(c)
	require.NoError(t, err)
	require.Zero(t, missed.PenaltiesAccrued.Cmp(big.NewInt(-1334)))
	require.Equal(t, uint32(9), missed.ReputationScore)

	snapshot, err := node.GetCircle()
	require.NoError(t, err)
	require.Equal(t, uint64(2), snapshot.CurrentCycle)
	require.Equal(t, uint32(1), snapshot.NextPayoutIndex)

	recipientBalance, err := node.BalanceOf(a)
	require.NoError(t, err)
	require.Zero(t, recipientBalance.Cmp(big.NewInt(30_000)))

	require.NoError(t, node.Claim(b))
	claimed, err := node.BalanceOf(b)
	require.NoError(t, err)
	require.Zero(t, claimed.Cmp(big.NewInt(666)))
}

func TestNodeRollsBackFailedInvocation(t *testing.T) {
	node, db := newTestNode()
	now := int64(1_000_000)
	node.SetNowFunc(func() int64 { return now })

	owner := testAddr(0x01)
	a, b := testAddr(0x0A), testAddr(0x0B)
	_, err := node.CreateCircle(owner, testCircleConfig(owner), nil)
	require.NoError(t, err)
	require.NoError(t, node.JoinCircle(a))
	require.NoError(t, node.JoinCircle(b))
	require.NoError(t, node.Mint(a, big.NewInt(10_000)))
	require.NoError(t, node.Deposit(a))

	// One deposit collected, pot of two owed, no reserve: the payout transfer
	// fails and the whole cycle must roll back.
	err = node.ExecuteCycle()
	require.ErrorIs(t, err, token.ErrInsufficientBalance)

	snapshot, err := node.GetCircle()
	require.NoError(t, err)
	require.Equal(t, uint64(1), snapshot.CurrentCycle)
	require.Equal(t, uint32(0), snapshot.NextPayoutIndex)
	require.True(t, snapshot.HasDeposited(0))

	// The defaulter's penalty written before the failed transfer is gone too.
	member, err := node.GetMemberState(b)
	require.NoError(t, err)
	require.Zero(t, member.PenaltiesAccrued.Sign())
	require.Equal(t, uint32(10), member.ReputationScore)

	// And nothing dirty leaked into the committed store.
	fresh := NewNode(state.NewManager(db))
	reloaded, err := fresh.GetCircle()
	require.NoError(t, err)
	require.Equal(t, uint64(1), reloaded.CurrentCycle)
}

func TestNodeDepositRollbackOnTransferFailure(t *testing.T) {
	node, _ := newTestNode()
	node.SetNowFunc(func() int64 { return 1_000_000 })

	owner := testAddr(0x01)
	a := testAddr(0x0A)
	_, err := node.CreateCircle(owner, testCircleConfig(owner), nil)
	require.NoError(t, err)
	require.NoError(t, node.JoinCircle(a))

	err = node.Deposit(a)
	require.ErrorIs(t, err, token.ErrInsufficientBalance)

	snapshot, err := node.GetCircle()
	require.NoError(t, err)
	require.Zero(t, snapshot.DepositsBitmap)

	member, err := node.GetMemberState(a)
	require.NoError(t, err)
	require.Equal(t, uint32(10), member.ReputationScore)
}

func TestNodeJoinDeadlineRollback(t *testing.T) {
	node, _ := newTestNode()
	now := int64(1_000_000)
	node.SetNowFunc(func() int64 { return now })

	owner := testAddr(0x01)
	cfg := testCircleConfig(owner)
	cfg.JoinDeadlineSecs = 50
	_, err := node.CreateCircle(owner, cfg, nil)
	require.NoError(t, err)

	now += 51
	require.ErrorIs(t, node.JoinCircle(testAddr(0x0A)), circle.ErrJoinDeadlinePassed)

	// The enrollment-close write is part of the failed invocation and rolls
	// back with it; the window stays open in durable state until a successful
	// operation closes it.
	snapshot, err := node.GetCircle()
	require.NoError(t, err)
	require.True(t, snapshot.OpenForJoining)
}
