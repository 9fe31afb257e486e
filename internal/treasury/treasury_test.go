package treasury

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/park285/duel-referee/internal/commitment"
	"github.com/park285/duel-referee/internal/engine"
)

func baseSession(state engine.State) *engine.Session {
	return &engine.Session{
		ID:          1,
		Player1:     "alice",
		Player2:     "bob",
		State:       state,
		Stake:       10,
		Commitments: map[string]commitment.Digest{},
		Reveals:     map[string]engine.Reveal{},
	}
}

func payoutTotal(ps []engine.Payout) uint64 {
	var sum uint64
	for _, p := range ps {
		sum += p.Amount
	}
	return sum
}

func TestPlanWinner(t *testing.T) {
	s := baseSession(engine.StateFinished)
	s.Winner = "alice"
	got := Plan(s, 1, "treasury")
	require.Equal(t, []engine.Payout{
		{To: "alice", Amount: 19, Reason: "win"},
		{To: "treasury", Amount: 1, Reason: "fee"},
	}, got)
	require.Equal(t, s.Pool(), payoutTotal(got))
}

func TestPlanDraw(t *testing.T) {
	s := baseSession(engine.StateFinished)
	s.Draw = true

	// 1-milliunit fee halves to zero: a draw is free
	got := Plan(s, 1, "treasury")
	require.Equal(t, []engine.Payout{
		{To: "alice", Amount: 10, Reason: "draw_refund"},
		{To: "bob", Amount: 10, Reason: "draw_refund"},
	}, got)

	got = Plan(s, 4, "treasury")
	require.Equal(t, []engine.Payout{
		{To: "alice", Amount: 8, Reason: "draw_refund"},
		{To: "bob", Amount: 8, Reason: "draw_refund"},
		{To: "treasury", Amount: 4, Reason: "fee"},
	}, got)
	require.Equal(t, s.Pool(), payoutTotal(got))
}

func TestPlanExpiredBeforeJoin(t *testing.T) {
	s := baseSession(engine.StateExpired)
	s.Player2 = ""
	got := Plan(s, 1, "treasury")
	require.Equal(t, []engine.Payout{{To: "alice", Amount: 10, Reason: "refund"}}, got)
}

func TestPlanExpiredForfeits(t *testing.T) {
	// exactly one reveal: the revealer takes the pool minus fee
	s := baseSession(engine.StateExpired)
	s.Commitments["alice"] = commitment.Commit(1, 2, "alice")
	s.Commitments["bob"] = commitment.Commit(3, 4, "bob")
	s.Reveals["bob"] = engine.Reveal{Move: 3, Nonce: 4}
	got := Plan(s, 1, "treasury")
	require.Equal(t, []engine.Payout{
		{To: "bob", Amount: 19, Reason: "forfeit"},
		{To: "treasury", Amount: 1, Reason: "fee"},
	}, got)

	// no reveals, exactly one commitment
	s = baseSession(engine.StateExpired)
	s.Commitments["alice"] = commitment.Commit(1, 2, "alice")
	got = Plan(s, 1, "treasury")
	require.Equal(t, "alice", got[0].To)
	require.Equal(t, uint64(19), got[0].Amount)

	// symmetric stall: both refunded in full, no fee
	s = baseSession(engine.StateExpired)
	got = Plan(s, 1, "treasury")
	require.Equal(t, []engine.Payout{
		{To: "alice", Amount: 10, Reason: "refund"},
		{To: "bob", Amount: 10, Reason: "refund"},
	}, got)
}

func TestPlanGuards(t *testing.T) {
	require.Nil(t, Plan(baseSession(engine.StateInProgress), 1, "treasury"))

	// fee larger than the pool is clamped, never underflows
	s := baseSession(engine.StateFinished)
	s.Winner = "alice"
	got := Plan(s, 100, "treasury")
	require.Equal(t, uint64(0), got[0].Amount)
	require.Equal(t, uint64(20), got[1].Amount)
}

func TestMemoryLedgerFlow(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryLedger()

	require.NoError(t, c.Deposit(ctx, "alice", 30))
	require.NoError(t, c.Deposit(ctx, "bob", 10))

	require.NoError(t, c.Escrow(ctx, 1, "alice", 10))
	require.NoError(t, c.Escrow(ctx, 1, "bob", 10))
	require.ErrorIs(t, c.Escrow(ctx, 1, "bob", 10), ErrInsufficientFunds)

	pool, err := c.Pool(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(20), pool)

	// settle: winner 19, fee 1
	require.NoError(t, Execute(ctx, c, 1, []engine.Payout{
		{To: "alice", Amount: 19, Reason: "win"},
		{To: "treasury", Amount: 1, Reason: "fee"},
	}))

	bal, err := c.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(39), bal)
	bal, err = c.Balance(ctx, "treasury")
	require.NoError(t, err)
	require.Equal(t, uint64(1), bal)

	pool, err = c.Pool(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, pool)

	// a drained pool cannot pay again
	require.ErrorIs(t, c.Release(ctx, 1, "alice", 1), ErrInsufficientPool)
}
