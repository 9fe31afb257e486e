package treasury

import (
	"context"
	"errors"

	"github.com/park285/duel-referee/internal/engine"
)

var (
	ErrInsufficientFunds = errors.New("insufficient account balance")
	ErrInsufficientPool  = errors.New("insufficient escrowed pool")
)

// Custody is the atomic fund-custody primitive the referee relies on: escrow a
// stake into a per-session pool, release pool funds to an account, inspect
// balances. Implementations must never let a session pay out more than it
// escrowed.
type Custody interface {
	Deposit(ctx context.Context, identity string, amount uint64) error
	Balance(ctx context.Context, identity string) (uint64, error)
	Escrow(ctx context.Context, sessionID uint64, from string, amount uint64) error
	Release(ctx context.Context, sessionID uint64, to string, amount uint64) error
	Pool(ctx context.Context, sessionID uint64) (uint64, error)
}

// Plan computes the settlement payouts for a terminal session. Pure function
// of the session; it never touches funds. The policy:
//
//   - Finished with a winner: winner takes 2*stake minus fee, fee to treasury.
//   - Finished draw: each stake refunded minus fee/2, the pro-rated halves to
//     treasury (with the default 1-milliunit fee this rounds to a free draw).
//   - Expired from Waiting (nobody joined): full refund of player1's stake.
//   - Expired mid-game: forfeit to the responsive party. If exactly one
//     player revealed this round they take the pool minus fee; failing that,
//     if exactly one committed they take it; symmetric stalls refund both
//     stakes in full.
func Plan(s *engine.Session, fee uint64, treasuryID string) []engine.Payout {
	if !s.State.Terminal() {
		return nil
	}
	pool := s.Pool()
	if fee > pool {
		fee = pool
	}

	switch s.State {
	case engine.StateFinished:
		if s.Draw {
			return drawPlan(s, fee, treasuryID)
		}
		return winnerPlan(s.Winner, pool, fee, treasuryID, "win")
	case engine.StateExpired:
		if s.Player2 == "" {
			return []engine.Payout{{To: s.Player1, Amount: s.Stake, Reason: "refund"}}
		}
		if resp := responsiveParty(s); resp != "" {
			return winnerPlan(resp, pool, fee, treasuryID, "forfeit")
		}
		return []engine.Payout{
			{To: s.Player1, Amount: s.Stake, Reason: "refund"},
			{To: s.Player2, Amount: s.Stake, Reason: "refund"},
		}
	}
	return nil
}

func winnerPlan(winner string, pool, fee uint64, treasuryID, reason string) []engine.Payout {
	out := []engine.Payout{{To: winner, Amount: pool - fee, Reason: reason}}
	if fee > 0 {
		out = append(out, engine.Payout{To: treasuryID, Amount: fee, Reason: "fee"})
	}
	return out
}

func drawPlan(s *engine.Session, fee uint64, treasuryID string) []engine.Payout {
	half := fee / 2
	out := []engine.Payout{
		{To: s.Player1, Amount: s.Stake - half, Reason: "draw_refund"},
		{To: s.Player2, Amount: s.Stake - half, Reason: "draw_refund"},
	}
	if half > 0 {
		out = append(out, engine.Payout{To: treasuryID, Amount: 2 * half, Reason: "fee"})
	}
	return out
}

// responsiveParty picks the player who completed the latest required action
// when the other stalled, or "" when the stall is symmetric.
func responsiveParty(s *engine.Session) string {
	_, r1 := s.Reveals[s.Player1]
	_, r2 := s.Reveals[s.Player2]
	if r1 != r2 {
		if r1 {
			return s.Player1
		}
		return s.Player2
	}
	_, c1 := s.Commitments[s.Player1]
	_, c2 := s.Commitments[s.Player2]
	if c1 != c2 {
		if c1 {
			return s.Player1
		}
		return s.Player2
	}
	return ""
}

// Execute releases the planned payouts from the session pool. Callers mark
// the session settled before invoking it, so a retry after a partial failure
// is visible in the ledger rather than double-paid.
func Execute(ctx context.Context, c Custody, sessionID uint64, payouts []engine.Payout) error {
	for _, p := range payouts {
		if p.Amount == 0 {
			continue
		}
		if err := c.Release(ctx, sessionID, p.To, p.Amount); err != nil {
			return err
		}
	}
	return nil
}
