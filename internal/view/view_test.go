package view

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/duel-referee/internal/commitment"
	"github.com/park285/duel-referee/internal/engine"
)

func TestProjectHidesCommitmentMaterial(t *testing.T) {
	s := &engine.Session{
		ID:      42,
		Type:    engine.SnakesAndLadders,
		Player1: "alice",
		Player2: "bob",
		State:   engine.StateInProgress,
		Stake:   10,
		Round:   3,
		Commitments: map[string]commitment.Digest{
			"bob":   commitment.Commit(1, 2, "bob"),
			"alice": commitment.Commit(3, 4, "alice"),
		},
		Reveals:      map[string]engine.Reveal{"alice": {Move: 3, Nonce: 4}},
		GameData:     json.RawMessage(`{"pos1":14,"pos2":31}`),
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LastActionAt: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
	}

	v := Project(s)
	require.Equal(t, uint64(42), v.ID)
	require.Equal(t, uint64(20), v.Pool)
	require.Equal(t, []string{"alice", "bob"}, v.Committed)
	require.Equal(t, []string{"alice"}, v.Revealed)
	require.Equal(t, map[string]int{"alice": 14, "bob": 31}, v.Positions)

	// the wire form must never leak digests, moves or nonces
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NotContains(t, string(raw), string(s.Commitments["alice"]))
	require.NotContains(t, string(raw), "nonce")
}

func TestProjectLudoRolls(t *testing.T) {
	s := &engine.Session{
		ID:       7,
		Type:     engine.Ludo,
		Player1:  "alice",
		Player2:  "bob",
		State:    engine.StateFinished,
		Stake:    10,
		Round:    1,
		Winner:   "bob",
		GameData: json.RawMessage(`{"roll1":2,"roll2":5}`),
		Payouts: []engine.Payout{
			{To: "bob", Amount: 19, Reason: "win"},
			{To: "treasury", Amount: 1, Reason: "fee"},
		},
	}

	v := Project(s)
	require.Equal(t, map[string]int{"alice": 2, "bob": 5}, v.Positions)
	require.Equal(t, "bob", v.Winner)
	require.Len(t, v.Payouts, 2)
	require.Equal(t, uint64(19), v.Payouts[0].Amount)
}

func TestProjectFreshLudoHasNoPositions(t *testing.T) {
	s := &engine.Session{
		ID:       8,
		Type:     engine.Ludo,
		Player1:  "alice",
		State:    engine.StateWaiting,
		Stake:    10,
		Round:    1,
		GameData: json.RawMessage(`{}`),
	}
	v := Project(s)
	require.Nil(t, v.Positions)
	require.Empty(t, v.Committed)
	require.Equal(t, uint64(10), v.Pool)
}
