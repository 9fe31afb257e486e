package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/park285/duel-referee/internal/commitment"
)

// GameType selects the rule strategy for a session. Fixed at creation.
type GameType string

const (
	SnakesAndLadders GameType = "SNAKES_AND_LADDERS"
	Ludo             GameType = "LUDO"
)

// ParseGameType accepts the textual names plus the legacy numeric codes
// (0 = Snakes & Ladders, 1 = Ludo) used by older front ends.
func ParseGameType(s string) (GameType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "snakes_and_ladders", "snakes", "snakesandladders", "0":
		return SnakesAndLadders, true
	case "ludo", "1":
		return Ludo, true
	default:
		return "", false
	}
}

// State is the session lifecycle state. Ordering is monotonic:
// Waiting < InProgress < {Finished, Expired}; terminal states are absorbing.
type State string

const (
	StateWaiting    State = "WAITING"
	StateInProgress State = "IN_PROGRESS"
	StateFinished   State = "FINISHED"
	StateExpired    State = "EXPIRED"
)

// Rank maps states onto the monotonic ordering. Both terminal states share
// the same rank; transitions may never decrease it.
func (s State) Rank() int {
	switch s {
	case StateWaiting:
		return 0
	case StateInProgress:
		return 1
	case StateFinished, StateExpired:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateFinished || s == StateExpired }

// Reveal is a disclosed (move, nonce) pair matching a stored commitment.
type Reveal struct {
	Move  uint64 `json:"move"`
	Nonce uint64 `json:"nonce"`
}

// Payout is one leg of a settlement. Amounts are milliunits (3 decimal places,
// so a 0.01 stake is 10).
type Payout struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Reason string `json:"reason"` // "win" | "fee" | "refund" | "forfeit" | "draw_refund"
}

// Session is the persisted state of one staked duel. Stored as JSON under
// duel:session:<id>; mutated only through the transition functions in this
// package, one request at a time per session.
type Session struct {
	ID       uint64   `json:"id"`
	Type     GameType `json:"game_type"`
	Player1  string   `json:"player1"`
	Player2  string   `json:"player2,omitempty"` // empty until join
	State    State    `json:"state"`
	Stake    uint64   `json:"stake"` // per player, milliunits

	Commitments map[string]commitment.Digest `json:"commitments,omitempty"`
	Reveals     map[string]Reveal            `json:"reveals,omitempty"`

	Round    int             `json:"round"`
	GameData json.RawMessage `json:"game_data,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActionAt time.Time `json:"last_action_at"`

	Winner  string   `json:"winner,omitempty"` // empty until a terminal outcome
	Draw    bool     `json:"draw,omitempty"`
	Settled bool     `json:"settled,omitempty"`
	Payouts []Payout `json:"payouts,omitempty"`
}

// Participant reports whether identity is one of the session's players.
func (s *Session) Participant(identity string) bool {
	return identity != "" && (identity == s.Player1 || identity == s.Player2)
}

// Opponent returns the other player, or "" when identity is not a participant.
func (s *Session) Opponent(identity string) string {
	switch identity {
	case s.Player1:
		return s.Player2
	case s.Player2:
		return s.Player1
	default:
		return ""
	}
}

// BothRevealed reports whether each joined participant has a recorded reveal.
func (s *Session) BothRevealed() bool {
	if s.Player2 == "" {
		return false
	}
	_, ok1 := s.Reveals[s.Player1]
	_, ok2 := s.Reveals[s.Player2]
	return ok1 && ok2
}

// Pool is the total escrowed amount for the session in its current state.
func (s *Session) Pool() uint64 {
	if s.Player2 == "" {
		return s.Stake
	}
	return 2 * s.Stake
}

// Outcome is the verdict of one resolved round.
type Outcome struct {
	Winner   string // identity, empty on draw/continue
	Draw     bool
	Continue bool // re-enter InProgress for another commit-reveal round
}

// Rules is the pluggable per-game-type strategy: two revealed moves plus the
// evolving game data in, next game data plus an optional verdict out.
type Rules interface {
	Init() (json.RawMessage, error)
	Resolve(data json.RawMessage, player1, player2 string, move1, move2 uint64) (json.RawMessage, Outcome, error)
}

// RuleSet maps game types to their strategies.
type RuleSet map[GameType]Rules
