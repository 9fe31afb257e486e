package gamedto

import "time"

// SessionView is the public projection of a session. Commitments are listed
// by holder only; digests and reveals stay server-side until the game ends.
type SessionView struct {
	ID        uint64    `json:"id"`
	GameType  string    `json:"game_type"`
	State     string    `json:"state"`
	Player1   string    `json:"player1"`
	Player2   string    `json:"player2,omitempty"`
	Stake     uint64    `json:"stake"`
	Pool      uint64    `json:"pool"`
	Round     int       `json:"round"`
	Committed []string  `json:"committed,omitempty"`
	Revealed  []string  `json:"revealed,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Board progress, game-type dependent.
	Positions map[string]int `json:"positions,omitempty"`

	Winner  string       `json:"winner,omitempty"`
	Draw    bool         `json:"draw,omitempty"`
	Payouts []PayoutView `json:"payouts,omitempty"`
}

type PayoutView struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Reason string `json:"reason"`
}

type GameListResponse struct {
	Games []uint64 `json:"games"`
}
