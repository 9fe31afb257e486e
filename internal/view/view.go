package view

import (
	"encoding/json"
	"sort"

	"github.com/park285/duel-referee/internal/engine"
	"github.com/park285/duel-referee/pkg/gamedto"
)

// Project renders a session into its public view. Commitment digests and
// pending reveals are withheld; only who has acted is exposed.
func Project(s *engine.Session) *gamedto.SessionView {
	v := &gamedto.SessionView{
		ID:        s.ID,
		GameType:  string(s.Type),
		State:     string(s.State),
		Player1:   s.Player1,
		Player2:   s.Player2,
		Stake:     s.Stake,
		Pool:      s.Pool(),
		Round:     s.Round,
		Committed: holders(len(s.Commitments), s, func(p string) bool { _, ok := s.Commitments[p]; return ok }),
		Revealed:  holders(len(s.Reveals), s, func(p string) bool { _, ok := s.Reveals[p]; return ok }),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.LastActionAt,
		Winner:    s.Winner,
		Draw:      s.Draw,
		Positions: positions(s),
	}
	for _, p := range s.Payouts {
		v.Payouts = append(v.Payouts, gamedto.PayoutView{To: p.To, Amount: p.Amount, Reason: p.Reason})
	}
	return v
}

func holders(n int, s *engine.Session, has func(string) bool) []string {
	if n == 0 {
		return nil
	}
	var out []string
	for _, p := range []string{s.Player1, s.Player2} {
		if p != "" && has(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// positions decodes the board progress blob for display. Unknown or empty
// blobs yield no positions.
func positions(s *engine.Session) map[string]int {
	if len(s.GameData) == 0 || s.Player1 == "" {
		return nil
	}
	switch s.Type {
	case engine.SnakesAndLadders:
		var st struct {
			Pos1 int `json:"pos1"`
			Pos2 int `json:"pos2"`
		}
		if err := json.Unmarshal(s.GameData, &st); err != nil {
			return nil
		}
		out := map[string]int{s.Player1: st.Pos1}
		if s.Player2 != "" {
			out[s.Player2] = st.Pos2
		}
		return out
	case engine.Ludo:
		var st struct {
			Roll1 int `json:"roll1"`
			Roll2 int `json:"roll2"`
		}
		if err := json.Unmarshal(s.GameData, &st); err != nil {
			return nil
		}
		if st.Roll1 == 0 && st.Roll2 == 0 {
			return nil
		}
		out := map[string]int{s.Player1: st.Roll1}
		if s.Player2 != "" {
			out[s.Player2] = st.Roll2
		}
		return out
	default:
		return nil
	}
}
