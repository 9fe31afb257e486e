package engine

import (
	"encoding/json"
	"fmt"

	"github.com/park285/duel-referee/internal/boardcat"
)

// ludoState records the rolls of the single settled round for display.
type ludoState struct {
	Roll1 int `json:"roll1,omitempty"`
	Roll2 int `json:"roll2,omitempty"`
}

type ludoRules struct {
	faces int
}

// NewLudoRules builds the single-round Ludo duel: one commit-reveal pair per
// player, higher die face wins, equal faces end in a draw.
func NewLudoRules(params boardcat.LudoParams) Rules {
	return &ludoRules{faces: params.DieFaces}
}

func (r *ludoRules) Init() (json.RawMessage, error) {
	return json.Marshal(ludoState{})
}

func (r *ludoRules) Resolve(data json.RawMessage, player1, player2 string, move1, move2 uint64) (json.RawMessage, Outcome, error) {
	var st ludoState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, Outcome{}, fmt.Errorf("decode ludo state: %w", err)
	}
	st.Roll1 = dieFace(move1, r.faces)
	st.Roll2 = dieFace(move2, r.faces)
	next, err := json.Marshal(st)
	if err != nil {
		return nil, Outcome{}, err
	}
	switch {
	case st.Roll1 > st.Roll2:
		return next, Outcome{Winner: player1}, nil
	case st.Roll2 > st.Roll1:
		return next, Outcome{Winner: player2}, nil
	default:
		return next, Outcome{Draw: true}, nil
	}
}

// NewRuleSet wires the strategies for every supported game type from the
// board catalog.
func NewRuleSet(cat *boardcat.Catalog) RuleSet {
	return RuleSet{
		SnakesAndLadders: NewSnakesRules(cat.Snakes),
		Ludo:             NewLudoRules(cat.Ludo),
	}
}
