package engine

import (
	"encoding/json"
	"fmt"

	"github.com/park285/duel-referee/internal/boardcat"
)

// snakesState is the opaque game data blob for a Snakes & Ladders session.
type snakesState struct {
	Pos1 int `json:"pos1"`
	Pos2 int `json:"pos2"`
}

type snakesRules struct {
	board boardcat.SnakesBoard
}

// NewSnakesRules builds the multi-round Snakes & Ladders strategy over the
// given board topology. Each round both revealed moves are reduced to a die
// face and applied simultaneously; the first player on or past the final
// square wins (overshoot clamps). When both reach it in the same round the
// higher roll wins and an equal roll replays the round.
func NewSnakesRules(board boardcat.SnakesBoard) Rules {
	return &snakesRules{board: board}
}

func (r *snakesRules) Init() (json.RawMessage, error) {
	return json.Marshal(snakesState{Pos1: 0, Pos2: 0})
}

func (r *snakesRules) Resolve(data json.RawMessage, player1, player2 string, move1, move2 uint64) (json.RawMessage, Outcome, error) {
	var st snakesState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, Outcome{}, fmt.Errorf("decode board state: %w", err)
	}
	d1 := dieFace(move1, 6)
	d2 := dieFace(move2, 6)

	st.Pos1 = r.advance(st.Pos1, d1)
	st.Pos2 = r.advance(st.Pos2, d2)

	next, err := json.Marshal(st)
	if err != nil {
		return nil, Outcome{}, err
	}

	final := r.board.FinalSquare
	switch {
	case st.Pos1 >= final && st.Pos2 >= final:
		// simultaneous arrival: higher roll takes it, equal rolls replay
		if d1 == d2 {
			return next, Outcome{Continue: true}, nil
		}
		if d1 > d2 {
			return next, Outcome{Winner: player1}, nil
		}
		return next, Outcome{Winner: player2}, nil
	case st.Pos1 >= final:
		return next, Outcome{Winner: player1}, nil
	case st.Pos2 >= final:
		return next, Outcome{Winner: player2}, nil
	default:
		return next, Outcome{Continue: true}, nil
	}
}

func (r *snakesRules) advance(pos, die int) int {
	pos += die
	if pos >= r.board.FinalSquare {
		return r.board.FinalSquare
	}
	return r.board.Resolve(pos)
}

// dieFace reduces an arbitrary committed move value onto 1..faces.
func dieFace(move uint64, faces int) int {
	return int(move%uint64(faces)) + 1
}
