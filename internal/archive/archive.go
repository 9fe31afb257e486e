package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/duel-referee/internal/engine"
)

// Repository persists settled sessions to Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveSession upserts a terminal session. Safe to call more than once for
// the same game id.
func (r *Repository) SaveSession(ctx context.Context, s *engine.Session) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}

	payoutsRaw, _ := json.Marshal(s.Payouts)
	duration := s.LastActionAt.Sub(s.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO duel_games (
	    game_id, game_type, player1, player2,
	    state, stake, rounds, winner, draw,
	    game_data, payouts,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    game_type=EXCLUDED.game_type,
	    player1=EXCLUDED.player1,
	    player2=EXCLUDED.player2,
	    state=EXCLUDED.state,
	    stake=EXCLUDED.stake,
	    rounds=EXCLUDED.rounds,
	    winner=EXCLUDED.winner,
	    draw=EXCLUDED.draw,
	    game_data=EXCLUDED.game_data,
	    payouts=EXCLUDED.payouts,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		s.ID, string(s.Type), s.Player1, s.Player2,
		string(s.State), s.Stake, s.Round, s.Winner, s.Draw,
		string(s.GameData), string(payoutsRaw),
		s.CreatedAt, s.LastActionAt, duration,
	)
	return err
}
