package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/duel-referee/internal/obslog"
)

// Channel is the Redis pub/sub channel carrying session notifications.
const Channel = "duel:events"

// Event types mirror the session lifecycle transitions.
const (
	TypeGameCreated   = "gameCreated"
	TypePlayerJoined  = "playerJoined"
	TypeMoveCommitted = "moveCommitted"
	TypeMoveRevealed  = "moveRevealed"
	TypeRoundPlayed   = "roundPlayed"
	TypeGameFinished  = "gameFinished"
	TypeGameExpired   = "gameExpired"
)

// Event is the asynchronous notification emitted on every state transition.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	GameID     uint64            `json:"game_id"`
	At         time.Time         `json:"at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Publisher pushes events to whoever listens. Publishing is best-effort:
// session state is authoritative, notifications are advisory.
type Publisher interface {
	Publish(ctx context.Context, typ string, gameID uint64, attrs map[string]string)
}

type redisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) Publisher {
	return &redisPublisher{rdb: rdb}
}

func (p *redisPublisher) Publish(ctx context.Context, typ string, gameID uint64, attrs map[string]string) {
	ev := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		GameID:     gameID,
		At:         time.Now().UTC(),
		Attributes: attrs,
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		obslog.L().Error("event_marshal_error", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, Channel, raw).Err(); err != nil {
		obslog.L().Warn("event_publish_error", zap.String("type", typ), zap.Uint64("game_id", gameID), zap.Error(err))
		return
	}
	obslog.L().Debug("event_published", zap.String("type", typ), zap.Uint64("game_id", gameID))
}

// Nop discards every event; used in unit tests.
type Nop struct{}

func (Nop) Publish(ctx context.Context, typ string, gameID uint64, attrs map[string]string) {}
