package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/park285/duel-referee/internal/engine"
)

const (
	keySeq    = "duel:session:seq"
	keyActive = "duel:active"
)

func sessionKey(id uint64) string { return "duel:session:" + strconv.FormatUint(id, 10) }

// redisStore persists sessions as JSON and applies transitions under WATCH,
// so concurrent requests on the same session serialize: the loser of a race
// re-reads fresh state and its guard error (e.g. a duplicate commitment) is
// reported without side effects.
type redisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) Store {
	return &redisStore{rdb: rdb}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (r *redisStore) NextID(ctx context.Context) (uint64, error) {
	n, err := r.rdb.Incr(ctx, keySeq).Result()
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (r *redisStore) Create(ctx context.Context, s *engine.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), raw, 0)
	if !s.State.Terminal() {
		pipe.SAdd(ctx, keyActive, s.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisStore) Get(ctx context.Context, id uint64) (*engine.Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, engine.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var s engine.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", id, err)
	}
	return &s, nil
}

func (r *redisStore) Apply(ctx context.Context, id uint64, fn func(*engine.Session) error) (*engine.Session, error) {
	key := sessionKey(id)
	var applied *engine.Session
	for attempt := 0; attempt < 5; attempt++ {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return engine.ErrSessionNotFound
			}
			if err != nil {
				return err
			}
			var cur engine.Session
			if err := json.Unmarshal(raw, &cur); err != nil {
				return fmt.Errorf("decode session %d: %w", id, err)
			}
			if err := fn(&cur); err != nil {
				return err
			}
			next, err := json.Marshal(&cur)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, next, 0)
			if cur.State.Terminal() {
				// leaves the active set in the same step the state turns terminal
				pipe.SRem(ctx, keyActive, id)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			applied = &cur
			return nil
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return applied, nil
	}
	return nil, fmt.Errorf("session %d: too many concurrent updates", id)
}

func (r *redisStore) ListActive(ctx context.Context) ([]uint64, error) {
	members, err := r.rdb.SMembers(ctx, keyActive).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		n, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
