package treasury

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// redisledger keeps account balances and per-session pools in Redis. Escrow
// and Release run under WATCH so a racing request either applies cleanly or
// retries; the pool can never go negative.
type redisledger struct {
	rdb *redis.Client
}

func NewRedisLedger(rdb *redis.Client) Custody {
	return &redisledger{rdb: rdb}
}

func bankKey(identity string) string { return "duel:bank:" + strings.TrimSpace(identity) }
func poolKey(sessionID uint64) string {
	return "duel:pool:" + strconv.FormatUint(sessionID, 10)
}

func (l *redisledger) Deposit(ctx context.Context, identity string, amount uint64) error {
	return l.rdb.IncrBy(ctx, bankKey(identity), int64(amount)).Err()
}

func (l *redisledger) Balance(ctx context.Context, identity string) (uint64, error) {
	return l.readCounter(ctx, bankKey(identity))
}

func (l *redisledger) Escrow(ctx context.Context, sessionID uint64, from string, amount uint64) error {
	return l.move(ctx, bankKey(from), poolKey(sessionID), amount, ErrInsufficientFunds)
}

func (l *redisledger) Release(ctx context.Context, sessionID uint64, to string, amount uint64) error {
	return l.move(ctx, poolKey(sessionID), bankKey(to), amount, ErrInsufficientPool)
}

func (l *redisledger) Pool(ctx context.Context, sessionID uint64) (uint64, error) {
	return l.readCounter(ctx, poolKey(sessionID))
}

// move transfers amount from src to dst, failing with short when src holds
// less than amount. Retries a bounded number of times on WATCH conflicts.
func (l *redisledger) move(ctx context.Context, src, dst string, amount uint64, short error) error {
	for attempt := 0; attempt < 5; attempt++ {
		err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
			have, err := counterValue(tx.Get(ctx, src))
			if err != nil {
				return err
			}
			if have < amount {
				return short
			}
			pipe := tx.TxPipeline()
			pipe.DecrBy(ctx, src, int64(amount))
			pipe.IncrBy(ctx, dst, int64(amount))
			_, err = pipe.Exec(ctx)
			return err
		}, src)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("ledger move %s -> %s: too many conflicts", src, dst)
}

func (l *redisledger) readCounter(ctx context.Context, key string) (uint64, error) {
	return counterValue(l.rdb.Get(ctx, key))
}

func counterValue(cmd *redis.StringCmd) (uint64, error) {
	raw, err := cmd.Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("corrupt ledger counter %q", raw)
	}
	return uint64(n), nil
}
