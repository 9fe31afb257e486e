package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/duel-referee/internal/engine"
	"github.com/park285/duel-referee/internal/obslog"
	"github.com/park285/duel-referee/internal/refclient"
)

// Poller periodically scans active sessions and nudges the referee to expire
// the overdue ones. It holds no state of its own; a lost poll is retried on
// the next tick and a stale decision is rejected by the referee with a
// conflict answer.
type Poller struct {
	client      *refclient.Client
	interval    time.Duration
	joinTimeout time.Duration
	moveTimeout time.Duration
	now         func() time.Time
}

func NewPoller(client *refclient.Client, interval, joinTimeout, moveTimeout time.Duration) *Poller {
	return &Poller{
		client:      client,
		interval:    interval,
		joinTimeout: joinTimeout,
		moveTimeout: moveTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep walks every active session once. Errors are logged and skipped so a
// single bad session never wedges the loop.
func (p *Poller) sweep(ctx context.Context) {
	ids, err := p.client.ListActive(ctx)
	if err != nil {
		obslog.L().Warn("watcher_list_error", zap.Error(err))
		return
	}
	expired := 0
	for _, id := range ids {
		v, err := p.client.GetGame(ctx, id)
		if err != nil {
			obslog.L().Warn("watcher_get_error", zap.Uint64("game_id", id), zap.Error(err))
			continue
		}
		bothRevealed := len(v.Revealed) == 2
		if !engine.Expirable(engine.State(v.State), v.CreatedAt, v.UpdatedAt, bothRevealed, p.now(), p.joinTimeout, p.moveTimeout) {
			continue
		}
		if _, err := p.client.Expire(ctx, id); err != nil {
			if refclient.IsConflict(err) {
				// someone acted between our snapshot and the call
				continue
			}
			obslog.L().Warn("watcher_expire_error", zap.Uint64("game_id", id), zap.Error(err))
			continue
		}
		expired++
		obslog.L().Info("watcher_expired_session", zap.Uint64("game_id", id))
	}
	if expired > 0 || len(ids) > 0 {
		obslog.L().Debug("watcher_sweep_done", zap.Int("active", len(ids)), zap.Int("expired", expired))
	}
}
