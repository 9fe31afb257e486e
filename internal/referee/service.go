package referee

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/park285/duel-referee/internal/commitment"
	"github.com/park285/duel-referee/internal/engine"
	"github.com/park285/duel-referee/internal/events"
	"github.com/park285/duel-referee/internal/obslog"
	"github.com/park285/duel-referee/internal/registry"
	"github.com/park285/duel-referee/internal/treasury"
)

// Archiver receives terminal sessions for long-term storage.
type Archiver interface {
	SaveSession(ctx context.Context, s *engine.Session) error
}

// Options carry the protocol parameters of a referee instance.
type Options struct {
	Stake       uint64 // required per-player stake, milliunits
	Fee         uint64 // protocol fee taken from the pool on settlement
	TreasuryID  string
	JoinTimeout time.Duration
	MoveTimeout time.Duration
}

// Service coordinates session state, fund custody and notifications. All
// state transitions funnel through registry.Store.Apply so that concurrent
// callers serialize on the session record.
type Service struct {
	store   registry.Store
	custody treasury.Custody
	rules   engine.RuleSet
	pub     events.Publisher
	arch    Archiver // nil disables archiving
	opts    Options
	now     func() time.Time
}

func NewService(store registry.Store, custody treasury.Custody, rules engine.RuleSet, pub events.Publisher, arch Archiver, opts Options) *Service {
	return &Service{
		store:   store,
		custody: custody,
		rules:   rules,
		pub:     pub,
		arch:    arch,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. 테스트 전용.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Stake returns the per-player stake this referee enforces.
func (s *Service) Stake() uint64 { return s.opts.Stake }

// CreateGame opens a new waiting session funded by creator's stake.
func (s *Service) CreateGame(ctx context.Context, gt engine.GameType, creator string, stake uint64) (*engine.Session, error) {
	id, err := s.store.NextID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.custody.Escrow(ctx, id, creator, stake); err != nil {
		return nil, err
	}
	sess, err := engine.NewSession(id, gt, creator, stake, s.opts.Stake, s.rules, s.now())
	if err != nil {
		s.refundEscrow(ctx, id, creator, stake)
		return nil, err
	}
	if err := s.store.Create(ctx, sess); err != nil {
		s.refundEscrow(ctx, id, creator, stake)
		return nil, err
	}
	s.pub.Publish(ctx, events.TypeGameCreated, id, map[string]string{
		"player":    creator,
		"game_type": string(gt),
		"stake":     strconv.FormatUint(stake, 10),
	})
	obslog.L().Info("game_created",
		zap.Uint64("game_id", id),
		zap.String("game_type", string(gt)),
		zap.String("player", creator))
	return sess, nil
}

// JoinGame escrows the challenger's stake and moves the session to
// IN_PROGRESS. The escrow is returned if the transition is rejected.
func (s *Service) JoinGame(ctx context.Context, id uint64, identity string, stake uint64) (*engine.Session, error) {
	if err := s.custody.Escrow(ctx, id, identity, stake); err != nil {
		return nil, err
	}
	sess, err := s.store.Apply(ctx, id, func(g *engine.Session) error {
		return g.Join(identity, stake, s.now())
	})
	if err != nil {
		s.refundEscrow(ctx, id, identity, stake)
		return nil, err
	}
	s.pub.Publish(ctx, events.TypePlayerJoined, id, map[string]string{"player": identity})
	obslog.L().Info("player_joined", zap.Uint64("game_id", id), zap.String("player", identity))
	return sess, nil
}

// CommitMove records a hashed move for identity.
func (s *Service) CommitMove(ctx context.Context, id uint64, identity, digest string) (*engine.Session, error) {
	d, err := commitment.Parse(digest)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.Apply(ctx, id, func(g *engine.Session) error {
		return g.CommitMove(identity, d, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.pub.Publish(ctx, events.TypeMoveCommitted, id, map[string]string{
		"player": identity,
		"round":  strconv.Itoa(sess.Round),
	})
	return sess, nil
}

// RevealMove opens identity's commitment. Once both reveals of a round are
// in, the round resolves, possibly finishing the game and settling the pool.
func (s *Service) RevealMove(ctx context.Context, id uint64, identity string, move, nonce uint64) (*engine.Session, error) {
	round := 0
	sess, err := s.store.Apply(ctx, id, func(g *engine.Session) error {
		round = g.Round
		finished, err := g.RevealMove(identity, move, nonce, s.rules, s.now())
		if err != nil {
			return err
		}
		if finished {
			s.settleLocked(g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.pub.Publish(ctx, events.TypeMoveRevealed, id, map[string]string{
		"player": identity,
		"round":  strconv.Itoa(round),
	})
	if sess.Round > round && !sess.State.Terminal() {
		s.pub.Publish(ctx, events.TypeRoundPlayed, id, map[string]string{
			"round": strconv.Itoa(round),
		})
	}
	if sess.State.Terminal() {
		s.finalize(ctx, sess)
	}
	return sess, nil
}

// ExpireGame force-terminates a session whose deadline elapsed. Anyone may
// call it; the engine decides whether the deadline really passed.
func (s *Service) ExpireGame(ctx context.Context, id uint64) (*engine.Session, error) {
	sess, err := s.store.Apply(ctx, id, func(g *engine.Session) error {
		if err := g.Expire(s.now(), s.opts.JoinTimeout, s.opts.MoveTimeout); err != nil {
			return err
		}
		s.settleLocked(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.finalize(ctx, sess)
	return sess, nil
}

// GetGame returns a snapshot of the session.
func (s *Service) GetGame(ctx context.Context, id uint64) (*engine.Session, error) {
	return s.store.Get(ctx, id)
}

// ListActive returns the ids of sessions that are not yet terminal.
func (s *Service) ListActive(ctx context.Context) ([]uint64, error) {
	return s.store.ListActive(ctx)
}

// settleLocked marks the payout plan on a session that just went terminal.
// Runs inside Store.Apply so the Settled flag commits atomically with the
// state transition; the actual fund movement happens in finalize.
func (s *Service) settleLocked(g *engine.Session) {
	if g.Settled {
		return
	}
	g.Payouts = treasury.Plan(g, s.opts.Fee, s.opts.TreasuryID)
	g.Settled = true
}

// finalize moves escrowed funds per the committed plan, archives the record
// and emits the terminal event. The plan is already persisted on the session,
// so an operator can replay an interrupted release from the ledger against
// the recorded payouts.
func (s *Service) finalize(ctx context.Context, g *engine.Session) {
	if err := treasury.Execute(ctx, s.custody, g.ID, g.Payouts); err != nil {
		obslog.L().Error("settlement_execute_error", zap.Uint64("game_id", g.ID), zap.Error(err))
	}
	if s.arch != nil {
		if err := s.arch.SaveSession(ctx, g); err != nil {
			obslog.L().Warn("archive_error", zap.Uint64("game_id", g.ID), zap.Error(err))
		}
	}
	typ := events.TypeGameFinished
	attrs := map[string]string{"winner": g.Winner}
	if g.Draw {
		attrs["draw"] = "true"
	}
	if g.State == engine.StateExpired {
		typ = events.TypeGameExpired
	}
	s.pub.Publish(ctx, typ, g.ID, attrs)
	obslog.L().Info("game_settled",
		zap.Uint64("game_id", g.ID),
		zap.String("state", string(g.State)),
		zap.String("winner", g.Winner),
		zap.Bool("draw", g.Draw))
}

func (s *Service) refundEscrow(ctx context.Context, id uint64, identity string, amount uint64) {
	if err := s.custody.Release(ctx, id, identity, amount); err != nil {
		obslog.L().Error("escrow_refund_error",
			zap.Uint64("game_id", id),
			zap.String("player", identity),
			zap.Error(err))
	}
}
