package referee

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/duel-referee/internal/boardcat"
	"github.com/park285/duel-referee/internal/commitment"
	"github.com/park285/duel-referee/internal/engine"
	"github.com/park285/duel-referee/internal/events"
	"github.com/park285/duel-referee/internal/registry"
	"github.com/park285/duel-referee/internal/treasury"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeArchive struct {
	saved []*engine.Session
}

func (f *fakeArchive) SaveSession(ctx context.Context, s *engine.Session) error {
	f.saved = append(f.saved, s)
	return nil
}

type fixture struct {
	svc     *Service
	custody treasury.Custody
	arch    *fakeArchive
	now     *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := boardcat.Load("")
	require.NoError(t, err)

	custody := treasury.NewMemoryLedger()
	arch := &fakeArchive{}
	now := t0
	svc := NewService(registry.NewMemoryStore(), custody, engine.NewRuleSet(cat), events.Nop{}, arch, Options{
		Stake:       10,
		Fee:         1,
		TreasuryID:  "treasury",
		JoinTimeout: time.Hour,
		MoveTimeout: 10 * time.Minute,
	}).WithClock(func() time.Time { return now })

	ctx := context.Background()
	require.NoError(t, custody.Deposit(ctx, "alice", 50))
	require.NoError(t, custody.Deposit(ctx, "bob", 50))
	return &fixture{svc: svc, custody: custody, arch: arch, now: &now}
}

func (f *fixture) balance(t *testing.T, identity string) uint64 {
	t.Helper()
	bal, err := f.custody.Balance(context.Background(), identity)
	require.NoError(t, err)
	return bal
}

func commitReveal(t *testing.T, svc *Service, id uint64, identity string, move uint64) *engine.Session {
	t.Helper()
	ctx := context.Background()
	nonce := uint64(0xabcd)
	d := commitment.Commit(move, nonce, identity)
	_, err := svc.CommitMove(ctx, id, identity, string(d))
	require.NoError(t, err)
	s, err := svc.RevealMove(ctx, id, identity, move, nonce)
	require.NoError(t, err)
	return s
}

func TestLudoDuelSettlesWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateGame(ctx, engine.Ludo, "alice", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(40), f.balance(t, "alice"))

	_, err = f.svc.JoinGame(ctx, s.ID, "bob", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(40), f.balance(t, "bob"))

	commitReveal(t, f.svc, s.ID, "alice", 4) // face 5
	final := commitReveal(t, f.svc, s.ID, "bob", 1) // face 2

	require.Equal(t, engine.StateFinished, final.State)
	require.Equal(t, "alice", final.Winner)
	require.True(t, final.Settled)

	// winner takes 2*stake minus fee, treasury keeps the fee
	require.Equal(t, uint64(59), f.balance(t, "alice"))
	require.Equal(t, uint64(40), f.balance(t, "bob"))
	require.Equal(t, uint64(1), f.balance(t, "treasury"))

	require.Len(t, f.arch.saved, 1)
	require.Equal(t, final.ID, f.arch.saved[0].ID)

	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestLudoDrawRefundsBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateGame(ctx, engine.Ludo, "alice", 10)
	require.NoError(t, err)
	_, err = f.svc.JoinGame(ctx, s.ID, "bob", 10)
	require.NoError(t, err)

	commitReveal(t, f.svc, s.ID, "alice", 2)
	final := commitReveal(t, f.svc, s.ID, "bob", 2)

	require.True(t, final.Draw)
	// 1-milliunit fee halves to zero: both stakes come back whole
	require.Equal(t, uint64(50), f.balance(t, "alice"))
	require.Equal(t, uint64(50), f.balance(t, "bob"))
	require.Zero(t, f.balance(t, "treasury"))
}

func TestCreateRejectsWrongStake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateGame(ctx, engine.Ludo, "alice", 3)
	require.ErrorIs(t, err, engine.ErrInvalidStake)
	// escrow rolled back
	require.Equal(t, uint64(50), f.balance(t, "alice"))
}

func TestJoinRejectionRefundsEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateGame(ctx, engine.Ludo, "alice", 10)
	require.NoError(t, err)

	_, err = f.svc.JoinGame(ctx, s.ID, "alice", 10)
	require.ErrorIs(t, err, engine.ErrSelfJoin)
	require.Equal(t, uint64(40), f.balance(t, "alice"))

	_, err = f.svc.JoinGame(ctx, s.ID+99, "bob", 10)
	require.ErrorIs(t, err, engine.ErrSessionNotFound)
	require.Equal(t, uint64(50), f.balance(t, "bob"))
}

func TestCreateRequiresFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateGame(ctx, engine.Ludo, "pauper", 10)
	require.ErrorIs(t, err, treasury.ErrInsufficientFunds)
}

func TestExpireWaitingRefundsCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateGame(ctx, engine.Ludo, "alice", 10)
	require.NoError(t, err)

	_, err = f.svc.ExpireGame(ctx, s.ID)
	require.ErrorIs(t, err, engine.ErrNotYetExpirable)

	*f.now = t0.Add(time.Hour + time.Second)
	final, err := f.svc.ExpireGame(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, engine.StateExpired, final.State)

	// full refund, no fee on an unjoined session
	require.Equal(t, uint64(50), f.balance(t, "alice"))
	require.Zero(t, f.balance(t, "treasury"))
}

func TestExpireMidGameForfeitsToResponsiveParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateGame(ctx, engine.Ludo, "alice", 10)
	require.NoError(t, err)
	_, err = f.svc.JoinGame(ctx, s.ID, "bob", 10)
	require.NoError(t, err)

	// only alice acts; bob stalls past the move deadline
	commitReveal(t, f.svc, s.ID, "alice", 4)
	*f.now = t0.Add(11 * time.Minute)

	final, err := f.svc.ExpireGame(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, engine.StateExpired, final.State)

	require.Equal(t, uint64(59), f.balance(t, "alice"))
	require.Equal(t, uint64(40), f.balance(t, "bob"))
	require.Equal(t, uint64(1), f.balance(t, "treasury"))
}

func TestExpireSymmetricStallRefundsBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateGame(ctx, engine.Ludo, "alice", 10)
	require.NoError(t, err)
	_, err = f.svc.JoinGame(ctx, s.ID, "bob", 10)
	require.NoError(t, err)

	*f.now = t0.Add(11 * time.Minute)
	final, err := f.svc.ExpireGame(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, engine.StateExpired, final.State)

	require.Equal(t, uint64(50), f.balance(t, "alice"))
	require.Equal(t, uint64(50), f.balance(t, "bob"))
	require.Zero(t, f.balance(t, "treasury"))
}

func TestSnakesMultiRoundThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateGame(ctx, engine.SnakesAndLadders, "alice", 10)
	require.NoError(t, err)
	_, err = f.svc.JoinGame(ctx, s.ID, "bob", 10)
	require.NoError(t, err)

	// rounds pass until somebody crosses square 100
	cur, err := f.svc.GetGame(ctx, s.ID)
	require.NoError(t, err)
	for round := 0; cur.State == engine.StateInProgress && round < 200; round++ {
		commitReveal(t, f.svc, s.ID, "alice", uint64(5)) // always rolls 6
		cur = commitReveal(t, f.svc, s.ID, "bob", uint64(0))
	}
	require.Equal(t, engine.StateFinished, cur.State)
	require.Equal(t, "alice", cur.Winner)
	require.True(t, cur.Round > 1)
}

func TestCommitRejectsMalformedDigest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateGame(ctx, engine.Ludo, "alice", 10)
	require.NoError(t, err)
	_, err = f.svc.JoinGame(ctx, s.ID, "bob", 10)
	require.NoError(t, err)

	_, err = f.svc.CommitMove(ctx, s.ID, "alice", "not-a-digest")
	require.ErrorIs(t, err, commitment.ErrMalformedDigest)
}
