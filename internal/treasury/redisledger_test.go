package treasury

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLedger(t *testing.T) Custody {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLedger(rdb)
}

func TestRedisLedgerEscrowRelease(t *testing.T) {
	ctx := context.Background()
	c := newTestLedger(t)

	if err := c.Deposit(ctx, "alice", 25); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := c.Escrow(ctx, 7, "alice", 10); err != nil {
		t.Fatalf("Escrow: %v", err)
	}
	if err := c.Escrow(ctx, 7, "alice", 20); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	bal, err := c.Balance(ctx, "alice")
	if err != nil || bal != 15 {
		t.Fatalf("Balance = %d, %v; want 15", bal, err)
	}
	pool, err := c.Pool(ctx, 7)
	if err != nil || pool != 10 {
		t.Fatalf("Pool = %d, %v; want 10", pool, err)
	}

	if err := c.Release(ctx, 7, "bob", 10); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := c.Release(ctx, 7, "bob", 1); err != ErrInsufficientPool {
		t.Fatalf("expected ErrInsufficientPool, got %v", err)
	}
	bal, err = c.Balance(ctx, "bob")
	if err != nil || bal != 10 {
		t.Fatalf("bob balance = %d, %v; want 10", bal, err)
	}
}

func TestRedisLedgerUnknownAccounts(t *testing.T) {
	ctx := context.Background()
	c := newTestLedger(t)

	bal, err := c.Balance(ctx, "ghost")
	if err != nil || bal != 0 {
		t.Fatalf("Balance = %d, %v; want 0", bal, err)
	}
	if err := c.Escrow(ctx, 1, "ghost", 1); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}
