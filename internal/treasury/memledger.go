package treasury

import (
	"context"
	"strings"
	"sync"
)

// memledger is the in-memory Custody used for unit tests and single-process
// development runs.
type memledger struct {
	mu       sync.Mutex
	balances map[string]uint64
	pools    map[uint64]uint64
}

func NewMemoryLedger() Custody {
	return &memledger{
		balances: make(map[string]uint64),
		pools:    make(map[uint64]uint64),
	}
}

func (m *memledger) Deposit(ctx context.Context, identity string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[strings.TrimSpace(identity)] += amount
	return nil
}

func (m *memledger) Balance(ctx context.Context, identity string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[strings.TrimSpace(identity)], nil
}

func (m *memledger) Escrow(ctx context.Context, sessionID uint64, from string, amount uint64) error {
	from = strings.TrimSpace(from)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[from] < amount {
		return ErrInsufficientFunds
	}
	m.balances[from] -= amount
	m.pools[sessionID] += amount
	return nil
}

func (m *memledger) Release(ctx context.Context, sessionID uint64, to string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pools[sessionID] < amount {
		return ErrInsufficientPool
	}
	m.pools[sessionID] -= amount
	m.balances[strings.TrimSpace(to)] += amount
	return nil
}

func (m *memledger) Pool(ctx context.Context, sessionID uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pools[sessionID], nil
}
